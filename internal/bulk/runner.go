package bulk

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"chatagent/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// DefaultMaxItems caps the number of items a single run accepts
const DefaultMaxItems = 1000

// ErrTooManyItems is returned before any item is processed
var ErrTooManyItems = errors.New("too many items")

// Options configure a Runner
type Options struct {
	// MaxItems caps the item count, DefaultMaxItems when zero
	MaxItems int
	// Parallelism bounds concurrent actions, 1 when zero
	Parallelism int
	// Rate limits action starts per second, unlimited when zero
	Rate float64
}

// Runner executes independent actions with per-item failure isolation
type Runner struct {
	name        string
	maxItems    int
	parallelism int
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// NewRunner creates a runner. name is used in logs only.
func NewRunner(name string, opts Options, logger *zap.Logger) *Runner {
	r := &Runner{
		name:        name,
		maxItems:    opts.MaxItems,
		parallelism: opts.Parallelism,
		limiter:     rate.NewLimiter(rate.Inf, 1),
		logger:      logger,
	}
	if r.maxItems <= 0 {
		r.maxItems = DefaultMaxItems
	}
	if r.parallelism <= 0 {
		r.parallelism = 1
	}
	if opts.Rate > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(opts.Rate), 1)
	}
	return r
}

// MaxItems returns the item cap
func (r *Runner) MaxItems() int {
	return r.maxItems
}

// Check reports ErrTooManyItems when n exceeds the cap
func (r *Runner) Check(n int) error {
	if n > r.maxItems {
		return fmt.Errorf("%w: %d items, limit is %d", ErrTooManyItems, n, r.maxItems)
	}
	return nil
}

// Action processes one item
type Action[T any] func(ctx context.Context, item T) error

// Run applies action to every item. A failing item is recorded and never
// stops the rest. When ctx is cancelled no new items are started, items
// already running finish, and the partial result has Cancelled set.
// Counts and failures follow item order, not completion order.
func Run[T any](ctx context.Context, r *Runner, items []T, action Action[T]) (domain.BulkResult, error) {
	if err := r.Check(len(items)); err != nil {
		return domain.BulkResult{}, err
	}

	var (
		errs     = make([]error, len(items))
		started  = make([]bool, len(items))
		sem      = semaphore.NewWeighted(int64(r.parallelism))
		wg       sync.WaitGroup
		itemCtx  = context.WithoutCancel(ctx)
		canceled bool
	)

	for i, item := range items {
		if ctx.Err() != nil {
			canceled = true
			break
		}
		if err := r.limiter.Wait(ctx); err != nil {
			canceled = true
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			canceled = true
			break
		}
		// Acquire may succeed even if ctx was cancelled while waiting
		if ctx.Err() != nil {
			sem.Release(1)
			canceled = true
			break
		}

		started[i] = true
		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()
			defer sem.Release(1)
			errs[i] = safeCall(itemCtx, action, item)
		}(i, item)
	}
	wg.Wait()

	result := domain.BulkResult{Cancelled: canceled}
	for i, item := range items {
		if !started[i] {
			continue
		}
		result.Attempted++
		if errs[i] == nil {
			result.Succeeded++
			continue
		}
		result.Failed++
		result.Failures = append(result.Failures, domain.BulkFailure{
			Item:   fmt.Sprint(item),
			Reason: errs[i].Error(),
		})
		r.logger.Warn("Bulk item failed",
			zap.String("operation", r.name),
			zap.Any("item", item),
			zap.Error(errs[i]),
		)
	}

	r.logger.Info("Bulk operation finished",
		zap.String("operation", r.name),
		zap.Int("total", len(items)),
		zap.Int("attempted", result.Attempted),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Bool("cancelled", result.Cancelled),
	)
	return result, nil
}

// safeCall runs action, converting a panic into an item error
func safeCall[T any](ctx context.Context, action Action[T], item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return action(ctx, item)
}
