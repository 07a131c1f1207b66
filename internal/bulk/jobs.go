package bulk

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrJobRunning is returned when the user already has a bulk job running
var ErrJobRunning = errors.New("bulk job already running")

// Job is a background bulk operation owned by one user
type Job struct {
	User   int64
	Name   string
	cancel context.CancelFunc
	done   chan struct{}
}

// Done is closed when the job returns
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Jobs tracks at most one running bulk job per user
type Jobs struct {
	ctx    context.Context
	logger *zap.Logger

	mu      sync.Mutex
	running map[int64]*Job
	wg      sync.WaitGroup
}

// NewJobs creates a registry. Jobs inherit ctx, so cancelling it stops them all.
func NewJobs(ctx context.Context, logger *zap.Logger) *Jobs {
	return &Jobs{
		ctx:     ctx,
		logger:  logger,
		running: make(map[int64]*Job),
	}
}

// Start runs fn in the background for user
func (j *Jobs) Start(user int64, name string, fn func(ctx context.Context)) (*Job, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.running[user]; ok {
		return nil, ErrJobRunning
	}

	ctx, cancel := context.WithCancel(j.ctx)
	job := &Job{User: user, Name: name, cancel: cancel, done: make(chan struct{})}
	j.running[user] = job
	j.wg.Add(1)

	go func() {
		defer j.wg.Done()
		defer close(job.done)
		defer j.finish(job)
		defer func() {
			if r := recover(); r != nil {
				j.logger.Error("Bulk job panicked",
					zap.Int64("user_id", user),
					zap.String("job", name),
					zap.Any("panic", r),
				)
			}
		}()

		j.logger.Info("Bulk job started", zap.Int64("user_id", user), zap.String("job", name))
		fn(ctx)
	}()

	return job, nil
}

func (j *Jobs) finish(job *Job) {
	job.cancel()

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running[job.User] == job {
		delete(j.running, job.User)
	}
}

// Running returns the user's running job, if any
func (j *Jobs) Running(user int64) (*Job, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.running[user]
	return job, ok
}

// Cancel signals the user's running job to stop and reports whether one existed
func (j *Jobs) Cancel(user int64) bool {
	j.mu.Lock()
	job, ok := j.running[user]
	j.mu.Unlock()

	if !ok {
		return false
	}
	job.cancel()
	j.logger.Info("Bulk job cancellation requested",
		zap.Int64("user_id", user),
		zap.String("job", job.Name),
	)
	return true
}

// Wait blocks until every started job has returned
func (j *Jobs) Wait() {
	j.wg.Wait()
}
