package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Outcome reports what happened to a flow or to a routed input
type Outcome int

const (
	NoActiveFlow Outcome = iota
	Advanced
	Completed
	Aborted
	Expired
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case NoActiveFlow:
		return "no_active_flow"
	case Advanced:
		return "advanced"
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	case Expired:
		return "expired"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// AlreadyActiveError is returned by Begin when the user is already in a flow
type AlreadyActiveError struct {
	User   int64
	Active Kind
}

func (e *AlreadyActiveError) Error() string {
	return fmt.Sprintf("user %d already has an active %s flow", e.User, e.Active)
}

// IsAlreadyActive reports whether err is an AlreadyActiveError for kind
func IsAlreadyActive(err error, kind Kind) bool {
	var active *AlreadyActiveError
	return errors.As(err, &active) && active.Active == kind
}

// ErrUnknownFlow is returned by Begin for a kind/setting pair with no phase
var ErrUnknownFlow = errors.New("unknown flow")

// Handle follows a started flow until it ends
type Handle struct {
	ID       uuid.UUID
	User     int64
	Kind     Kind
	Deadline time.Time

	once    sync.Once
	done    chan struct{}
	outcome Outcome
}

func newHandle(f Flow) *Handle {
	return &Handle{
		ID:       f.ID,
		User:     f.User,
		Kind:     f.Kind,
		Deadline: f.Deadline,
		done:     make(chan struct{}),
	}
}

// resolve records the terminal outcome. Only the first call has effect.
func (h *Handle) resolve(o Outcome) {
	h.once.Do(func() {
		h.outcome = o
		close(h.done)
	})
}

// Done is closed when the flow ends
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Outcome returns the terminal outcome, or NoActiveFlow while still running
func (h *Handle) Outcome() Outcome {
	select {
	case <-h.done:
		return h.outcome
	default:
		return NoActiveFlow
	}
}

// Wait blocks until the flow ends or ctx is done
func (h *Handle) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-h.done:
		return h.outcome, nil
	case <-ctx.Done():
		return NoActiveFlow, ctx.Err()
	}
}
