package dispatch

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is returned by Submit after Close
var ErrClosed = errors.New("dispatcher closed")

// Task is one unit of work for a key
type Task func(ctx context.Context)

// Dispatcher runs tasks for the same key one at a time in submission order,
// while different keys run concurrently. A key's worker exits when its
// queue drains.
type Dispatcher struct {
	ctx    context.Context
	logger *zap.Logger

	mu     sync.Mutex
	queues map[int64][]Task
	closed bool
	wg     sync.WaitGroup
}

// New creates a dispatcher. Tasks receive ctx.
func New(ctx context.Context, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		ctx:    ctx,
		logger: logger,
		queues: make(map[int64][]Task),
	}
}

// Submit queues task behind every earlier task for key
func (d *Dispatcher) Submit(key int64, task Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}

	queue, busy := d.queues[key]
	d.queues[key] = append(queue, task)
	if !busy {
		d.wg.Add(1)
		go d.drain(key)
	}
	return nil
}

func (d *Dispatcher) drain(key int64) {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		queue := d.queues[key]
		if len(queue) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		task := queue[0]
		queue[0] = nil
		d.queues[key] = queue[1:]
		d.mu.Unlock()

		d.run(key, task)
	}
}

func (d *Dispatcher) run(key int64, task Task) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Task panicked", zap.Int64("key", key), zap.Any("panic", r))
		}
	}()
	task(d.ctx)
}

// Pending returns the number of queued and running keys
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}

// Close rejects new tasks and waits for queued ones to finish
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
}
