// Package async runs blocking remote calls on worker goroutines and hands
// their results back to a single owning goroutine. Workers never touch caller
// state: a finished call only enqueues its continuation, and continuations run
// when the owner calls Pump. This is the one synchronization point between the
// transport and everything that consumes its results.
package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// ErrClosed is reported to continuations of tasks submitted after Close.
var ErrClosed = errors.New("async: dispatcher closed")

// DefaultMaxConcurrent bounds the number of remote calls executing at once
// when the caller passes a non-positive limit.
const DefaultMaxConcurrent = 4

// Result carries the typed outcome of a task. Exactly one of Value or Err is
// meaningful: Err == nil means Value is the task's result.
type Result[T any] struct {
	Value T
	Err   error
}

// OK reports whether the task succeeded.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Dispatcher is the cooperative pump. Submit and Post are safe from any
// goroutine; Pump must only be called from the owning goroutine.
type Dispatcher struct {
	logger *slog.Logger
	sem    *semaphore.Weighted

	// ctx is handed to every worker and canceled by Close.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	pending  []func()
	inFlight int
	closed   bool

	// ready receives a value whenever a completion is enqueued while the
	// channel is empty. Owners may select on it instead of polling.
	ready chan struct{}
}

// NewDispatcher creates a Dispatcher that runs at most maxConcurrent tasks at
// a time. Tasks beyond the limit wait on a worker goroutine, never on the
// submitting goroutine.
func NewDispatcher(maxConcurrent int64, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		logger: logger,
		sem:    semaphore.NewWeighted(maxConcurrent),
		ctx:    ctx,
		cancel: cancel,
		ready:  make(chan struct{}, 1),
	}
}

// Submit runs work on a worker goroutine and schedules then to run on the
// next Pump with the typed result. It returns immediately with the task ID
// used in log lines. After Close, then still runs on the next Pump with
// ErrClosed so callers can release whatever state they marked busy.
func Submit[T any](d *Dispatcher, name string, work func(ctx context.Context) (T, error), then func(Result[T])) string {
	taskID := uuid.NewString()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.enqueue(func() { then(Result[T]{Err: ErrClosed}) })

		return taskID
	}

	d.inFlight++
	d.wg.Add(1)
	d.mu.Unlock()

	d.logger.Debug("task submitted",
		slog.String("task", name),
		slog.String("task_id", taskID),
	)

	go func() {
		defer d.wg.Done()

		res := run(d, name, taskID, work)

		// Decrement and enqueue together so Idle never observes a gap.
		d.mu.Lock()
		d.inFlight--
		d.pending = append(d.pending, func() { then(res) })
		d.mu.Unlock()

		d.wake()
	}()

	return taskID
}

// run executes work under the concurrency limit.
func run[T any](d *Dispatcher, name, taskID string, work func(ctx context.Context) (T, error)) Result[T] {
	start := time.Now()

	if err := d.sem.Acquire(d.ctx, 1); err != nil {
		return Result[T]{Err: ErrClosed}
	}
	defer d.sem.Release(1)

	v, err := work(d.ctx)

	d.logger.Debug("task finished",
		slog.String("task", name),
		slog.String("task_id", taskID),
		slog.Duration("elapsed", time.Since(start)),
		slog.Bool("ok", err == nil),
	)

	return Result[T]{Value: v, Err: err}
}

// Post schedules fn to run on the next Pump without any worker involvement.
// It is how the owner defers a state transition it could otherwise apply
// synchronously.
func (d *Dispatcher) Post(fn func()) {
	d.enqueue(fn)
}

func (d *Dispatcher) enqueue(fn func()) {
	d.mu.Lock()
	d.pending = append(d.pending, fn)
	d.mu.Unlock()

	d.wake()
}

func (d *Dispatcher) wake() {
	select {
	case d.ready <- struct{}{}:
	default:
	}
}

// Pump runs every continuation enqueued before the call, in the order they
// were enqueued, and returns how many ran. Continuations enqueued while the
// pump is running are left for the next call.
func (d *Dispatcher) Pump() int {
	d.mu.Lock()
	batch := d.pending
	d.pending = nil
	d.mu.Unlock()

	for _, fn := range batch {
		fn()
	}

	return len(batch)
}

// Ready returns a channel that receives after new continuations are enqueued.
func (d *Dispatcher) Ready() <-chan struct{} {
	return d.ready
}

// Idle reports whether no task is running and no continuation is waiting.
func (d *Dispatcher) Idle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.inFlight == 0 && len(d.pending) == 0
}

// InFlight returns the number of tasks whose work has not returned yet.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.inFlight
}

// PumpUntil pumps on every interval tick and whenever a completion arrives
// until done returns true or ctx is canceled. done is evaluated on the
// calling goroutine after each pump.
func (d *Dispatcher) PumpUntil(ctx context.Context, interval time.Duration, done func() bool) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		d.Pump()

		if done() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-d.ready:
		}
	}
}

// Close cancels the context passed to running tasks and waits for their
// workers to return, or for ctx to expire. Continuations of finished tasks
// remain queued; the owner may Pump once more to apply them.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
