// Package queue provides a single-slot, preemptible work queue.
//
// Information Hiding:
// - Worker goroutine lifecycle (started on demand, exits when idle)
// - Cancellation of superseded work via context
// - The pending slot is a single item: the latest submission wins
//
// Only one handler runs at a time. Enqueue cancels whatever is in flight
// without waiting for it; the handler is expected to observe ctx.Done()
// and stop producing side effects.
package queue

import (
	"context"
	"sync"
)

// Handler processes one item. ctx is cancelled when the item is superseded
// or the queue is cleared.
type Handler[T any] func(ctx context.Context, item T) error

// Option configures a Queue.
type Option[T any] func(*Queue[T])

// WithErrorHandler registers a callback for handler errors. It is not
// called for items whose context was cancelled. It runs on the worker
// after the item finished, so it may Enqueue; the new item runs next.
func WithErrorHandler[T any](fn func(item T, err error)) Option[T] {
	return func(q *Queue[T]) {
		q.onError = fn
	}
}

// Queue runs a handler over the latest submitted item.
type Queue[T any] struct {
	handler Handler[T]
	onError func(item T, err error)

	mu      sync.Mutex
	pending *T
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

// New creates a queue that feeds items to handler.
func New[T any](handler Handler[T], opts ...Option[T]) *Queue[T] {
	q := &Queue[T]{handler: handler}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue cancels in-flight work, replaces the pending item and starts the
// worker if it is idle.
func (q *Queue[T]) Enqueue(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cancel != nil {
		q.cancel()
	}
	q.pending = &item
	if !q.running {
		q.running = true
		q.wg.Add(1)
		go q.run()
	}
}

// Clear cancels in-flight work and drops the pending item.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cancel != nil {
		q.cancel()
	}
	q.pending = nil
}

// Busy reports whether an item is running or waiting to run.
func (q *Queue[T]) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Wait blocks until the worker goroutine has exited. It must not be called
// from inside a handler.
func (q *Queue[T]) Wait() {
	q.wg.Wait()
}

func (q *Queue[T]) run() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		if q.pending == nil {
			q.running = false
			q.cancel = nil
			q.mu.Unlock()
			return
		}
		item := *q.pending
		q.pending = nil
		ctx, cancel := context.WithCancel(context.Background())
		q.cancel = cancel
		q.mu.Unlock()

		err := q.handler(ctx, item)
		superseded := ctx.Err() != nil
		cancel()

		if err != nil && !superseded && q.onError != nil {
			q.onError(item, err)
		}
	}
}
