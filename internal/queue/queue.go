// Package queue provides the bounded FIFO queue that connects pipeline
// stages. A Queue wraps a buffered channel so that blocking push/pop and
// end-of-stream signalling come from the runtime rather than hand-rolled
// mutex/condvar loops, while capacity gives producers backpressure: once the
// queue holds its capacity in items, Push blocks until a consumer pops.
//
// Multi-producer closing is handled the same way for every queue: the stage
// that owns the producing goroutines registers them with AddProducers, each
// goroutine calls ProducerDone on exit, and the queue closes itself exactly
// once after the last producer is gone. Close remains available for the
// single-producer case.
package queue

import (
	"context"
	"sync"
)

// DefaultCapacity bounds each inter-stage queue when the caller does not
// choose a capacity. It also caps how far workers may run ahead of the
// writer, so peak memory stays proportional to it regardless of input size.
const DefaultCapacity = 1000

// Queue is a fixed-capacity FIFO of items of one type.
//
// Items are never dropped: Push blocks while the queue is full, Pop blocks
// while it is empty and not yet closed. After Close, Pop drains the remaining
// items and then reports end-of-stream.
type Queue[T any] struct {
	ch   chan T
	once sync.Once
	prod sync.WaitGroup
}

// New returns a queue holding at most capacity items. A non-positive
// capacity falls back to DefaultCapacity.
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

// Push inserts v, blocking while the queue is at capacity. It returns the
// context error if ctx is canceled while blocked. Pushing after Close is a
// programming error and panics, as sending on a closed channel does.
func (q *Queue[T]) Push(ctx context.Context, v T) error {
	select {
	case q.ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop removes and returns the oldest item. It blocks while the queue is
// empty and not closed. ok is false once the queue is closed and drained, or
// when ctx is canceled while blocked; callers that need to tell the two
// apart check ctx.Err().
func (q *Queue[T]) Pop(ctx context.Context) (v T, ok bool) {
	select {
	case v, ok = <-q.ch:
		return v, ok
	case <-ctx.Done():
		return v, false
	}
}

// Close marks that no more items will arrive. It is safe to call more than
// once; only the first call has effect.
func (q *Queue[T]) Close() {
	q.once.Do(func() { close(q.ch) })
}

// AddProducers registers n producing goroutines. The queue closes itself
// after every registered producer has called ProducerDone, so no producer
// needs to know whether it is the last one.
func (q *Queue[T]) AddProducers(n int) {
	q.prod.Add(n)
}

// ProducerDone signals that one registered producer has finished. When the
// last one signals, the queue is closed from a dedicated goroutine; the call
// itself never blocks.
func (q *Queue[T]) ProducerDone() {
	q.once.Do(func() {
		go func() {
			q.prod.Wait()
			close(q.ch)
		}()
	})
	q.prod.Done()
}

// Len reports the number of items currently buffered. It is inherently racy
// under concurrent use and intended for diagnostics and tests.
func (q *Queue[T]) Len() int { return len(q.ch) }

// Cap reports the queue capacity.
func (q *Queue[T]) Cap() int { return cap(q.ch) }
