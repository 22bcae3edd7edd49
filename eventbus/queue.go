package eventbus

import (
	"context"
	"errors"
)

var (
	ErrQueueFull = errors.New("queue full")
	ErrNoEvent   = errors.New("zero value is not an event")
)

// Queue is a bounded FIFO with one consumer. Trusted producers use Send and
// wait for room; producers on time-critical paths use TrySend and drop.
type Queue[T comparable] struct {
	ch chan T
}

func NewQueue[T comparable](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 10
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

func (q *Queue[T]) Send(ctx context.Context, v T) error {
	var zero T
	if v == zero {
		return ErrNoEvent
	}
	select {
	case q.ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue[T]) TrySend(v T) error {
	var zero T
	if v == zero {
		return ErrNoEvent
	}
	select {
	case q.ch <- v:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue[T]) Receive(ctx context.Context) (T, error) {
	select {
	case v := <-q.ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Clear drops everything currently queued and returns how many were dropped.
func (q *Queue[T]) Clear() int {
	n := 0
	for {
		select {
		case <-q.ch:
			n++
		default:
			return n
		}
	}
}

func (q *Queue[T]) Len() int { return len(q.ch) }

func (q *Queue[T]) Cap() int { return cap(q.ch) }
