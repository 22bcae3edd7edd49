package delivery

import (
	"context"
	"errors"
	"fmt"
)

const (
	DefaultCapacity   = 5
	DefaultMaxPayload = 2048
)

var (
	ErrQueueFull = errors.New("message queue full")
	ErrTooLarge  = errors.New("payload too large")
)

// Queue is a bounded queue of byte payloads. Pushes never block.
type Queue struct {
	name       string
	ch         chan []byte
	maxPayload int
}

func NewQueue(name string, capacity, maxPayload int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Queue{name: name, ch: make(chan []byte, capacity), maxPayload: maxPayload}
}

func (q *Queue) Name() string { return q.name }

// TryPush copies payload into the queue.
func (q *Queue) TryPush(payload []byte) error {
	if len(payload) > q.maxPayload {
		return fmt.Errorf("%s: %d bytes: %w", q.name, len(payload), ErrTooLarge)
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	select {
	case q.ch <- buf:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) TryPop() ([]byte, bool) {
	select {
	case p := <-q.ch:
		return p, true
	default:
		return nil, false
	}
}

func (q *Queue) Pop(ctx context.Context) ([]byte, error) {
	select {
	case p := <-q.ch:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *Queue) Len() int { return len(q.ch) }

func (q *Queue) Cap() int { return cap(q.ch) }
