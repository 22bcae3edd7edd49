package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

const (
	DefaultDepth          = 8
	DefaultMaxSubscribers = 6
)

var (
	ErrLagged             = errors.New("subscriber lagged")
	ErrEmpty              = errors.New("no new record")
	ErrTooManySubscribers = errors.New("too many subscribers")
	ErrClosed             = errors.New("subscriber closed")
)

// LaggedError reports how many records a subscriber missed because the ring
// wrapped past its cursor. It matches ErrLagged with errors.Is.
type LaggedError struct {
	Missed uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("subscriber lagged, missed %d records", e.Missed)
}

func (e *LaggedError) Is(target error) bool { return target == ErrLagged }

// Broadcast is a single-producer, multi-subscriber channel with a fixed
// history depth. Publish never blocks; each subscriber reads through its own
// cursor.
type Broadcast[T any] struct {
	mu      sync.Mutex
	ring    []T
	next    uint64 // sequence number of the next publish
	subs    []*Subscriber[T]
	maxSubs int
}

func NewBroadcast[T any](depth, maxSubscribers int) *Broadcast[T] {
	if depth <= 0 {
		depth = DefaultDepth
	}
	if maxSubscribers <= 0 {
		maxSubscribers = DefaultMaxSubscribers
	}
	return &Broadcast[T]{
		ring:    make([]T, depth),
		subs:    make([]*Subscriber[T], 0, maxSubscribers),
		maxSubs: maxSubscribers,
	}
}

func (b *Broadcast[T]) Depth() int { return len(b.ring) }

func (b *Broadcast[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ring[b.next%uint64(len(b.ring))] = v
	b.next++

	for _, s := range b.subs {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

// Subscribe registers a subscriber that sees records published from now on.
func (b *Broadcast[T]) Subscribe() (*Subscriber[T], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.subs) >= b.maxSubs {
		return nil, ErrTooManySubscribers
	}
	s := &Subscriber[T]{
		b:      b,
		cursor: b.next,
		wake:   make(chan struct{}, 1),
	}
	b.subs = append(b.subs, s)
	return s, nil
}

func (b *Broadcast[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcast[T]) remove(sub *Subscriber[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

type Subscriber[T any] struct {
	b      *Broadcast[T]
	cursor uint64
	wake   chan struct{}
	closed bool
}

// TryNext returns the next record without waiting. It returns ErrEmpty when
// nothing new was published and a *LaggedError when records were overwritten
// before this subscriber read them; in that case the cursor moves to the
// oldest record still held.
func (s *Subscriber[T]) TryNext() (T, error) {
	var zero T
	b := s.b
	b.mu.Lock()
	defer b.mu.Unlock()

	if s.closed {
		return zero, ErrClosed
	}
	if s.cursor == b.next {
		return zero, ErrEmpty
	}
	depth := uint64(len(b.ring))
	var oldest uint64
	if b.next > depth {
		oldest = b.next - depth
	}
	if s.cursor < oldest {
		missed := oldest - s.cursor
		s.cursor = oldest
		return zero, &LaggedError{Missed: missed}
	}
	v := b.ring[s.cursor%depth]
	s.cursor++
	return v, nil
}

// Next waits for the next record. See TryNext for the lagged case.
func (s *Subscriber[T]) Next(ctx context.Context) (T, error) {
	for {
		v, err := s.TryNext()
		if !errors.Is(err, ErrEmpty) {
			return v, err
		}
		select {
		case <-s.wake:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

func (s *Subscriber[T]) Close() {
	s.b.mu.Lock()
	already := s.closed
	s.closed = true
	s.b.mu.Unlock()
	if !already {
		s.b.remove(s)
	}
}
