package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFOAndCapacity(t *testing.T) {
	q := NewQueue[int](3)
	for i := 1; i <= 3; i++ {
		require.NoError(t, q.TrySend(i))
	}
	assert.ErrorIs(t, q.TrySend(4), ErrQueueFull)
	assert.Equal(t, 3, q.Len())

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		v, err := q.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
}

func TestQueueRejectsZeroValue(t *testing.T) {
	q := NewQueue[int](1)
	assert.ErrorIs(t, q.TrySend(0), ErrNoEvent)
	assert.ErrorIs(t, q.Send(context.Background(), 0), ErrNoEvent)
	assert.Zero(t, q.Len())
}

func TestQueueSendBlocksUntilRoom(t *testing.T) {
	q := NewQueue[int](1)
	require.NoError(t, q.TrySend(1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Send(ctx, 2), context.DeadlineExceeded)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = q.Receive(context.Background())
	}()
	require.NoError(t, q.Send(context.Background(), 2))
}

func TestQueueClear(t *testing.T) {
	q := NewQueue[int](5)
	_ = q.TrySend(1)
	_ = q.TrySend(2)
	assert.Equal(t, 2, q.Clear())
	assert.Zero(t, q.Len())
	assert.Zero(t, q.Clear())
}

func TestBroadcastFanOut(t *testing.T) {
	b := NewBroadcast[string](8, 6)
	s1, err := b.Subscribe()
	require.NoError(t, err)
	s2, err := b.Subscribe()
	require.NoError(t, err)

	b.Publish("a")
	b.Publish("b")

	for _, s := range []*Subscriber[string]{s1, s2} {
		v, err := s.TryNext()
		require.NoError(t, err)
		assert.Equal(t, "a", v)
		v, err = s.TryNext()
		require.NoError(t, err)
		assert.Equal(t, "b", v)
		_, err = s.TryNext()
		assert.ErrorIs(t, err, ErrEmpty)
	}
}

func TestBroadcastSubscriberSeesOnlyLaterRecords(t *testing.T) {
	b := NewBroadcast[int](4, 2)
	b.Publish(1)
	s, err := b.Subscribe()
	require.NoError(t, err)
	_, err = s.TryNext()
	assert.ErrorIs(t, err, ErrEmpty)
	b.Publish(2)
	v, err := s.TryNext()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestBroadcastLagged(t *testing.T) {
	b := NewBroadcast[int](8, 6)
	s, err := b.Subscribe()
	require.NoError(t, err)

	for i := 1; i <= 11; i++ {
		b.Publish(i)
	}

	_, err = s.TryNext()
	var lagged *LaggedError
	require.True(t, errors.As(err, &lagged))
	assert.ErrorIs(t, err, ErrLagged)
	assert.Equal(t, uint64(3), lagged.Missed)

	// Resumes at the oldest record still held.
	v, err := s.TryNext()
	require.NoError(t, err)
	assert.Equal(t, 4, v)
}

func TestBroadcastExactlyDepthIsNotLagged(t *testing.T) {
	b := NewBroadcast[int](8, 1)
	s, err := b.Subscribe()
	require.NoError(t, err)
	for i := 1; i <= 8; i++ {
		b.Publish(i)
	}
	v, err := s.TryNext()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestBroadcastSubscriberLimit(t *testing.T) {
	b := NewBroadcast[int](8, 2)
	s1, err := b.Subscribe()
	require.NoError(t, err)
	_, err = b.Subscribe()
	require.NoError(t, err)
	_, err = b.Subscribe()
	assert.ErrorIs(t, err, ErrTooManySubscribers)

	s1.Close()
	assert.Equal(t, 1, b.Subscribers())
	_, err = b.Subscribe()
	assert.NoError(t, err)

	_, err = s1.TryNext()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBroadcastNextWaits(t *testing.T) {
	b := NewBroadcast[int](8, 6)
	s, err := b.Subscribe()
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		b.Publish(7)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel2()
	_, err = s.Next(ctx2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFollowDrainsThenReconciles(t *testing.T) {
	b := NewBroadcast[int](8, 2)
	sub, err := b.Subscribe()
	require.NoError(t, err)
	for i := 0; i < 11; i++ {
		b.Publish(i)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var got []int
	var missed uint64
	done := make(chan error, 1)
	go func() {
		done <- Follow(ctx, sub,
			func(v int) { got = append(got, v) },
			func(n uint64) {
				missed = n
				cancel()
			})
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Follow did not return")
	}
	assert.Equal(t, uint64(3), missed)
	assert.Equal(t, []int{3, 4, 5, 6, 7, 8, 9, 10}, got)
}

func TestFollowStopsOnClose(t *testing.T) {
	b := NewBroadcast[int](8, 2)
	sub, err := b.Subscribe()
	require.NoError(t, err)
	sub.Close()

	err = Follow(context.Background(), sub, func(int) {}, nil)
	assert.True(t, errors.Is(err, ErrClosed))
}
