// Package timesource supplies calendar time to the protocol layer. Until a
// clock is synchronized, timestamps fall back to the Unix epoch, which means
// "unknown" rather than a plausible but wrong time.
package timesource

import (
	"sync"
	"time"
)

var Epoch = time.Unix(0, 0).UTC()

type Clock interface {
	// Now returns the current time and whether it is synchronized.
	Now() (time.Time, bool)
}

// System trusts the host clock.
type System struct{}

func (System) Now() (time.Time, bool) { return time.Now().UTC(), true }

// Unsynced never has a valid time.
type Unsynced struct{}

func (Unsynced) Now() (time.Time, bool) { return Epoch, false }

// Manual is set explicitly, for tests and for an external sync source.
type Manual struct {
	mu     sync.RWMutex
	t      time.Time
	synced bool
}

func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.t = t.UTC()
	m.synced = true
	m.mu.Unlock()
}

func (m *Manual) Now() (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.synced {
		return Epoch, false
	}
	return m.t, true
}

// Timestamp returns the clock reading, or Epoch when unsynchronized.
func Timestamp(c Clock) time.Time {
	if c == nil {
		return Epoch
	}
	t, ok := c.Now()
	if !ok {
		return Epoch
	}
	return t
}
