// Package peripheral drives the charge point's outputs from the state
// broadcast: charging LED, power relay, cable lock, rejection indicator and
// the status display.
package peripheral

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Switch is a single digital output. Active-low wiring is the driver's
// concern: on always means the function is active.
type Switch interface {
	Name() string
	Set(on bool) error
}

// LogSwitch records its level and logs every change. It stands in for GPIO
// on hosts without hardware.
type LogSwitch struct {
	name string
	mu   sync.Mutex
	on   bool
	sets int
}

func NewLogSwitch(name string) *LogSwitch {
	return &LogSwitch{name: name}
}

func (s *LogSwitch) Name() string { return s.name }

func (s *LogSwitch) Set(on bool) error {
	s.mu.Lock()
	changed := s.on != on
	s.on = on
	s.sets++
	s.mu.Unlock()
	if changed {
		log.WithField("switch", s.name).Infof("set %v", on)
	}
	return nil
}

func (s *LogSwitch) On() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.on
}

// Sets counts calls to Set, changed or not.
func (s *LogSwitch) Sets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets
}
