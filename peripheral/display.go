package peripheral

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"charge_point/charger"
	"charge_point/timesource"

	log "github.com/sirupsen/logrus"
)

const maxLine = 20

// Status is what the display shows, one field per line.
type Status struct {
	Serial  string `json:"serial"`
	State   string `json:"state"`
	Address string `json:"address"`
	Time    string `json:"time"`
}

func (s Status) String() string {
	return strings.Join([]string{s.Serial, s.State, s.Address, s.Time}, " | ")
}

// StatusLine composes the display contents. Long serials are cut to fit a
// line, an empty address reads "Not Connected" and an unsynced clock reads
// "Time Not Synced".
func StatusLine(serial string, state charger.ChargerState, address string, now time.Time, synced bool) Status {
	s := Status{Serial: serial, State: state.DisplayName(), Address: address, Time: "Time Not Synced"}
	if len(serial) > maxLine {
		s.Serial = serial[:maxLine-3] + "..."
	}
	if address == "" {
		s.Address = "Not Connected"
	}
	if synced {
		s.Time = now.Format("2006-01-02 15:04:05")
	}
	return s
}

// LocalAddress returns the first non-loopback IPv4 address, or "".
func LocalAddress() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok && !ipNet.IP.IsLoopback() && ipNet.IP.To4() != nil {
			return ipNet.IP.String()
		}
	}
	return ""
}

type Display interface {
	Show(Status) error
}

// LogDisplay writes the status to the log whenever it changes.
type LogDisplay struct {
	mu   sync.Mutex
	last Status
}

func (d *LogDisplay) Show(s Status) error {
	d.mu.Lock()
	changed := s != d.last
	d.last = s
	d.mu.Unlock()
	if changed {
		log.WithField("task", "display").Info(s.String())
	}
	return nil
}

func (d *LogDisplay) Last() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// StatusSource builds the current Status on demand.
type StatusSource struct {
	Serial  string
	Charger *charger.Charger
	Clock   timesource.Clock
	Address func() string
}

func (s StatusSource) Status() Status {
	now, synced := time.Time{}, false
	if s.Clock != nil {
		now, synced = s.Clock.Now()
	}
	address := ""
	if s.Address != nil {
		address = s.Address()
	}
	return StatusLine(s.Serial, s.Charger.State(), address, now, synced)
}

// RunDisplay refreshes the display every interval. The first failure
// disables the display; the charger carries on without it.
func RunDisplay(ctx context.Context, d Display, source StatusSource, interval time.Duration) {
	logger := log.WithField("task", "display")
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := d.Show(source.Status()); err != nil {
			logger.Warnf("failed to update display, continuing without it: %v", err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
