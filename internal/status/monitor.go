// Package status tracks whether the backend answers its health endpoint.
package status

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lox/hazardmap/internal/metrics"
	"github.com/lox/hazardmap/internal/models"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Recorder persists checks. Optional.
type Recorder interface {
	InsertStatusCheck(c models.StatusCheck) error
}

// Monitor holds the latest backend status. It reports checking until the
// first probe completes.
type Monitor struct {
	pinger   Pinger
	recorder Recorder
	clock    clockwork.Clock

	mu   sync.RWMutex
	last models.StatusCheck
}

func NewMonitor(p Pinger, rec Recorder, clock clockwork.Clock) *Monitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Monitor{
		pinger:   p,
		recorder: rec,
		clock:    clock,
		last:     models.StatusCheck{Status: models.StatusChecking},
	}
}

// Check probes the backend once and records the result.
func (m *Monitor) Check(ctx context.Context) models.StatusCheck {
	start := m.clock.Now()
	err := m.pinger.Ping(ctx)

	c := models.StatusCheck{
		CheckedAt: start.UTC(),
		Status:    models.StatusOnline,
		LatencyMS: m.clock.Since(start).Milliseconds(),
	}
	if err != nil {
		c.Status = models.StatusOffline
		c.Error = err.Error()
		metrics.BackendUp.Set(0)
	} else {
		metrics.BackendUp.Set(1)
	}

	m.mu.Lock()
	prev := m.last.Status
	m.last = c
	m.mu.Unlock()

	if prev != c.Status {
		if err != nil {
			log.Printf("status: backend %s: %v", c.Status, err)
		} else {
			log.Printf("status: backend %s (%dms)", c.Status, c.LatencyMS)
		}
	}

	if m.recorder != nil {
		if err := m.recorder.InsertStatusCheck(c); err != nil {
			log.Printf("status: record check: %v", err)
		}
	}
	return c
}

// Current returns the latest check.
func (m *Monitor) Current() models.StatusCheck {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Label is the chip text for a status.
func Label(s models.BackendStatus) string {
	switch s {
	case models.StatusOnline:
		return "Backend online"
	case models.StatusOffline:
		return "Backend offline"
	default:
		return "Checking backend"
	}
}

// Age reports how long ago the last probe ran, zero before the first one.
func (m *Monitor) Age() time.Duration {
	c := m.Current()
	if c.CheckedAt.IsZero() {
		return 0
	}
	return m.clock.Since(c.CheckedAt)
}
