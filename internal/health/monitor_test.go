package health

import (
	"testing"
	"time"

	"github.com/AndresPaulino/parking-garage-report/internal/config"
	"github.com/AndresPaulino/parking-garage-report/internal/logging"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestMonitor(cfg config.Health, clock *fakeClock) *Monitor {
	m := NewMonitor(cfg, logging.NewNop())
	m.SetClock(clock.Now)
	m.SetMemoryProbe(func() (int64, bool) { return 0, false })
	return m
}

func TestMonitorFreshSessionHealthy(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	m := newTestMonitor(config.Health{MaxSessionMinutes: 45, MaxOperations: 300, MaxMemoryMiB: 1536}, clock)

	restart, reason := m.ShouldRestart()
	if restart {
		t.Fatalf("fresh monitor recommended restart: %s", reason)
	}
}

func TestMonitorElapsedCeiling(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	m := newTestMonitor(config.Health{MaxSessionMinutes: 45, MaxOperations: 300}, clock)

	clock.Advance(44 * time.Minute)
	if restart, _ := m.ShouldRestart(); restart {
		t.Fatal("restart recommended below elapsed ceiling")
	}

	clock.Advance(time.Minute)
	restart, reason := m.ShouldRestart()
	if !restart || reason != ReasonElapsed {
		t.Fatalf("expected elapsed restart, got restart=%v reason=%q", restart, reason)
	}
}

func TestMonitorOperationCeiling(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	m := newTestMonitor(config.Health{MaxSessionMinutes: 45, MaxOperations: 3}, clock)

	m.RecordOperation()
	m.RecordOperation()
	if restart, _ := m.ShouldRestart(); restart {
		t.Fatal("restart recommended below operation ceiling")
	}

	m.RecordOperation()
	restart, reason := m.ShouldRestart()
	if !restart || reason != ReasonOperations {
		t.Fatalf("expected operation restart, got restart=%v reason=%q", restart, reason)
	}
	if got := m.Operations(); got != 3 {
		t.Fatalf("Operations() = %d, want 3", got)
	}
}

func TestMonitorMemoryCeiling(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	m := newTestMonitor(config.Health{MaxSessionMinutes: 45, MaxOperations: 300, MaxMemoryMiB: 1536}, clock)

	m.SetMemoryProbe(func() (int64, bool) { return 1200, true })
	if restart, _ := m.ShouldRestart(); restart {
		t.Fatal("restart recommended below memory ceiling")
	}

	m.SetMemoryProbe(func() (int64, bool) { return 1600, true })
	restart, reason := m.ShouldRestart()
	if !restart || reason != ReasonMemory {
		t.Fatalf("expected memory restart, got restart=%v reason=%q", restart, reason)
	}
}

func TestMonitorUnavailableProbeNeverTrips(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	m := newTestMonitor(config.Health{MaxSessionMinutes: 45, MaxOperations: 300, MaxMemoryMiB: 1}, clock)

	m.SetMemoryProbe(func() (int64, bool) { return 0, false })
	if restart, reason := m.ShouldRestart(); restart {
		t.Fatalf("unavailable probe triggered restart: %s", reason)
	}
}

func TestMonitorReset(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	m := newTestMonitor(config.Health{MaxSessionMinutes: 45, MaxOperations: 2}, clock)

	clock.Advance(50 * time.Minute)
	m.RecordOperation()
	m.RecordOperation()
	if restart, _ := m.ShouldRestart(); !restart {
		t.Fatal("expected restart before reset")
	}

	m.Reset()
	if restart, reason := m.ShouldRestart(); restart {
		t.Fatalf("restart recommended immediately after reset: %s", reason)
	}
	if got := m.Operations(); got != 0 {
		t.Fatalf("Operations() after reset = %d, want 0", got)
	}
}

func TestMonitorZeroCeilingsDisabled(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	m := newTestMonitor(config.Health{}, clock)

	clock.Advance(24 * time.Hour)
	for i := 0; i < 1000; i++ {
		m.RecordOperation()
	}
	if restart, reason := m.ShouldRestart(); restart {
		t.Fatalf("disabled ceilings triggered restart: %s", reason)
	}
}
