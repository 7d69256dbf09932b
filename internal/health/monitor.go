package health

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/AndresPaulino/parking-garage-report/internal/config"
	"github.com/AndresPaulino/parking-garage-report/internal/logging"
)

// Reason names the ceiling that triggered a restart recommendation.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonElapsed    Reason = "session_age"
	ReasonOperations Reason = "operation_count"
	ReasonMemory     Reason = "memory"
)

// Monitor tracks session age, operation count, and process memory against
// configured ceilings. Safe for concurrent use.
type Monitor struct {
	mu sync.Mutex

	maxElapsed    time.Duration
	maxOperations int
	maxMemoryMiB  int64

	now    func() time.Time
	memory func() (int64, bool)

	startedAt  time.Time
	operations int

	logger *slog.Logger
}

// NewMonitor builds a Monitor from the health configuration. The clock starts
// at construction; call Reset when a fresh session is created.
func NewMonitor(cfg config.Health, logger *slog.Logger) *Monitor {
	m := &Monitor{
		maxElapsed:    time.Duration(cfg.MaxSessionMinutes) * time.Minute,
		maxOperations: cfg.MaxOperations,
		maxMemoryMiB:  int64(cfg.MaxMemoryMiB),
		now:           time.Now,
		memory:        residentMemoryMiB,
		logger:        logging.NewComponentLogger(logger, "health"),
	}
	m.startedAt = m.now()
	return m
}

// SetClock replaces the monitor's clock. Intended for tests.
func (m *Monitor) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	m.startedAt = now()
}

// SetMemoryProbe replaces the resident-memory probe. Intended for tests.
func (m *Monitor) SetMemoryProbe(probe func() (int64, bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memory = probe
}

// RecordOperation counts one portal interaction against the operation ceiling.
func (m *Monitor) RecordOperation() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations++
}

// Operations reports the count since the last reset.
func (m *Monitor) Operations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.operations
}

// Reset restarts the clock and zeroes the operation count. Called after each
// session replacement so a fresh session starts with a clean slate.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startedAt = m.now()
	m.operations = 0
}

// ShouldRestart reports whether any ceiling has been reached, along with the
// first ceiling that tripped. The memory ceiling only applies when the probe
// can produce a reading; a failed probe never forces a restart.
func (m *Monitor) ShouldRestart() (bool, Reason) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elapsed := m.now().Sub(m.startedAt)
	if m.maxElapsed > 0 && elapsed >= m.maxElapsed {
		m.log("session age ceiling reached", logging.Duration("elapsed", elapsed))
		return true, ReasonElapsed
	}
	if m.maxOperations > 0 && m.operations >= m.maxOperations {
		m.log("operation ceiling reached", logging.Int("operations", m.operations))
		return true, ReasonOperations
	}
	if m.maxMemoryMiB > 0 {
		if resident, ok := m.memory(); ok && resident >= m.maxMemoryMiB {
			m.log("memory ceiling reached", logging.Int64("resident_mib", resident))
			return true, ReasonMemory
		}
	}
	return false, ReasonNone
}

func (m *Monitor) log(msg string, attrs ...logging.Attr) {
	if m.logger != nil {
		m.logger.Warn(msg, logging.Args(attrs...)...)
	}
}

// residentMemoryMiB reads the process resident set size from
// /proc/self/statm. Returns false on platforms without procfs or when the
// file cannot be parsed.
func residentMemoryMiB() (int64, bool) {
	data, err := os.ReadFile("/proc/self/statm")
	if err != nil {
		return 0, false
	}
	fields := strings.Fields(string(data))
	if len(fields) < 2 {
		return 0, false
	}
	pages, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, false
	}
	pageSize := int64(os.Getpagesize())
	return pages * pageSize / (1 << 20), true
}

// String describes the monitor's current standing for diagnostics.
func (m *Monitor) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	elapsed := m.now().Sub(m.startedAt).Round(time.Second)
	return fmt.Sprintf("elapsed=%s operations=%d", elapsed, m.operations)
}
