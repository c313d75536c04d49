// Package telemetry tracks the live throughput of one generation turn.
package telemetry

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time view of a turn's counters.
type Snapshot struct {
	Model           string
	Tokens          int
	ElapsedSeconds  float64
	TokensPerSecond float64
}

// Meter counts the streamed tokens of a single turn. One instance is
// shared by the stream consumer (which adds) and the UI ticker (which
// snapshots), so the live readout and the final summary are derived
// from the same counter and can never disagree.
type Meter struct {
	mu      sync.Mutex
	now     func() time.Time
	model   string
	started time.Time
	tokens  int
}

// NewMeter starts a meter for one turn against the given model. The
// wall clock starts immediately.
func NewMeter(model string) *Meter {
	return newMeterAt(model, time.Now)
}

// newMeterAt allows tests to inject a clock.
func newMeterAt(model string, now func() time.Time) *Meter {
	return &Meter{now: now, model: model, started: now()}
}

// Add records n streamed tokens.
func (m *Meter) Add(n int) {
	m.mu.Lock()
	m.tokens += n
	m.mu.Unlock()
}

// Tokens returns the current token count.
func (m *Meter) Tokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens
}

// Snapshot computes the current throughput. Safe to call while the
// stream is still appending.
func (m *Meter) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	elapsed := m.now().Sub(m.started).Seconds()
	s := Snapshot{
		Model:          m.model,
		Tokens:         m.tokens,
		ElapsedSeconds: elapsed,
	}
	if elapsed > 0 {
		s.TokensPerSecond = float64(m.tokens) / elapsed
	}
	return s
}
