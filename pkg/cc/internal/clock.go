// Package internal provides shared utilities for the cc package.
package internal

import "time"

// Clock abstracts monotonic time so time-dependent control logic can be
// tested deterministically.
type Clock interface {
	// Now returns the current time. Implementations must return
	// monotonically non-decreasing values.
	Now() time.Time
}

// MonotonicClock reads the system clock. Go's time.Now includes a monotonic
// component, so elapsed-time arithmetic is immune to wall-clock steps.
type MonotonicClock struct{}

// Now returns the current system time.
func (MonotonicClock) Now() time.Time {
	return time.Now()
}

// MockClock is a manually advanced Clock for tests. Not safe for concurrent
// use.
type MockClock struct {
	current time.Time
}

// NewMockClock returns a MockClock starting at t. A zero t is replaced with
// a fixed non-zero epoch to keep zero-time checks in the code under test
// meaningful.
func NewMockClock(t time.Time) *MockClock {
	if t.IsZero() {
		t = time.Unix(1_000_000_000, 0)
	}
	return &MockClock{current: t}
}

// Now returns the mock clock's current time.
func (m *MockClock) Now() time.Time {
	return m.current
}

// Advance moves the clock forward by d. Panics on negative d to preserve
// monotonicity.
func (m *MockClock) Advance(d time.Duration) {
	if d < 0 {
		panic("MockClock.Advance: negative duration")
	}
	m.current = m.current.Add(d)
}
