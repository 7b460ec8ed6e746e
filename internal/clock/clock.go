package clock

import "time"

// Clock provides current time abstraction for deterministic tests.
// Params: none.
// Returns: current wall-clock time.
type Clock interface {
	Now() time.Time
}

// RealClock reads current UTC time from system clock.
type RealClock struct{}

// Now returns current UTC time.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// Func adapts a plain function to Clock.
// Params: function returning the time to report.
// Returns: Clock backed by the function.
type Func func() time.Time

// Now calls the wrapped function.
func (f Func) Now() time.Time {
	return f()
}

// Manual is a settable clock used by credential-expiry tests.
// Params: starting instant in At.
// Returns: Clock that only moves when Advance is called.
type Manual struct {
	At time.Time
}

// Now returns the stored instant.
func (m *Manual) Now() time.Time {
	return m.At
}

// Advance moves the clock forward.
// Params: duration to add.
// Returns: none.
func (m *Manual) Advance(d time.Duration) {
	m.At = m.At.Add(d)
}
