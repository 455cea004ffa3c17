package data

import "time"

// TimeProvider abstracts time.Now so repositories can be tested against a
// fixed clock.
type TimeProvider interface {
	Now() time.Time
}

// RealTimeProvider returns the wall clock.
type RealTimeProvider struct{}

// Now returns the current time.
func (RealTimeProvider) Now() time.Time { return time.Now() }

// FixedTimeProvider always returns the same instant.
type FixedTimeProvider struct {
	Time time.Time
}

// Now returns the configured instant.
func (p FixedTimeProvider) Now() time.Time { return p.Time }
