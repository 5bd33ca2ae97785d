// Package system provides harvest.Clock implementations.
package system

import "time"

// Clock implements harvest.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC so archive dates follow UTC days.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always reports the same instant; useful for reproducible archives.
type Fixed time.Time

// Now returns the fixed instant in UTC.
func (f Fixed) Now() time.Time {
	return time.Time(f).UTC()
}
