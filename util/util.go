// Package util contains the small numeric helpers shared across the
// controller: clamping a commanded value into a device's legal range, and
// converting a floating-point seconds duration (as config files and the
// quench/ramp formulas express it) into a time.Duration.
package util

import "time"

// Clamp limits min <= input <= max.
func Clamp(input, min, max float64) float64 {
	if input < min {
		return min
	}
	if input > max {
		return max
	}
	return input
}

// Limiter represents a basic [Min, Max] interval.
type Limiter struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Clamp limits min <= input <= max.
func (l *Limiter) Clamp(input float64) float64 {
	return Clamp(input, l.Min, l.Max)
}

// Check reports whether min <= input <= max.
func (l *Limiter) Check(input float64) bool {
	return input >= l.Min && input <= l.Max
}

// SecsToDuration converts floating point seconds to a time.Duration.
func SecsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}
