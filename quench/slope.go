package quench

import "time"

func timeMillisToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// SlopeDetector is the default quench detector of spec §4.4: the quench
// predicate fires when the most recent smoothed-slope sample falls at or
// below 5*maxDerampRate (maxDerampRate is negative, so this is a crash
// five times faster than the fastest commanded deramp).
type SlopeDetector struct {
	w              *window
	maxDerampRate  float64 // A/s, negative
	db             debounce
	lastSmoothed   float64
	lastFirstDiff  float64
	haveFirstDiff  bool
	smoothedWindow []float64 // scratch, reused each Add
}

// NewSlopeDetector constructs a SlopeDetector with a window of the last n
// samples (spec default n=30) and the configured maximum deramp rate in
// A/s (negative).
func NewSlopeDetector(n int, maxDerampRate float64) *SlopeDetector {
	if n <= 0 {
		n = defaultWindow
	}
	return &SlopeDetector{w: newWindow(n), maxDerampRate: maxDerampRate}
}

// Add implements Detector.
func (d *SlopeDetector) Add(timeMS int64, currentA float64) bool {
	if !d.w.push(timeMS, currentA) {
		return false
	}
	tMS, vals := d.w.series()
	if len(tMS) >= 2 {
		n := len(tMS)
		dtS := float64(tMS[n-1]-tMS[n-2]) / 1000.0
		if dtS > 0 {
			d.lastFirstDiff = 1000 * (vals[n-1] - vals[n-2]) / dtS
			d.haveFirstDiff = true
		}
	}

	if len(tMS) < d.w.n {
		// spec §8 boundary: window shorter than N yields no event
		// regardless of input.
		return false
	}

	xs := relativeSeconds(tMS)
	slope, _ := olsFit(xs, vals)
	d.lastSmoothed = 1000 * slope

	positive := slope <= 5*d.maxDerampRate
	return d.db.evaluate(positive)
}

// Warning implements Detector.
func (d *SlopeDetector) Warning() bool { return d.db.warning }

// Latched implements Detector.
func (d *SlopeDetector) Latched() bool { return d.db.latched }

// SmoothedSlope returns the most recent smoothed-slope sample in A/s
// (spec §4.4 step 3's value is in mA/s; this returns the underlying A/s
// figure before the x1000 scaling applied for storage).
func (d *SlopeDetector) SmoothedSlope() float64 { return d.lastSmoothed / 1000 }

// FirstDifference returns the most recent first-difference sample in A/s.
func (d *SlopeDetector) FirstDifference() float64 { return d.lastFirstDiff / 1000 }
