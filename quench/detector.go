/*Package quench implements the statistical guard on the magnet current
timeseries specified in spec §4.4: a rolling window of (timestamp, current)
samples, a derived first-difference sequence, a smoothed-slope sequence,
and a debounced predicate that fires event:quenching.

Two detector variants are specified as equally acceptable, the choice
being a deployment decision (config.QuenchConfig.Algorithm): Slope, the
default, and Residual, an alternative fit-and-sigma detector ported from
quench.py's check_quench_from_current in the picturec stack this module's
domain is drawn from.
*/
package quench

import (
	"github.com/brandondube/ringo"
)

// Detector consumes current samples one at a time and reports whether the
// debounced quench predicate is currently latched.
type Detector interface {
	// Add appends a new (timeMS, currentA) sample and re-evaluates the
	// predicate. It returns true exactly on the tick the debounced
	// predicate transitions from clear to latched (the tick
	// event:quenching should be published on).
	Add(timeMS int64, currentA float64) (fired bool)

	// Warning reports whether a positive evaluation has been seen since
	// the last run of ten consecutive negatives (spec §4.4 "a single
	// positive predicate evaluation sets a warning flag"). It stays set
	// after the detector latches.
	Warning() bool

	// Latched reports whether the debounced predicate is currently set.
	Latched() bool
}

const defaultWindow = 30

// window is the shared rolling-sample storage used by both detector
// variants, backed by ringo ring buffers the way envsrv.Envmon caches
// telemetry in the teacher repo.
type window struct {
	n    int
	t    ringo.CircleTime
	i    ringo.CircleF64
	last int64 // last appended timestamp, to reject duplicate ticks
	have int
}

func newWindow(n int) *window {
	w := &window{n: n}
	w.t.Init(n)
	w.i.Init(n)
	return w
}

// push appends (timeMS, currentA) unless timeMS equals the previous
// timestamp (spec §4.4 step 1: "if its timestamp differs from the
// previous"). It returns false when the sample was a duplicate.
func (w *window) push(timeMS int64, currentA float64) bool {
	if w.have > 0 && timeMS == w.last {
		return false
	}
	w.t.Append(timeMillisToTime(timeMS))
	w.i.Append(currentA)
	w.last = timeMS
	if w.have < w.n {
		w.have++
	}
	return true
}

func (w *window) series() (tMS []int64, vals []float64) {
	times := w.t.Contiguous()
	cs := w.i.Contiguous()
	n := len(times)
	if len(cs) < n {
		n = len(cs)
	}
	tMS = make([]int64, n)
	vals = make([]float64, n)
	for i := 0; i < n; i++ {
		tMS[i] = times[i].UnixMilli()
		vals[i] = cs[i]
	}
	return tMS, vals
}

func relativeSeconds(tMS []int64) []float64 {
	out := make([]float64, len(tMS))
	if len(tMS) == 0 {
		return out
	}
	t0 := tMS[0]
	for i, t := range tMS {
		out[i] = float64(t-t0) / 1000.0
	}
	return out
}

// debounce implements spec §4.4 step 5: a single positive evaluation sets
// warning; a second consecutive positive evaluation latches and fires;
// ten consecutive negatives clear.
type debounce struct {
	consecutivePos int
	consecutiveNeg int
	warning        bool
	latched        bool
}

func (d *debounce) evaluate(positive bool) (fired bool) {
	if positive {
		d.consecutiveNeg = 0
		d.consecutivePos++
		if d.consecutivePos == 1 {
			d.warning = true
		}
		if d.consecutivePos >= 2 && !d.latched {
			d.latched = true
			return true
		}
		return false
	}
	d.consecutivePos = 0
	d.consecutiveNeg++
	if d.consecutiveNeg >= 10 {
		d.warning = false
		d.latched = false
	}
	return false
}
