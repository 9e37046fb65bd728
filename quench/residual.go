package quench

// ResidualDetector is the alternative quench detector of spec §4.4: keep
// a window of the last n samples (default n=10), fit a line to all of
// them but the newest, compute the residual standard deviation sigma, and
// flag a quench when the newest sample falls more than sigmaN*sigma
// (default 3) below the fit. Ported from quench.py's
// check_quench_from_current in the picturec stack.
type ResidualDetector struct {
	w       *window
	sigmaN  float64
	db      debounce
	lastDev float64 // most recent sample's deviation below the fit, in sigma
}

// NewResidualDetector constructs a ResidualDetector over a window of n
// samples (default n=10; the fit covers the n-1 before the newest) and
// flagging drops beyond sigmaN standard deviations below the fit
// (default 3).
func NewResidualDetector(n int, sigmaN float64) *ResidualDetector {
	if n <= 0 {
		n = 10
	}
	if sigmaN <= 0 {
		sigmaN = 3
	}
	return &ResidualDetector{w: newWindow(n), sigmaN: sigmaN}
}

// Add implements Detector. The fit is over the window excluding the
// newest sample; the newest sample is then tested against fit-sigmaN*sigma,
// matching quench.py's "fit the prior points, test the next one" shape.
// A perfectly flat fit (sigma=0) flags any drop below the fit.
func (d *ResidualDetector) Add(timeMS int64, currentA float64) bool {
	if !d.w.push(timeMS, currentA) {
		return false
	}
	tMS, vals := d.w.series()
	if len(tMS) < 2 {
		return false
	}
	if len(tMS) < d.w.n {
		return false
	}

	fitT, fitV := tMS[:len(tMS)-1], vals[:len(vals)-1]
	xs := relativeSeconds(fitT)
	slope, intercept := olsFit(xs, fitV)
	sigma := residualStdDev(xs, fitV, slope, intercept)

	lastX := relativeSeconds(tMS)[len(tMS)-1]
	predicted := slope*lastX + intercept
	actual := vals[len(vals)-1]

	positive := actual < predicted-d.sigmaN*sigma
	if sigma > 0 {
		d.lastDev = (predicted - actual) / sigma
	}
	return d.db.evaluate(positive)
}

// Warning implements Detector.
func (d *ResidualDetector) Warning() bool { return d.db.warning }

// Latched implements Detector.
func (d *ResidualDetector) Latched() bool { return d.db.latched }
