package quench

import "math"

// olsFit is an ordinary-least-squares fit of y = slope*x + intercept.
// No regression library appears anywhere in the reference corpus; this
// closed-form two-pass fit is the justified standard-library fallback
// (see DESIGN.md).
func olsFit(x, y []float64) (slope, intercept float64) {
	n := float64(len(x))
	if n == 0 {
		return 0, 0
	}
	var sumX, sumY float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
	}
	meanX := sumX / n
	meanY := sumY / n

	var num, den float64
	for i := range x {
		dx := x[i] - meanX
		num += dx * (y[i] - meanY)
		den += dx * dx
	}
	if den == 0 {
		return 0, meanY
	}
	slope = num / den
	intercept = meanY - slope*meanX
	return slope, intercept
}

// residualStdDev returns the standard deviation of y[i] - (slope*x[i]+intercept).
func residualStdDev(x, y []float64, slope, intercept float64) float64 {
	n := float64(len(x))
	if n == 0 {
		return 0
	}
	var sumSq float64
	for i := range x {
		r := y[i] - (slope*x[i] + intercept)
		sumSq += r * r
	}
	return math.Sqrt(sumSq / n)
}
