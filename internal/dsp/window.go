package dsp

import "math"

// HannWindow returns a Hann window of length n, used by the tick, marker
// and BCD detectors before their FFTs.
func HannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// BlackmanHarrisWindow returns a 4-term Blackman-Harris window of length
// n. tonetrack.Tracker builds one, but its ComplexFFT windows every frame
// with HannWindow, so the tone-tracker spectra are Hann-windowed and this
// window is not applied to them.
func BlackmanHarrisWindow(n int) []float64 {
	const (
		a0 = 0.35875
		a1 = 0.48829
		a2 = 0.14128
		a3 = 0.01168
	)
	w := make([]float64, n)
	for i := range w {
		x := 2 * math.Pi * float64(i) / float64(n-1)
		w[i] = a0 - a1*math.Cos(x) + a2*math.Cos(2*x) - a3*math.Cos(3*x)
	}
	return w
}

// ParabolicPeak refines a discrete peak at bin index using the standard
// three-point parabolic interpolation formula:
//
//	p = 0.5*(alpha-gamma) / (alpha - 2*beta + gamma)
//
// alpha, beta, gamma are the magnitudes at bin-1, bin, bin+1. Returns the
// fractional-bin offset to add to the integer bin index. Returns 0 if the
// denominator is degenerate (flat or NaN-producing neighborhood).
func ParabolicPeak(alpha, beta, gamma float64) float64 {
	denom := alpha - 2*beta + gamma
	if denom == 0 || math.IsNaN(denom) {
		return 0
	}
	p := 0.5 * (alpha - gamma) / denom
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0
	}
	return p
}
