// Package dsp holds the signal-processing building blocks shared by the
// decimation pipeline and the detector front-ends: IIR filtering,
// decimation, windowing, FFT magnitude helpers, and the common
// FFT-frame -> bucket-energy -> state-machine detector skeleton.
package dsp

import "math"

// Biquad is a second-order direct-form-II-transposed IIR low-pass filter,
// run independently on the I and Q rails. It keeps exactly two state
// variables (z1, z2) per rail.
//
// Coefficients are precomputed for a given cutoff/sample-rate pair by
// NewLowPassBiquad; History is owned exclusively by the stage holding the
// filter and is zeroed on stream discontinuity.
type Biquad struct {
	b0, b1, b2 float64
	a1, a2     float64

	// Direct-form-II transposed state.
	z1, z2 float64
}

// NewLowPassBiquad builds a Butterworth-Q second-order low-pass section for
// the given cutoff frequency at the given sample rate.
func NewLowPassBiquad(cutoffHz, sampleRateHz float64) *Biquad {
	const q = 0.70710678 // Butterworth Q (1/sqrt(2))
	omega := 2.0 * math.Pi * cutoffHz / sampleRateHz
	alpha := math.Sin(omega) / (2.0 * q)
	cosw := math.Cos(omega)

	b0 := (1 - cosw) / 2
	b1 := 1 - cosw
	b2 := (1 - cosw) / 2
	a0 := 1 + alpha
	a1 := -2 * cosw
	a2 := 1 - alpha

	return &Biquad{
		b0: b0 / a0,
		b1: b1 / a0,
		b2: b2 / a0,
		a1: a1 / a0,
		a2: a2 / a0,
	}
}

// Process filters a single real sample.
func (f *Biquad) Process(x float64) float64 {
	y := f.b0*x + f.z1
	f.z1 = f.b1*x - f.a1*y + f.z2
	f.z2 = f.b2*x - f.a2*y
	return y
}

// Reset zeroes the filter's history, as required on any source
// discontinuity.
func (f *Biquad) Reset() {
	f.z1, f.z2 = 0, 0
}

// ComplexBiquad wraps a pair of Biquads to filter I and Q independently,
// each channel keeping its own filter state.
type ComplexBiquad struct {
	I, Q *Biquad
}

func NewComplexLowPass(cutoffHz, sampleRateHz float64) *ComplexBiquad {
	return &ComplexBiquad{
		I: NewLowPassBiquad(cutoffHz, sampleRateHz),
		Q: NewLowPassBiquad(cutoffHz, sampleRateHz),
	}
}

func (f *ComplexBiquad) Process(x complex128) complex128 {
	return complex(f.I.Process(real(x)), f.Q.Process(imag(x)))
}

func (f *ComplexBiquad) Reset() {
	f.I.Reset()
	f.Q.Reset()
}
