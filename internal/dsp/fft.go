package dsp

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// ComplexFFT wraps a gonum complex FFT of a fixed size, shared by the
// tick, marker, and BCD-time/BCD-freq detectors.
type ComplexFFT struct {
	size int
	fft  *fourier.CmplxFFT
	win  []float64
	buf  []complex128
}

// NewComplexFFT builds an FFT of the given size with a Hann window applied
// before transforming.
func NewComplexFFT(size int) *ComplexFFT {
	return &ComplexFFT{
		size: size,
		fft:  fourier.NewCmplxFFT(size),
		win:  HannWindow(size),
		buf:  make([]complex128, size),
	}
}

// Transform windows and FFTs frame in place, returning the complex
// coefficients (frame must have length == size).
func (c *ComplexFFT) Transform(frame []complex128) []complex128 {
	for i, s := range frame {
		w := c.win[i]
		c.buf[i] = complex(real(s)*w, imag(s)*w)
	}
	return c.fft.Coefficients(nil, c.buf)
}

// Size reports the configured FFT length.
func (c *ComplexFFT) Size() int { return c.size }

// BinHz returns the frequency spacing of one FFT bin at the given sample
// rate.
func (c *ComplexFFT) BinHz(sampleRateHz float64) float64 {
	return sampleRateHz / float64(c.size)
}

// BucketEnergy sums |X[k]|^2 over the bins within +/-halfWidthHz of
// centerHz only. Bin indices wrap modulo the FFT length, so a bucket
// that extends below 0 Hz (or a negative centerHz) reaches the
// negative-frequency bins at the top of the spectrum; the mirror-image
// bucket at -centerHz is not added.
func BucketEnergy(coeffs []complex128, sampleRateHz, centerHz, halfWidthHz float64) float64 {
	n := len(coeffs)
	binHz := sampleRateHz / float64(n)
	lo := int(math.Floor((centerHz - halfWidthHz) / binHz))
	hi := int(math.Ceil((centerHz + halfWidthHz) / binHz))

	energy := 0.0
	for k := lo; k <= hi; k++ {
		idx := ((k % n) + n) % n
		m := coeffs[idx]
		energy += real(m)*real(m) + imag(m)*imag(m)
	}
	return energy
}

// Percentile computes the p-th percentile (0-100) of data using gonum's
// quantile implementation on a copy of data, which is first sorted with
// the package's own insertion sort (gonum's Quantile needs sorted input).
func Percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sortFloat64s(sorted)
	return stat.Quantile(p/100.0, stat.Empirical, sorted, nil)
}

// Mean computes the arithmetic mean via gonum/stat.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

func sortFloat64s(a []float64) {
	// insertion sort is adequate for the small (<=2048 sample) windows this
	// package ever sorts; avoids importing "sort" for a single call site.
	for i := 1; i < len(a); i++ {
		v := a[i]
		j := i - 1
		for j >= 0 && a[j] > v {
			a[j+1] = a[j]
			j--
		}
		a[j+1] = v
	}
}
