// Package tonetrack implements C6, the tone trackers: carrier/DC offset
// and 500/600 Hz subcarrier frequency measurement with parabolic peak
// interpolation, generalized to an arbitrary list of nominal
// frequencies.
package tonetrack

import (
	"math"

	"github.com/hfwwv/wwvsync/internal/dsp"
)

const (
	bufferSize     = 4096
	searchHalfBins = 8 // bins either side of nominal to search for the peak
	minSNRdB       = 10.0
)

// Reading is one tone-tracker measurement.
type Reading struct {
	MeasuredHz float64
	OffsetHz   float64
	OffsetPPM  float64
	SNRdB      float64
	Valid      bool
}

// Tracker tracks one nominal frequency against the 12 kHz display-path
// stream. One instance per monitored frequency (DC/carrier, 500 Hz,
// 600 Hz, ...).
type Tracker struct {
	nominalHz   float64
	referenceHz float64 // frequency ppm is scaled against; defaults to nominalHz

	fft       *dsp.ComplexFFT
	win       []float64
	frame     []complex128
	frameFill int
}

// New creates a tracker for nominalHz. referenceHz is the frequency used
// to scale the ppm figure; pass 0 to scale against nominalHz itself.
func New(nominalHz, referenceHz float64) *Tracker {
	if referenceHz == 0 {
		referenceHz = nominalHz
	}
	return &Tracker{
		nominalHz:   nominalHz,
		referenceHz: referenceHz,
		fft:         dsp.NewComplexFFT(bufferSize),
		win:         dsp.BlackmanHarrisWindow(bufferSize),
		frame:       make([]complex128, bufferSize),
	}
}

func (t *Tracker) Reset() {
	t.frameFill = 0
}

// ProcessSamples feeds display-path samples (~12 kHz) and reports a
// Reading whenever the 4096-sample buffer fills.
func (t *Tracker) ProcessSamples(samples []complex128) (Reading, bool) {
	var out Reading
	var produced bool
	for _, s := range samples {
		t.frame[t.frameFill] = s
		t.frameFill++
		if t.frameFill < bufferSize {
			continue
		}
		t.frameFill = 0
		out, produced = t.measure(), true
	}
	return out, produced
}

func (t *Tracker) measure() Reading {
	coeffs := t.fft.Transform(t.frame)
	n := len(coeffs)
	hzPerBin := dsp.DisplayRateHz / float64(n)

	mag := make([]float64, n)
	for i, c := range coeffs {
		mag[i] = math.Hypot(real(c), imag(c))
	}

	nominalBin := int(math.Round(t.nominalHz / hzPerBin))
	usbBin, usbFrac := findPeak(mag, nominalBin)

	mirrorBin := ((n - nominalBin) % n + n) % n
	lsbBinRaw, lsbFrac := findPeak(mag, mirrorBin)
	// lsbFrac is expressed as (N - bin) to mirror it onto the same axis
	// as the upper-sideband fraction.
	lsbFracFromTop := float64(n-lsbBinRaw) - lsbFrac

	measuredHz := ((float64(usbBin)+usbFrac + lsbFracFromTop) / 2.0) * hzPerBin
	offsetHz := measuredHz - t.nominalHz
	offsetPPM := 0.0
	if t.referenceHz != 0 {
		offsetPPM = offsetHz / t.referenceHz * 1e6
	}

	snr := snrAt(mag, usbBin)

	return Reading{
		MeasuredHz: measuredHz,
		OffsetHz:   offsetHz,
		OffsetPPM:  offsetPPM,
		SNRdB:      snr,
		Valid:      snr >= minSNRdB,
	}
}

// findPeak locates the strongest bin within searchHalfBins of center and
// returns it along with the parabolic-interpolated fractional offset.
func findPeak(mag []float64, center int) (bin int, frac float64) {
	n := len(mag)
	best := center
	bestMag := -1.0
	for d := -searchHalfBins; d <= searchHalfBins; d++ {
		idx := ((center+d)%n + n) % n
		if mag[idx] > bestMag {
			bestMag = mag[idx]
			best = idx
		}
	}

	prev := mag[((best-1)%n+n)%n]
	next := mag[(best+1)%n]
	frac = dsp.ParabolicPeak(prev, mag[best], next)
	return best, frac
}

// snrAt computes 20*log10(peak/mean_non_signal) excluding a small guard
// band around the peak bin from the noise estimate.
func snrAt(mag []float64, peakBin int) float64 {
	n := len(mag)
	peak := mag[peakBin]

	var sum float64
	var count int
	for i, m := range mag {
		d := i - peakBin
		if d < 0 {
			d = -d
		}
		if d <= searchHalfBins {
			continue
		}
		sum += m
		count++
	}
	if count == 0 || peak <= 0 {
		return 0
	}
	meanNoise := sum / float64(count)
	if meanNoise <= 0 {
		meanNoise = 1e-12
	}
	return 20.0 * math.Log10(peak/meanNoise)
}
