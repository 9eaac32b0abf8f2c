package dsp

// Decimator keeps every Nth sample after filtering: the detector chain
// keeps every 40th sample, the display chain every ~167th.
type Decimator struct {
	ratio int
	count int
}

func NewDecimator(ratio int) *Decimator {
	return &Decimator{ratio: ratio}
}

// Keep returns true if the sample just seen should be kept, advancing the
// internal phase counter.
func (d *Decimator) Keep() bool {
	keep := d.count == 0
	d.count++
	if d.count >= d.ratio {
		d.count = 0
	}
	return keep
}

func (d *Decimator) Reset() {
	d.count = 0
}

const (
	// SourceRateHz is the native I/Q stream rate produced by C1.
	SourceRateHz = 2_000_000.0

	// DetectorDecimationRatio is C2's detector-path divisor (÷40 -> 50 kHz).
	DetectorDecimationRatio = 40
	// DetectorLowPassHz is the detector chain's anti-alias cutoff.
	DetectorLowPassHz = 5000.0
	// DetectorRateHz is the resulting detector-path sample rate.
	DetectorRateHz = SourceRateHz / DetectorDecimationRatio

	// DisplayDecimationRatio is C2's display-path divisor. 167 is chosen
	// over the nearby 166 because it leaves the downstream FFT bin
	// resolution a cleaner number (see DESIGN.md).
	DisplayDecimationRatio = 167
	// DisplayLowPassHz is the display chain's anti-alias cutoff.
	DisplayLowPassHz = 6000.0
	// DisplayRateHz is the resulting display-path sample rate (~11,976 Hz).
	DisplayRateHz = SourceRateHz / DisplayDecimationRatio

	// DetectorChainGroupDelayMs is the documented, deterministic group delay
	// of the detector-path anti-alias filter, used as a timestamp offset
	// downstream.
	DetectorChainGroupDelayMs = 3.0
)

// DecimationChain runs one IIR low-pass + keep-every-Nth stage on a
// complex stream. Detector and display paths each own one instance; they
// never share filter state.
type DecimationChain struct {
	filter    *ComplexBiquad
	decimator *Decimator
}

func NewDecimationChain(cutoffHz, sourceRateHz float64, ratio int) *DecimationChain {
	return &DecimationChain{
		filter:    NewComplexLowPass(cutoffHz, sourceRateHz),
		decimator: NewDecimator(ratio),
	}
}

// Process filters one input sample and reports whether it produced an
// output sample for the decimated rate, along with that sample.
func (c *DecimationChain) Process(x complex128) (out complex128, ok bool) {
	y := c.filter.Process(x)
	if c.decimator.Keep() {
		return y, true
	}
	return 0, false
}

// Reset clears filter history and decimation phase, required on any
// upstream discontinuity.
func (c *DecimationChain) Reset() {
	c.filter.Reset()
	c.decimator.Reset()
}

// NewDetectorChain builds C2's detector-path chain (5 kHz LPF, ÷40).
func NewDetectorChain() *DecimationChain {
	return NewDecimationChain(DetectorLowPassHz, SourceRateHz, DetectorDecimationRatio)
}

// NewDisplayChain builds C2's display-path chain (6 kHz LPF, ÷167).
func NewDisplayChain() *DecimationChain {
	return NewDecimationChain(DisplayLowPassHz, SourceRateHz, DisplayDecimationRatio)
}
