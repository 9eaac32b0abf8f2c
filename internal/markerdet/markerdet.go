// Package markerdet implements C4, the 800 ms minute-marker detector,
// plus the independent "slow marker" confirmer that runs on the 12 kHz
// display chain.
package markerdet

import (
	"github.com/hfwwv/wwvsync/internal/dsp"
	"github.com/hfwwv/wwvsync/internal/events"
)

const (
	fftSize         = 256 // same small FFT as the tick detector, shared bucket geometry
	frameDurationMs = float64(fftSize) / dsp.DetectorRateHz * 1000.0

	accumulatorFrames = 195 // ~1s of 5.12ms frames
	baselineAdapt     = 0.001

	minDurationDefault = 500.0
	maxDurationMs      = 1500.0
	durationResolutionMs = 5.0

	tickFreqWWV       = 1000.0
	tickFreqWWVH      = 1200.0
	bucketHalfWidthHz = 100.0

	defaultCooldownMs = 200.0
)

// Params are the control-plane-tunable marker detector settings.
type Params struct {
	ThresholdMult float64 // marker.threshold_mult, 2.0-5.0, default 3.0
	NoiseAdapt    float64 // marker.noise_adapt, 0.0001-0.01, default 0.001
	MinDurationMs float64 // marker.min_duration_ms, 300-700, default 500
	UseWWVH       bool
}

func DefaultParams() Params {
	return Params{
		ThresholdMult: 3.0,
		NoiseAdapt:    baselineAdapt,
		MinDurationMs: minDurationDefault,
	}
}

// Detector is C4. Owned exclusively by Task B.
type Detector struct {
	params *Params

	fft       *dsp.ComplexFFT
	frame     []complex128
	frameFill int
	streamMs  float64

	ring      []float64
	ringPos   int
	ringSum   float64
	ringFull  bool
	baseline  float64

	state        dsp.PulseState
	pulseStartMs float64
	peakEnergy   float64
	cooldownLeft float64
}

func New(p Params) *Detector {
	return &Detector{
		params: &p,
		fft:    dsp.NewComplexFFT(fftSize),
		frame:  make([]complex128, fftSize),
		ring:   make([]float64, accumulatorFrames),
	}
}

func (d *Detector) SetParams(p Params) { d.params = &p }

// CurrentParams returns the detector's active parameter set.
func (d *Detector) CurrentParams() Params { return *d.params }

func (d *Detector) tickFreq() float64 {
	if d.params.UseWWVH {
		return tickFreqWWVH
	}
	return tickFreqWWV
}

func (d *Detector) Reset() {
	d.frameFill = 0
	for i := range d.ring {
		d.ring[i] = 0
	}
	d.ringPos = 0
	d.ringSum = 0
	d.ringFull = false
	d.baseline = 0
	d.state = dsp.StateIdle
	d.cooldownLeft = 0
}

// ProcessSamples feeds detector-path samples (50 kHz) and returns at most
// one marker event.
func (d *Detector) ProcessSamples(samples []complex128) (events.DetectorEvent, bool) {
	var out events.DetectorEvent
	var produced bool

	for _, s := range samples {
		d.frame[d.frameFill] = s
		d.frameFill++
		d.streamMs += 1000.0 / dsp.DetectorRateHz

		if d.frameFill < fftSize {
			continue
		}
		d.frameFill = 0
		frameStartMs := d.streamMs - frameDurationMs

		ev, ok := d.processFrame(frameStartMs)
		if ok {
			out = ev
			produced = true
		}
	}
	return out, produced
}

func (d *Detector) pushRing(energy float64) {
	old := d.ring[d.ringPos]
	d.ring[d.ringPos] = energy
	d.ringSum += energy - old
	d.ringPos++
	if d.ringPos >= len(d.ring) {
		d.ringPos = 0
		d.ringFull = true
	}
}

func (d *Detector) processFrame(frameStartMs float64) (events.DetectorEvent, bool) {
	coeffs := d.fft.Transform(d.frame)
	energy := dsp.BucketEnergy(coeffs, dsp.DetectorRateHz, d.tickFreq(), bucketHalfWidthHz)
	d.pushRing(energy)

	if d.state == dsp.StateIdle {
		d.baseline += (energy - d.baseline) * d.params.NoiseAdapt
	}
	threshold := d.baseline * d.params.ThresholdMult

	if d.cooldownLeft > 0 {
		d.cooldownLeft -= frameDurationMs
		if d.cooldownLeft <= 0 && d.state == dsp.StateCooldown {
			d.state = dsp.StateIdle
		}
		return events.DetectorEvent{}, false
	}

	accumulated := d.ringSum / float64(len(d.ring))

	switch d.state {
	case dsp.StateIdle:
		if accumulated > threshold {
			d.state = dsp.StateInPulse
			d.pulseStartMs = frameStartMs
			d.peakEnergy = energy
		}
	case dsp.StateInPulse:
		if energy > d.peakEnergy {
			d.peakEnergy = energy
		}
		if accumulated <= threshold {
			durationMs := quantizeMs(frameStartMs+frameDurationMs-d.pulseStartMs, durationResolutionMs)
			d.state = dsp.StateCooldown
			d.cooldownLeft = defaultCooldownMs
			if durationMs >= d.params.MinDurationMs && durationMs <= maxDurationMs {
				return events.DetectorEvent{
					Kind:        events.KindMarker,
					TimestampMs: d.pulseStartMs,
					DurationMs:  durationMs,
					PeakEnergy:  d.peakEnergy,
				}, true
			}
		}
	}
	return events.DetectorEvent{}, false
}

func quantizeMs(ms, resolution float64) float64 {
	steps := ms / resolution
	rounded := float64(int(steps + 0.5))
	return rounded * resolution
}

const (
	slowFFTSize      = 2048
	slowAccumFrames  = 10
)

// SlowConfirmer is the independent 12 kHz-chain confirmation path: a
// 2048-point FFT with a 10-frame accumulator, fused by C8 into its
// confidence scoring rather than emitting its own events.
type SlowConfirmer struct {
	fft       *dsp.ComplexFFT
	frame     []complex128
	frameFill int
	ring      []float64
	ringPos   int
	ringSum   float64

	tickFreq float64
}

func NewSlowConfirmer(useWWVH bool) *SlowConfirmer {
	freq := tickFreqWWV
	if useWWVH {
		freq = tickFreqWWVH
	}
	return &SlowConfirmer{
		fft:      dsp.NewComplexFFT(slowFFTSize),
		frame:    make([]complex128, slowFFTSize),
		ring:     make([]float64, slowAccumFrames),
		tickFreq: freq,
	}
}

// ProcessSamples feeds display-path samples (~12 kHz) and reports the
// current smoothed confirmation energy whenever an FFT frame completes.
func (c *SlowConfirmer) ProcessSamples(samples []complex128) (confirmation float64, updated bool) {
	for _, s := range samples {
		c.frame[c.frameFill] = s
		c.frameFill++
		if c.frameFill < slowFFTSize {
			continue
		}
		c.frameFill = 0
		coeffs := c.fft.Transform(c.frame)
		energy := dsp.BucketEnergy(coeffs, dsp.DisplayRateHz, c.tickFreq, bucketHalfWidthHz)

		old := c.ring[c.ringPos]
		c.ring[c.ringPos] = energy
		c.ringSum += energy - old
		c.ringPos = (c.ringPos + 1) % len(c.ring)

		confirmation = c.ringSum / float64(len(c.ring))
		updated = true
	}
	return confirmation, updated
}

func (c *SlowConfirmer) Reset() {
	c.frameFill = 0
	for i := range c.ring {
		c.ring[i] = 0
	}
	c.ringSum = 0
	c.ringPos = 0
}
