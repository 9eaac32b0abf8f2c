// Package tickdet implements C3, the tick detector: the 5 ms, 1 kHz
// (1.2 kHz WWVH) second-pulse detector.
package tickdet

import (
	"math"
	"sync/atomic"

	"github.com/hfwwv/wwvsync/internal/dsp"
	"github.com/hfwwv/wwvsync/internal/events"
)

const (
	fftSize           = 256
	frameDurationMs   = float64(fftSize) / dsp.DetectorRateHz * 1000.0
	debounceFrames    = 3
	thresholdLowRatio = 0.7

	defaultMaxDurationMs = 15.0
	defaultCooldownMs    = 20.0

	// WWV tick tone; WWVH transmits its 1 kHz analogue 200 Hz higher.
	tickFreqWWV  = 1000.0
	tickFreqWWVH = 1200.0
	bucketHalfWidthHz = 100.0

	matchedFilterLenMs = 5.0

	gateInitialWindowMs = 50.0
	gateMinWindowMs     = 15.0
	gateNarrowAfter1    = 10 // consecutive gated ticks before first narrowing step
	gateNarrowAfter2    = 30
	gateNarrowFactor1   = 0.95
	gateNarrowFactor2   = 0.98
)

// Params are the control-plane-tunable settings for the tick detector.
// A Detector reads a fresh snapshot of Params once per outer iteration
// via an atomically swapped pointer; the hot loop never takes a lock.
type Params struct {
	ThresholdMult float64 // tick.threshold_mult, 1.0-5.0, default 2.0
	AdaptDown     float64 // tick.adapt_down, 0.9-0.999, default 0.995
	AdaptUp       float64 // tick.adapt_up, 0.001-0.1, default 0.02
	MinDurationMs float64 // tick.min_duration_ms, 1.0-10.0, default 2.0

	UseWWVH       bool // track 1200 Hz instead of 1000 Hz
	MatchedFilter bool // enable the matched-filter validity gate
	GateEnabled   bool // enable the sync-detector-driven tick position gate
}

func DefaultParams() Params {
	return Params{
		ThresholdMult: 2.0,
		AdaptDown:     0.995,
		AdaptUp:       0.02,
		MinDurationMs: 2.0,
		UseWWVH:       false,
		MatchedFilter: true,
		GateEnabled:   false,
	}
}

// EpochHint is C7's immutable epoch estimate, read by the gate logic at
// the top of each outer loop. The detector never references C7 directly;
// it only ever sees values handed to it through SetEpochHint.
type EpochHint struct {
	EpochMs    float64
	Confidence float64
	Valid      bool
}

// Detector is C3. It is not safe for concurrent use; one task owns it
// exclusively.
type Detector struct {
	params *Params // swapped atomically by SetParams

	fft       *dsp.ComplexFFT
	frame     []complex128
	frameFill int
	streamMs  float64 // stream time just past the most recent sample

	floor *dsp.AdaptiveFloor

	state        dsp.PulseState
	pulseStartMs float64
	peakEnergy   float64
	lowCount     int
	cooldownLeft float64 // ms remaining

	lastTickMs     float64
	haveLastTick   bool
	lastIntervalMs float64

	// matched filter
	template []complex128

	// tick gate
	hint         atomic.Pointer[EpochHint]
	gateWindowMs float64
	gatedStreak  int

	falseRejections int
}

func New(p Params) *Detector {
	d := &Detector{
		params:       &p,
		fft:          dsp.NewComplexFFT(fftSize),
		frame:        make([]complex128, fftSize),
		floor:        dsp.NewAdaptiveFloor(p.AdaptDown, p.AdaptUp),
		gateWindowMs: gateInitialWindowMs,
	}
	d.buildTemplate()
	return d
}

// SetParams atomically replaces the tunable parameter set. Safe to call
// from the control-plane task while the detector task runs concurrently;
// the detector only reads *params once per outer iteration.
func (d *Detector) SetParams(p Params) {
	d.params = &p
	d.floor.AdaptDown = p.AdaptDown
	d.floor.AdaptUp = p.AdaptUp
	d.buildTemplate()
}

// SetEpochHint installs the latest epoch estimate from C7, consumed by
// the tick gate. Safe to call from a different goroutine than the one
// driving ProcessSamples: the hint is swapped in as a single pointer.
func (d *Detector) SetEpochHint(h EpochHint) {
	d.hint.Store(&h)
}

func (d *Detector) tickFreq() float64 {
	if d.params.UseWWVH {
		return tickFreqWWVH
	}
	return tickFreqWWV
}

func (d *Detector) buildTemplate() {
	n := int(matchedFilterLenMs / 1000.0 * dsp.DetectorRateHz)
	if n < 1 {
		n = 1
	}
	win := dsp.HannWindow(n)
	freq := d.tickFreq()
	d.template = make([]complex128, n)
	for i := 0; i < n; i++ {
		phase := 2 * math.Pi * freq * float64(i) / dsp.DetectorRateHz
		d.template[i] = complex(win[i]*math.Cos(phase), win[i]*math.Sin(phase))
	}
}

// Reset clears all filter/accumulator/state-machine history, required on
// stream discontinuity.
func (d *Detector) Reset() {
	d.frameFill = 0
	d.floor.Reset()
	d.state = dsp.StateIdle
	d.lowCount = 0
	d.cooldownLeft = 0
	d.haveLastTick = false
	d.gateWindowMs = gateInitialWindowMs
	d.gatedStreak = 0
}

// ProcessSamples feeds detector-path samples (50 kHz) and returns at most
// one tick event.
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

func (d *Detector) processFrame(frameStartMs float64) (events.DetectorEvent, bool) {
	coeffs := d.fft.Transform(d.frame)
	energy := dsp.BucketEnergy(coeffs, dsp.DetectorRateHz, d.tickFreq(), bucketHalfWidthHz)

	d.floor.Update(energy)
	thresholdHigh := d.floor.Value * d.params.ThresholdMult
	thresholdLow := thresholdHigh * thresholdLowRatio

	if d.cooldownLeft > 0 {
		d.cooldownLeft -= frameDurationMs
		if d.cooldownLeft <= 0 && d.state == dsp.StateCooldown {
			d.state = dsp.StateIdle
		}
		return events.DetectorEvent{}, false
	}

	switch d.state {
	case dsp.StateIdle:
		if energy > thresholdHigh {
			if d.params.GateEnabled && !d.gatePermits(frameStartMs) {
				return events.DetectorEvent{}, false
			}
			d.state = dsp.StateInPulse
			d.pulseStartMs = frameStartMs
			d.peakEnergy = energy
			d.lowCount = 0
		}
	case dsp.StateInPulse:
		if energy > d.peakEnergy {
			d.peakEnergy = energy
		}
		if energy < thresholdLow {
			d.lowCount++
		} else {
			d.lowCount = 0
		}
		if d.lowCount >= debounceFrames {
			durationMs := frameStartMs + frameDurationMs - d.pulseStartMs
			d.state = dsp.StateCooldown
			d.cooldownLeft = defaultCooldownMs
			return d.finishPulse(durationMs)
		}
	}
	return events.DetectorEvent{}, false
}

func (d *Detector) finishPulse(durationMs float64) (events.DetectorEvent, bool) {
	if durationMs < d.params.MinDurationMs || durationMs > defaultMaxDurationMs {
		d.falseRejections++
		d.recordGateOutcome(false)
		return events.DetectorEvent{}, false
	}

	corr, haveCorr := 0.0, false
	if d.params.MatchedFilter {
		corr = d.matchedCorrelation()
		haveCorr = true
		if corr < d.floor.Value*d.params.ThresholdMult {
			d.falseRejections++
			d.recordGateOutcome(false)
			return events.DetectorEvent{}, false
		}
	}

	ts := d.pulseStartMs
	if d.haveLastTick {
		interval := ts - d.lastTickMs
		if interval < 100 {
			// DUT1 double tick: two ticks within 100ms count as one, keep
			// the first by discarding this one.
			return events.DetectorEvent{}, false
		}
		d.lastIntervalMs = interval
	}
	d.lastTickMs = ts
	d.haveLastTick = true
	d.recordGateOutcome(true)

	return events.DetectorEvent{
		Kind:             events.KindTick,
		TimestampMs:      ts,
		DurationMs:       durationMs,
		PeakEnergy:       d.peakEnergy,
		CorrelationScore: corr,
		HasCorrelation:   haveCorr,
	}, true
}

func (d *Detector) matchedCorrelation() float64 {
	n := len(d.template)
	if n == 0 || n > fftSize {
		return 0
	}
	var acc complex128
	for i := 0; i < n; i++ {
		acc += d.frame[i] * complexConj(d.template[i])
	}
	return real(acc)*real(acc) + imag(acc)*imag(acc)
}

func complexConj(c complex128) complex128 {
	return complex(real(c), -imag(c))
}

// gatePermits rejects energy spikes whose frame start is more than
// gateWindowMs from the predicted tick position (epoch_ms + 12.5ms
// within the second).
func (d *Detector) gatePermits(frameStartMs float64) bool {
	hint := d.hint.Load()
	if hint == nil || !hint.Valid {
		return true
	}
	predicted := math.Mod(hint.EpochMs+12.5, 1000)
	phase := math.Mod(frameStartMs, 1000)
	diff := math.Abs(phase - predicted)
	if diff > 500 {
		diff = 1000 - diff
	}
	return diff <= d.gateWindowMs
}

func (d *Detector) recordGateOutcome(good bool) {
	if !d.params.GateEnabled {
		return
	}
	if good {
		d.gatedStreak++
		switch {
		case d.gatedStreak >= gateNarrowAfter2:
			d.gateWindowMs = math.Max(gateMinWindowMs, d.gateWindowMs*gateNarrowFactor2)
		case d.gatedStreak >= gateNarrowAfter1:
			d.gateWindowMs = math.Max(gateMinWindowMs, d.gateWindowMs*gateNarrowFactor1)
		}
	} else {
		d.gatedStreak = 0
		d.gateWindowMs = gateInitialWindowMs
	}
}

// LastIntervalMs reports the most recent inter-tick interval for telemetry.
func (d *Detector) LastIntervalMs() float64 { return d.lastIntervalMs }

// FalseRejections reports the running count of pulses that crossed
// threshold but failed duration/correlation validation.
func (d *Detector) FalseRejections() int { return d.falseRejections }

// CurrentParams returns the detector's active parameter set.
func (d *Detector) CurrentParams() Params { return *d.params }
