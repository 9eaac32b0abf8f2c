// Package bcddet implements C5, the two parallel 100 Hz BCD-subcarrier
// detectors: a small-FFT time-domain path with precise edge timing, and
// a large-FFT frequency-domain path with precise frequency selectivity.
package bcddet

import (
	"github.com/hfwwv/wwvsync/internal/dsp"
	"github.com/hfwwv/wwvsync/internal/events"
)

const (
	bcdCenterHz = 100.0

	timeFFTSize        = 256
	timeFrameMs        = float64(timeFFTSize) / dsp.DetectorRateHz * 1000.0
	timeBucketHalfHz   = 50.0
	timeDebounceFrames = 3

	freqFFTSize      = 2048
	freqFrameMs      = float64(freqFFTSize) / dsp.DetectorRateHz * 1000.0
	freqBucketHalfHz = 15.0
	freqAccumFrames  = int(1000.0 / freqFrameMs) // ~1 second worth of frames
	freqBaselineAdapt = 0.001
)

// PulseEvent is the raw pulse observation shared by both BCD-detector
// paths: start time, duration, and peak or accumulated energy.
type PulseEvent struct {
	StartMs  float64
	DurationMs float64
	Energy   float64
}

// TimeDetector is the coarse-time (`bcd_time`) path: small FFT, precise
// edge timing, poor frequency selectivity.
type TimeDetector struct {
	fft       *dsp.ComplexFFT
	frame     []complex128
	frameFill int
	streamMs  float64

	floor *dsp.AdaptiveFloor

	state        dsp.PulseState
	pulseStartMs float64
	peakEnergy   float64
	lowCount     int

	thresholdMult float64
}

func NewTimeDetector() *TimeDetector {
	return &TimeDetector{
		fft:           dsp.NewComplexFFT(timeFFTSize),
		frame:         make([]complex128, timeFFTSize),
		floor:         dsp.NewAdaptiveFloor(0.01, 0.001),
		thresholdMult: 2.0,
	}
}

func (d *TimeDetector) Reset() {
	d.frameFill = 0
	d.floor.Reset()
	d.state = dsp.StateIdle
	d.lowCount = 0
}

func (d *TimeDetector) ProcessSamples(samples []complex128) (PulseEvent, bool) {
	var out PulseEvent
	var produced bool
	for _, s := range samples {
		d.frame[d.frameFill] = s
		d.frameFill++
		d.streamMs += 1000.0 / dsp.DetectorRateHz
		if d.frameFill < timeFFTSize {
			continue
		}
		d.frameFill = 0
		frameStartMs := d.streamMs - timeFrameMs

		if ev, ok := d.processFrame(frameStartMs); ok {
			out, produced = ev, true
		}
	}
	return out, produced
}

func (d *TimeDetector) processFrame(frameStartMs float64) (PulseEvent, bool) {
	coeffs := d.fft.Transform(d.frame)
	energy := dsp.BucketEnergy(coeffs, dsp.DetectorRateHz, bcdCenterHz, timeBucketHalfHz)
	d.floor.Update(energy)
	threshold := d.floor.Value * d.thresholdMult

	switch d.state {
	case dsp.StateIdle:
		if energy > threshold {
			d.state = dsp.StateInPulse
			d.pulseStartMs = frameStartMs
			d.peakEnergy = energy
			d.lowCount = 0
		}
	case dsp.StateInPulse:
		if energy > d.peakEnergy {
			d.peakEnergy = energy
		}
		if energy < threshold {
			d.lowCount++
		} else {
			d.lowCount = 0
		}
		if d.lowCount >= timeDebounceFrames {
			d.state = dsp.StateIdle
			duration := frameStartMs + timeFrameMs - d.pulseStartMs
			return PulseEvent{StartMs: d.pulseStartMs, DurationMs: duration, Energy: d.peakEnergy}, true
		}
	}
	return PulseEvent{}, false
}

// FreqDetector is the narrow-bucket (`bcd_freq`) path: large FFT, confident
// 100 Hz identification, smeared timing, slow baseline.
type FreqDetector struct {
	fft       *dsp.ComplexFFT
	frame     []complex128
	frameFill int
	streamMs  float64

	ring     []float64
	ringPos  int
	ringSum  float64
	baseline float64

	state        dsp.PulseState
	pulseStartMs float64
	peakEnergy   float64

	thresholdMult float64
}

func NewFreqDetector() *FreqDetector {
	n := freqAccumFrames
	if n < 1 {
		n = 1
	}
	return &FreqDetector{
		fft:           dsp.NewComplexFFT(freqFFTSize),
		frame:         make([]complex128, freqFFTSize),
		ring:          make([]float64, n),
		thresholdMult: 2.0,
	}
}

func (d *FreqDetector) Reset() {
	d.frameFill = 0
	for i := range d.ring {
		d.ring[i] = 0
	}
	d.ringSum = 0
	d.ringPos = 0
	d.baseline = 0
	d.state = dsp.StateIdle
}

func (d *FreqDetector) ProcessSamples(samples []complex128) (PulseEvent, bool) {
	var out PulseEvent
	var produced bool
	for _, s := range samples {
		d.frame[d.frameFill] = s
		d.frameFill++
		d.streamMs += 1000.0 / dsp.DetectorRateHz
		if d.frameFill < freqFFTSize {
			continue
		}
		d.frameFill = 0
		frameStartMs := d.streamMs - freqFrameMs

		if ev, ok := d.processFrame(frameStartMs); ok {
			out, produced = ev, true
		}
	}
	return out, produced
}

func (d *FreqDetector) processFrame(frameStartMs float64) (PulseEvent, bool) {
	coeffs := d.fft.Transform(d.frame)
	energy := dsp.BucketEnergy(coeffs, dsp.DetectorRateHz, bcdCenterHz, freqBucketHalfHz)

	old := d.ring[d.ringPos]
	d.ring[d.ringPos] = energy
	d.ringSum += energy - old
	d.ringPos = (d.ringPos + 1) % len(d.ring)
	accumulated := d.ringSum / float64(len(d.ring))

	if d.state == dsp.StateIdle {
		d.baseline += (energy - d.baseline) * freqBaselineAdapt
	}
	threshold := d.baseline * d.thresholdMult

	switch d.state {
	case dsp.StateIdle:
		if accumulated > threshold {
			d.state = dsp.StateInPulse
			d.pulseStartMs = frameStartMs
			d.peakEnergy = accumulated
		}
	case dsp.StateInPulse:
		if accumulated > d.peakEnergy {
			d.peakEnergy = accumulated
		}
		if accumulated <= threshold {
			d.state = dsp.StateIdle
			duration := frameStartMs + freqFrameMs - d.pulseStartMs
			return PulseEvent{StartMs: d.pulseStartMs, DurationMs: duration, Energy: d.peakEnergy}, true
		}
	}
	return PulseEvent{}, false
}

// ToDetectorEvent adapts a raw PulseEvent into the shared DetectorEvent
// record for telemetry/fusion consumption.
func (p PulseEvent) ToDetectorEvent() events.DetectorEvent {
	return events.DetectorEvent{
		Kind:        events.KindBCDPulse,
		TimestampMs: p.StartMs,
		DurationMs:  p.DurationMs,
		PeakEnergy:  p.Energy,
	}
}
