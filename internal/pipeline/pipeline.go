// Package pipeline wires C1-C10 into the co-operating tasks that move
// samples from the I/Q source to decoded time: two goroutines (Task A with
// Tasks B and C folded in, and Task D), a shared stopChan checked between
// units of work, no locks held across a suspension point.
package pipeline

import (
	"log"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hfwwv/wwvsync/internal/bcd"
	"github.com/hfwwv/wwvsync/internal/bcddet"
	"github.com/hfwwv/wwvsync/internal/dsp"
	"github.com/hfwwv/wwvsync/internal/epochsync"
	"github.com/hfwwv/wwvsync/internal/events"
	"github.com/hfwwv/wwvsync/internal/iqsource"
	"github.com/hfwwv/wwvsync/internal/markerdet"
	"github.com/hfwwv/wwvsync/internal/telemetry"
	"github.com/hfwwv/wwvsync/internal/tickdet"
	"github.com/hfwwv/wwvsync/internal/tonetrack"
)

const queueDepth = 64

// Pipeline owns every component and the goroutines driving them.
type Pipeline struct {
	source *iqsource.Source
	bus    *telemetry.Bus

	detectorChain *dsp.DecimationChain
	displayChain  *dsp.DecimationChain

	tick    *tickdet.Detector
	marker  *markerdet.Detector
	slowMkr *markerdet.SlowConfirmer
	bcdTime *bcddet.TimeDetector
	bcdFreq *bcddet.FreqDetector
	tones   []*tonetrack.Tracker

	sync *epochsync.Detector
	corr *bcd.Correlator

	detectorEvents    chan events.DetectorEvent
	bcdTimeEvents     chan bcddet.PulseEvent
	bcdFreqEvents     chan bcddet.PulseEvent
	slowConfirmEvents chan float64

	lastStreamMs atomic.Uint64 // bits of a float64 ms value, per math.Float64bits

	logger *log.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New assembles a Pipeline over an already-opened source.
func New(src *iqsource.Source, bus *telemetry.Bus, toneNominalHz []float64, toneReferenceHz float64, useWWVH bool, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}

	tones := make([]*tonetrack.Tracker, len(toneNominalHz))
	for i, hz := range toneNominalHz {
		tones[i] = tonetrack.New(hz, toneReferenceHz)
	}

	tickParams := tickdet.DefaultParams()
	tickParams.UseWWVH = useWWVH
	markerParams := markerdet.DefaultParams()
	markerParams.UseWWVH = useWWVH

	return &Pipeline{
		source:         src,
		bus:            bus,
		detectorChain:  dsp.NewDetectorChain(),
		displayChain:   dsp.NewDisplayChain(),
		tick:           tickdet.New(tickParams),
		marker:         markerdet.New(markerParams),
		slowMkr:        markerdet.NewSlowConfirmer(useWWVH),
		bcdTime:        bcddet.NewTimeDetector(),
		bcdFreq:        bcddet.NewFreqDetector(),
		tones:          tones,
		sync:           epochsync.New(epochsync.DefaultParams()),
		corr:           bcd.New(bcd.DefaultParams()),
		detectorEvents:    make(chan events.DetectorEvent, queueDepth),
		bcdTimeEvents:     make(chan bcddet.PulseEvent, queueDepth),
		bcdFreqEvents:     make(chan bcddet.PulseEvent, queueDepth),
		slowConfirmEvents: make(chan float64, queueDepth),
		logger:            logger,
		stopChan:          make(chan struct{}),
	}
}

// Run starts Task A (with Tasks B and C folded in) and Task D (Tasks E
// and F are wired by the caller, which owns the control and telemetry
// transports) and blocks until both goroutines return.
func (p *Pipeline) Run() {
	p.wg.Add(2)
	go p.taskSourceAndDecimation()
	go p.taskFusion()
	p.wg.Wait()
}

func (p *Pipeline) Stop() {
	close(p.stopChan)
}

func (p *Pipeline) stopping() bool {
	select {
	case <-p.stopChan:
		return true
	default:
		return false
	}
}

// taskSourceAndDecimation is Task A + the detector/display FFT detectors
// of Task B/C folded in: pulls frames, decimates, and runs C3/C4/C5 on
// the 50 kHz path and C6 on the 12 kHz path.
func (p *Pipeline) taskSourceAndDecimation() {
	defer p.wg.Done()

	const pullBatch = 4096
	for !p.stopping() {
		frame, err := p.source.Pull(pullBatch)
		if err != nil {
			p.logger.Printf("pipeline: source pull: %v", err)
			return
		}
		if frame.Flags.Has(events.FlagDiscontinuity) || frame.Flags.Has(events.FlagMetadataChanged) {
			p.resetOnDiscontinuity()
		}
		if len(frame.Samples) == 0 {
			continue
		}
		p.lastStreamMs.Store(math.Float64bits(frame.StreamMs))
		p.processSamples(frame.Samples)
	}
}

func (p *Pipeline) resetOnDiscontinuity() {
	p.detectorChain.Reset()
	p.displayChain.Reset()
	p.tick.Reset()
	p.marker.Reset()
	p.slowMkr.Reset()
	p.bcdTime.Reset()
	p.bcdFreq.Reset()
	for _, t := range p.tones {
		t.Reset()
	}
}

func (p *Pipeline) processSamples(samples []complex128) {
	detectorBatch := make([]complex128, 0, len(samples))
	displayBatch := make([]complex128, 0, len(samples))

	for _, s := range samples {
		if out, ok := p.detectorChain.Process(s); ok {
			detectorBatch = append(detectorBatch, out)
		}
		if out, ok := p.displayChain.Process(s); ok {
			displayBatch = append(displayBatch, out)
		}
	}

	if len(detectorBatch) > 0 {
		p.runDetectorPath(detectorBatch)
	}
	if len(displayBatch) > 0 {
		p.runDisplayPath(displayBatch)
	}
}

func (p *Pipeline) runDetectorPath(samples []complex128) {
	if ev, ok := p.tick.ProcessSamples(samples); ok {
		ev.IntervalMs = p.tick.LastIntervalMs()
		p.publishDetectorEvent(ev)
	}
	if ev, ok := p.marker.ProcessSamples(samples); ok {
		p.publishDetectorEvent(ev)
	}
	if ev, ok := p.bcdTime.ProcessSamples(samples); ok {
		p.publishBCDTime(ev)
	}
	if ev, ok := p.bcdFreq.ProcessSamples(samples); ok {
		p.publishBCDFreq(ev)
	}
}

func (p *Pipeline) runDisplayPath(samples []complex128) {
	for _, t := range p.tones {
		if reading, ok := t.ProcessSamples(samples); ok {
			p.bus.Publish(telemetry.NewRecord("TONE", reading.MeasuredHz, reading.OffsetHz, reading.OffsetPPM, reading.SNRdB, reading.Valid))
		}
	}
	if confirmation, ok := p.slowMkr.ProcessSamples(samples); ok {
		p.publishSlowConfirmation(confirmation)
	}
}

func (p *Pipeline) publishDetectorEvent(ev events.DetectorEvent) {
	select {
	case p.detectorEvents <- ev:
	default:
		select {
		case <-p.detectorEvents:
		default:
		}
		select {
		case p.detectorEvents <- ev:
		default:
		}
	}
}

func (p *Pipeline) publishBCDTime(ev bcddet.PulseEvent) {
	select {
	case p.bcdTimeEvents <- ev:
	default:
	}
}

func (p *Pipeline) publishBCDFreq(ev bcddet.PulseEvent) {
	select {
	case p.bcdFreqEvents <- ev:
	default:
	}
}

// publishSlowConfirmation hands a slow-confirmer reading to Task D over
// a channel rather than calling the correlator directly: corr is owned
// exclusively by the fusion goroutine, while this runs on Task A's.
func (p *Pipeline) publishSlowConfirmation(confirmation float64) {
	select {
	case p.slowConfirmEvents <- confirmation:
	default:
		select {
		case <-p.slowConfirmEvents:
		default:
		}
		select {
		case p.slowConfirmEvents <- confirmation:
		default:
		}
	}
}

// reorderWindow caps how many pending detector events taskFusion holds
// back before dispatching the oldest: enough to absorb a tick and a
// marker arriving out of timestamp order from their separate channels,
// not a general-purpose buffer.
const reorderWindow = 3

// taskFusion is Task D: drains detector and BCD events (sorting by
// timestamp on ingest and holding up to reorderWindow of them so a
// late-arriving event from one channel can still be dispatched ahead of
// an earlier one already seen on the other), feeds C7 and C8, and runs
// their ~100ms periodic check.
func (p *Pipeline) taskFusion() {
	defer p.wg.Done()

	type tagged struct {
		ts float64
		ev events.DetectorEvent
	}
	var reorderBuf []tagged

	drainOldest := func() {
		for len(reorderBuf) > reorderWindow {
			p.dispatchDetectorEvent(reorderBuf[0].ev)
			reorderBuf = reorderBuf[1:]
		}
	}

	for !p.stopping() {
		select {
		case ev := <-p.detectorEvents:
			reorderBuf = append(reorderBuf, tagged{ev.TimestampMs, ev})
			sort.Slice(reorderBuf, func(i, j int) bool { return reorderBuf[i].ts < reorderBuf[j].ts })
			drainOldest()

		case ev := <-p.bcdTimeEvents:
			p.corr.IngestTime(ev)

		case ev := <-p.bcdFreqEvents:
			p.corr.IngestFreq(ev)

		case confirmation := <-p.slowConfirmEvents:
			p.corr.IngestSlowConfirmation(confirmation)

		case <-p.stopChan:
			for _, t := range reorderBuf {
				p.dispatchDetectorEvent(t.ev)
			}
			return
		}

		p.periodicCheck()
	}
}

func (p *Pipeline) dispatchDetectorEvent(ev events.DetectorEvent) {
	switch ev.Kind {
	case events.KindTick:
		p.sync.OnTick(ev.TimestampMs)
		p.bus.Publish(telemetry.NewRecord("TICK", ev.TimestampMs, ev.DurationMs, ev.CorrelationScore, ev.IntervalMs))
	case events.KindMarker:
		p.sync.OnMarker(ev.TimestampMs, ev.DurationMs)
		p.bus.Publish(telemetry.NewRecord("MARK", ev.TimestampMs, ev.DurationMs, ev.PeakEnergy))
	}
}

func (p *Pipeline) periodicCheck() {
	p.sync.Periodic(p.approximateNowMs())
	ft := p.sync.Snapshot()
	p.bus.Publish(telemetry.NewRecord("SYNC", ft.State.String(), ft.CurrentSecond, ft.Confidence, uint8(ft.EvidenceMask)))

	sym, symOK, decoded, decodedOK := p.corr.Advance(ft)
	if symOK {
		p.bus.Publish(telemetry.NewRecord("SYM", sym.Symbol.String(), sym.FrameSecond, sym.DurationMs, sym.Confidence, sym.SyncState.String()))
		if sym.Symbol == events.SymbolMarker {
			p.pushEpochHint()
		}
	}
	if decodedOK {
		p.bus.Publish(telemetry.NewRecord("DECODED", decoded.Hours, decoded.Minutes, decoded.DayOfYear, decoded.Year, decoded.DUT1))
	}
}

// approximateNowMs reports the most recent stream timestamp seen by Task
// A, used as the monotonic clock the periodic check advances against.
// Timeouts are tracked against this stream-relative clock, never wall
// time, so the pipeline behaves the same live or replaying a file.
func (p *Pipeline) approximateNowMs() float64 {
	return math.Float64frombits(p.lastStreamMs.Load())
}

func (p *Pipeline) pushEpochHint() {
	anchor, ok := p.sync.AnchorMs()
	if !ok {
		return
	}
	ft := p.sync.Snapshot()
	p.tick.SetEpochHint(tickdet.EpochHint{EpochMs: anchor, Confidence: ft.Confidence, Valid: true})
}

// The SetXParams methods below let the control plane push a freshly
// validated parameter set into the owning component from whatever
// goroutine is serving the command connection. Each target component
// swaps its Params pointer rather than mutating fields in place, so
// these are safe to call while the pipeline is running.

func (p *Pipeline) SetTickParams(tp tickdet.Params)     { p.tick.SetParams(tp) }
func (p *Pipeline) SetMarkerParams(mp markerdet.Params) { p.marker.SetParams(mp) }
func (p *Pipeline) SetSyncParams(sp epochsync.Params)   { p.sync.SetParams(sp) }
func (p *Pipeline) SetBCDParams(bp bcd.Params)          { p.corr.SetParams(bp) }

// TickParams, MarkerParams, SyncParams and BCDParams report each
// component's currently configured values, so a restart-after-reload
// or a GET_* query reflects live state rather than stale config.
func (p *Pipeline) TickParams() tickdet.Params     { return p.tick.CurrentParams() }
func (p *Pipeline) MarkerParams() markerdet.Params { return p.marker.CurrentParams() }
func (p *Pipeline) SyncParams() epochsync.Params   { return p.sync.CurrentParams() }
func (p *Pipeline) BCDParams() bcd.Params          { return p.corr.CurrentParams() }

// Stats reports the free-running counters and sync-state snapshot. It is
// returned to the caller only; STATUS does not report it and it is not
// published on any telemetry channel.
type Stats struct {
	FramesRead              uint64
	Discontinuities         uint64
	Overloads               uint64
	TickFalseRejections     int
	RejectedMarkerPosition  int
	TelemetryDropped        uint64
	Sync                    events.FrameTime
}

func (p *Pipeline) Stats() Stats {
	srcStats := p.source.Stats()
	return Stats{
		FramesRead:             srcStats.FramesRead,
		Discontinuities:        srcStats.Discontinuities,
		Overloads:              srcStats.Overloads,
		TickFalseRejections:    p.tick.FalseRejections(),
		RejectedMarkerPosition: p.corr.RejectedMarkerPosition(),
		TelemetryDropped:       p.bus.Dropped(),
		Sync:                   p.sync.Snapshot(),
	}
}
