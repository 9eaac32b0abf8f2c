// Package bcd implements C8, the BCD correlator & decoder: window-based
// symbol classification against the sync detector's second boundaries,
// 60-slot frame assembly, and NIST BCD field extraction.
package bcd

import (
	"math"

	"github.com/hfwwv/wwvsync/internal/bcddet"
	"github.com/hfwwv/wwvsync/internal/events"
)

// slowConfirmationWeight caps how much the independent 12 kHz-chain slow
// marker confirmation (internal/markerdet.SlowConfirmer) can add to a
// marker symbol's confidence: a second, slower-cadence line of evidence
// for the same 800ms pulse, not a vote that can outweigh the primary
// detector path.
const slowConfirmationWeight = 0.10

// Source distinguishes which of the two parallel BCD-subcarrier paths a
// pulse observation came from.
type Source int

const (
	SourceTime Source = iota
	SourceFreq
)

// Params are the control-plane-tunable correlator settings.
type Params struct {
	PositionGateToleranceSeconds int // default 1
	MinPositionMarkers           int // default 4 of 7 position markers per minute
}

func DefaultParams() Params {
	return Params{PositionGateToleranceSeconds: 1, MinPositionMarkers: 4}
}

type pulseEvidence struct {
	startMs    float64
	durationMs float64
	energy     float64
	source     Source
}

var positionSeconds = [...]int{0, 9, 19, 29, 39, 49, 59}

func isPositionSecond(sec int) bool {
	for _, p := range positionSeconds {
		if p == sec {
			return true
		}
	}
	return false
}

func nearestPositionDistance(sec int) int {
	best := 60
	for _, p := range positionSeconds {
		d := sec - p
		if d < 0 {
			d = -d
		}
		if d < best {
			best = d
		}
	}
	return best
}

// Correlator is C8. Owned exclusively by Task D, alongside the sync
// detector it reads snapshots from.
type Correlator struct {
	params Params

	pending []pulseEvidence

	haveWindow    bool
	windowSecond  int
	windowStartMs float64

	frame                   [60]events.Symbol
	filled                  [60]bool
	positionMarkersAccepted int
	rejectedMarkerPosition  int

	slowConfirmation float64 // most recent SlowConfirmer reading, 0 if none yet
}

func New(p Params) *Correlator {
	return &Correlator{params: p}
}

func (c *Correlator) SetParams(p Params) { c.params = p }

// CurrentParams returns the correlator's active parameter set.
func (c *Correlator) CurrentParams() Params { return c.params }

// IngestTime records a pulse observation from the time-domain (`bcd_time`)
// path.
func (c *Correlator) IngestTime(ev bcddet.PulseEvent) {
	c.pending = append(c.pending, pulseEvidence{ev.StartMs, ev.DurationMs, ev.Energy, SourceTime})
}

// IngestFreq records a pulse observation from the frequency-domain
// (`bcd_freq`) path.
func (c *Correlator) IngestFreq(ev bcddet.PulseEvent) {
	c.pending = append(c.pending, pulseEvidence{ev.StartMs, ev.DurationMs, ev.Energy, SourceFreq})
}

// IngestSlowConfirmation records the latest reading from the independent
// slow marker confirmer running on the 12 kHz display chain. It carries
// no per-second timestamp of its own, so it is folded into whichever
// marker symbol closeWindow next classifies, as a secondary confidence
// boost rather than primary evidence.
func (c *Correlator) IngestSlowConfirmation(confirmation float64) {
	c.slowConfirmation = confirmation
}

// Advance is driven by Task D's periodic check against the sync detector's
// latest snapshot. Whenever the snapshot reports a new current_second, the
// just-completed second's window is closed, classified, and (if a symbol
// resulted) returned. decoded is only populated at minute boundaries.
func (c *Correlator) Advance(ft events.FrameTime) (sym events.SymbolEvent, symOK bool, decoded events.DecodedTime, decodedOK bool) {
	if !c.haveWindow {
		c.windowSecond = ft.CurrentSecond
		c.windowStartMs = ft.SecondStartMs
		c.haveWindow = true
		return
	}
	if ft.CurrentSecond == c.windowSecond {
		return
	}

	sym, symOK = c.closeWindow(c.windowSecond, c.windowStartMs, ft)

	closedSecond := c.windowSecond
	c.windowSecond = ft.CurrentSecond
	c.windowStartMs = ft.SecondStartMs

	if closedSecond == 59 && ft.CurrentSecond == 0 {
		decoded, decodedOK = c.tryExtract()
		c.resetFrame()
	}
	return
}

// closeWindow classifies the evidence accumulated for second sec, whose
// window was [windowStartMs, windowStartMs+1000), applies position gating,
// and records it into the frame buffer.
func (c *Correlator) closeWindow(sec int, windowStartMs float64, ft events.FrameTime) (events.SymbolEvent, bool) {
	windowEndMs := windowStartMs + 1000

	var best pulseEvidence
	haveBest := false
	var timeEv, freqEv pulseEvidence
	haveTime, haveFreq := false, false

	kept := c.pending[:0]
	for _, ev := range c.pending {
		if ev.startMs >= windowStartMs && ev.startMs < windowEndMs {
			switch ev.source {
			case SourceTime:
				if !haveTime || ev.energy > timeEv.energy {
					timeEv, haveTime = ev, true
				}
			case SourceFreq:
				if !haveFreq || ev.energy > freqEv.energy {
					freqEv, haveFreq = ev, true
				}
			}
			continue
		}
		if ev.startMs >= windowEndMs {
			kept = append(kept, ev)
		}
		// evidence older than the window is simply dropped: missed its chance.
	}
	c.pending = kept

	durationMs := 0.0
	switch {
	case haveTime && haveFreq:
		durationMs = (timeEv.durationMs + freqEv.durationMs) / 2.0
		best = timeEv
		haveBest = true
	case haveTime:
		durationMs = timeEv.durationMs
		best = timeEv
		haveBest = true
	case haveFreq:
		durationMs = freqEv.durationMs
		best = freqEv
		haveBest = true
	}

	symbol := classifyDuration(durationMs)

	gatedStates := ft.State == events.StateLocked || ft.State == events.StateTentative
	if symbol == events.SymbolMarker && gatedStates {
		if nearestPositionDistance(sec) > c.params.PositionGateToleranceSeconds {
			symbol = events.SymbolNone
			c.rejectedMarkerPosition++
		}
	}

	c.frame[sec] = symbol
	c.filled[sec] = true
	if symbol == events.SymbolMarker {
		c.positionMarkersAccepted++
	}

	confidence := ft.Confidence
	if !haveBest {
		confidence = 0
	}
	if symbol == events.SymbolMarker && c.slowConfirmation > 0 {
		confidence = math.Min(1.0, confidence+slowConfirmationWeight)
	}

	return events.SymbolEvent{
		Symbol:      symbol,
		FrameSecond: sec,
		DurationMs:  durationMs,
		Confidence:  confidence,
		SyncState:   ft.State,
	}, true
}

func classifyDuration(ms float64) events.Symbol {
	switch {
	case ms < 150:
		return events.SymbolNone
	case ms <= 350:
		return events.SymbolZero
	case ms <= 650:
		return events.SymbolOne
	case ms <= 950:
		return events.SymbolMarker
	default:
		return events.SymbolNone
	}
}

func (c *Correlator) resetFrame() {
	for i := range c.frame {
		c.frame[i] = events.SymbolNone
		c.filled[i] = false
	}
	c.positionMarkersAccepted = 0
}

// RejectedMarkerPosition reports the running count of Marker
// classifications downgraded to None by position gating.
func (c *Correlator) RejectedMarkerPosition() int { return c.rejectedMarkerPosition }

func (c *Correlator) bit(sec int) int {
	if c.frame[sec] == events.SymbolOne {
		return 1
	}
	return 0
}

// tryExtract assembles the BCD fields from a completed 60-slot frame,
// using the standard WWV field layout: minutes 1-8, hours 10-18,
// day-of-year 20-33, year 40-48, DUT1 34-38, flags 50-58.
func (c *Correlator) tryExtract() (events.DecodedTime, bool) {
	if c.positionMarkersAccepted < c.params.MinPositionMarkers {
		return events.DecodedTime{}, false
	}

	minutesUnits := c.bit(1) + 2*c.bit(2) + 4*c.bit(3) + 8*c.bit(4)
	minutesTens := c.bit(6) + 2*c.bit(7) + 4*c.bit(8)
	minutes := minutesTens*10 + minutesUnits

	hoursUnits := c.bit(10) + 2*c.bit(11) + 4*c.bit(12) + 8*c.bit(13)
	hoursTens := c.bit(15) + 2*c.bit(16)
	hours := hoursTens*10 + hoursUnits

	doyUnits := c.bit(20) + 2*c.bit(21) + 4*c.bit(22) + 8*c.bit(23)
	doyTens := c.bit(25) + 2*c.bit(26) + 4*c.bit(27) + 8*c.bit(28)
	doyHundreds := c.bit(30) + 2*c.bit(31)
	dayOfYear := doyHundreds*100 + doyTens*10 + doyUnits

	dut1Positive := c.bit(34) == 1
	dut1Negative := c.bit(35) == 1
	dut1Mag := float64(c.bit(36)+2*c.bit(37)+4*c.bit(38)) * 0.1
	dut1 := dut1Mag
	if dut1Negative && !dut1Positive {
		dut1 = -dut1Mag
	}

	yearUnits := c.bit(40) + 2*c.bit(41) + 4*c.bit(42) + 8*c.bit(43)
	yearTens := c.bit(45) + 2*c.bit(46) + 4*c.bit(47) + 8*c.bit(48)
	year2 := yearTens*10 + yearUnits
	year := 2000 + year2 // no century rollover handling; fine until 2100

	leapYear := c.bit(55) == 1
	leapSecondPending := c.bit(56) == 1
	dst := c.bit(57) == 1 || c.bit(58) == 1

	if minutes > 59 || hours > 23 || dayOfYear < 1 || dayOfYear > 366 || dut1Mag > 0.9 || year2 > 99 {
		return events.DecodedTime{}, false
	}

	return events.DecodedTime{
		Minutes:           minutes,
		Hours:             hours,
		DayOfYear:         dayOfYear,
		Year:              year,
		DUT1:              dut1,
		LeapYear:          leapYear,
		LeapSecondPending: leapSecondPending,
		DST:               dst,
	}, true
}
