// Package events defines the value types shared between pipeline stages.
//
// Every type here is a plain record, copied across goroutine boundaries on
// bounded channels. None of them are safe to mutate after being handed to a
// channel — the producer must treat the value as immutable once sent.
package events

import "fmt"

// SampleRate identifies which decimation-chain output a Frame carries.
type SampleRate int

const (
	RateDetector SampleRate = 50000 // Hz, C2 detector-path output
	RateDisplay  SampleRate = 11976 // Hz, C2 display-path output (2e6/167, truncated)
)

// FrameFlags are the boolean conditions a Frame can carry, bit-packed.
type FrameFlags uint8

const (
	FlagDiscontinuity FrameFlags = 1 << iota
	FlagOverload
	FlagMetadataChanged
)

func (f FrameFlags) Has(flag FrameFlags) bool { return f&flag != 0 }

// Frame is a sample-rate-stamped block of complex samples, consumed exactly
// once by whichever pipeline stage receives it.
type Frame struct {
	Samples    []complex128
	SampleIdx  uint64 // monotonic sample index since stream start
	Rate       SampleRate
	Flags      FrameFlags
	StreamMs   float64 // timestamp of Samples[0], ms since stream start
}

// DetectorKind enumerates the detector event kinds produced by C3-C5.
type DetectorKind int

const (
	KindTick DetectorKind = iota
	KindMarker
	KindBCDPulse
)

func (k DetectorKind) String() string {
	switch k {
	case KindTick:
		return "tick"
	case KindMarker:
		return "marker"
	case KindBCDPulse:
		return "bcd-pulse"
	default:
		return "unknown"
	}
}

// DetectorEvent is produced by C3/C4/C5 and consumed by C7/C8.
type DetectorEvent struct {
	Kind             DetectorKind
	TimestampMs      float64
	DurationMs       float64
	PeakEnergy       float64
	CorrelationScore float64 // only meaningful for KindTick with matched filter enabled
	HasCorrelation   bool
	IntervalMs       float64 // only meaningful for KindTick: latest inter-tick interval
	Flags            uint8
}

// SyncState is the finite set of states the epoch-acquisition state machine
// (C7) can occupy. Per-state data lives in epochsync, not here — this is
// just the tag.
type SyncState int

const (
	StateAcquiring SyncState = iota
	StateTentative
	StateLocked
	StateRecovering
)

func (s SyncState) String() string {
	switch s {
	case StateAcquiring:
		return "ACQUIRING"
	case StateTentative:
		return "TENTATIVE"
	case StateLocked:
		return "LOCKED"
	case StateRecovering:
		return "RECOVERING"
	default:
		return "UNKNOWN"
	}
}

// EvidenceMask bits, sticky within one second, cleared on second boundary.
type EvidenceMask uint8

const (
	EvidenceTick EvidenceMask = 1 << iota
	EvidenceMarker
	EvidencePMarker
	EvidenceTickHole
	EvidenceCombined
)

// FrameTime is C7's authoritative notion of "which millisecond of which
// second". Snapshots handed to C8 (and telemetry) are copies, never a
// pointer into the live state.
type FrameTime struct {
	CurrentSecond  int // 0..59
	SecondStartMs  float64
	Confidence     float64 // [0,1]
	EvidenceMask   EvidenceMask
	State          SyncState
}

func (ft FrameTime) String() string {
	return fmt.Sprintf("sec=%d start=%.1fms conf=%.3f state=%s", ft.CurrentSecond, ft.SecondStartMs, ft.Confidence, ft.State)
}

// Symbol is the classified BCD subcarrier pulse for one second.
type Symbol int

const (
	SymbolNone Symbol = iota
	SymbolZero
	SymbolOne
	SymbolMarker
)

func (s Symbol) String() string {
	switch s {
	case SymbolNone:
		return "None"
	case SymbolZero:
		return "Zero"
	case SymbolOne:
		return "One"
	case SymbolMarker:
		return "Marker"
	default:
		return "?"
	}
}

// SymbolEvent is produced by C8's integrator, one per second.
type SymbolEvent struct {
	Symbol       Symbol
	FrameSecond  int
	DurationMs   float64
	Confidence   float64
	SyncState    SyncState
}

// DecodedTime is produced by C8 once per complete, validated minute frame.
type DecodedTime struct {
	Minutes   int
	Hours     int
	DayOfYear int
	Year      int // full year, e.g. 2025
	DUT1      float64
	LeapYear  bool
	LeapSecondPending bool
	DST       bool
}

// ChannelQuality is a ~1/s telemetry snapshot of a channel's signal
// statistics.
type ChannelQuality struct {
	Channel    string
	TimestampMs float64
	NoiseFloor float64
	SNR        float64
	Peak       float64
}
