// Package iqsource implements C1, the I/Q source adapter: it consumes an
// external framed byte protocol, normalises interleaved int16 I/Q pairs
// to unit-scale complex128, and reports discontinuities. Frame headers
// are decoded with the same fixed-width binary.Read struct idiom used
// throughout this codebase for binary file and wire formats.
package iqsource

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hfwwv/wwvsync/internal/events"
)

const (
	magicStream    = 0x50485849
	magicDataFrame = 0x49514451
	magicMetadata  = 0x4D455441

	formatInt16Interleaved = 1

	flagOverload    = 1 << 0
	flagFreqChange  = 1 << 1
	flagGainChange  = 1 << 2
)

// Errors surfaced to the caller by Pull and Open. Both are fatal: the
// caller should stop pulling and tear the source down rather than retry.
var (
	ErrSourceClosed = errors.New("iqsource: source closed")
	ErrFormatError  = errors.New("iqsource: malformed frame")
)

// StreamHeader is the 32-byte stream-level header.
type StreamHeader struct {
	Magic         uint32
	Version       uint32
	SampleRateHz  uint32
	SampleFormat  uint32
	CenterFreqHz  uint64
	GainReduction uint32
	LNAState      uint32
}

type dataFrameHeader struct {
	Magic      uint32
	Sequence   uint32
	NumSamples uint32
	Flags      uint32
}

type metadataRecord struct {
	Magic         uint32
	SampleRateHz  uint32
	SampleFormat  uint32
	CenterFreqHz  uint64
	GainReduction uint32
	LNAState      uint32
}

// Stats tracks the adapter's running discontinuity/overload counters,
// reported on the CHAN telemetry channel.
type Stats struct {
	FramesRead       uint64
	Discontinuities  uint64
	Overloads        uint64
	LastSequence     uint32
	HaveLastSequence bool
}

// Source is C1's contract: pull(max_samples) -> (frame | EndOfStream |
// TransientError). One Source per physical or file-backed input.
type Source struct {
	r io.Reader

	header   StreamHeader
	haveHead bool

	sampleIdx uint64
	streamMs  float64

	stats Stats
}

// New wraps r, an io.Reader over the framed byte protocol (a TCP socket
// or a recorded file; this package never talks to a radio directly).
func New(r io.Reader) *Source {
	return &Source{r: r}
}

// Open reads and validates the 32-byte stream header. Must be called
// before the first Pull.
func (s *Source) Open() error {
	var h StreamHeader
	if err := binary.Read(s.r, binary.LittleEndian, &h); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: no stream header", ErrSourceClosed)
		}
		return fmt.Errorf("%w: stream header: %v", ErrFormatError, err)
	}
	if h.Magic != magicStream {
		return fmt.Errorf("%w: bad stream magic %#x", ErrFormatError, h.Magic)
	}
	if h.SampleFormat != formatInt16Interleaved {
		return fmt.Errorf("%w: unsupported sample format %d", ErrFormatError, h.SampleFormat)
	}
	s.header = h
	s.haveHead = true
	return nil
}

func (s *Source) Header() StreamHeader { return s.header }

// Pull reads the next data frame (or a metadata-update record, consumed
// transparently as a discontinuity signal) and returns up to maxSamples
// I/Q pairs, normalised to [-1, 1).
func (s *Source) Pull(maxSamples int) (events.Frame, error) {
	if !s.haveHead {
		return events.Frame{}, fmt.Errorf("iqsource: Pull before Open")
	}

	var magicBuf [4]byte
	if _, err := io.ReadFull(s.r, magicBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return events.Frame{}, ErrSourceClosed
		}
		return events.Frame{}, fmt.Errorf("%w: frame magic: %v", ErrFormatError, err)
	}
	magic := binary.LittleEndian.Uint32(magicBuf[:])
	// headerReader re-prepends the magic bytes already consumed so the
	// fixed-size header struct, Magic field included, reads in one shot.
	headerReader := io.MultiReader(bytes.NewReader(magicBuf[:]), s.r)

	switch magic {
	case magicMetadata:
		var rest metadataRecord
		if err := binary.Read(headerReader, binary.LittleEndian, &rest); err != nil {
			return events.Frame{}, fmt.Errorf("%w: metadata record: %v", ErrFormatError, err)
		}
		s.header.SampleRateHz = rest.SampleRateHz
		s.header.SampleFormat = rest.SampleFormat
		s.header.CenterFreqHz = rest.CenterFreqHz
		s.header.GainReduction = rest.GainReduction
		s.header.LNAState = rest.LNAState
		s.stats.Discontinuities++
		return events.Frame{Flags: events.FlagMetadataChanged, StreamMs: s.streamMs, SampleIdx: s.sampleIdx}, nil

	case magicDataFrame:
		var rest dataFrameHeader
		if err := binary.Read(headerReader, binary.LittleEndian, &rest); err != nil {
			return events.Frame{}, fmt.Errorf("%w: data frame header: %v", ErrFormatError, err)
		}
		return s.readDataFrame(rest, maxSamples)

	default:
		return events.Frame{}, fmt.Errorf("%w: unrecognised frame magic %#x", ErrFormatError, magic)
	}
}

func (s *Source) readDataFrame(h dataFrameHeader, maxSamples int) (events.Frame, error) {
	n := int(h.NumSamples)
	if n > maxSamples {
		n = maxSamples
	}

	var flags events.FrameFlags
	if h.Flags&flagOverload != 0 {
		flags |= events.FlagOverload
		s.stats.Overloads++
	}
	if h.Flags&(flagFreqChange|flagGainChange) != 0 {
		flags |= events.FlagMetadataChanged
		s.stats.Discontinuities++
	}
	if s.stats.HaveLastSequence && h.Sequence != s.stats.LastSequence+1 {
		flags |= events.FlagDiscontinuity
		s.stats.Discontinuities++
	}
	s.stats.LastSequence = h.Sequence
	s.stats.HaveLastSequence = true

	raw := make([]int16, 2*n)
	if err := binary.Read(s.r, binary.LittleEndian, raw); err != nil {
		return events.Frame{}, fmt.Errorf("%w: sample payload: %v", ErrFormatError, err)
	}
	// Discard any trailing samples beyond maxSamples the producer sent.
	if extra := int(h.NumSamples) - n; extra > 0 {
		skip := make([]int16, 2*extra)
		if err := binary.Read(s.r, binary.LittleEndian, skip); err != nil {
			return events.Frame{}, fmt.Errorf("%w: sample payload tail: %v", ErrFormatError, err)
		}
	}

	samples := make([]complex128, n)
	const scale = 1.0 / 32768.0
	for i := 0; i < n; i++ {
		samples[i] = complex(float64(raw[2*i])*scale, float64(raw[2*i+1])*scale)
	}

	frame := events.Frame{
		Samples:   samples,
		SampleIdx: s.sampleIdx,
		Rate:      events.SampleRate(s.header.SampleRateHz),
		Flags:     flags,
		StreamMs:  s.streamMs,
	}

	s.sampleIdx += uint64(n)
	if s.header.SampleRateHz > 0 {
		s.streamMs += float64(n) * 1000.0 / float64(s.header.SampleRateHz)
	}
	s.stats.FramesRead++

	return frame, nil
}

// Stats returns a copy of the adapter's running counters.
func (s *Source) Stats() Stats { return s.stats }
