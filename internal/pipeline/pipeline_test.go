package pipeline

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hfwwv/wwvsync/internal/bcd"
	"github.com/hfwwv/wwvsync/internal/epochsync"
	"github.com/hfwwv/wwvsync/internal/iqsource"
	"github.com/hfwwv/wwvsync/internal/markerdet"
	"github.com/hfwwv/wwvsync/internal/telemetry"
	"github.com/hfwwv/wwvsync/internal/tickdet"
)

// These mirror the on-wire layout of internal/iqsource's stream and
// data-frame headers closely enough to build a minimal fixture stream
// (iqsource's data-frame header type is unexported).
const (
	testMagicStream    = 0x50485849
	testMagicDataFrame = 0x49514451
)

type testStreamHeader struct {
	Magic         uint32
	Version       uint32
	SampleRateHz  uint32
	SampleFormat  uint32
	CenterFreqHz  uint64
	GainReduction uint32
	LNAState      uint32
}

type testDataFrameHeader struct {
	Magic      uint32
	Sequence   uint32
	NumSamples uint32
	Flags      uint32
}

func fixtureSource(t *testing.T, numSamples int) *iqsource.Source {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, testStreamHeader{
		Magic:        testMagicStream,
		SampleRateHz: 2000000,
		SampleFormat: 1,
	}))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, testDataFrameHeader{
		Magic:      testMagicDataFrame,
		Sequence:   1,
		NumSamples: uint32(numSamples),
	}))
	samples := make([]int16, 2*numSamples)
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, samples))

	src := iqsource.New(&buf)
	require.NoError(t, src.Open())
	return src
}

func newTestPipeline(t *testing.T, numSamples int) *Pipeline {
	t.Helper()
	src := fixtureSource(t, numSamples)
	bus := telemetry.NewBus(16)
	t.Cleanup(bus.Close)
	return New(src, bus, []float64{0, 500, 600}, 0, false, nil)
}

func TestSetAndGetParamsRoundTrip(t *testing.T) {
	p := newTestPipeline(t, 8)

	tp := tickdet.DefaultParams()
	tp.ThresholdMult = 9.0
	p.SetTickParams(tp)
	assert.Equal(t, 9.0, p.TickParams().ThresholdMult)

	mp := markerdet.DefaultParams()
	mp.ThresholdMult = 8.0
	p.SetMarkerParams(mp)
	assert.Equal(t, 8.0, p.MarkerParams().ThresholdMult)

	sp := epochsync.DefaultParams()
	sp.LockedThreshold = 0.8
	p.SetSyncParams(sp)
	assert.Equal(t, 0.8, p.SyncParams().LockedThreshold)

	bp := bcd.DefaultParams()
	bp.MinPositionMarkers = 7
	p.SetBCDParams(bp)
	assert.Equal(t, 7, p.BCDParams().MinPositionMarkers)
}

func TestStatsReflectsSourceCounters(t *testing.T) {
	p := newTestPipeline(t, 8)
	frame, err := p.source.Pull(4096)
	require.NoError(t, err)
	require.Len(t, frame.Samples, 8)

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.FramesRead)
}

func TestRunStopsCleanlyOnStop(t *testing.T) {
	p := newTestPipeline(t, 8)

	done := make(chan struct{})
	go func() {
		p.Run()
		close(done)
	}()

	// Give Task A time to drain the fixture frame and hit EOF, after
	// which it returns on its own; Task D only exits once Stop closes
	// stopChan.
	time.Sleep(20 * time.Millisecond)
	p.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestPushEpochHintNoopWithoutAnchor(t *testing.T) {
	p := newTestPipeline(t, 8)
	p.pushEpochHint() // no anchor yet: must not panic
}

func TestApproximateNowMsStartsAtZero(t *testing.T) {
	p := newTestPipeline(t, 8)
	assert.Equal(t, 0.0, p.approximateNowMs())
}

func TestPublishSlowConfirmationDeliversToFusion(t *testing.T) {
	p := newTestPipeline(t, 8)
	p.publishSlowConfirmation(0.42)

	select {
	case got := <-p.slowConfirmEvents:
		assert.Equal(t, 0.42, got)
	case <-time.After(time.Second):
		t.Fatal("slow confirmation never reached the fusion channel")
	}
}
