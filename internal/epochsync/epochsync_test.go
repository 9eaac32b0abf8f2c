package epochsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hfwwv/wwvsync/internal/events"
)

func TestNewStartsAcquiring(t *testing.T) {
	d := New(DefaultParams())
	assert.Equal(t, events.StateAcquiring, d.Snapshot().State)
}

func TestOnMarkerFirstCallSetsAnchorAndTransitionsToTentative(t *testing.T) {
	d := New(DefaultParams())
	d.OnMarker(10, 800)

	anchor, valid := d.AnchorMs()
	require.True(t, valid)
	assert.InDelta(t, 0.0, anchor, 1e-9)
	assert.Equal(t, events.StateTentative, d.Snapshot().State)
}

func TestOnMarkerSmoothsSubsequentAnchors(t *testing.T) {
	d := New(DefaultParams())
	d.OnMarker(10, 800) // anchor = 0
	d.OnMarker(1000+30, 800) // second marker 20ms later than predicted

	anchor, _ := d.AnchorMs()
	// anchorSmoothingAlpha = 0.1, secondBoundary = 1020: new anchor moves
	// 10% of the way from 0 toward 1020.
	assert.InDelta(t, 102.0, anchor, 1e-6)
}

func TestCheckPromotionRequiresLockedThreshold(t *testing.T) {
	d := New(DefaultParams())
	d.state = events.StateTentative
	d.confidence = d.params.LockedThreshold - 0.01
	d.checkPromotion(0)
	assert.Equal(t, events.StateTentative, d.Snapshot().State)

	d.confidence = d.params.LockedThreshold
	d.checkPromotion(0)
	assert.Equal(t, events.StateLocked, d.Snapshot().State)
}

func TestOnTickDuplicateWithin100msIsIgnored(t *testing.T) {
	d := New(DefaultParams())
	d.OnTick(1000)
	before := d.confidence
	d.OnTick(1050) // 50ms later: treated as a duplicate, ignored entirely
	assert.Equal(t, before, d.confidence)
}

func TestOnTickHoleBootstrapsAcquiringToTentative(t *testing.T) {
	d := New(DefaultParams())
	d.OnTick(0)
	d.OnTick(2000) // 2000ms gap falls inside the tick-hole window
	assert.Equal(t, events.StateAcquiring, d.Snapshot().State, "one tick-hole interval alone should not yet promote")
	d.OnTick(4000)
	assert.Equal(t, events.StateTentative, d.Snapshot().State, "a second consecutive tick-hole interval should bootstrap to TENTATIVE")
}

func TestSetSpecialMinuteHalvesWeight(t *testing.T) {
	d := New(DefaultParams())
	d.SetSpecialMinute(true)
	d.OnTick(0)
	assert.InDelta(t, DefaultWeights().Tick*0.5, d.confidence, 1e-9)
}

func TestPeriodicLockedDecaysConfidence(t *testing.T) {
	d := New(DefaultParams())
	d.state = events.StateLocked
	d.confidence = 0.9
	d.lastEvidenceMs = 0
	d.Periodic(10)
	assert.Less(t, d.confidence, 0.9)
}

func TestPeriodicLockedDropsToRecoveringAfterSignalLoss(t *testing.T) {
	d := New(DefaultParams())
	d.state = events.StateLocked
	d.confidence = 0.9
	d.lastEvidenceMs = 0
	for i := 0; i < signalWeakLimit; i++ {
		d.Periodic(2000)
	}
	assert.Equal(t, events.StateRecovering, d.Snapshot().State)
}

func TestPeriodicRecoveringTimesOutToAcquiringWithoutPartialEvidence(t *testing.T) {
	d := New(DefaultParams())
	d.haveAnchor = true
	d.state = events.StateRecovering
	d.recoveringSince = 0
	d.confidence = 0.5
	d.lastEvidenceMs = 0
	d.Periodic(recoveringTimeoutMs + 1)
	assert.Equal(t, events.StateAcquiring, d.Snapshot().State)
	_, valid := d.AnchorMs()
	assert.False(t, valid, "a full recovery timeout should drop the anchor")
}

func TestPeriodicRecoveringDowngradesToTentativeWithPartialEvidence(t *testing.T) {
	d := New(DefaultParams())
	d.haveAnchor = true
	d.state = events.StateRecovering
	d.recoveringSince = 0
	d.confidence = 0.5
	d.lastEvidenceMs = 0
	d.recoveryTickOK = true
	d.Periodic(recoveringTimeoutMs + 1)
	assert.Equal(t, events.StateTentative, d.Snapshot().State)
	_, valid := d.AnchorMs()
	assert.True(t, valid, "a partial recovery should retain the anchor")
}

func TestRollSecondAdvancesAcrossBoundary(t *testing.T) {
	d := New(DefaultParams())
	d.OnMarker(10, 800) // establishes anchor at ms 0, second 0
	d.rollSecond(2500)
	assert.Equal(t, 2, d.currentSecond)
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	d := New(DefaultParams())
	d.OnMarker(10, 800)
	snap := d.Snapshot()
	d.confidence = 0.99
	assert.NotEqual(t, d.confidence, snap.Confidence)
}

func TestCurrentParamsReflectsSetParams(t *testing.T) {
	d := New(DefaultParams())
	p := DefaultParams()
	p.LockedThreshold = 0.9
	d.SetParams(p)
	assert.Equal(t, 0.9, d.CurrentParams().LockedThreshold)
}

func TestHistoryRecordsTransitionsInOrder(t *testing.T) {
	d := New(DefaultParams())
	d.OnMarker(10, 800) // Acquiring -> Tentative
	d.confidence = d.params.LockedThreshold
	d.checkPromotion(2000) // Tentative -> Locked

	hist := d.History()
	require.Len(t, hist, 2)
	assert.Equal(t, events.StateAcquiring, hist[0].From)
	assert.Equal(t, events.StateTentative, hist[0].To)
	assert.Equal(t, events.StateTentative, hist[1].From)
	assert.Equal(t, events.StateLocked, hist[1].To)
}
