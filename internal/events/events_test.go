package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameFlagsHas(t *testing.T) {
	f := FlagDiscontinuity | FlagOverload
	assert.True(t, f.Has(FlagDiscontinuity))
	assert.True(t, f.Has(FlagOverload))
	assert.False(t, f.Has(FlagMetadataChanged))
}

func TestDetectorKindString(t *testing.T) {
	assert.Equal(t, "tick", KindTick.String())
	assert.Equal(t, "marker", KindMarker.String())
	assert.Equal(t, "bcd-pulse", KindBCDPulse.String())
	assert.Equal(t, "unknown", DetectorKind(99).String())
}

func TestSyncStateString(t *testing.T) {
	assert.Equal(t, "ACQUIRING", StateAcquiring.String())
	assert.Equal(t, "TENTATIVE", StateTentative.String())
	assert.Equal(t, "LOCKED", StateLocked.String())
	assert.Equal(t, "RECOVERING", StateRecovering.String())
	assert.Equal(t, "UNKNOWN", SyncState(99).String())
}

func TestSymbolString(t *testing.T) {
	assert.Equal(t, "None", SymbolNone.String())
	assert.Equal(t, "Zero", SymbolZero.String())
	assert.Equal(t, "One", SymbolOne.String())
	assert.Equal(t, "Marker", SymbolMarker.String())
	assert.Equal(t, "?", Symbol(99).String())
}

func TestFrameTimeString(t *testing.T) {
	ft := FrameTime{CurrentSecond: 5, SecondStartMs: 5000, Confidence: 0.75, State: StateLocked}
	s := ft.String()
	assert.Contains(t, s, "sec=5")
	assert.Contains(t, s, "LOCKED")
}
