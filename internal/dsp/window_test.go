package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHannWindowEndpointsAndPeak(t *testing.T) {
	w := HannWindow(256)
	assert.InDelta(t, 0.0, w[0], 1e-9)
	assert.InDelta(t, 0.0, w[len(w)-1], 1e-9)
	assert.InDelta(t, 1.0, w[128], 0.01, "Hann window should peak near the centre")
}

func TestBlackmanHarrisWindowEndpoints(t *testing.T) {
	w := BlackmanHarrisWindow(256)
	assert.Less(t, w[0], 0.01)
	for _, v := range w {
		assert.GreaterOrEqual(t, v, -1e-9)
	}
}

func TestParabolicPeakSymmetricIsZero(t *testing.T) {
	offset := ParabolicPeak(1.0, 2.0, 1.0)
	assert.InDelta(t, 0.0, offset, 1e-9)
}

func TestParabolicPeakBiasedTowardLargerNeighbor(t *testing.T) {
	offset := ParabolicPeak(0.5, 1.0, 0.9)
	assert.Greater(t, offset, 0.0, "a larger right neighbour should bias the peak to the right")
}

func TestParabolicPeakDegenerateDenominator(t *testing.T) {
	assert.Equal(t, 0.0, ParabolicPeak(1.0, 1.0, 1.0))
}
