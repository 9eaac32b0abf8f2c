package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecimatorKeepsEveryNth(t *testing.T) {
	d := NewDecimator(4)
	var kept []bool
	for i := 0; i < 12; i++ {
		kept = append(kept, d.Keep())
	}
	assert.Equal(t, []bool{
		true, false, false, false,
		true, false, false, false,
		true, false, false, false,
	}, kept)
}

func TestDecimatorResetRestartsPhase(t *testing.T) {
	d := NewDecimator(3)
	d.Keep()
	d.Keep()
	d.Reset()
	assert.True(t, d.Keep(), "first Keep after Reset should always report true")
}

func TestDecimationChainProducesAtExpectedRatio(t *testing.T) {
	c := NewDecimationChain(5000, SourceRateHz, DetectorDecimationRatio)
	produced := 0
	for i := 0; i < DetectorDecimationRatio*10; i++ {
		if _, ok := c.Process(complex(1, 0)); ok {
			produced++
		}
	}
	assert.Equal(t, 10, produced)
}

func TestDecimationChainResetClearsFilterAndPhase(t *testing.T) {
	c := NewDecimationChain(5000, SourceRateHz, 10)
	for i := 0; i < 5; i++ {
		c.Process(complex(1, 0))
	}
	c.Reset()
	_, ok := c.Process(complex(1, 0))
	assert.True(t, ok, "decimation phase should restart at 0 after Reset")
}

func TestDetectorAndDisplayChainRates(t *testing.T) {
	assert.InDelta(t, 50000.0, DetectorRateHz, 0.01)
	assert.InDelta(t, 11976.0, DisplayRateHz, 1.0)
}
