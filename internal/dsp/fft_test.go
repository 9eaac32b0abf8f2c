package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func toneFrame(size int, freqHz, sampleRateHz float64) []complex128 {
	out := make([]complex128, size)
	for i := range out {
		phase := 2 * math.Pi * freqHz * float64(i) / sampleRateHz
		out[i] = complex(math.Cos(phase), math.Sin(phase))
	}
	return out
}

func TestComplexFFTConcentratesToneEnergy(t *testing.T) {
	const size = 256
	const rate = 50000.0
	fft := NewComplexFFT(size)
	frame := toneFrame(size, 1000, rate)

	onTarget := BucketEnergy(fft.Transform(frame), rate, 1000, 100)
	offTarget := BucketEnergy(fft.Transform(frame), rate, 5000, 100)
	assert.Greater(t, onTarget, offTarget*10)
}

func TestBucketEnergyWrapsNegativeFrequencyBins(t *testing.T) {
	coeffs := make([]complex128, 8)
	coeffs[7] = complex(3, 4) // bin -1 aliased to index n-1
	energy := BucketEnergy(coeffs, 8000, -1000, 10)
	assert.InDelta(t, 25.0, energy, 1e-9)
}

func TestPercentileOfUniformRange(t *testing.T) {
	data := make([]float64, 101)
	for i := range data {
		data[i] = float64(i)
	}
	assert.InDelta(t, 50.0, Percentile(data, 50), 1.0)
	assert.Equal(t, 0.0, Percentile(nil, 50))
}

func TestMean(t *testing.T) {
	assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-9)
	assert.Equal(t, 0.0, Mean(nil))
}
