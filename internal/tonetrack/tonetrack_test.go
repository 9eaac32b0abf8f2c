package tonetrack

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hfwwv/wwvsync/internal/dsp"
)

// realTone builds a real-valued (zero imaginary) sine burst: the tone
// trackers are fed real subcarrier/carrier tones, whose FFT is
// conjugate-symmetric, which is exactly what lets measure() average the
// upper- and lower-sideband peaks to cancel interpolation bias.
func realTone(n int, freqHz, sampleRateHz, amp float64) []complex128 {
	out := make([]complex128, n)
	for i := range out {
		phase := 2 * math.Pi * freqHz * float64(i) / sampleRateHz
		out[i] = complex(amp*math.Cos(phase), 0)
	}
	return out
}

func TestProcessSamplesProducesReadingOnBufferFill(t *testing.T) {
	tr := New(500, 0)
	samples := realTone(bufferSize-1, 500, dsp.DisplayRateHz, 1.0)

	_, produced := tr.ProcessSamples(samples)
	assert.False(t, produced, "fewer than a full buffer should not yet produce a reading")

	_, produced = tr.ProcessSamples([]complex128{0})
	assert.True(t, produced, "the sample completing the buffer should trigger a measurement")
}

func TestMeasureLocksOntoStrongTone(t *testing.T) {
	tr := New(500, 0)
	samples := realTone(bufferSize, 500, dsp.DisplayRateHz, 1.0)

	reading, produced := tr.ProcessSamples(samples)
	require.True(t, produced)
	assert.True(t, reading.Valid, "a strong isolated tone should clear the SNR threshold")
	assert.InDelta(t, 500.0, reading.MeasuredHz, 50.0)
	assert.InDelta(t, 0.0, reading.OffsetHz, 50.0)
}

func TestMeasureReferenceHzScalesOffsetPPM(t *testing.T) {
	tr := New(500, 1000000)
	samples := realTone(bufferSize, 500, dsp.DisplayRateHz, 1.0)

	reading, produced := tr.ProcessSamples(samples)
	require.True(t, produced)
	assert.InDelta(t, reading.OffsetHz/1000000*1e6, reading.OffsetPPM, 1e-6)
}

func TestResetClearsPartialFrame(t *testing.T) {
	tr := New(500, 0)
	tr.ProcessSamples(realTone(100, 500, dsp.DisplayRateHz, 1.0))
	tr.Reset()
	assert.Zero(t, tr.frameFill)
}

func TestFindPeakPicksStrongestBinNearCenter(t *testing.T) {
	mag := make([]float64, 64)
	mag[10] = 5.0
	mag[12] = 1.0
	bin, _ := findPeak(mag, 11)
	assert.Equal(t, 10, bin)
}

func TestSNRAtExcludesGuardBandFromNoiseEstimate(t *testing.T) {
	mag := make([]float64, 128)
	for i := range mag {
		mag[i] = 1.0
	}
	mag[50] = 100.0
	snr := snrAt(mag, 50)
	assert.Greater(t, snr, 0.0)
}

func TestSNRAtZeroPeakReturnsZero(t *testing.T) {
	mag := make([]float64, 64)
	assert.Equal(t, 0.0, snrAt(mag, 0))
}
