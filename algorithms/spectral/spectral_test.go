package spectral

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reefpulse/LagoPObs/algorithms/windowing"
)

func TestBandBins(t *testing.T) {
	tests := []struct {
		name           string
		fLow, fHigh    float64
		win, rate      int
		wantLo, wantHi int
	}{
		{"analysis band", 950, 2800, 281, 5800, 47, 135},
		{"envelope band from dc", 0, 1850, 706, 5800, 0, 225},
		{"clamped at nyquist", 0, 10000, 64, 5800, 0, 32},
		{"empty band", 1000, 1001, 8, 5800, 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := BandBins(tt.fLow, tt.fHigh, tt.win, tt.rate)
			assert.Equal(t, tt.wantLo, lo)
			assert.Equal(t, tt.wantHi, hi)
		})
	}
}

func TestFrameCount(t *testing.T) {
	assert.Equal(t, 1, FrameCount(100, 281, 70))
	assert.Equal(t, 1, FrameCount(281, 281, 70))
	assert.Equal(t, 3, FrameCount(421, 281, 70))
}

func TestSTFTPeakAtToneBin(t *testing.T) {
	const (
		rate = 5800
		win  = 256
		hop  = 64
	)
	freq := BinFrequency(40, win, rate)
	signal := make([]float64, rate)
	for i := range signal {
		signal[i] = math.Sin(2 * math.Pi * freq * float64(i) / rate)
	}

	res, err := NewSTFT().ComputeWithWindow(signal, win, hop, rate, windowing.NewHann(win, false))
	require.NoError(t, err)
	require.Equal(t, FrameCount(len(signal), win, hop), res.TimeFrames)

	for _, frame := range res.Magnitude {
		best := 0
		for k := range frame {
			if frame[k] > frame[best] {
				best = k
			}
		}
		assert.Equal(t, 40, best)
	}
}

func TestSTFTShortSignalIsOneFrame(t *testing.T) {
	res, err := NewSTFT().ComputeWithWindow([]float64{1, 2, 3}, 16, 4, 5800, windowing.NewHann(16, false))
	require.NoError(t, err)
	assert.Equal(t, 1, res.TimeFrames)
	assert.Len(t, res.Magnitude[0], 9)
}

func TestSTFTRejectsBadArguments(t *testing.T) {
	s := NewSTFT()
	_, err := s.ComputeWithWindow(nil, 16, 4, 5800, nil)
	assert.Error(t, err)
	_, err = s.ComputeWithWindow([]float64{1}, 0, 4, 5800, nil)
	assert.Error(t, err)
	_, err = s.ComputeWithWindow([]float64{1}, 16, 0, 5800, nil)
	assert.Error(t, err)
}

func TestBand(t *testing.T) {
	r := &STFTResult{Magnitude: [][]float64{{0, 1, 2, 3}}, TimeFrames: 1}
	assert.Equal(t, [][]float64{{1, 2}}, r.Band(1, 2))
	assert.Equal(t, [][]float64{{}}, r.Band(2, 1))
}
