package common

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tone(freq float64, rate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(rate))
	}
	return out
}

func rms(x []float64) float64 {
	s := 0.0
	for _, v := range x {
		s += v * v
	}
	return math.Sqrt(s / float64(len(x)))
}

func TestResampledLength(t *testing.T) {
	tests := []struct {
		name        string
		n, from, to int
		want        int
	}{
		{"same rate", 1000, 8000, 8000, 1000},
		{"downsample exact", 44100, 44100, 5800, 5800},
		{"downsample rounds up", 1001, 2, 1, 501},
		{"upsample", 100, 4000, 5800, 145},
		{"empty", 0, 8000, 5800, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResampledLength(tt.n, tt.from, tt.to))
		})
	}
}

func TestResamplePreservesInBandTone(t *testing.T) {
	r := NewDefaultResampler()
	in := tone(1000, 44100, 44100)

	out := r.ResampleSignal(in, 44100, 5800)
	require.Len(t, out, 5800)

	// ignore kernel edges
	assert.InDelta(t, 1/math.Sqrt2, rms(out[200:len(out)-200]), 0.02)
}

func TestResampleRejectsAboveNyquist(t *testing.T) {
	r := NewDefaultResampler()
	in := tone(10000, 44100, 44100)

	out := r.ResampleSignal(in, 44100, 5800)
	assert.Less(t, rms(out[200:len(out)-200]), 0.02)
}

func TestResampleDoesNotModifyInput(t *testing.T) {
	r := NewDefaultResampler()
	in := tone(500, 8000, 800)
	orig := append([]float64(nil), in...)

	_ = r.ResampleSignal(in, 8000, 5800)
	assert.Equal(t, orig, in)
}

func TestInterpolateArray(t *testing.T) {
	interp := NewInterpolator()

	assert.Equal(t, []float64{0, 0.5, 1, 1.5, 2}, interp.InterpolateArray([]float64{0, 1, 2}, 5))
	assert.Equal(t, []float64{3}, interp.InterpolateArray([]float64{3, 4}, 1))
	assert.Empty(t, interp.InterpolateArray(nil, 4))
}

func TestInterpolateColumns(t *testing.T) {
	interp := NewInterpolator()
	frames := [][]float64{{0, 10}, {2, 20}}

	out := interp.InterpolateColumns(frames, 3)
	require.Len(t, out, 3)
	assert.Equal(t, []float64{1, 15}, out[1])
	assert.Equal(t, []float64{2, 20}, out[2])
}

func TestMathHelpers(t *testing.T) {
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
	assert.Equal(t, 3.0, Median([]float64{5, 1, 3}))
	assert.Equal(t, 0.0, Median(nil))
	assert.Equal(t, 16, NextMultiple(13, 8))
	assert.Equal(t, 16, NextMultiple(16, 8))
	assert.Equal(t, []float64{-1, 1}, SubtractMean([]float64{1, 3}))
	assert.Equal(t, 2, ClampInt(7, 0, 2))
}
