package temporal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHilbertRecoversAMEnvelope(t *testing.T) {
	const rate = 5800
	n := 2900
	signal := make([]float64, n)
	want := make([]float64, n)
	for i := range signal {
		ts := float64(i) / rate
		want[i] = 1 + 0.5*math.Sin(2*math.Pi*20*ts)
		signal[i] = want[i] * math.Sin(2*math.Pi*1500*ts)
	}

	env := NewEnvelope().ComputeHilbert(signal)
	require.Len(t, env, n)

	for i := 200; i < n-200; i += 37 {
		assert.InDelta(t, want[i], env[i], 0.02, "sample %d", i)
	}
}

func TestAnalyticSignalRealPartIsInput(t *testing.T) {
	for _, n := range []int{7, 8} {
		signal := make([]float64, n)
		for i := range signal {
			signal[i] = float64(i%3) - 1
		}
		z := NewEnvelope().AnalyticSignal(signal)
		for i := range signal {
			assert.InDelta(t, signal[i], real(z[i]), 1e-9)
		}
	}
}
