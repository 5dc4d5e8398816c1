package filters

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(freq float64, rate, n int) []float64 {
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

func TestButterworthQ(t *testing.T) {
	assert.InDeltaSlice(t, []float64{1 / math.Sqrt2}, ButterworthQ(2), 1e-12)
	assert.InDeltaSlice(t, []float64{0.5411961, 1.3065630}, ButterworthQ(4), 1e-6)
}

func TestBiquadCutoffIsMinus3dB(t *testing.T) {
	lp := NewBiquad(Lowpass, 5800, 1000, 1/math.Sqrt2)
	mag, _ := lp.FrequencyResponse(1000)
	assert.InDelta(t, 1/math.Sqrt2, mag, 1e-9)

	hp := NewBiquad(Highpass, 5800, 1000, 1/math.Sqrt2)
	mag, _ = hp.FrequencyResponse(1000)
	assert.InDelta(t, 1/math.Sqrt2, mag, 1e-9)
}

func TestNewButterworthBandpassValidation(t *testing.T) {
	tests := []struct {
		name      string
		rate      int
		low, high float64
		order     int
	}{
		{"inverted band", 5800, 2800, 950, 4},
		{"zero low", 5800, 0, 2800, 4},
		{"above nyquist", 5800, 950, 3000, 4},
		{"odd order", 5800, 950, 2800, 3},
		{"zero rate", 0, 950, 2800, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewButterworthBandpass(tt.rate, tt.low, tt.high, tt.order)
			assert.Error(t, err)
		})
	}
}

func TestFiltFiltPassesBandAndRejectsOutside(t *testing.T) {
	const rate = 5800
	bp, err := NewButterworthBandpass(rate, 950, 2800, DefaultButterworthOrder)
	require.NoError(t, err)

	tests := []struct {
		name    string
		freq    float64
		wantRMS float64
		delta   float64
	}{
		{"in band", 1800, 1 / math.Sqrt2, 0.03},
		{"below band", 200, 0, 0.01},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := sine(tt.freq, rate, rate)
			out := bp.FiltFilt(in)
			require.Len(t, out, len(in))
			assert.InDelta(t, tt.wantRMS, rms(out[500:len(out)-500]), tt.delta)
		})
	}
}

func TestFiltFiltIsZeroPhase(t *testing.T) {
	const rate = 5800
	bp, err := NewButterworthBandpass(rate, 950, 2800, DefaultButterworthOrder)
	require.NoError(t, err)

	in := sine(1800, rate, rate)
	out := bp.FiltFilt(in)

	// an in-band tone comes out aligned with the input
	for i := 1000; i < 1100; i++ {
		assert.InDelta(t, in[i], out[i], 0.05)
	}
}

func TestFiltFiltShortInputs(t *testing.T) {
	bp, err := NewButterworthBandpass(5800, 950, 2800, DefaultButterworthOrder)
	require.NoError(t, err)

	assert.Empty(t, bp.FiltFilt(nil))
	assert.Len(t, bp.FiltFilt([]float64{1}), 1)
	assert.Len(t, bp.FiltFilt([]float64{1, 0, -1}), 3)
}

func TestWaveletPerfectReconstruction(t *testing.T) {
	w := NewWaveletDenoiser(4, SoftThreshold)
	rng := rand.New(rand.NewSource(7))
	x := make([]float64, 256)
	for i := range x {
		x[i] = rng.NormFloat64()
	}

	approx, details := w.Decompose(x, 4)
	require.Len(t, details, 4)
	assert.Len(t, approx, 16)

	assert.InDeltaSlice(t, x, w.Reconstruct(approx, details), 1e-9)
}

func TestWaveletDenoiseKeepsLengthAndReducesNoise(t *testing.T) {
	const rate = 5800
	clean := sine(40, rate, 3001)
	rng := rand.New(rand.NewSource(42))
	noisy := make([]float64, len(clean))
	for i := range clean {
		noisy[i] = clean[i] + 0.2*rng.NormFloat64()
	}

	out := NewWaveletDenoiser(5, SoftThreshold).Denoise(noisy)
	require.Len(t, out, len(noisy))

	errBefore := make([]float64, len(clean))
	errAfter := make([]float64, len(clean))
	for i := range clean {
		errBefore[i] = noisy[i] - clean[i]
		errAfter[i] = out[i] - clean[i]
	}
	assert.Less(t, rms(errAfter), rms(errBefore))
}

func TestWaveletDenoiseTooShort(t *testing.T) {
	in := []float64{1, 2, 3}
	out := NewWaveletDenoiser(5, HardThreshold).Denoise(in)
	assert.Equal(t, in, out)
}
