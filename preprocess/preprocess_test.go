package preprocess

import (
	"context"
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reefpulse/LagoPObs/algorithms/filters"
	"github.com/reefpulse/LagoPObs/audio"
	"github.com/reefpulse/LagoPObs/internal/errors"
)

func chirpRecording(name string, rate, n int, seed int64) *audio.Recording {
	rng := rand.New(rand.NewSource(seed))
	samples := make([]float64, n)
	for i := range samples {
		ts := float64(i) / float64(rate)
		samples[i] = math.Sin(2*math.Pi*(1200+800*ts)*ts) + 0.05*rng.NormFloat64()
	}
	return audio.NewRecording(name, samples, rate)
}

func testBatch() []*audio.Recording {
	return []*audio.Recording{
		chirpRecording("a_20230619_1.wav", 44100, 22050, 1),
		chirpRecording("b_20230619_2.wav", 22050, 17640, 2),
		chirpRecording("c_20230620_3.wav", 8000, 2400, 3),
	}
}

func TestTargetRate(t *testing.T) {
	assert.Equal(t, 5800, TargetRate(2800))
	assert.Equal(t, 2200, TargetRate(1000))
}

func TestNewBatchContext(t *testing.T) {
	batch, err := NewBatchContext(testBatch(), 950, 2800)
	require.NoError(t, err)

	assert.Equal(t, 5800, batch.SampleRate)
	assert.Equal(t, 4640, batch.Length) // 0.8 s at 5800 Hz
	assert.Equal(t, 3, batch.Size)
	assert.InDelta(t, 0.8, batch.Duration(), 1e-9)
}

func TestNewBatchContextRejects(t *testing.T) {
	tests := []struct {
		name       string
		recs       []*audio.Recording
		fmin, fmax float64
	}{
		{"inverted band", testBatch(), 2800, 950},
		{"equal band", testBatch(), 950, 950},
		{"zero fmin", testBatch(), 0, 2800},
		{"empty batch", nil, 950, 2800},
		{"bad rate", []*audio.Recording{audio.NewRecording("x.wav", []float64{1}, 0)}, 950, 2800},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBatchContext(tt.recs, tt.fmin, tt.fmax)
			assert.Error(t, err)
		})
	}
}

func TestNewBatchContextEmptyRecordings(t *testing.T) {
	recs := []*audio.Recording{
		audio.NewRecording("a.wav", nil, 16000),
		audio.NewRecording("b.wav", nil, 44100),
	}
	_, err := NewBatchContext(recs, 950, 2800)
	assert.ErrorIs(t, err, audio.ErrNoRecordings)

	// one non-empty recording is enough
	recs = append(recs, audio.NewRecording("c.wav", make([]float64, 1600), 16000))
	batch, err := NewBatchContext(recs, 950, 2800)
	require.NoError(t, err)
	assert.Positive(t, batch.Length)
}

func TestRunAlignsRateAndLength(t *testing.T) {
	for _, denoise := range []bool{false, true} {
		cfg := DefaultConfig()
		cfg.Denoise = denoise
		cfg.Workers = 2
		p := NewPreprocessor(cfg)

		recs := testBatch()
		signals, batch, err := p.Run(context.Background(), recs)
		require.NoError(t, err)
		require.Len(t, signals, len(recs))

		for i, s := range signals {
			assert.Equal(t, 2*(2800+100), s.SampleRate)
			assert.Len(t, s.Samples, batch.Length)
			wantLen := int(math.Ceil(float64(len(recs[i].Samples)) * 5800 / float64(recs[i].SampleRate)))
			assert.Equal(t, wantLen, s.OriginalLength)
			for _, v := range s.Samples[s.OriginalLength:] {
				assert.Zero(t, v)
			}
		}
	}
}

func TestPaddingPreservesFilteredPrefix(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Denoise = false
	p := NewPreprocessor(cfg)

	recs := testBatch()
	signals, batch, err := p.Run(context.Background(), recs)
	require.NoError(t, err)

	bp, err := filters.NewButterworthBandpass(batch.SampleRate, batch.FMin, batch.FMax, cfg.FilterOrder)
	require.NoError(t, err)

	for i, rec := range recs {
		want := p.condition(rec, batch, bp)
		assert.Equal(t, want, signals[i].Unpadded())
	}
}

func TestRunDoesNotMutateInputs(t *testing.T) {
	recs := testBatch()
	before := make([][]float64, len(recs))
	for i, r := range recs {
		before[i] = slices.Clone(r.Samples)
	}

	_, _, err := NewPreprocessor(nil).Run(context.Background(), recs)
	require.NoError(t, err)

	for i, r := range recs {
		assert.Equal(t, before[i], r.Samples)
	}
}

func TestRunInvertedBandIsValidationError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FMin, cfg.FMax = 2800, 950

	_, _, err := NewPreprocessor(cfg).Run(context.Background(), testBatch())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewPreprocessor(nil).Run(ctx, testBatch())
	assert.ErrorIs(t, err, context.Canceled)
}
