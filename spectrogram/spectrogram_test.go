package spectrogram

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reefpulse/LagoPObs/algorithms/spectral"
	"github.com/reefpulse/LagoPObs/preprocess"
)

func testBatch(length int) preprocess.BatchContext {
	return preprocess.BatchContext{SampleRate: 5800, Length: length, FMin: 950, FMax: 2800}
}

func amTone(carrier, mod float64, batch preprocess.BatchContext, active int) preprocess.Signal {
	samples := make([]float64, batch.Length)
	for i := 0; i < active; i++ {
		ts := float64(i) / float64(batch.SampleRate)
		samples[i] = (1 + 0.8*math.Sin(2*math.Pi*mod*ts)) * math.Sin(2*math.Pi*carrier*ts)
	}
	return preprocess.Signal{Samples: samples, SampleRate: batch.SampleRate, OriginalLength: active}
}

func TestHopSize(t *testing.T) {
	assert.Equal(t, 70, HopSize(281, 75))
	assert.Equal(t, 71, HopSize(706, 90))
	assert.Equal(t, 1, HopSize(10, 99))
}

func TestGeometryDependsOnlyOnParameters(t *testing.T) {
	s := NewSynthesizer(nil)
	batch := testBatch(5800)

	geom, err := s.Geometry(batch)
	require.NoError(t, err)

	assert.Equal(t, spectral.FrameCount(5800, 281, 70), geom.Width)
	assert.Equal(t, 135-47+1, geom.CarrierRows)
	assert.Equal(t, 226, geom.EnvRows)
	assert.Equal(t, geom.CarrierRows+geom.EnvRows, geom.Height())
}

func TestGeometryRejectsEmptyBand(t *testing.T) {
	s := NewSynthesizer(&Config{WinFFT: 2, OvlpFFT: 50, WinEnv: 8, OvlpEnv: 50})
	_, err := s.Geometry(preprocess.BatchContext{SampleRate: 5800, Length: 100, FMin: 950, FMax: 1000})
	assert.Error(t, err)
}

func TestRunFixedSizeAndDeterministic(t *testing.T) {
	batch := testBatch(5800)
	signals := []preprocess.Signal{
		amTone(1500, 30, batch, 5800),
		amTone(2200, 12, batch, 2000),
		amTone(1500, 30, batch, 5800),
	}

	s := NewSynthesizer(nil)
	images, err := s.Run(context.Background(), signals, batch)
	require.NoError(t, err)
	require.Len(t, images, 3)

	for _, img := range images {
		assert.Equal(t, images[0].Width, img.Width)
		assert.Equal(t, images[0].Height, img.Height)
		for _, v := range img.Pix {
			require.GreaterOrEqual(t, v, 0.0)
			require.LessOrEqual(t, v, 1.0)
		}
	}
	assert.Equal(t, images[0].Pix, images[2].Pix)

	again, err := s.Synthesize(signals[1], batch)
	require.NoError(t, err)
	assert.Equal(t, images[1].Pix, again.Pix)
}

func TestCarrierToneLandsOnExpectedRow(t *testing.T) {
	batch := testBatch(5800)
	s := NewSynthesizer(nil)
	geom, err := s.Geometry(batch)
	require.NoError(t, err)

	img, err := s.Synthesize(amTone(2000, 0, batch, 5800), batch)
	require.NoError(t, err)

	col := geom.Width / 2
	best := 0
	for y := 0; y < geom.CarrierRows; y++ {
		if img.At(col, y) > img.At(col, best) {
			best = y
		}
	}

	bin := geom.carrierLo + geom.CarrierRows - 1 - best
	assert.InDelta(t, 2000, spectral.BinFrequency(bin, 281, 5800), 5800.0/281)
}

func TestSilentSignalGivesBlankImage(t *testing.T) {
	batch := testBatch(1000)
	img, err := NewSynthesizer(nil).Synthesize(preprocess.Signal{Samples: make([]float64, 1000), SampleRate: 5800}, batch)
	require.NoError(t, err)
	assert.True(t, img.IsBlank())
}

func TestShortBatchIsOneFrame(t *testing.T) {
	batch := testBatch(100)
	img, err := NewSynthesizer(nil).Synthesize(amTone(1500, 20, batch, 100), batch)
	require.NoError(t, err)
	assert.Equal(t, 1, img.Width)
}

func TestSynthesizeRejectsWrongLength(t *testing.T) {
	batch := testBatch(1000)
	_, err := NewSynthesizer(nil).Synthesize(preprocess.Signal{Samples: make([]float64, 10)}, batch)
	assert.Error(t, err)
}

func TestToGray(t *testing.T) {
	img := NewImage(2, 1, 1)
	img.Set(1, 0, 1)

	g := img.ToGray()
	assert.Equal(t, uint8(0), g.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), g.GrayAt(1, 0).Y)
	assert.Equal(t, [][]float64{{0, 1}}, img.Rows())
}
