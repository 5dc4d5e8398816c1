package preprocess

import (
	"fmt"
	"math"

	"github.com/reefpulse/LagoPObs/algorithms/common"
	"github.com/reefpulse/LagoPObs/audio"
)

// NyquistMargin is added to the upper band edge before doubling to get the common rate
const NyquistMargin = 100.0

// BatchContext carries the values every stage needs that depend on the whole batch.
// It is computed once before any per-recording work and never modified.
type BatchContext struct {
	SampleRate int     `json:"sample_rate"` // common rate, 2 x (fmax + 100)
	Length     int     `json:"length"`      // common padded length in samples
	FMin       float64 `json:"fmin"`
	FMax       float64 `json:"fmax"`
	Size       int     `json:"size"` // number of recordings
}

// TargetRate returns the common sampling rate for an upper band edge
func TargetRate(fmax float64) int {
	return int(math.Round(2 * (fmax + NyquistMargin)))
}

// NewBatchContext validates the band and derives the common rate and length from recs
func NewBatchContext(recs []*audio.Recording, fmin, fmax float64) (BatchContext, error) {
	if len(recs) == 0 {
		return BatchContext{}, audio.ErrNoRecordings
	}
	if fmin <= 0 {
		return BatchContext{}, fmt.Errorf("lowest frequency must be positive, got %g Hz", fmin)
	}
	if fmin >= fmax {
		return BatchContext{}, fmt.Errorf("lowest frequency %g Hz must be below highest frequency %g Hz", fmin, fmax)
	}

	rate := TargetRate(fmax)
	length := 0
	for i, rec := range recs {
		if rec == nil {
			return BatchContext{}, fmt.Errorf("recording %d is nil", i)
		}
		if rec.SampleRate <= 0 {
			return BatchContext{}, fmt.Errorf("%s: invalid sample rate %d", rec.Filename, rec.SampleRate)
		}
		length = max(length, common.ResampledLength(len(rec.Samples), rec.SampleRate, rate))
	}
	if length == 0 {
		return BatchContext{}, audio.ErrNoRecordings
	}

	return BatchContext{
		SampleRate: rate,
		Length:     length,
		FMin:       fmin,
		FMax:       fmax,
		Size:       len(recs),
	}, nil
}

// Duration returns the common signal duration in seconds
func (b BatchContext) Duration() float64 {
	if b.SampleRate == 0 {
		return 0
	}
	return float64(b.Length) / float64(b.SampleRate)
}
