// Package preprocess aligns a batch of recordings: common sampling rate,
// zero-phase band-pass, optional wavelet denoising and trailing zero padding.
package preprocess

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/reefpulse/LagoPObs/algorithms/common"
	"github.com/reefpulse/LagoPObs/algorithms/filters"
	"github.com/reefpulse/LagoPObs/audio"
	"github.com/reefpulse/LagoPObs/internal/errors"
	"github.com/reefpulse/LagoPObs/logging"
)

// Signal is a preprocessed recording. Every Signal of a batch has the same
// SampleRate and len(Samples); OriginalLength is the length before padding.
type Signal struct {
	Samples        []float64
	SampleRate     int
	OriginalLength int
}

// Unpadded returns the samples before trailing zero padding
func (s Signal) Unpadded() []float64 {
	return s.Samples[:s.OriginalLength]
}

// Preprocessor runs the per-recording conditioning chain
type Preprocessor struct {
	config    *Config
	resampler *common.Resampler
	denoiser  *filters.WaveletDenoiser
	logger    logging.Logger
}

// NewPreprocessor creates a preprocessor; nil selects DefaultConfig
func NewPreprocessor(config *Config) *Preprocessor {
	if config == nil {
		config = DefaultConfig()
	}
	if config.FilterOrder <= 0 {
		config.FilterOrder = filters.DefaultButterworthOrder
	}

	return &Preprocessor{
		config:    config,
		resampler: common.NewDefaultResampler(),
		denoiser:  filters.NewWaveletDenoiser(config.WaveletLevels, filters.SoftThreshold),
		logger:    logging.WithFields(logging.Fields{"component": "preprocess"}),
	}
}

// Run computes the batch context and the aligned signals. recs is not modified
// and the output keeps its order.
func (p *Preprocessor) Run(ctx context.Context, recs []*audio.Recording) ([]Signal, BatchContext, error) {
	batch, err := NewBatchContext(recs, p.config.FMin, p.config.FMax)
	if err != nil {
		return nil, BatchContext{}, errors.New(err).
			Component("preprocess").
			Category(errors.CategoryValidation).
			Build()
	}

	bandpass, err := filters.NewButterworthBandpass(batch.SampleRate, batch.FMin, batch.FMax, p.config.FilterOrder)
	if err != nil {
		return nil, BatchContext{}, errors.New(err).
			Component("preprocess").
			Category(errors.CategoryValidation).
			Build()
	}

	p.logger.Info("Preprocessing batch", logging.Fields{
		"recordings":  len(recs),
		"sample_rate": batch.SampleRate,
		"length":      batch.Length,
		"denoise":     p.config.Denoise,
	})

	signals := make([]Signal, len(recs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())

	for i, rec := range recs {
		i, rec := i, rec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			filtered := p.condition(rec, batch, bandpass)
			signals[i] = pad(filtered, batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, BatchContext{}, fmt.Errorf("preprocessing interrupted: %w", err)
	}

	return signals, batch, nil
}

// condition resamples, filters and optionally denoises one recording, without padding
func (p *Preprocessor) condition(rec *audio.Recording, batch BatchContext, bandpass *filters.ButterworthBandpass) []float64 {
	resampled := p.resampler.ResampleSignal(rec.Samples, rec.SampleRate, batch.SampleRate)
	filtered := bandpass.FiltFilt(resampled)

	if p.config.Denoise {
		filtered = p.denoiser.Denoise(filtered)
	}

	p.logger.Debug("Recording conditioned", logging.Fields{
		"file":        rec.Filename,
		"native_rate": rec.SampleRate,
		"samples":     len(filtered),
	})

	return filtered
}

// pad appends trailing zeros up to the batch length
func pad(samples []float64, batch BatchContext) Signal {
	out := make([]float64, batch.Length)
	copy(out, samples)
	return Signal{
		Samples:        out,
		SampleRate:     batch.SampleRate,
		OriginalLength: len(samples),
	}
}

func (p *Preprocessor) workers() int {
	if p.config.Workers > 0 {
		return p.config.Workers
	}
	return runtime.NumCPU()
}
