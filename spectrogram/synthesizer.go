// Package spectrogram renders preprocessed signals as stacked carrier and
// envelope spectrogram images of identical size across a batch.
package spectrogram

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/reefpulse/LagoPObs/algorithms/common"
	"github.com/reefpulse/LagoPObs/algorithms/spectral"
	"github.com/reefpulse/LagoPObs/algorithms/temporal"
	"github.com/reefpulse/LagoPObs/algorithms/windowing"
	"github.com/reefpulse/LagoPObs/internal/errors"
	"github.com/reefpulse/LagoPObs/logging"
	"github.com/reefpulse/LagoPObs/preprocess"
)

// magnitudes below this are treated as silence
const silenceFloor = 1e-12

// Geometry describes the image layout for a batch
type Geometry struct {
	Width       int // carrier frames
	CarrierRows int // carrier bins inside [fmin, fmax]
	EnvRows     int // envelope bins inside [0, fmax-fmin]
	carrierLo   int
	envLo       int
}

// Height is the total number of rows
func (g Geometry) Height() int {
	return g.CarrierRows + g.EnvRows
}

// Synthesizer builds spectrogram images
type Synthesizer struct {
	config   *Config
	stft     *spectral.STFT
	envelope *temporal.Envelope
	interp   *common.Interpolator
	logger   logging.Logger
}

// NewSynthesizer creates a synthesizer; nil selects DefaultConfig
func NewSynthesizer(config *Config) *Synthesizer {
	if config == nil {
		config = DefaultConfig()
	}
	if config.DynamicRangeDB <= 0 {
		config.DynamicRangeDB = 80
	}
	return &Synthesizer{
		config:   config,
		stft:     spectral.NewSTFT(),
		envelope: temporal.NewEnvelope(),
		interp:   common.NewInterpolator(),
		logger:   logging.WithFields(logging.Fields{"component": "spectrogram"}),
	}
}

// Geometry returns the image layout for batch. It only depends on the
// window parameters and the batch rate and length.
func (s *Synthesizer) Geometry(batch preprocess.BatchContext) (Geometry, error) {
	if s.config.WinFFT <= 0 || s.config.WinEnv <= 0 {
		return Geometry{}, fmt.Errorf("window lengths must be positive (win_fft=%d, win_env=%d)", s.config.WinFFT, s.config.WinEnv)
	}

	cLo, cHi := spectral.BandBins(batch.FMin, batch.FMax, s.config.WinFFT, batch.SampleRate)
	eLo, eHi := spectral.BandBins(0, batch.FMax-batch.FMin, s.config.WinEnv, batch.SampleRate)
	if cHi < cLo {
		return Geometry{}, fmt.Errorf("no FFT bin of a %d-sample window falls in [%g, %g] Hz", s.config.WinFFT, batch.FMin, batch.FMax)
	}

	hop := HopSize(s.config.WinFFT, s.config.OvlpFFT)
	return Geometry{
		Width:       spectral.FrameCount(batch.Length, s.config.WinFFT, hop),
		CarrierRows: cHi - cLo + 1,
		EnvRows:     eHi - eLo + 1,
		carrierLo:   cLo,
		envLo:       eLo,
	}, nil
}

// Run synthesizes one image per signal, in parallel, preserving order
func (s *Synthesizer) Run(ctx context.Context, signals []preprocess.Signal, batch preprocess.BatchContext) ([]*Image, error) {
	geom, err := s.Geometry(batch)
	if err != nil {
		return nil, errors.New(err).
			Component("spectrogram").
			Category(errors.CategoryValidation).
			Build()
	}

	s.logger.Info("Drawing spectrograms", logging.Fields{
		"signals": len(signals),
		"width":   geom.Width,
		"height":  geom.Height(),
	})

	images := make([]*Image, len(signals))

	g, gctx := errgroup.WithContext(ctx)
	workers := s.config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g.SetLimit(workers)

	for i, sig := range signals {
		i, sig := i, sig
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := s.synthesize(sig, batch, geom)
			if err != nil {
				return fmt.Errorf("signal %d: %w", i, err)
			}
			images[i] = img
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return images, nil
}

// Synthesize builds the image of a single signal
func (s *Synthesizer) Synthesize(sig preprocess.Signal, batch preprocess.BatchContext) (*Image, error) {
	geom, err := s.Geometry(batch)
	if err != nil {
		return nil, err
	}
	return s.synthesize(sig, batch, geom)
}

func (s *Synthesizer) synthesize(sig preprocess.Signal, batch preprocess.BatchContext, geom Geometry) (*Image, error) {
	if len(sig.Samples) != batch.Length {
		return nil, fmt.Errorf("signal length %d does not match batch length %d", len(sig.Samples), batch.Length)
	}

	carrier, err := s.carrierBand(sig.Samples, batch.SampleRate, geom)
	if err != nil {
		return nil, err
	}

	env, err := s.envelopeBand(sig.Samples, batch.SampleRate, geom)
	if err != nil {
		return nil, err
	}

	img := NewImage(geom.Width, geom.Height(), geom.CarrierRows)
	s.paint(img, carrier, 0)
	s.paint(img, env, geom.CarrierRows)

	return img, nil
}

func (s *Synthesizer) carrierBand(samples []float64, rate int, geom Geometry) ([][]float64, error) {
	win := s.config.WinFFT
	res, err := s.stft.ComputeWithWindow(samples, win, HopSize(win, s.config.OvlpFFT), rate, windowing.NewHann(win, false))
	if err != nil {
		return nil, fmt.Errorf("carrier spectrogram: %w", err)
	}
	return res.Band(geom.carrierLo, geom.carrierLo+geom.CarrierRows-1), nil
}

func (s *Synthesizer) envelopeBand(samples []float64, rate int, geom Geometry) ([][]float64, error) {
	env := common.SubtractMean(s.envelope.ComputeHilbert(samples))

	win := s.config.WinEnv
	res, err := s.stft.ComputeWithWindow(env, win, HopSize(win, s.config.OvlpEnv), rate, windowing.NewHann(win, false))
	if err != nil {
		return nil, fmt.Errorf("envelope spectrogram: %w", err)
	}

	band := res.Band(geom.envLo, geom.envLo+geom.EnvRows-1)
	return s.interp.InterpolateColumns(band, geom.Width), nil
}

// paint converts a Time x Bin magnitude block to dB, clips it to the dynamic
// range below its own maximum and writes it upside down starting at rowOffset.
func (s *Synthesizer) paint(img *Image, block [][]float64, rowOffset int) {
	peak := 0.0
	for _, frame := range block {
		for _, v := range frame {
			peak = math.Max(peak, v)
		}
	}
	if peak <= silenceFloor {
		return
	}

	dr := s.config.DynamicRangeDB
	peakDB := 20 * math.Log10(peak)
	floorDB := peakDB - dr

	for t, frame := range block {
		bins := len(frame)
		for k, v := range frame {
			db := 20 * math.Log10(math.Max(v, silenceFloor))
			img.Set(t, rowOffset+bins-1-k, common.Clamp((db-floorDB)/dr, 0, 1))
		}
	}
}
