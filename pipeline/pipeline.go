// Package pipeline runs a batch of recordings through preprocessing,
// spectrogram synthesis, feature matching, clustering and population
// estimation. Stages run strictly in sequence; each one consumes the
// complete output of the previous one.
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/reefpulse/LagoPObs/audio"
	"github.com/reefpulse/LagoPObs/clustering"
	"github.com/reefpulse/LagoPObs/config"
	"github.com/reefpulse/LagoPObs/features"
	"github.com/reefpulse/LagoPObs/internal/errors"
	"github.com/reefpulse/LagoPObs/logging"
	"github.com/reefpulse/LagoPObs/output"
	"github.com/reefpulse/LagoPObs/population"
	"github.com/reefpulse/LagoPObs/preprocess"
	"github.com/reefpulse/LagoPObs/spectrogram"
)

// ErrInvalidConfig is returned, wrapped, when parameters or inputs are rejected before any computation
var ErrInvalidConfig = config.ErrInvalidConfig

// Config configures a Pipeline
type Config struct {
	Params         config.Params
	Workers        int                  // 0 = one per CPU
	OpenCV         bool                 // gocv keypoints when built with the opencv tag
	KeypointImages bool                 // write annotated spectrograms when persisting
	Estimator      population.Estimator // nil = PIC
}

// Result holds every artifact of a run
type Result struct {
	Files      []string
	Batch      preprocess.BatchContext
	Images     []*spectrogram.Image
	Keypoints  []*features.KeypointSet
	Matrix     features.Matrix
	Labels     clustering.Labels
	NClusters  int
	Population *population.Report // nil when disabled or when dates are missing
	DateErr    error              // date-format failure that skipped population estimation
	Elapsed    time.Duration
}

// Pipeline wires the stages together
type Pipeline struct {
	config     *Config
	observer   Observer
	writer     *output.Writer
	preprocess *preprocess.Preprocessor
	synth      *spectrogram.Synthesizer
	matcher    *features.Matcher
	assigner   *clustering.Assigner
	analyzer   *population.Analyzer
	logger     logging.Logger
}

// NewPipeline validates the parameters and builds every stage. A nil observer
// selects NoOpObserver.
func NewPipeline(cfg *Config, observer Observer) (*Pipeline, error) {
	if cfg == nil {
		cfg = &Config{Params: config.DefaultParams()}
	}
	if _, _, err := config.Parse(cfg.Params.Raw()); err != nil {
		return nil, err
	}
	if observer == nil {
		observer = NoOpObserver{}
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	matcher, err := features.NewMatcher(cfg.Params.Matcher(workers, cfg.OpenCV))
	if err != nil {
		return nil, err
	}
	assigner, err := clustering.NewAssigner(cfg.Params.ClusteringAlgorithm, cfg.Params.Clustering())
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		config:     cfg,
		observer:   observer,
		preprocess: preprocess.NewPreprocessor(cfg.Params.Preprocess(workers)),
		synth:      spectrogram.NewSynthesizer(cfg.Params.Spectrogram(workers)),
		matcher:    matcher,
		assigner:   assigner,
		analyzer:   population.NewAnalyzer(cfg.Estimator),
		logger:     logging.WithFields(logging.Fields{"component": "pipeline"}),
	}, nil
}

// SetWriter makes Run persist its outputs as soon as each part is available.
// Without a writer nothing is written and the persistence checkpoint reports so.
func (p *Pipeline) SetWriter(w *output.Writer) {
	p.writer = w
}

// between checks for cancellation at a stage boundary
func between(ctx context.Context, next string) error {
	if err := ctx.Err(); err != nil {
		return errors.New(err).
			Component("pipeline").
			Category(errors.CategoryCancellation).
			Context("next_stage", next).
			Build()
	}
	return nil
}

// hasSamples reports whether at least one recording carries audio
func hasSamples(recs []*audio.Recording) bool {
	for _, r := range recs {
		if r != nil && len(r.Samples) > 0 {
			return true
		}
	}
	return false
}

// Run analyzes recs. A missing date in any filename does not fail the run:
// population estimation is skipped and Result.DateErr is set.
func (p *Pipeline) Run(ctx context.Context, recs []*audio.Recording) (*Result, error) {
	if !hasSamples(recs) {
		return nil, errors.New(fmt.Errorf("%w: %w", ErrInvalidConfig, audio.ErrNoRecordings)).
			Component("pipeline").
			Category(errors.CategoryValidation).
			Build()
	}

	start := time.Now()
	params := p.config.Params
	res := &Result{Files: make([]string, len(recs))}
	for i, r := range recs {
		res.Files[i] = r.Filename
	}

	p.logger.Info("Starting analysis", logging.Fields{
		"recordings": len(recs),
		"features":   string(params.FeatureAlgorithm),
		"clustering": string(params.ClusteringAlgorithm),
	})

	signals, batch, err := p.preprocess.Run(ctx, recs)
	if err != nil {
		return nil, err
	}
	res.Batch = batch
	p.observer.Checkpoint(StagePreprocessed,
		fmt.Sprintf("%d recordings resampled to %d Hz, %d samples", len(signals), batch.SampleRate, batch.Length))

	if err := between(ctx, StageSpectrograms.String()); err != nil {
		return nil, err
	}
	res.Images, err = p.synth.Run(ctx, signals, batch)
	if err != nil {
		return nil, err
	}
	p.observer.Checkpoint(StageSpectrograms,
		fmt.Sprintf("%d spectrograms of %dx%d", len(res.Images), res.Images[0].Width, res.Images[0].Height))

	if err := between(ctx, StageClustered.String()); err != nil {
		return nil, err
	}
	matched, err := p.matcher.Run(ctx, res.Images)
	if err != nil {
		return nil, err
	}
	res.Keypoints = matched.Keypoints
	res.Matrix = matched.Matrix
	res.Labels, err = p.assigner.Assign(res.Matrix)
	if err != nil {
		return nil, err
	}
	res.NClusters = res.Labels.NumClusters()
	p.observer.Checkpoint(StageClustered, fmt.Sprintf("%d clusters", res.NClusters))

	if err := between(ctx, StagePersisted.String()); err != nil {
		return nil, err
	}
	if p.writer != nil {
		if err := p.persistClustering(ctx, res); err != nil {
			return nil, err
		}
		p.observer.Checkpoint(StagePersisted, "clustering results written to "+p.writer.Dir())
	} else {
		p.observer.Checkpoint(StagePersisted, "no output directory")
	}

	if params.EstimatePopulation {
		if err := between(ctx, StagePopulation.String()); err != nil {
			return nil, err
		}
		if err := p.estimate(res); err != nil {
			return nil, err
		}
		if res.Population != nil && p.writer != nil {
			if err := p.writer.Population(ctx, res.Population); err != nil {
				return nil, err
			}
		}
	}

	res.Elapsed = time.Since(start)
	p.logger.Info("Analysis complete", logging.Fields{
		"recordings": len(recs),
		"clusters":   res.NClusters,
		"elapsed":    res.Elapsed.String(),
	})
	return res, nil
}

// estimate fills res.Population, or res.DateErr when a filename has no date
func (p *Pipeline) estimate(res *Result) error {
	report, err := p.analyzer.Run(res.Labels, res.Files)
	if errors.Is(err, population.ErrDateFormat) {
		res.DateErr = err
		p.logger.Warn("Population estimation skipped", logging.Fields{"error": err.Error()})
		p.observer.Checkpoint(StagePopulation, "skipped: "+err.Error())
		return nil
	}
	if err != nil {
		return errors.New(err).Component("pipeline").Category(errors.CategoryProcessing).Build()
	}
	res.Population = report
	p.observer.Checkpoint(StagePopulation,
		fmt.Sprintf("%d individuals estimated, %d residents", report.Estimate.Individuals, report.Estimate.Residents))
	return nil
}

func (p *Pipeline) persistClustering(ctx context.Context, res *Result) error {
	if err := p.writer.ClusteringResults(ctx, res.Files, res.Labels); err != nil {
		return err
	}
	if p.config.KeypointImages {
		return p.writer.KeypointImages(ctx, res.Files, res.Images, res.Keypoints)
	}
	return nil
}

// Persist writes every output of res to w. Population tables are only
// written when res carries a report.
func Persist(ctx context.Context, w *output.Writer, res *Result, keypointImages bool) error {
	if err := w.ClusteringResults(ctx, res.Files, res.Labels); err != nil {
		return err
	}
	if keypointImages {
		if err := w.KeypointImages(ctx, res.Files, res.Images, res.Keypoints); err != nil {
			return err
		}
	}
	if res.Population != nil {
		return w.Population(ctx, res.Population)
	}
	return nil
}
