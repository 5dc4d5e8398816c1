package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/reefpulse/LagoPObs/clustering"
	"github.com/reefpulse/LagoPObs/features"
	"github.com/reefpulse/LagoPObs/internal/errors"
	"github.com/reefpulse/LagoPObs/logging"
	"github.com/reefpulse/LagoPObs/population"
	"github.com/reefpulse/LagoPObs/spectrogram"
)

// Writer persists run artifacts into one directory, one retried step per file
type Writer struct {
	dir    string
	retry  RetryConfig
	logger logging.Logger
}

// NewWriter checks that dir exists
func NewWriter(dir string, retry RetryConfig) (*Writer, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.FileError(err, dir)
	}
	if !info.IsDir() {
		return nil, errors.Newf("%s is not a directory", dir).
			Component("output").
			Category(errors.CategoryFileIO).
			FileContext(dir).
			Build()
	}
	return &Writer{
		dir:    dir,
		retry:  retry,
		logger: logging.WithFields(logging.Fields{"component": "output", "dir": dir}),
	}, nil
}

// Dir returns the output directory
func (w *Writer) Dir() string {
	return w.dir
}

// Path joins name to the output directory
func (w *Writer) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// save runs write for one file with retries
func (w *Writer) save(ctx context.Context, name string, write func(path string) error) error {
	path := w.Path(name)
	if err := WithRetry(ctx, w.retry, func() error { return write(path) }); err != nil {
		w.logger.Error(err, "Failed to write output", logging.Fields{"file": name})
		return fmt.Errorf("writing %s: %w", name, err)
	}
	w.logger.Debug("Output written", logging.Fields{"file": name})
	return nil
}

// ClusteringResults writes clustering_results.csv
func (w *Writer) ClusteringResults(ctx context.Context, files []string, labels clustering.Labels) error {
	return w.save(ctx, ClusteringResultsFile, func(path string) error {
		return WriteClusteringResults(path, files, labels)
	})
}

// KeypointImages writes one PNG per recording
func (w *Writer) KeypointImages(ctx context.Context, files []string, images []*spectrogram.Image, sets []*features.KeypointSet) error {
	if len(files) != len(images) || len(files) != len(sets) {
		return fmt.Errorf("%d files, %d images and %d keypoint sets", len(files), len(images), len(sets))
	}
	for i, f := range files {
		err := w.save(ctx, KeypointImageName(f), func(path string) error {
			return WriteKeypointImage(path, images[i], sets[i])
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Population writes every population table
func (w *Writer) Population(ctx context.Context, report *population.Report) error {
	steps := []struct {
		name  string
		write func(string) error
	}{
		{DailyCountsFile, func(p string) error { return WriteDailyCounts(p, report.Daily) }},
		{PresenceMatrixFile, func(p string) error { return WritePresenceMatrix(p, report.Presence) }},
		{PresenceIndexFile, func(p string) error { return WritePresenceIndex(p, report.Indices) }},
		{PICTableFile, func(p string) error { return WritePICTable(p, report.Estimate.Table) }},
		{PopulationEstimateFile, func(p string) error { return WritePopulationEstimate(p, report.Estimate) }},
	}
	for _, s := range steps {
		if err := w.save(ctx, s.name, s.write); err != nil {
			return err
		}
	}
	return nil
}

// RunConfig writes run_config.yaml
func (w *Writer) RunConfig(ctx context.Context, v any) error {
	return w.save(ctx, RunConfigFile, func(path string) error {
		return WriteRunConfig(path, v)
	})
}
