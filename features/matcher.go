package features

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/reefpulse/LagoPObs/internal/errors"
	"github.com/reefpulse/LagoPObs/logging"
	"github.com/reefpulse/LagoPObs/spectrogram"
)

// MaxMatches is the largest accepted number of retained matches
const MaxMatches = 500

// Matrix is a square symmetric dissimilarity matrix with a zero diagonal
type Matrix [][]float64

// NewMatrix allocates an n x n zero matrix
func NewMatrix(n int) Matrix {
	m := make(Matrix, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	return m
}

// Size returns the number of rows
func (m Matrix) Size() int {
	return len(m)
}

// OffDiagonal returns the upper-triangle values in row order
func (m Matrix) OffDiagonal() []float64 {
	n := len(m)
	out := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			out = append(out, m[i][j])
		}
	}
	return out
}

// Config configures a Matcher
type Config struct {
	Algorithm Algorithm `json:"algorithm"`
	NMatches  int       `json:"n_matches"`
	Workers   int       `json:"workers"`
	OpenCV    bool      `json:"opencv"` // use the gocv backend when compiled in
}

// DefaultConfig returns the spectrogram-tuned defaults
func DefaultConfig() *Config {
	return &Config{
		Algorithm: ORBCustom,
		NMatches:  53,
	}
}

// Result holds the keypoints of every image and their dissimilarity matrix
type Result struct {
	Keypoints []*KeypointSet
	Matrix    Matrix
}

// Matcher extracts keypoints and builds the dissimilarity matrix
type Matcher struct {
	config    *Config
	extractor Extractor
	logger    logging.Logger
}

// NewMatcher creates a matcher for config
func NewMatcher(config *Config) (*Matcher, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.NMatches <= 0 || config.NMatches > MaxMatches {
		return nil, errors.Newf("number of matches must be in [1, %d], got %d", MaxMatches, config.NMatches).
			Component("features").
			Category(errors.CategoryValidation).
			Build()
	}

	var (
		ext Extractor
		err error
	)
	if config.OpenCV {
		ext, err = NewOpenCVExtractor(config.Algorithm)
	} else {
		ext, err = NewExtractor(config.Algorithm)
	}
	if err != nil {
		return nil, errors.New(err).
			Component("features").
			Category(errors.CategoryValidation).
			Context("algorithm", string(config.Algorithm)).
			Build()
	}

	return NewMatcherWithExtractor(config, ext), nil
}

// NewMatcherWithExtractor creates a matcher around a custom extractor
func NewMatcherWithExtractor(config *Config, ext Extractor) *Matcher {
	return &Matcher{
		config:    config,
		extractor: ext,
		logger: logging.WithFields(logging.Fields{
			"component": "features",
			"algorithm": ext.Name(),
		}),
	}
}

// Extractor returns the extractor in use
func (m *Matcher) Extractor() Extractor {
	return m.extractor
}

// Run extracts every image in parallel, then fills the matrix one cell pair
// per task. Output order follows images.
func (m *Matcher) Run(ctx context.Context, images []*spectrogram.Image) (*Result, error) {
	sets, err := m.ExtractAll(ctx, images)
	if err != nil {
		return nil, err
	}

	matrix, err := m.BuildMatrix(ctx, sets)
	if err != nil {
		return nil, err
	}

	return &Result{Keypoints: sets, Matrix: matrix}, nil
}

// ExtractAll runs the extractor over images, keeping their order
func (m *Matcher) ExtractAll(ctx context.Context, images []*spectrogram.Image) ([]*KeypointSet, error) {
	sets := make([]*KeypointSet, len(images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers())
	for i, img := range images {
		i, img := i, img
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sets[i] = m.extractor.Extract(img)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("keypoint extraction interrupted: %w", err)
	}

	empty := 0
	for _, s := range sets {
		if s.Empty() {
			empty++
		}
	}
	m.logger.Info("Keypoints extracted", logging.Fields{
		"images":     len(images),
		"empty_sets": empty,
	})
	return sets, nil
}

type cell struct{ i, j int }

// BuildMatrix computes the dissimilarity of every unordered pair on a fixed
// pool of workers. Each worker writes distinct cells.
func (m *Matcher) BuildMatrix(ctx context.Context, sets []*KeypointSet) (Matrix, error) {
	n := len(sets)
	matrix := NewMatrix(n)
	if n < 2 {
		return matrix, nil
	}

	jobs := make(chan cell)
	var wg sync.WaitGroup
	for iter := 0; iter < min(m.workers(), n*(n-1)/2); iter++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				d := Dissimilarity(sets[c.i], sets[c.j], m.config.NMatches)
				matrix[c.i][c.j] = d
				matrix[c.j][c.i] = d
			}
		}()
	}

	var cancelled error
feed:
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if err := ctx.Err(); err != nil {
				cancelled = err
				break feed
			}
			select {
			case <-ctx.Done():
				cancelled = ctx.Err()
				break feed
			case jobs <- cell{i, j}:
			}
		}
	}
	close(jobs)
	wg.Wait()

	if cancelled != nil {
		return nil, fmt.Errorf("matrix construction interrupted: %w", cancelled)
	}

	m.logger.Debug("Dissimilarity matrix built", logging.Fields{
		"size":  n,
		"pairs": n * (n - 1) / 2,
	})
	return matrix, nil
}

func (m *Matcher) workers() int {
	if m.config.Workers > 0 {
		return m.config.Workers
	}
	return runtime.NumCPU()
}
