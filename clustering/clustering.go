// Package clustering assigns one label per recording from a dissimilarity
// matrix, using either the matrix itself, a similarity transform of it, or
// its rows as feature vectors depending on the algorithm family.
package clustering

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/reefpulse/LagoPObs/features"
	"github.com/reefpulse/LagoPObs/internal/errors"
	"github.com/reefpulse/LagoPObs/logging"
)

// Noise labels a recording that belongs to no cluster
const Noise = -1

// Algorithm names a clustering strategy
type Algorithm string

const (
	AffinityPropagation Algorithm = "Affinity Propagation"
	Agglomerative       Algorithm = "Agglomerative"
	BisectingKMeans     Algorithm = "Bisecting K-Means"
	GaussianMixture     Algorithm = "Gaussian Mixture Model"
	HDBSCAN             Algorithm = "HDBSCAN"
	KMeans              Algorithm = "K-Means"
	MeanShift           Algorithm = "Mean Shift"
	DBSCAN              Algorithm = "DBSCAN"
	KMedoids            Algorithm = "K-Medoids"
)

// Algorithms lists the supported strategies in menu order
var Algorithms = []Algorithm{
	AffinityPropagation, Agglomerative, BisectingKMeans, GaussianMixture,
	HDBSCAN, KMeans, MeanShift, DBSCAN, KMedoids,
}

// ParseAlgorithm resolves a name case-insensitively
func ParseAlgorithm(name string) (Algorithm, error) {
	n := strings.TrimSpace(name)
	for _, alg := range Algorithms {
		if strings.EqualFold(n, string(alg)) {
			return alg, nil
		}
	}
	return "", fmt.Errorf("unknown clustering algorithm %q (expected one of %v)", name, Algorithms)
}

// Labels holds one cluster id per recording, in batch order
type Labels []int

// Clusters returns the distinct non-noise ids in ascending order
func (l Labels) Clusters() []int {
	seen := make(map[int]bool)
	var ids []int
	for _, c := range l {
		if c != Noise && !seen[c] {
			seen[c] = true
			ids = append(ids, c)
		}
	}
	sort.Ints(ids)
	return ids
}

// NumClusters counts the distinct non-noise ids
func (l Labels) NumClusters() int {
	return len(l.Clusters())
}

// NoiseCount counts recordings labelled Noise
func (l Labels) NoiseCount() int {
	n := 0
	for _, c := range l {
		if c == Noise {
			n++
		}
	}
	return n
}

// Params tunes the strategies. NClusters = 0 lets algorithms that need a
// target count choose it by silhouette score.
type Params struct {
	NClusters      int     `json:"n_clusters" yaml:"n_clusters"`
	MaxIterations  int     `json:"max_iterations" yaml:"max_iterations"`
	Tolerance      float64 `json:"tolerance" yaml:"tolerance"`
	Seed           int64   `json:"seed" yaml:"seed"`
	MinClusterSize int     `json:"min_cluster_size" yaml:"min_cluster_size"`
	Damping        float64 `json:"damping" yaml:"damping"`
}

// DefaultParams returns the parameters used when nothing is configured
func DefaultParams() Params {
	return Params{
		NClusters:      0,
		MaxIterations:  300,
		Tolerance:      1e-4,
		Seed:           42,
		MinClusterSize: 2,
		Damping:        0.5,
	}
}

// withDefaults fills zero fields from DefaultParams
func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.MaxIterations <= 0 {
		p.MaxIterations = d.MaxIterations
	}
	if p.Tolerance <= 0 {
		p.Tolerance = d.Tolerance
	}
	if p.MinClusterSize < 2 {
		p.MinClusterSize = d.MinClusterSize
	}
	if p.Damping < 0.5 || p.Damping >= 1 {
		p.Damping = d.Damping
	}
	return p
}

// Strategy clusters a dissimilarity matrix. Implementations return exactly
// one label per row and never panic on small or degenerate inputs.
type Strategy interface {
	Cluster(m features.Matrix, p Params) (Labels, error)
	Name() string
}

// NewStrategy returns the implementation of alg
func NewStrategy(alg Algorithm) (Strategy, error) {
	switch alg {
	case AffinityPropagation:
		return affinityPropagation{}, nil
	case Agglomerative:
		return agglomerative{}, nil
	case BisectingKMeans:
		return bisectingKMeans{}, nil
	case GaussianMixture:
		return gaussianMixture{}, nil
	case HDBSCAN:
		return hdbscan{}, nil
	case KMeans:
		return kMeans{}, nil
	case MeanShift:
		return meanShift{}, nil
	case DBSCAN:
		return dbscan{}, nil
	case KMedoids:
		return kMedoids{}, nil
	default:
		return nil, fmt.Errorf("unsupported clustering algorithm: %q", alg)
	}
}

// Assigner validates the matrix, handles degenerate batches and relabels
// the strategy output
type Assigner struct {
	algorithm Algorithm
	strategy  Strategy
	params    Params
	logger    logging.Logger
}

// NewAssigner creates an assigner for alg
func NewAssigner(alg Algorithm, params Params) (*Assigner, error) {
	strategy, err := NewStrategy(alg)
	if err != nil {
		return nil, errors.New(err).
			Component("clustering").
			Category(errors.CategoryValidation).
			Build()
	}
	return &Assigner{
		algorithm: alg,
		strategy:  strategy,
		params:    params.withDefaults(),
		logger:    logging.WithFields(logging.Fields{"component": "clustering", "algorithm": string(alg)}),
	}, nil
}

// Assign returns one label per row of m
func (a *Assigner) Assign(m features.Matrix) (Labels, error) {
	if err := validateMatrix(m); err != nil {
		return nil, errors.New(err).
			Component("clustering").
			Category(errors.CategoryValidation).
			Build()
	}

	n := m.Size()
	switch {
	case n == 0:
		return Labels{}, nil
	case n == 1:
		return Labels{0}, nil
	case allEqual(m):
		a.logger.Info("All dissimilarities are equal, assigning a single cluster", logging.Fields{"recordings": n})
		return make(Labels, n), nil
	}

	labels, err := a.strategy.Cluster(m, a.params)
	if err != nil {
		return nil, errors.New(err).
			Component("clustering").
			Category(errors.CategoryProcessing).
			Context("algorithm", string(a.algorithm)).
			Build()
	}
	if len(labels) != n {
		return nil, errors.Newf("%s returned %d labels for %d recordings", a.strategy.Name(), len(labels), n).
			Component("clustering").
			Category(errors.CategoryProcessing).
			Build()
	}

	labels = Relabel(labels)
	a.logger.Info("Clustering complete", logging.Fields{
		"recordings": n,
		"clusters":   labels.NumClusters(),
		"noise":      labels.NoiseCount(),
	})
	return labels, nil
}

// Relabel renumbers clusters 0, 1, ... in order of first appearance, keeping Noise
func Relabel(labels Labels) Labels {
	mapping := make(map[int]int)
	out := make(Labels, len(labels))
	for i, c := range labels {
		if c < 0 {
			out[i] = Noise
			continue
		}
		id, ok := mapping[c]
		if !ok {
			id = len(mapping)
			mapping[c] = id
		}
		out[i] = id
	}
	return out
}

func validateMatrix(m features.Matrix) error {
	n := m.Size()
	for i, row := range m {
		if len(row) != n {
			return fmt.Errorf("dissimilarity matrix row %d has %d columns, want %d", i, len(row), n)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return fmt.Errorf("dissimilarity matrix entry (%d,%d) = %v is not a finite non-negative value", i, j, v)
			}
		}
	}
	return nil
}

func allEqual(m features.Matrix) bool {
	off := m.OffDiagonal()
	for _, v := range off[1:] {
		if v != off[0] {
			return false
		}
	}
	return true
}
