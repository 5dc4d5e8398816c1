package clustering

import (
	"math"
	"math/rand"

	"github.com/reefpulse/LagoPObs/algorithms/common"
	"github.com/reefpulse/LagoPObs/features"
)

// iterations without exemplar change before stopping
const apConvergenceIter = 15

// affinityPropagation passes responsibility and availability messages on the
// similarity S = -D with the median similarity as preference
//
// Reference: Frey, B. J., & Dueck, D. (2007). "Clustering by passing messages
// between data points"
type affinityPropagation struct{}

func (affinityPropagation) Name() string { return string(AffinityPropagation) }

func (affinityPropagation) Cluster(m features.Matrix, p Params) (Labels, error) {
	n := m.Size()
	s := similarity(m, p.Seed)

	R := newSquare(n)
	A := newSquare(n)
	exemplar := make([]bool, n)
	stable := 0

	for iter := 0; iter < p.MaxIterations; iter++ {
		updateResponsibility(s, A, R, p.Damping)
		updateAvailability(R, A, p.Damping)

		changed := false
		count := 0
		for k := 0; k < n; k++ {
			e := A[k][k]+R[k][k] > 0
			if e != exemplar[k] {
				changed = true
			}
			exemplar[k] = e
			if e {
				count++
			}
		}
		if changed || count == 0 {
			stable = 0
			continue
		}
		if stable++; stable >= apConvergenceIter {
			break
		}
	}

	var centers []int
	for k, e := range exemplar {
		if e {
			centers = append(centers, k)
		}
	}
	if len(centers) == 0 {
		return make(Labels, n), nil
	}

	labels := assignToExemplars(s, centers)

	// refine each exemplar to the member maximising the in-cluster similarity
	for c := range centers {
		members := membersOf(labels, c)
		best, bestSum := centers[c], math.Inf(-1)
		for _, cand := range members {
			sum := 0.0
			for _, q := range members {
				sum += s[q][cand]
			}
			if sum > bestSum {
				best, bestSum = cand, sum
			}
		}
		centers[c] = best
	}
	return assignToExemplars(s, centers), nil
}

// similarity negates the distances, sets the diagonal to the median
// off-diagonal similarity and adds seeded jitter far below the data scale
// to break ties between equivalent exemplars
func similarity(m features.Matrix, seed int64) [][]float64 {
	n := m.Size()
	pref := -common.Median(offDiagonal(m))
	rng := rand.New(rand.NewSource(seed))

	s := newSquare(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := -m[i][j]
			if i == j {
				v = pref
			}
			s[i][j] = v + (1e-12*math.Abs(v)+1e-14)*rng.Float64()
		}
	}
	return s
}

func updateResponsibility(s, A, R [][]float64, damping float64) {
	n := len(s)
	for i := 0; i < n; i++ {
		first, second := math.Inf(-1), math.Inf(-1)
		firstK := -1
		for k := 0; k < n; k++ {
			v := A[i][k] + s[i][k]
			if v > first {
				second = first
				first, firstK = v, k
			} else if v > second {
				second = v
			}
		}
		for k := 0; k < n; k++ {
			maxOther := first
			if k == firstK {
				maxOther = second
			}
			R[i][k] = damping*R[i][k] + (1-damping)*(s[i][k]-maxOther)
		}
	}
}

func updateAvailability(R, A [][]float64, damping float64) {
	n := len(R)
	for k := 0; k < n; k++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			if i != k {
				sum += math.Max(0, R[i][k])
			}
		}
		for i := 0; i < n; i++ {
			var v float64
			if i == k {
				v = sum
			} else {
				v = math.Min(0, R[k][k]+sum-math.Max(0, R[i][k]))
			}
			A[i][k] = damping*A[i][k] + (1-damping)*v
		}
	}
}

// assignToExemplars labels exemplars with their own index in centers and
// every other point with its most similar exemplar
func assignToExemplars(s [][]float64, centers []int) Labels {
	labels := make(Labels, len(s))
	for i := range s {
		best, bestSim := 0, math.Inf(-1)
		for c, k := range centers {
			if k == i {
				best = c
				break
			}
			if s[i][k] > bestSim {
				best, bestSim = c, s[i][k]
			}
		}
		labels[i] = best
	}
	return labels
}

func newSquare(n int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	return out
}
