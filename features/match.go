package features

import (
	"math"
	"math/bits"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Match pairs descriptor QueryIdx of one set with TrainIdx of another
type Match struct {
	QueryIdx int
	TrainIdx int
	Distance float64
}

// Hamming counts differing bits
func Hamming(a, b []byte) int {
	n := min(len(a), len(b))
	d := 0
	for i := 0; i < n; i++ {
		d += bits.OnesCount8(a[i] ^ b[i])
	}
	return d
}

// L2 is the Euclidean distance between two float descriptors
func L2(a, b []float64) float64 {
	if len(a) != len(b) {
		n := min(len(a), len(b))
		a, b = a[:n], b[:n]
	}
	return floats.Distance(a, b, 2)
}

// distanceTable holds every descriptor distance between two sets
type distanceTable struct {
	rows, cols int
	d          []float64
}

func (t *distanceTable) at(i, j int) float64 {
	return t.d[i*t.cols+j]
}

func newDistanceTable(a, b *KeypointSet) *distanceTable {
	t := &distanceTable{rows: a.Len(), cols: b.Len()}
	t.d = make([]float64, t.rows*t.cols)
	for i := 0; i < t.rows; i++ {
		for j := 0; j < t.cols; j++ {
			var d float64
			if a.Kind == Binary {
				d = float64(Hamming(a.BinaryDescriptors[i], b.BinaryDescriptors[j]))
			} else {
				d = L2(a.FloatDescriptors[i], b.FloatDescriptors[j])
			}
			t.d[i*t.cols+j] = d
		}
	}
	return t
}

// closer orders candidates by distance, then by index offset, then by index,
// so that a set compared with itself pairs every descriptor with its own copy
func closer(d, bestD float64, idx, bestIdx, self int) bool {
	if d != bestD {
		return d < bestD
	}
	off, bestOff := absInt(idx-self), absInt(bestIdx-self)
	if off != bestOff {
		return off < bestOff
	}
	return idx < bestIdx
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// CrossCheckMatch keeps the pairs (i, j) where j is the nearest neighbour of i
// and i the nearest neighbour of j. The result is sorted by ascending distance.
func CrossCheckMatch(a, b *KeypointSet) []Match {
	if a.Empty() || b.Empty() || a.Kind != b.Kind {
		return nil
	}
	t := newDistanceTable(a, b)

	forward := make([]int, t.rows)
	for i := 0; i < t.rows; i++ {
		best := 0
		for j := 1; j < t.cols; j++ {
			if closer(t.at(i, j), t.at(i, best), j, best, i) {
				best = j
			}
		}
		forward[i] = best
	}

	backward := make([]int, t.cols)
	for j := 0; j < t.cols; j++ {
		best := 0
		for i := 1; i < t.rows; i++ {
			if closer(t.at(i, j), t.at(best, j), i, best, j) {
				best = i
			}
		}
		backward[j] = best
	}

	var matches []Match
	for i, j := range forward {
		if backward[j] == i {
			matches = append(matches, Match{QueryIdx: i, TrainIdx: j, Distance: t.at(i, j)})
		}
	}

	sort.SliceStable(matches, func(x, y int) bool {
		return matches[x].Distance < matches[y].Distance
	})
	return matches
}

// Dissimilarity turns the best nMatches cross-checked matches into a value in
// [0, 1]. Every missing match counts as maximally distant, and 0 is only
// reached when the best m descriptors of both sets coincide, m being
// min(nMatches, |a|, |b|).
func Dissimilarity(a, b *KeypointSet, nMatches int) float64 {
	if a == nil || b == nil {
		return 1
	}
	m := min(nMatches, a.Len(), b.Len())
	if m <= 0 {
		return 1
	}

	maxDist := math.Max(a.MaxDistance, b.MaxDistance)
	if maxDist <= 0 {
		return 1
	}

	matches := CrossCheckMatch(a, b)
	if len(matches) > m {
		matches = matches[:m]
	}

	similarity := 0.0
	for _, mt := range matches {
		similarity += 1 - math.Min(mt.Distance, maxDist)/maxDist
	}

	return math.Max(0, math.Min(1, 1-similarity/float64(m)))
}
