package clustering

import (
	"math"

	"github.com/reefpulse/LagoPObs/features"
)

// maxAutoClusters bounds the silhouette search
const maxAutoClusters = 10

// Silhouette computes the mean silhouette coefficient of labels on the
// precomputed distances in m. Noise points are ignored and singleton
// clusters score 0. Fewer than two clusters score -1.
//
// Reference: Rousseeuw, P. J. (1987). "Silhouettes: a graphical aid to the
// interpretation and validation of cluster analysis"
func Silhouette(m features.Matrix, labels Labels) float64 {
	if labels.NumClusters() < 2 {
		return -1
	}

	sum, count := 0.0, 0
	for i, ci := range labels {
		if ci == Noise {
			continue
		}

		totals := make(map[int]float64)
		sizes := make(map[int]int)
		for j, cj := range labels {
			if j == i || cj == Noise {
				continue
			}
			totals[cj] += m[i][j]
			sizes[cj]++
		}

		count++
		if sizes[ci] == 0 {
			continue
		}
		a := totals[ci] / float64(sizes[ci])

		b := math.Inf(1)
		for c, total := range totals {
			if c != ci {
				b = math.Min(b, total/float64(sizes[c]))
			}
		}
		if math.IsInf(b, 1) {
			continue
		}

		if den := math.Max(a, b); den > 0 {
			sum += (b - a) / den
		}
	}

	if count == 0 {
		return -1
	}
	return sum / float64(count)
}

// chooseK runs fit with the configured count, or searches k in
// [2, min(10, N-1)] for the best silhouette (smallest k on ties)
func chooseK(m features.Matrix, p Params, fit func(k int) (Labels, error)) (Labels, error) {
	n := m.Size()
	if p.NClusters > 0 {
		return fit(min(p.NClusters, n))
	}
	if n <= 2 {
		return fit(1)
	}

	var best Labels
	bestScore := math.Inf(-1)
	for k := 2; k <= min(maxAutoClusters, n-1); k++ {
		labels, err := fit(k)
		if err != nil {
			return nil, err
		}
		if score := Silhouette(m, labels); score > bestScore {
			best, bestScore = labels, score
		}
	}
	return best, nil
}

// rows copies the matrix rows, used as feature vectors by the centroid methods
func rows(m features.Matrix) [][]float64 {
	out := make([][]float64, len(m))
	for i, r := range m {
		out[i] = append([]float64(nil), r...)
	}
	return out
}

// offDiagonal returns all i != j entries
func offDiagonal(m features.Matrix) []float64 {
	n := m.Size()
	out := make([]float64, 0, n*(n-1))
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				out = append(out, m[i][j])
			}
		}
	}
	return out
}
