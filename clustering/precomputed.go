package clustering

import (
	"math"
	"sort"

	"github.com/reefpulse/LagoPObs/algorithms/common"
	"github.com/reefpulse/LagoPObs/features"
)

// agglomerative merges the closest pair of clusters under average linkage
// until k remain
//
// Reference: Hastie, T., et al. (2009). "The Elements of Statistical Learning"
type agglomerative struct{}

func (agglomerative) Name() string { return string(Agglomerative) }

func (agglomerative) Cluster(m features.Matrix, p Params) (Labels, error) {
	merges := averageLinkage(m)
	return chooseK(m, p, func(k int) (Labels, error) {
		return cutTree(merges, m.Size(), k), nil
	})
}

// merge records that clusters represented by points a and b joined at height
type merge struct {
	a, b   int
	height float64
}

// averageLinkage builds the full dendrogram with Lance-Williams updates.
// Ties merge the lowest indices first.
func averageLinkage(m features.Matrix) []merge {
	n := m.Size()
	dist := make([][]float64, n)
	for i := 0; i < n; i++ {
		dist[i] = append([]float64(nil), m[i]...)
	}
	size := make([]int, n)
	active := make([]bool, n)
	for i := 0; i < n; i++ {
		size[i] = 1
		active[i] = true
	}

	merges := make([]merge, 0, n-1)
	for round := 0; round < n-1; round++ {
		bi, bj := -1, -1
		best := math.Inf(1)
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if active[j] && dist[i][j] < best {
					best, bi, bj = dist[i][j], i, j
				}
			}
		}
		if bi < 0 {
			break
		}

		for k := 0; k < n; k++ {
			if !active[k] || k == bi || k == bj {
				continue
			}
			d := (float64(size[bi])*dist[bi][k] + float64(size[bj])*dist[bj][k]) / float64(size[bi]+size[bj])
			dist[bi][k], dist[k][bi] = d, d
		}
		size[bi] += size[bj]
		active[bj] = false
		merges = append(merges, merge{a: bi, b: bj, height: best})
	}
	return merges
}

// cutTree applies the first n-k merges and labels the resulting components
func cutTree(merges []merge, n, k int) Labels {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	for _, mg := range merges[:max(0, min(len(merges), n-k))] {
		parent[find(mg.b)] = find(mg.a)
	}

	labels := make(Labels, n)
	for i := 0; i < n; i++ {
		labels[i] = find(i)
	}
	return Relabel(labels)
}

// dbscan grows clusters from core points on the precomputed distances. eps
// is twice the median k-distance, capped by the median off-diagonal distance.
//
// Reference: Ester, M., et al. (1996). "A density-based algorithm for
// discovering clusters in large spatial databases with noise"
type dbscan struct{}

func (dbscan) Name() string { return string(DBSCAN) }

func (dbscan) Cluster(m features.Matrix, p Params) (Labels, error) {
	return runDBSCAN(m, dbscanEps(m, p.MinClusterSize), p.MinClusterSize), nil
}

// dbscanEps uses the distance of each point to its (minPoints-1)-th neighbour
func dbscanEps(m features.Matrix, minPoints int) float64 {
	n := m.Size()
	kth := min(max(1, minPoints-1), n-1)
	kdist := make([]float64, n)
	for i := 0; i < n; i++ {
		kdist[i] = sortedRow(m, i)[kth]
	}
	return math.Min(2*common.Median(kdist), common.Median(m.OffDiagonal()))
}

// runDBSCAN counts the point itself towards minPoints
func runDBSCAN(m features.Matrix, eps float64, minPoints int) Labels {
	n := m.Size()
	labels := make(Labels, n)
	visited := make([]bool, n)
	for i := range labels {
		labels[i] = Noise
	}

	clusterID := 0
	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true

		neighbors := regionQuery(m, i, eps)
		if len(neighbors)+1 < minPoints {
			continue
		}

		labels[i] = clusterID
		seeds := append([]int(nil), neighbors...)
		for j := 0; j < len(seeds); j++ {
			q := seeds[j]
			if !visited[q] {
				visited[q] = true
				if qn := regionQuery(m, q, eps); len(qn)+1 >= minPoints {
					seeds = append(seeds, qn...)
				}
			}
			if labels[q] == Noise {
				labels[q] = clusterID
			}
		}
		clusterID++
	}
	return labels
}

func regionQuery(m features.Matrix, i int, eps float64) []int {
	var out []int
	for j, d := range m[i] {
		if j != i && d <= eps {
			out = append(out, j)
		}
	}
	return out
}

// kMedoids runs PAM: a greedy BUILD phase then alternating assignment and
// medoid updates, all on the precomputed distances
//
// Reference: Kaufman, L., & Rousseeuw, P. J. (1990). "Finding Groups in Data"
type kMedoids struct{}

func (kMedoids) Name() string { return string(KMedoids) }

func (kMedoids) Cluster(m features.Matrix, p Params) (Labels, error) {
	return chooseK(m, p, func(k int) (Labels, error) {
		return pam(m, k, p.MaxIterations), nil
	})
}

func pam(m features.Matrix, k, maxIter int) Labels {
	n := m.Size()
	medoids := buildMedoids(m, k)
	labels := make(Labels, n)
	prev := make(Labels, n)

	for iter := 0; iter < maxIter; iter++ {
		for i := 0; i < n; i++ {
			best, bestDist := 0, math.Inf(1)
			for c, md := range medoids {
				if m[i][md] < bestDist {
					best, bestDist = c, m[i][md]
				}
			}
			labels[i] = best
		}

		for c := range medoids {
			members := membersOf(labels, c)
			if len(members) == 0 {
				continue
			}
			bestCost := math.Inf(1)
			for _, cand := range members {
				cost := 0.0
				for _, q := range members {
					cost += m[cand][q]
				}
				if cost < bestCost {
					bestCost = cost
					medoids[c] = cand
				}
			}
		}

		if iter > 0 && equalLabels(labels, prev) {
			break
		}
		copy(prev, labels)
	}
	return labels
}

// buildMedoids picks the most central point, then greedily adds the point
// that lowers the total cost the most
func buildMedoids(m features.Matrix, k int) []int {
	n := m.Size()
	nearest := make([]float64, n)

	first, bestSum := 0, math.Inf(1)
	for i := 0; i < n; i++ {
		s := 0.0
		for j := 0; j < n; j++ {
			s += m[i][j]
		}
		if s < bestSum {
			first, bestSum = i, s
		}
	}
	medoids := []int{first}
	chosen := map[int]bool{first: true}
	for j := 0; j < n; j++ {
		nearest[j] = m[first][j]
	}

	for len(medoids) < k {
		cand, bestGain := -1, -1.0
		for c := 0; c < n; c++ {
			if chosen[c] {
				continue
			}
			gain := 0.0
			for j := 0; j < n; j++ {
				gain += math.Max(0, nearest[j]-m[c][j])
			}
			if gain > bestGain {
				cand, bestGain = c, gain
			}
		}
		if cand < 0 {
			break
		}
		medoids = append(medoids, cand)
		chosen[cand] = true
		for j := 0; j < n; j++ {
			nearest[j] = math.Min(nearest[j], m[cand][j])
		}
	}
	return medoids
}

func equalLabels(a, b Labels) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// sortedRow returns a copy of row i sorted ascending
func sortedRow(m features.Matrix, i int) []float64 {
	row := append([]float64(nil), m[i]...)
	sort.Float64s(row)
	return row
}
