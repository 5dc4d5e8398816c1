package clustering

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/reefpulse/LagoPObs/features"
)

// kMeansRestarts is the number of seeded initialisations kept to the best inertia
const kMeansRestarts = 10

// kMeans clusters the matrix rows with Lloyd's algorithm and k-means++ seeding
//
// References:
//   - MacQueen, J. (1967). "Some methods for classification and analysis of
//     multivariate observations"
//   - Arthur, D., & Vassilvitskii, S. (2007). "k-means++: The advantages of
//     careful seeding"
type kMeans struct{}

func (kMeans) Name() string { return string(KMeans) }

func (kMeans) Cluster(m features.Matrix, p Params) (Labels, error) {
	data := rows(m)
	rng := rand.New(rand.NewSource(p.Seed))
	return chooseK(m, p, func(k int) (Labels, error) {
		labels, _ := bestKMeans(data, k, p, rng)
		return labels, nil
	})
}

// bestKMeans keeps the lowest-inertia result over several seeded restarts
func bestKMeans(data [][]float64, k int, p Params, rng *rand.Rand) (Labels, [][]float64) {
	var (
		bestLabels  Labels
		bestCenters [][]float64
	)
	bestInertia := math.Inf(1)
	for round := 0; round < kMeansRestarts; round++ {
		labels, centers := lloyd(data, initializeCenters(data, k, rng), p)
		if in := inertia(data, labels, centers); in < bestInertia {
			bestInertia = in
			bestLabels, bestCenters = labels, centers
		}
	}
	return bestLabels, bestCenters
}

// lloyd alternates assignment and centroid updates until no label moves.
// Empty clusters keep their previous center.
func lloyd(data [][]float64, centers [][]float64, p Params) (Labels, [][]float64) {
	n, dim, k := len(data), len(data[0]), len(centers)
	labels := make(Labels, n)

	for iter := 0; iter < p.MaxIterations; iter++ {
		moved := 0
		for i, point := range data {
			best := nearestCenter(point, centers)
			if iter == 0 || labels[i] != best {
				moved++
			}
			labels[i] = best
		}

		newCenters := make([][]float64, k)
		sizes := make([]int, k)
		for c := range newCenters {
			newCenters[c] = make([]float64, dim)
		}
		for i, point := range data {
			floats.Add(newCenters[labels[i]], point)
			sizes[labels[i]]++
		}

		shift := 0.0
		for c := range newCenters {
			if sizes[c] == 0 {
				copy(newCenters[c], centers[c])
				continue
			}
			floats.Scale(1/float64(sizes[c]), newCenters[c])
			shift += floats.Distance(centers[c], newCenters[c], 2)
		}
		centers = newCenters

		if moved == 0 || (iter > 0 && shift < p.Tolerance) {
			break
		}
	}
	return labels, centers
}

func nearestCenter(point []float64, centers [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, center := range centers {
		if d := floats.Distance(point, center, 2); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// initializeCenters seeds k centers with k-means++
func initializeCenters(data [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(data)
	centers := make([][]float64, 0, k)
	centers = append(centers, append([]float64(nil), data[rng.Intn(n)]...))

	dists := make([]float64, n)
	for len(centers) < k {
		total := 0.0
		for j, point := range data {
			d := math.Inf(1)
			for _, c := range centers {
				d = math.Min(d, floats.Distance(point, c, 2))
			}
			dists[j] = d * d
			total += dists[j]
		}

		next := rng.Intn(n)
		if total > 0 {
			r := rng.Float64() * total
			cum := 0.0
			for j, d := range dists {
				cum += d
				if cum >= r && d > 0 {
					next = j
					break
				}
			}
		}
		centers = append(centers, append([]float64(nil), data[next]...))
	}
	return centers
}

// inertia is the within-cluster sum of squared distances
func inertia(data [][]float64, labels Labels, centers [][]float64) float64 {
	total := 0.0
	for i, point := range data {
		d := floats.Distance(point, centers[labels[i]], 2)
		total += d * d
	}
	return total
}

// bisectingKMeans repeatedly splits the cluster with the largest inertia in two
type bisectingKMeans struct{}

func (bisectingKMeans) Name() string { return string(BisectingKMeans) }

func (bisectingKMeans) Cluster(m features.Matrix, p Params) (Labels, error) {
	data := rows(m)
	rng := rand.New(rand.NewSource(p.Seed))
	return chooseK(m, p, func(k int) (Labels, error) {
		return bisect(data, k, p, rng), nil
	})
}

func bisect(data [][]float64, k int, p Params, rng *rand.Rand) Labels {
	labels := make(Labels, len(data))
	clusters := 1

	for clusters < k {
		target, worst := -1, -1.0
		for c := 0; c < clusters; c++ {
			members := membersOf(labels, c)
			if len(members) < 2 {
				continue
			}
			if sse := clusterSSE(data, members); sse > worst {
				target, worst = c, sse
			}
		}
		if target < 0 || worst <= 0 {
			break
		}

		members := membersOf(labels, target)
		subset := make([][]float64, len(members))
		for i, idx := range members {
			subset[i] = data[idx]
		}
		split, _ := bestKMeans(subset, 2, p, rng)
		for i, idx := range members {
			if split[i] == 1 {
				labels[idx] = clusters
			}
		}
		clusters++
	}
	return labels
}

func membersOf(labels Labels, c int) []int {
	var out []int
	for i, l := range labels {
		if l == c {
			out = append(out, i)
		}
	}
	return out
}

func clusterSSE(data [][]float64, members []int) float64 {
	center := make([]float64, len(data[0]))
	for _, i := range members {
		floats.Add(center, data[i])
	}
	floats.Scale(1/float64(len(members)), center)

	sse := 0.0
	for _, i := range members {
		d := floats.Distance(data[i], center, 2)
		sse += d * d
	}
	return sse
}

// gaussianMixture fits diagonal-covariance Gaussians by EM, seeded from k-means
//
// Reference: Bishop, C. M. (2006). "Pattern Recognition and Machine Learning"
type gaussianMixture struct{}

// regularization added to every variance
const gmmRegCovar = 1e-6

func (gaussianMixture) Name() string { return string(GaussianMixture) }

func (gaussianMixture) Cluster(m features.Matrix, p Params) (Labels, error) {
	data := rows(m)
	rng := rand.New(rand.NewSource(p.Seed))
	return chooseK(m, p, func(k int) (Labels, error) {
		return fitGMM(data, k, p, rng), nil
	})
}

func fitGMM(data [][]float64, k int, p Params, rng *rand.Rand) Labels {
	n, dim := len(data), len(data[0])
	init, _ := bestKMeans(data, k, p, rng)

	resp := make([][]float64, n)
	for i := range resp {
		resp[i] = make([]float64, k)
		resp[i][init[i]] = 1
	}

	means := make([][]float64, k)
	vars := make([][]float64, k)
	weights := make([]float64, k)
	for j := 0; j < k; j++ {
		means[j] = make([]float64, dim)
		vars[j] = make([]float64, dim)
	}

	prevLL := math.Inf(-1)
	logp := make([]float64, k)
	for round := 0; round < p.MaxIterations; round++ {
		// M-step
		for j := 0; j < k; j++ {
			nj := 0.0
			for i := 0; i < n; i++ {
				nj += resp[i][j]
			}
			weights[j] = (nj + 10*math.SmallestNonzeroFloat64) / float64(n)
			if nj <= 0 {
				continue
			}
			for d := 0; d < dim; d++ {
				mean := 0.0
				for i := 0; i < n; i++ {
					mean += resp[i][j] * data[i][d]
				}
				mean /= nj
				v := 0.0
				for i := 0; i < n; i++ {
					diff := data[i][d] - mean
					v += resp[i][j] * diff * diff
				}
				means[j][d] = mean
				vars[j][d] = v/nj + gmmRegCovar
			}
		}

		// E-step in log space
		ll := 0.0
		for i, x := range data {
			for j := 0; j < k; j++ {
				logp[j] = math.Log(weights[j]) + logDiagGaussian(x, means[j], vars[j])
			}
			norm := floats.LogSumExp(logp)
			ll += norm
			for j := 0; j < k; j++ {
				resp[i][j] = math.Exp(logp[j] - norm)
			}
		}

		if math.Abs(ll-prevLL) < p.Tolerance*float64(n) {
			break
		}
		prevLL = ll
	}

	labels := make(Labels, n)
	for i := 0; i < n; i++ {
		labels[i] = floats.MaxIdx(resp[i])
	}
	return labels
}

func logDiagGaussian(x, mean, variance []float64) float64 {
	s := 0.0
	for d := range x {
		if variance[d] <= 0 {
			continue
		}
		diff := x[d] - mean[d]
		s += math.Log(2*math.Pi*variance[d]) + diff*diff/variance[d]
	}
	return -0.5 * s
}

// meanShift moves every point to the mean of its flat-kernel neighbourhood
// and merges the modes closer than the bandwidth
//
// Reference: Comaniciu, D., & Meer, P. (2002). "Mean shift: a robust approach
// toward feature space analysis"
type meanShift struct{}

// bandwidthQuantile is the neighbour fraction used to estimate the bandwidth
const bandwidthQuantile = 0.3

func (meanShift) Name() string { return string(MeanShift) }

func (meanShift) Cluster(m features.Matrix, p Params) (Labels, error) {
	data := rows(m)
	n := len(data)

	bw := estimateBandwidth(data, bandwidthQuantile)
	if bw <= 0 {
		return make(Labels, n), nil
	}

	type mode struct {
		center []float64
		weight int
	}
	modes := make([]mode, 0, n)
	for _, seed := range data {
		center := append([]float64(nil), seed...)
		for round := 0; round < p.MaxIterations; round++ {
			next := make([]float64, len(center))
			count := 0
			for _, x := range data {
				if floats.Distance(x, center, 2) <= bw {
					floats.Add(next, x)
					count++
				}
			}
			if count == 0 {
				break
			}
			floats.Scale(1/float64(count), next)
			shift := floats.Distance(next, center, 2)
			center = next
			if shift < 1e-3*bw {
				break
			}
		}

		weight := 0
		for _, x := range data {
			if floats.Distance(x, center, 2) <= bw {
				weight++
			}
		}
		modes = append(modes, mode{center: center, weight: weight})
	}

	sort.SliceStable(modes, func(i, j int) bool { return modes[i].weight > modes[j].weight })

	var centers [][]float64
	for _, md := range modes {
		unique := true
		for _, c := range centers {
			if floats.Distance(md.center, c, 2) < bw {
				unique = false
				break
			}
		}
		if unique {
			centers = append(centers, md.center)
		}
	}

	labels := make(Labels, n)
	for i, x := range data {
		labels[i] = nearestCenter(x, centers)
	}
	return labels, nil
}

// estimateBandwidth averages each point's distance to its q*N-th nearest neighbour
func estimateBandwidth(data [][]float64, q float64) float64 {
	n := len(data)
	k := max(1, int(float64(n)*q))

	total := 0.0
	dists := make([]float64, n)
	for _, x := range data {
		for j, y := range data {
			dists[j] = floats.Distance(x, y, 2)
		}
		sort.Float64s(dists)
		total += dists[min(k, n-1)]
	}
	return total / float64(n)
}
