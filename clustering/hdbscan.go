package clustering

import (
	"math"
	"sort"

	"github.com/reefpulse/LagoPObs/features"
)

// hdbscan builds the single-linkage tree of the mutual reachability graph,
// condenses it with MinClusterSize and selects clusters by excess of mass
//
// Reference: Campello, R. J. G. B., Moulavi, D., & Sander, J. (2013).
// "Density-based clustering based on hierarchical density estimates"
type hdbscan struct{}

func (hdbscan) Name() string { return string(HDBSCAN) }

// condensedEdge links a cluster to a child cluster or a single point
type condensedEdge struct {
	parent, child int
	lambda        float64
	size          int
}

// linkNode is an internal node of the single-linkage tree
type linkNode struct {
	left, right int
	dist        float64
	size        int
}

func (hdbscan) Cluster(m features.Matrix, p Params) (Labels, error) {
	n := m.Size()
	minSize := min(p.MinClusterSize, n)

	mr := mutualReachability(m, minSize)
	tree := singleLinkage(mstPrim(mr), n)
	edges := condense(tree, n, minSize)
	selected := selectEOM(edges, n)
	return labelPoints(edges, selected, n), nil
}

// mutualReachability returns max(core(a), core(b), d(a,b)), the core
// distance being the distance to the minSamples-th nearest point, self included
func mutualReachability(m features.Matrix, minSamples int) [][]float64 {
	n := m.Size()
	core := make([]float64, n)
	for i := 0; i < n; i++ {
		core[i] = sortedRow(m, i)[min(minSamples, n)-1]
	}

	mr := newSquare(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				mr[i][j] = math.Max(m[i][j], math.Max(core[i], core[j]))
			}
		}
	}
	return mr
}

type mstEdge struct {
	a, b int
	w    float64
}

// mstPrim computes the minimum spanning tree of a dense graph
func mstPrim(w [][]float64) []mstEdge {
	n := len(w)
	inTree := make([]bool, n)
	best := make([]float64, n)
	from := make([]int, n)
	for i := range best {
		best[i] = math.Inf(1)
	}

	edges := make([]mstEdge, 0, n-1)
	cur := 0
	inTree[0] = true
	for iter := 0; iter < n-1; iter++ {
		for j := 0; j < n; j++ {
			if !inTree[j] && w[cur][j] < best[j] {
				best[j], from[j] = w[cur][j], cur
			}
		}
		next := -1
		for j := 0; j < n; j++ {
			if !inTree[j] && (next < 0 || best[j] < best[next]) {
				next = j
			}
		}
		inTree[next] = true
		edges = append(edges, mstEdge{a: from[next], b: next, w: best[next]})
		cur = next
	}

	sort.SliceStable(edges, func(i, j int) bool { return edges[i].w < edges[j].w })
	return edges
}

// singleLinkage turns sorted MST edges into a dendrogram. Leaves are 0..n-1,
// internal node i is stored at index i-n.
func singleLinkage(edges []mstEdge, n int) []linkNode {
	parent := make([]int, 2*n-1)
	for i := range parent {
		parent[i] = i
	}
	find := func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	sizeOf := func(nodes []linkNode, x int) int {
		if x < n {
			return 1
		}
		return nodes[x-n].size
	}

	nodes := make([]linkNode, 0, n-1)
	for _, e := range edges {
		ra, rb := find(e.a), find(e.b)
		id := n + len(nodes)
		nodes = append(nodes, linkNode{
			left:  ra,
			right: rb,
			dist:  e.w,
			size:  sizeOf(nodes, ra) + sizeOf(nodes, rb),
		})
		parent[ra], parent[rb] = id, id
	}
	return nodes
}

// condense walks the dendrogram from the root. Splits into two children of
// at least minSize start new clusters, smaller children shed their points.
// Cluster ids start at n (the root) and grow downwards.
func condense(nodes []linkNode, n, minSize int) []condensedEdge {
	if len(nodes) == 0 {
		return nil
	}

	root := n + len(nodes) - 1
	relabel := map[int]int{root: n}
	nextID := n + 1

	var edges []condensedEdge
	leaves := func(node int) []int {
		var out []int
		stack := []int{node}
		for len(stack) > 0 {
			x := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if x < n {
				out = append(out, x)
				continue
			}
			stack = append(stack, nodes[x-n].left, nodes[x-n].right)
		}
		return out
	}
	size := func(x int) int {
		if x < n {
			return 1
		}
		return nodes[x-n].size
	}

	queue := []int{root}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if node < n {
			continue
		}

		nd := nodes[node-n]
		cluster := relabel[node]
		lambda := 1 / math.Max(nd.dist, 1e-12)
		left, right := nd.left, nd.right
		lSize, rSize := size(left), size(right)

		switch {
		case lSize >= minSize && rSize >= minSize:
			for _, child := range []int{left, right} {
				relabel[child] = nextID
				edges = append(edges, condensedEdge{parent: cluster, child: nextID, lambda: lambda, size: size(child)})
				nextID++
				queue = append(queue, child)
			}
		case lSize < minSize && rSize < minSize:
			for _, child := range []int{left, right} {
				for _, pt := range leaves(child) {
					edges = append(edges, condensedEdge{parent: cluster, child: pt, lambda: lambda, size: 1})
				}
			}
		default:
			big, small := left, right
			if lSize < minSize {
				big, small = right, left
			}
			for _, pt := range leaves(small) {
				edges = append(edges, condensedEdge{parent: cluster, child: pt, lambda: lambda, size: 1})
			}
			relabel[big] = cluster
			queue = append(queue, big)
		}
	}
	return edges
}

// selectEOM returns the selected cluster ids. The root is never selected.
func selectEOM(edges []condensedEdge, n int) map[int]bool {
	birth := map[int]float64{n: 0}
	children := make(map[int][]int)
	maxID := n
	for _, e := range edges {
		if e.child >= n {
			birth[e.child] = e.lambda
			children[e.parent] = append(children[e.parent], e.child)
			maxID = max(maxID, e.child)
		}
	}

	stability := make(map[int]float64)
	for _, e := range edges {
		stability[e.parent] += (e.lambda - birth[e.parent]) * float64(e.size)
	}

	selected := make(map[int]bool)
	// children always carry larger ids than their parent
	for c := maxID; c > n; c-- {
		if _, ok := birth[c]; !ok {
			continue
		}
		childSum := 0.0
		for _, ch := range children[c] {
			childSum += stability[ch]
		}
		if len(children[c]) == 0 || stability[c] >= childSum {
			selected[c] = true
			unselectBelow(c, children, selected)
		} else {
			stability[c] = childSum
		}
	}
	return selected
}

func unselectBelow(c int, children map[int][]int, selected map[int]bool) {
	for _, ch := range children[c] {
		delete(selected, ch)
		unselectBelow(ch, children, selected)
	}
}

// labelPoints gives each point the selected cluster above it, or Noise
func labelPoints(edges []condensedEdge, selected map[int]bool, n int) Labels {
	clusterParent := make(map[int]int)
	pointParent := make(map[int]int)
	for _, e := range edges {
		if e.child >= n {
			clusterParent[e.child] = e.parent
		} else {
			pointParent[e.child] = e.parent
		}
	}

	labels := make(Labels, n)
	for i := 0; i < n; i++ {
		labels[i] = Noise
		c, ok := pointParent[i]
		for ok {
			if selected[c] {
				labels[i] = c
				break
			}
			c, ok = clusterParent[c]
		}
	}
	return labels
}
