package features

import "math"

// Bresenham circle of radius 3 used by FAST, clockwise from the top
var fastCircle = [16][2]int{
	{0, -3}, {1, -3}, {2, -2}, {3, -1},
	{3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1},
	{-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

// fastArc is the number of contiguous circle pixels required (FAST-9)
const fastArc = 9

type corner struct {
	x, y  int
	score float64
}

// fastDetect runs FAST-9 with non-maximum suppression, ignoring a border of margin pixels
func fastDetect(p *plane, threshold float64, margin int) []corner {
	margin = max(margin, 3)
	if p.w <= 2*margin || p.h <= 2*margin {
		return nil
	}

	scores := make([]float64, p.w*p.h)
	for y := margin; y < p.h-margin; y++ {
		for x := margin; x < p.w-margin; x++ {
			scores[y*p.w+x] = fastScore(p, x, y, threshold)
		}
	}

	var corners []corner
	for y := margin; y < p.h-margin; y++ {
		for x := margin; x < p.w-margin; x++ {
			s := scores[y*p.w+x]
			if s <= 0 || !isLocalMax(scores, p.w, x, y, s) {
				continue
			}
			corners = append(corners, corner{x: x, y: y, score: s})
		}
	}
	return corners
}

// isLocalMax breaks ties in favour of the first pixel in scan order
func isLocalMax(scores []float64, w, x, y int, s float64) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			n := scores[(y+dy)*w+x+dx]
			before := dy < 0 || (dy == 0 && dx < 0)
			if n > s || (before && n == s) {
				return false
			}
		}
	}
	return true
}

// fastScore returns 0 when (x, y) is not a corner, otherwise the sum of the
// absolute differences exceeding the threshold around the circle
func fastScore(p *plane, x, y int, threshold float64) float64 {
	c := p.at(x, y)

	var state [16]int8
	for i, off := range fastCircle {
		v := p.at(x+off[0], y+off[1])
		switch {
		case v > c+threshold:
			state[i] = 1
		case v < c-threshold:
			state[i] = -1
		}
	}

	if !hasArc(state, 1) && !hasArc(state, -1) {
		return 0
	}

	score := 0.0
	for _, off := range fastCircle {
		score += math.Max(0, math.Abs(p.at(x+off[0], y+off[1])-c)-threshold)
	}
	return score
}

func hasArc(state [16]int8, want int8) bool {
	run := 0
	for i := 0; i < 16+fastArc-1; i++ {
		if state[i%16] == want {
			run++
			if run >= fastArc {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

// harrisResponse computes det(M) - k*trace(M)^2 over a block centred on (x, y)
func harrisResponse(p *plane, x, y, blockSize int) float64 {
	const k = 0.04
	r := blockSize / 2

	var sxx, syy, sxy float64
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			gx, gy := p.scharr(x+dx, y+dy)
			sxx += gx * gx
			syy += gy * gy
			sxy += gx * gy
		}
	}

	det := sxx*syy - sxy*sxy
	trace := sxx + syy
	return det - k*trace*trace
}
