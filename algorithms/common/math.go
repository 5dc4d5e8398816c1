package common

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic statistical helpers shared by the analysis stages, backed by gonum

// Mean calculates the arithmetic mean of a slice
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// Median returns the middle value, averaging the two central values for even lengths
func Median(data []float64) float64 {
	n := len(data)
	if n == 0 {
		return 0.0
	}

	sorted := make([]float64, n)
	copy(sorted, data)
	sort.Float64s(sorted)

	if n%2 == 1 {
		return sorted[n/2]
	}
	return 0.5 * (sorted[n/2-1] + sorted[n/2])
}

// Max returns the maximum of data, or -Inf for an empty slice
func Max(data []float64) float64 {
	if len(data) == 0 {
		return math.Inf(-1)
	}
	return floats.Max(data)
}

// SubtractMean returns a copy of data with its mean removed
func SubtractMean(data []float64) []float64 {
	out := make([]float64, len(data))
	copy(out, data)
	floats.AddConst(-Mean(data), out)
	return out
}

// Clamp constrains a value to a range
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// ClampInt constrains an integer to a range
func ClampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// NextMultiple rounds n up to a multiple of m
func NextMultiple(n, m int) int {
	if m <= 0 {
		return n
	}
	if r := n % m; r != 0 {
		return n + m - r
	}
	return n
}
