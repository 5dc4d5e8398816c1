package common

import (
	"math"
)

// Interpolator resamples arrays by linear interpolation at fractional indices
type Interpolator struct{}

// NewInterpolator creates a new interpolator
func NewInterpolator() *Interpolator {
	return &Interpolator{}
}

// Interpolate returns data at a fractional index, clamped to the ends
func (interp *Interpolator) Interpolate(data []float64, index float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	if index <= 0 {
		return data[0]
	}
	if index >= float64(len(data)-1) {
		return data[len(data)-1]
	}

	i := int(index)
	frac := index - float64(i)
	return data[i] + frac*(data[i+1]-data[i])
}

// InterpolateArray stretches or shrinks an array to newLength, keeping both endpoints
func (interp *Interpolator) InterpolateArray(data []float64, newLength int) []float64 {
	if len(data) == 0 || newLength <= 0 {
		return []float64{}
	}

	result := make([]float64, newLength)
	if newLength == len(data) {
		copy(result, data)
		return result
	}
	if newLength == 1 {
		result[0] = data[0]
		return result
	}

	ratio := float64(len(data)-1) / float64(newLength-1)
	for i := range result {
		result[i] = interp.Interpolate(data, float64(i)*ratio)
	}

	return result
}

// InterpolateColumns resamples the first axis of a frames x bins matrix to newFrames frames
func (interp *Interpolator) InterpolateColumns(frames [][]float64, newFrames int) [][]float64 {
	if len(frames) == 0 || newFrames <= 0 {
		return [][]float64{}
	}

	bins := len(frames[0])
	out := make([][]float64, newFrames)
	for i := range out {
		out[i] = make([]float64, bins)
	}

	column := make([]float64, len(frames))
	for b := 0; b < bins; b++ {
		for t := range frames {
			column[t] = frames[t][b]
		}
		stretched := interp.InterpolateArray(column, newFrames)
		for t := range out {
			out[t][b] = stretched[t]
		}
	}

	return out
}

// sinc is the normalized sinc function sin(pi x)/(pi x)
func sinc(x float64) float64 {
	if math.Abs(x) < 1e-12 {
		return 1.0
	}
	px := math.Pi * x
	return math.Sin(px) / px
}
