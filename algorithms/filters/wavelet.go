package filters

import (
	"math"

	"github.com/reefpulse/LagoPObs/algorithms/common"
)

// db4 scaling (low-pass decomposition) filter
var daubechies4 = []float64{
	0.23037781330885523,
	0.7148465705525415,
	0.6308807679295904,
	-0.02798376941698385,
	-0.18703481171888114,
	0.030841381835986965,
	0.032883011666982945,
	-0.010597401784997278,
}

// ThresholdMode selects how detail coefficients are shrunk
type ThresholdMode int

const (
	SoftThreshold ThresholdMode = iota
	HardThreshold
)

// WaveletDenoiser removes broadband noise by shrinking the detail coefficients
// of a multilevel periodic Daubechies-4 transform. The threshold is the universal
// (VisuShrink) one, sigma*sqrt(2 ln n), with sigma estimated from the finest level.
type WaveletDenoiser struct {
	maxLevel int
	mode     ThresholdMode
	lowpass  []float64
	highpass []float64
}

// NewWaveletDenoiser creates a denoiser limited to maxLevel decomposition levels
func NewWaveletDenoiser(maxLevel int, mode ThresholdMode) *WaveletDenoiser {
	if maxLevel <= 0 {
		maxLevel = 5
	}

	h := daubechies4
	g := make([]float64, len(h))
	for k := range h {
		sign := 1.0
		if k%2 == 1 {
			sign = -1.0
		}
		g[k] = sign * h[len(h)-1-k]
	}

	return &WaveletDenoiser{
		maxLevel: maxLevel,
		mode:     mode,
		lowpass:  h,
		highpass: g,
	}
}

// Levels returns the number of decomposition levels used for a signal of length n
func (w *WaveletDenoiser) Levels(n int) int {
	filterLen := len(w.lowpass)
	if n < filterLen {
		return 0
	}
	level := int(math.Floor(math.Log2(float64(n) / float64(filterLen-1))))
	return common.ClampInt(level, 0, w.maxLevel)
}

// Denoise returns a denoised copy of signal with exactly the same length
func (w *WaveletDenoiser) Denoise(signal []float64) []float64 {
	n := len(signal)
	levels := w.Levels(n)
	if levels == 0 {
		return append([]float64(nil), signal...)
	}

	// periodic transform needs a length divisible by 2^levels
	padded := make([]float64, common.NextMultiple(n, 1<<levels))
	copy(padded, signal)

	approx, details := w.Decompose(padded, levels)

	sigma := common.Median(absAll(details[0])) / 0.6745
	threshold := sigma * math.Sqrt(2*math.Log(float64(len(padded))))
	for _, d := range details {
		w.shrink(d, threshold)
	}

	return w.Reconstruct(approx, details)[:n]
}

// Decompose runs a periodic multilevel DWT. details[0] is the finest level.
func (w *WaveletDenoiser) Decompose(signal []float64, levels int) ([]float64, [][]float64) {
	approx := append([]float64(nil), signal...)
	details := make([][]float64, 0, levels)

	for iter := 0; iter < levels; iter++ {
		a, d := w.analysisStep(approx)
		details = append(details, d)
		approx = a
	}

	return approx, details
}

// Reconstruct inverts Decompose
func (w *WaveletDenoiser) Reconstruct(approx []float64, details [][]float64) []float64 {
	out := approx
	for lvl := len(details) - 1; lvl >= 0; lvl-- {
		out = w.synthesisStep(out, details[lvl])
	}
	return out
}

func (w *WaveletDenoiser) analysisStep(x []float64) (approx, detail []float64) {
	n := len(x)
	half := n / 2
	approx = make([]float64, half)
	detail = make([]float64, half)

	for i := 0; i < half; i++ {
		var a, d float64
		for k := range w.lowpass {
			v := x[(2*i+k)%n]
			a += w.lowpass[k] * v
			d += w.highpass[k] * v
		}
		approx[i] = a
		detail[i] = d
	}

	return approx, detail
}

func (w *WaveletDenoiser) synthesisStep(approx, detail []float64) []float64 {
	n := 2 * len(approx)
	out := make([]float64, n)

	for i := range approx {
		for k := range w.lowpass {
			out[(2*i+k)%n] += w.lowpass[k]*approx[i] + w.highpass[k]*detail[i]
		}
	}

	return out
}

func (w *WaveletDenoiser) shrink(coeffs []float64, threshold float64) {
	for i, c := range coeffs {
		mag := math.Abs(c)
		switch {
		case mag <= threshold:
			coeffs[i] = 0
		case w.mode == SoftThreshold:
			coeffs[i] = math.Copysign(mag-threshold, c)
		}
	}
}

func absAll(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Abs(v)
	}
	return out
}
