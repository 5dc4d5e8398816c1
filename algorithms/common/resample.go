package common

import (
	"math"

	"github.com/reefpulse/LagoPObs/algorithms/windowing"
)

const (
	defaultResampleZeros = 16
	defaultKaiserBeta    = 8.6
)

// Resampler performs band-limited resampling with a Kaiser-windowed sinc kernel.
// When downsampling, the kernel cutoff follows the output Nyquist so the result
// is anti-aliased.
type Resampler struct {
	zeros  int
	kaiser *windowing.Kaiser
}

// NewResampler creates a resampler whose kernel spans zeros sinc zero-crossings per side
func NewResampler(zeros int, beta float64) *Resampler {
	if zeros <= 0 {
		zeros = defaultResampleZeros
	}
	if beta <= 0 {
		beta = defaultKaiserBeta
	}
	return &Resampler{
		zeros:  zeros,
		kaiser: windowing.NewKaiser(2*zeros+1, beta, true),
	}
}

// NewDefaultResampler returns a resampler with 16 zero-crossings and beta 8.6
func NewDefaultResampler() *Resampler {
	return NewResampler(defaultResampleZeros, defaultKaiserBeta)
}

// ResampledLength is the output length for n input samples: ceil(n * target / original)
func ResampledLength(n, originalRate, targetRate int) int {
	if n <= 0 || originalRate <= 0 || targetRate <= 0 {
		return 0
	}
	if originalRate == targetRate {
		return n
	}
	return int(math.Ceil(float64(n) * float64(targetRate) / float64(originalRate)))
}

// ResampleSignal resamples signal from originalRate to targetRate. The input is never modified.
func (r *Resampler) ResampleSignal(signal []float64, originalRate, targetRate int) []float64 {
	if len(signal) == 0 || originalRate <= 0 || targetRate <= 0 {
		return []float64{}
	}

	if originalRate == targetRate {
		out := make([]float64, len(signal))
		copy(out, signal)
		return out
	}

	outLen := ResampledLength(len(signal), originalRate, targetRate)
	step := float64(originalRate) / float64(targetRate)

	// cutoff relative to the input Nyquist
	cutoff := math.Min(1.0, float64(targetRate)/float64(originalRate))
	halfWidth := float64(r.zeros) / cutoff

	out := make([]float64, outLen)
	for m := range out {
		t := float64(m) * step
		lo := max(0, int(math.Ceil(t-halfWidth)))
		hi := min(len(signal)-1, int(math.Floor(t+halfWidth)))

		acc := 0.0
		for k := lo; k <= hi; k++ {
			d := t - float64(k)
			acc += signal[k] * cutoff * sinc(cutoff*d) * r.kaiser.Value(d/halfWidth)
		}
		out[m] = acc
	}

	return out
}
