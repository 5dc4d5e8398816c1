package filters

import (
	"fmt"
	"math"
	"slices"
)

// DefaultButterworthOrder is the order of each of the high-pass and low-pass halves
const DefaultButterworthOrder = 4

// ButterworthBandpass is a band-pass made of a Butterworth high-pass at the lower
// edge cascaded with a Butterworth low-pass at the upper edge, both realised as
// biquad sections.
type ButterworthBandpass struct {
	sampleRate int
	lowFreq    float64
	highFreq   float64
	order      int
}

// NewButterworthBandpass designs a band-pass for [lowFreq, highFreq] Hz.
// order must be even and positive; it applies to each edge.
func NewButterworthBandpass(sampleRate int, lowFreq, highFreq float64, order int) (*ButterworthBandpass, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if lowFreq <= 0 {
		return nil, fmt.Errorf("lower cutoff must be positive, got %g Hz", lowFreq)
	}
	if lowFreq >= highFreq {
		return nil, fmt.Errorf("lower cutoff %g Hz must be below upper cutoff %g Hz", lowFreq, highFreq)
	}
	if highFreq >= float64(sampleRate)/2 {
		return nil, fmt.Errorf("upper cutoff %g Hz must be below Nyquist (%g Hz)", highFreq, float64(sampleRate)/2)
	}
	if order <= 0 || order%2 != 0 {
		return nil, fmt.Errorf("order must be even and positive, got %d", order)
	}

	return &ButterworthBandpass{
		sampleRate: sampleRate,
		lowFreq:    lowFreq,
		highFreq:   highFreq,
		order:      order,
	}, nil
}

// ButterworthQ returns the quality factors of the order/2 biquads of a Butterworth filter
func ButterworthQ(order int) []float64 {
	qs := make([]float64, order/2)
	for k := range qs {
		theta := math.Pi * float64(2*k+1) / float64(2*order)
		qs[k] = 1 / (2 * math.Cos(theta))
	}
	return qs
}

// sections builds a fresh cascade; biquads carry state so each pass gets its own
func (bp *ButterworthBandpass) sections() []*Biquad {
	qs := ButterworthQ(bp.order)
	out := make([]*Biquad, 0, 2*len(qs))
	for _, q := range qs {
		out = append(out, NewBiquad(Highpass, bp.sampleRate, bp.lowFreq, q))
	}
	for _, q := range qs {
		out = append(out, NewBiquad(Lowpass, bp.sampleRate, bp.highFreq, q))
	}
	return out
}

// Apply runs the cascade causally over signal
func (bp *ButterworthBandpass) Apply(signal []float64) []float64 {
	out := slices.Clone(signal)
	for _, s := range bp.sections() {
		for i, v := range out {
			out[i] = s.Process(v)
		}
	}
	return out
}

// FrequencyResponse returns the single-pass magnitude of the cascade at frequency Hz
func (bp *ButterworthBandpass) FrequencyResponse(frequency float64) float64 {
	mag := 1.0
	for _, s := range bp.sections() {
		m, _ := s.FrequencyResponse(frequency)
		mag *= m
	}
	return mag
}

// padLength is the reflected edge length used by FiltFilt
func (bp *ButterworthBandpass) padLength(n int) int {
	pad := max(3*(2*bp.order+1), int(math.Ceil(4*float64(bp.sampleRate)/bp.lowFreq)))
	return min(pad, n-1)
}

// FiltFilt applies the filter forward then backward, giving zero phase and the
// squared magnitude response. The output has the same length as the input.
// Edges are extended by odd reflection to limit start-up transients.
func (bp *ButterworthBandpass) FiltFilt(signal []float64) []float64 {
	n := len(signal)
	if n == 0 {
		return []float64{}
	}
	if n == 1 {
		return bp.Apply(signal)
	}

	pad := bp.padLength(n)
	ext := oddExtend(signal, pad)

	forward := bp.Apply(ext)
	slices.Reverse(forward)
	backward := bp.Apply(forward)
	slices.Reverse(backward)

	return backward[pad : pad+n]
}

// oddExtend mirrors pad samples around each end point: 2*x[0]-x[k] before, 2*x[n-1]-x[n-1-k] after
func oddExtend(x []float64, pad int) []float64 {
	n := len(x)
	out := make([]float64, n+2*pad)
	for k := 1; k <= pad; k++ {
		out[pad-k] = 2*x[0] - x[k]
		out[pad+n-1+k] = 2*x[n-1] - x[n-1-k]
	}
	copy(out[pad:], x)
	return out
}
