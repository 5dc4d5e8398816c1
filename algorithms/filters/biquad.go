package filters

import (
	"math"
)

// BiquadType selects the cookbook response of a biquad section
type BiquadType int

const (
	Lowpass BiquadType = iota
	Highpass
	Bandpass
)

// Biquad is a second order IIR section designed with Robert Bristow-Johnson's
// "Cookbook formulae for audio EQ biquad filter coefficients".
// Reference: https://webaudio.github.io/Audio-EQ-Cookbook/audio-eq-cookbook.html
type Biquad struct {
	kind       BiquadType
	sampleRate int
	freq       float64
	qFactor    float64

	// Normalized coefficients (a0 == 1)
	b0, b1, b2 float64
	a1, a2     float64

	// Transposed direct form II state
	z1, z2 float64
}

// NewBiquad creates a biquad section of the given type at freq Hz with quality factor q
func NewBiquad(kind BiquadType, sampleRate int, freq, q float64) *Biquad {
	bq := &Biquad{
		kind:       kind,
		sampleRate: sampleRate,
		freq:       freq,
		qFactor:    q,
	}
	bq.computeCoefficients()
	return bq
}

func (bq *Biquad) computeCoefficients() {
	w0 := 2.0 * math.Pi * bq.freq / float64(bq.sampleRate)

	// Prevent numerical issues at Nyquist
	if w0 >= math.Pi {
		w0 = math.Pi * 0.99
	}

	cosW0 := math.Cos(w0)
	alpha := math.Sin(w0) / (2.0 * bq.qFactor)

	var b0, b1, b2 float64
	switch bq.kind {
	case Highpass:
		b0 = (1 + cosW0) / 2
		b1 = -(1 + cosW0)
		b2 = (1 + cosW0) / 2
	case Bandpass:
		b0 = alpha
		b1 = 0
		b2 = -alpha
	default:
		b0 = (1 - cosW0) / 2
		b1 = 1 - cosW0
		b2 = (1 - cosW0) / 2
	}
	a0 := 1 + alpha

	bq.b0 = b0 / a0
	bq.b1 = b1 / a0
	bq.b2 = b2 / a0
	bq.a1 = -2 * cosW0 / a0
	bq.a2 = (1 - alpha) / a0
}

// Process filters a single sample.
//
//	y[n] = b0*x[n] + z1
//	z1   = b1*x[n] - a1*y[n] + z2
//	z2   = b2*x[n] - a2*y[n]
func (bq *Biquad) Process(input float64) float64 {
	output := bq.b0*input + bq.z1
	bq.z1 = bq.b1*input - bq.a1*output + bq.z2
	bq.z2 = bq.b2*input - bq.a2*output
	return output
}

// ProcessBuffer filters a whole buffer into a new slice
func (bq *Biquad) ProcessBuffer(input []float64) []float64 {
	output := make([]float64, len(input))
	for i, sample := range input {
		output[i] = bq.Process(sample)
	}
	return output
}

// Reset clears the filter state
func (bq *Biquad) Reset() {
	bq.z1, bq.z2 = 0.0, 0.0
}

// FrequencyResponse returns the magnitude and phase (radians) of the section at frequency Hz.
func (bq *Biquad) FrequencyResponse(frequency float64) (magnitude, phase float64) {
	w := 2.0 * math.Pi * frequency / float64(bq.sampleRate)

	cosW, sinW := math.Cos(w), math.Sin(w)
	cos2W, sin2W := math.Cos(2*w), math.Sin(2*w)

	numReal := bq.b0 + bq.b1*cosW + bq.b2*cos2W
	numImag := -bq.b1*sinW - bq.b2*sin2W

	denReal := 1 + bq.a1*cosW + bq.a2*cos2W
	denImag := -bq.a1*sinW - bq.a2*sin2W

	denMagSq := denReal*denReal + denImag*denImag

	hReal := (numReal*denReal + numImag*denImag) / denMagSq
	hImag := (numImag*denReal - numReal*denImag) / denMagSq

	return math.Hypot(hReal, hImag), math.Atan2(hImag, hReal)
}

// GetCoefficients returns b0, b1, b2, a1, a2 (a0 is normalized to 1)
func (bq *Biquad) GetCoefficients() (b0, b1, b2, a1, a2 float64) {
	return bq.b0, bq.b1, bq.b2, bq.a1, bq.a2
}
