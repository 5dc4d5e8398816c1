package temporal

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// Envelope provides amplitude envelope extraction
type Envelope struct{}

// NewEnvelope creates a new envelope extractor
func NewEnvelope() *Envelope {
	return &Envelope{}
}

// AnalyticSignal returns x + i*H(x) computed in the frequency domain:
// negative frequencies are zeroed and positive ones doubled.
func (e *Envelope) AnalyticSignal(signal []float64) []complex128 {
	n := len(signal)
	if n == 0 {
		return []complex128{}
	}

	spectrum := fft.FFTReal(signal)

	half := n / 2
	for k := 1; k < n; k++ {
		switch {
		case k < half || (n%2 == 1 && k == half):
			spectrum[k] *= 2
		case n%2 == 0 && k == half:
			// Nyquist bin is kept as is
		default:
			spectrum[k] = 0
		}
	}

	return fft.IFFT(spectrum)
}

// ComputeHilbert computes the amplitude envelope as the magnitude of the analytic signal
func (e *Envelope) ComputeHilbert(signal []float64) []float64 {
	analytic := e.AnalyticSignal(signal)

	envelope := make([]float64, len(analytic))
	for i, z := range analytic {
		envelope[i] = cmplx.Abs(z)
	}

	return envelope
}
