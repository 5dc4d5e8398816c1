package spectral

import (
	"math"

	"github.com/mjibson/go-dsp/fft"
)

// FFT provides Fast Fourier Transform functionality backed by mjibson/go-dsp
type FFT struct{}

// NewFFT creates a new FFT calculator
func NewFFT() *FFT {
	return &FFT{}
}

// Compute computes the FFT of a real signal. go-dsp handles non power of two sizes.
func (f *FFT) Compute(x []float64) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}
	return fft.FFTReal(x)
}

// ComputeInverseReal computes inverse FFT and returns real part only
func (f *FFT) ComputeInverseReal(x []complex128) []float64 {
	if len(x) == 0 {
		return []float64{}
	}

	result := fft.IFFT(x)
	realResult := make([]float64, len(result))
	for i, val := range result {
		realResult[i] = real(val)
	}

	return realResult
}

// BinFrequency returns the centre frequency of bin k
func BinFrequency(k, windowSize, sampleRate int) float64 {
	return float64(k) * float64(sampleRate) / float64(windowSize)
}

// BandBins returns the inclusive bin range [lo, hi] whose centre frequencies fall in [fLow, fHigh].
// hi < lo means the band holds no bin.
func BandBins(fLow, fHigh float64, windowSize, sampleRate int) (lo, hi int) {
	maxBin := windowSize / 2
	res := float64(sampleRate) / float64(windowSize)

	lo = int(math.Ceil(fLow/res - 1e-9))
	hi = int(math.Floor(fHigh/res + 1e-9))
	lo = max(lo, 0)
	hi = min(hi, maxBin)
	return lo, hi
}
