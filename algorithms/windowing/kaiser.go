package windowing

import (
	"fmt"
	"math"
)

// Kaiser represents a Kaiser window function. Besides the usual sampled
// coefficients it can be evaluated continuously, which the sinc resampler needs.
type Kaiser struct {
	size         int
	beta         float64
	symmetric    bool
	i0Beta       float64
	coefficients []float64
}

// NewKaiser creates a new Kaiser window
func NewKaiser(size int, beta float64, symmetric bool) *Kaiser {
	k := &Kaiser{
		size:      size,
		beta:      beta,
		symmetric: symmetric,
		i0Beta:    BesselI0(beta),
	}
	k.generate()
	return k
}

func (k *Kaiser) generate() {
	k.coefficients = make([]float64, k.size)
	if k.size == 1 {
		k.coefficients[0] = 1.0
		return
	}

	denominator := float64(k.size)
	if k.symmetric {
		denominator = float64(k.size - 1)
	}

	for i := 0; i < k.size; i++ {
		k.coefficients[i] = k.Value(2.0*float64(i)/denominator - 1.0)
	}
}

// Value evaluates the window at x in [-1, 1]; outside that range it is zero
func (k *Kaiser) Value(x float64) float64 {
	if x < -1 || x > 1 {
		return 0.0
	}
	return BesselI0(k.beta*math.Sqrt(1-x*x)) / k.i0Beta
}

// BesselI0 computes the zero-order modified Bessel function of the first kind
func BesselI0(x float64) float64 {
	sum := 1.0
	term := 1.0

	for i := 1; i < 50; i++ {
		term *= (x / (2.0 * float64(i))) * (x / (2.0 * float64(i)))
		sum += term
		if term < 1e-12*sum {
			break
		}
	}

	return sum
}

// ApplyInPlace applies the window to a signal in-place
func (k *Kaiser) ApplyInPlace(signal []float64) error {
	if len(signal) != k.size {
		return fmt.Errorf("signal length (%d) doesn't match window size (%d)", len(signal), k.size)
	}

	for i := range signal {
		signal[i] *= k.coefficients[i]
	}

	return nil
}

// GetCoefficients returns a copy of the window coefficients
func (k *Kaiser) GetCoefficients() []float64 {
	coeffs := make([]float64, len(k.coefficients))
	copy(coeffs, k.coefficients)
	return coeffs
}

// GetSize returns the window size
func (k *Kaiser) GetSize() int {
	return k.size
}

// GetBeta returns the Kaiser beta parameter
func (k *Kaiser) GetBeta() float64 {
	return k.beta
}
