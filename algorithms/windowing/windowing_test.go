package windowing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHannShape(t *testing.T) {
	h := NewHann(8, false)
	c := h.GetCoefficients()

	require.Len(t, c, 8)
	assert.InDelta(t, 0.0, c[0], 1e-12)
	assert.InDelta(t, 1.0, c[4], 1e-12)
	assert.InDelta(t, c[1], c[7], 1e-12)
	assert.InDelta(t, 4.0, h.Sum(), 1e-9)
}

func TestHannApplyInPlaceSizeMismatch(t *testing.T) {
	h := NewHann(4, true)
	assert.Error(t, h.ApplyInPlace(make([]float64, 3)))
}

func TestKaiserValue(t *testing.T) {
	k := NewKaiser(33, 8.6, true)

	assert.InDelta(t, 1.0, k.Value(0), 1e-12)
	assert.Equal(t, 0.0, k.Value(1.5))
	assert.InDelta(t, k.Value(-0.3), k.Value(0.3), 1e-12)
	assert.Less(t, k.Value(0.9), k.Value(0.5))

	c := k.GetCoefficients()
	assert.InDelta(t, 1.0, c[16], 1e-12)
}

func TestBesselI0(t *testing.T) {
	assert.InDelta(t, 1.0, BesselI0(0), 1e-12)
	assert.InDelta(t, 1.2660658777520082, BesselI0(1), 1e-9)
	assert.InDelta(t, 27.239871823604442, BesselI0(5), 1e-6)
}
