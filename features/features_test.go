package features

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/floats"

	"github.com/reefpulse/LagoPObs/spectrogram"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// texturedImage paints seeded Gaussian blobs and bars, giving every detector
// corners and blobs to work with
func texturedImage(w, h int, seed int64) *spectrogram.Image {
	rng := rand.New(rand.NewSource(seed))
	img := spectrogram.NewImage(w, h, h/2)

	for iter := 0; iter < 40; iter++ {
		cx, cy := rng.Float64()*float64(w), rng.Float64()*float64(h)
		sigma := 1.5 + rng.Float64()*3
		amp := 0.3 + rng.Float64()*0.7
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dx, dy := float64(x)-cx, float64(y)-cy
				v := img.At(x, y) + amp*math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma))
				img.Set(x, y, math.Min(1, v))
			}
		}
	}
	for iter := 0; iter < 10; iter++ {
		x0, y0 := rng.Intn(w-10), rng.Intn(h-4)
		for y := y0; y < y0+3; y++ {
			for x := x0; x < x0+10; x++ {
				img.Set(x, y, 1)
			}
		}
	}
	return img
}

func binarySet(patterns ...byte) *KeypointSet {
	set := &KeypointSet{Kind: Binary, Bits: 256, MaxDistance: 256}
	for i, p := range patterns {
		desc := make([]byte, 32)
		for k := range desc {
			desc[k] = p
		}
		set.Keypoints = append(set.Keypoints, Keypoint{X: float64(i)})
		set.BinaryDescriptors = append(set.BinaryDescriptors, desc)
	}
	return set
}

func TestParseAlgorithm(t *testing.T) {
	for _, alg := range Algorithms {
		got, err := ParseAlgorithm(string(alg))
		require.NoError(t, err)
		assert.Equal(t, alg, got)
	}

	got, err := ParseAlgorithm("  orb CUSTOM ")
	require.NoError(t, err)
	assert.Equal(t, ORBCustom, got)

	_, err = ParseAlgorithm("SURF")
	assert.Error(t, err)
}

func TestAlgorithmKind(t *testing.T) {
	assert.Equal(t, Float, SIFT.Kind())
	assert.Equal(t, Float, KAZE.Kind())
	assert.Equal(t, Binary, ORB.Kind())
	assert.Equal(t, Binary, ORBCustom.Kind())
	assert.Equal(t, Binary, AKAZE.Kind())
}

func TestDistances(t *testing.T) {
	assert.Equal(t, 0, Hamming([]byte{0xAA, 0x0F}, []byte{0xAA, 0x0F}))
	assert.Equal(t, 12, Hamming([]byte{0x00, 0x0F}, []byte{0xFF, 0xFF}))
	assert.InDelta(t, 5.0, L2([]float64{0, 0}, []float64{3, 4}), 1e-12)
}

func TestCrossCheckMatchIsMutual(t *testing.T) {
	a := binarySet(0x00, 0xFF)
	b := binarySet(0x01)

	matches := CrossCheckMatch(a, b)
	require.Len(t, matches, 1)
	assert.Equal(t, 0, matches[0].QueryIdx)
	assert.Equal(t, 0, matches[0].TrainIdx)
	assert.Equal(t, 32.0, matches[0].Distance)
}

func TestCrossCheckMatchDuplicatesPairWithThemselves(t *testing.T) {
	a := binarySet(0x0F, 0x0F, 0xF0, 0x0F)
	matches := CrossCheckMatch(a, a)
	require.Len(t, matches, 4)
	for _, m := range matches {
		assert.Equal(t, m.QueryIdx, m.TrainIdx)
		assert.Zero(t, m.Distance)
	}
}

func TestDissimilarity(t *testing.T) {
	a := binarySet(0x00, 0xFF, 0x0F, 0xF0)

	near := binarySet(0x00, 0xFF, 0x0F, 0xF0)
	near.BinaryDescriptors[0][0] = 0x01

	tests := []struct {
		name     string
		a, b     *KeypointSet
		nMatches int
		want     float64
	}{
		{"identical", a, a, 53, 0},
		{"one bit differs", a, near, 53, 1 - (3+(1-1.0/256))/4},
		{"best matches only", a, near, 2, 0},
		{"empty side", a, &KeypointSet{Kind: Binary}, 53, 1},
		{"zero matches requested", a, a, 0, 1},
		{"kind mismatch", a, &KeypointSet{Kind: Float, FloatDescriptors: [][]float64{{1}}, Keypoints: []Keypoint{{}}, MaxDistance: 2}, 53, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Dissimilarity(tt.a, tt.b, tt.nMatches), 1e-12)
		})
	}
}

func TestDissimilarityDecreasesWithMatchQuality(t *testing.T) {
	a := binarySet(0x00, 0xFF, 0x0F, 0xF0)
	close1 := binarySet(0x00, 0xFF, 0x0F, 0xF0)
	close1.BinaryDescriptors[0][0] = 0x01
	close2 := binarySet(0x00, 0xFF, 0x0F, 0xF0)
	close2.BinaryDescriptors[0][0] = 0x03

	assert.Less(t, Dissimilarity(a, close1, 53), Dissimilarity(a, close2, 53))
}

func TestFedTausSumToTime(t *testing.T) {
	for _, total := range []float64{0.1, 1, 7.5, 40} {
		taus := fedTaus(total)
		require.NotEmpty(t, taus)
		assert.InDelta(t, total, floats.Sum(taus), 1e-9)
	}
	assert.Empty(t, fedTaus(0))
}

func TestContrastFactorFlatPlane(t *testing.T) {
	p := newPlane(20, 20)
	assert.Zero(t, contrastFactor(p, 0.7))
}

func TestExtractorsOnBlankImage(t *testing.T) {
	blank := spectrogram.NewImage(80, 60, 30)
	for _, alg := range Algorithms {
		t.Run(string(alg), func(t *testing.T) {
			ext, err := NewExtractor(alg)
			require.NoError(t, err)
			set := ext.Extract(blank)
			require.NotNil(t, set)
			assert.True(t, set.Empty())
			assert.Equal(t, alg.Kind(), set.Kind)
		})
	}
}

func TestExtractorsDescriptorShapes(t *testing.T) {
	img := texturedImage(160, 120, 7)

	tests := []struct {
		alg       Algorithm
		byteLen   int
		floatLen  int
		maxDist   float64
		unitFloat bool
	}{
		{ORB, 32, 0, 256, false},
		{ORBCustom, 32, 0, 256, false},
		{AKAZE, 61, 0, 486, false},
		{SIFT, 0, 128, math.Sqrt2, true},
		{KAZE, 0, 64, 2, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.alg), func(t *testing.T) {
			ext, err := NewExtractor(tt.alg)
			require.NoError(t, err)

			set := ext.Extract(img)
			require.NotNil(t, set)
			assert.Equal(t, tt.maxDist, set.MaxDistance)
			require.False(t, set.Empty(), "expected keypoints on a textured image")

			for i := 0; i < set.Len(); i++ {
				kp := set.Keypoints[i]
				assert.GreaterOrEqual(t, kp.Angle, 0.0)
				assert.Less(t, kp.Angle, 360.0)
				if tt.byteLen > 0 {
					assert.Len(t, set.BinaryDescriptors[i], tt.byteLen)
				} else {
					assert.Len(t, set.FloatDescriptors[i], tt.floatLen)
					assert.InDelta(t, 1.0, floats.Norm(set.FloatDescriptors[i], 2), 1e-6)
				}
			}
		})
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	img := texturedImage(100, 70, 3)
	for _, alg := range Algorithms {
		t.Run(string(alg), func(t *testing.T) {
			ext, err := NewExtractor(alg)
			require.NoError(t, err)
			assert.Equal(t, ext.Extract(img), ext.Extract(img))
		})
	}
}

func TestNewMatcherValidation(t *testing.T) {
	_, err := NewMatcher(&Config{Algorithm: ORB, NMatches: 0})
	assert.Error(t, err)

	_, err = NewMatcher(&Config{Algorithm: ORB, NMatches: MaxMatches + 1})
	assert.Error(t, err)

	_, err = NewMatcher(&Config{Algorithm: "SURF", NMatches: 10})
	assert.Error(t, err)

	m, err := NewMatcher(nil)
	require.NoError(t, err)
	assert.Equal(t, string(ORBCustom), m.Extractor().Name())
}

func TestExtractorNamesMatchAlgorithm(t *testing.T) {
	for _, alg := range Algorithms {
		t.Run(string(alg), func(t *testing.T) {
			e, err := NewExtractor(alg)
			require.NoError(t, err)
			assert.Equal(t, string(alg), e.Name())
			assert.Equal(t, alg.Kind(), e.Kind())
		})
	}

	assert.Equal(t, "ORB", NewORB(&ORBConfig{NFeatures: 10, ScaleFactor: 1.2, NLevels: 1, PatchSize: 15}).Name())
}

func TestMatcherRunMatrixProperties(t *testing.T) {
	images := []*spectrogram.Image{
		texturedImage(160, 120, 1),
		texturedImage(160, 120, 2),
		texturedImage(160, 120, 1),
		spectrogram.NewImage(160, 120, 60),
	}

	for _, alg := range Algorithms {
		t.Run(string(alg), func(t *testing.T) {
			m, err := NewMatcher(&Config{Algorithm: alg, NMatches: 53, Workers: 3})
			require.NoError(t, err)

			res, err := m.Run(context.Background(), images)
			require.NoError(t, err)
			require.Len(t, res.Keypoints, len(images))
			require.Equal(t, len(images), res.Matrix.Size())

			for i := range images {
				assert.Zero(t, res.Matrix[i][i])
				for j := range images {
					assert.Equal(t, res.Matrix[i][j], res.Matrix[j][i])
					assert.GreaterOrEqual(t, res.Matrix[i][j], 0.0)
					assert.LessOrEqual(t, res.Matrix[i][j], 1.0)
				}
			}

			// identical images coincide, the blank one matches nothing
			assert.InDelta(t, 0.0, res.Matrix[0][2], 1e-12)
			assert.Equal(t, 1.0, res.Matrix[0][3])
			assert.Less(t, res.Matrix[0][2], res.Matrix[0][1])
		})
	}
}

func TestBuildMatrixSmallInputs(t *testing.T) {
	m, err := NewMatcher(nil)
	require.NoError(t, err)

	mat, err := m.BuildMatrix(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, mat.Size())

	mat, err = m.BuildMatrix(context.Background(), []*KeypointSet{binarySet(0x00)})
	require.NoError(t, err)
	assert.Equal(t, Matrix{{0}}, mat)
}

func TestBuildMatrixCancelled(t *testing.T) {
	m, err := NewMatcher(&Config{Algorithm: ORB, NMatches: 10, Workers: 2})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sets := []*KeypointSet{binarySet(0x00), binarySet(0xFF), binarySet(0x0F)}
	_, err = m.BuildMatrix(ctx, sets)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMatrixOffDiagonal(t *testing.T) {
	m := Matrix{{0, 0.1, 0.2}, {0.1, 0, 0.3}, {0.2, 0.3, 0}}
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, m.OffDiagonal())
}
