// Package features extracts keypoint descriptors from spectrogram images and
// turns pairwise descriptor matches into a dissimilarity matrix.
package features

import (
	"fmt"
	"strings"

	"github.com/reefpulse/LagoPObs/spectrogram"
)

// Algorithm names a keypoint extraction strategy
type Algorithm string

const (
	SIFT      Algorithm = "SIFT"
	ORB       Algorithm = "ORB"
	ORBCustom Algorithm = "ORB custom"
	AKAZE     Algorithm = "AKAZE"
	KAZE      Algorithm = "KAZE"
)

// Algorithms lists the supported strategies in menu order
var Algorithms = []Algorithm{SIFT, ORB, ORBCustom, AKAZE, KAZE}

// ParseAlgorithm resolves a name case-insensitively
func ParseAlgorithm(name string) (Algorithm, error) {
	n := strings.TrimSpace(name)
	for _, alg := range Algorithms {
		if strings.EqualFold(n, string(alg)) {
			return alg, nil
		}
	}
	return "", fmt.Errorf("unknown feature algorithm %q (expected one of %v)", name, Algorithms)
}

// Kind returns the descriptor kind produced by the algorithm
func (a Algorithm) Kind() DescriptorKind {
	switch a {
	case SIFT, KAZE:
		return Float
	default:
		return Binary
	}
}

// Extractor turns an image into a keypoint set. Implementations must be
// deterministic and safe for concurrent use.
type Extractor interface {
	Extract(img *spectrogram.Image) *KeypointSet
	Kind() DescriptorKind
	Name() string
}

// NewExtractor creates the pure Go extractor for alg
func NewExtractor(alg Algorithm) (Extractor, error) {
	switch alg {
	case ORB:
		return NewORB(DefaultORBConfig()), nil
	case ORBCustom:
		return NewORB(CustomORBConfig()), nil
	case SIFT:
		return NewSIFT(DefaultSIFTConfig()), nil
	case KAZE:
		return NewKAZE(DefaultKAZEConfig()), nil
	case AKAZE:
		return NewAKAZE(DefaultAKAZEConfig()), nil
	default:
		return nil, fmt.Errorf("unsupported feature algorithm: %q", alg)
	}
}
