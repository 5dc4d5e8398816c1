package features

import (
	"math"
	"sort"
)

// DescriptorKind tells how descriptors are compared
type DescriptorKind int

const (
	// Binary descriptors are bit strings compared with the Hamming distance
	Binary DescriptorKind = iota
	// Float descriptors are vectors compared with the Euclidean distance
	Float
)

func (k DescriptorKind) String() string {
	if k == Binary {
		return "binary"
	}
	return "float"
}

// Keypoint is a located image feature, in level-0 pixel coordinates.
// Y grows downwards as in the spectrogram image.
type Keypoint struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Size     float64 `json:"size"`  // diameter of the described neighbourhood
	Angle    float64 `json:"angle"` // degrees in [0, 360)
	Response float64 `json:"response"`
	Octave   int     `json:"octave"`
}

// KeypointSet holds the keypoints of one image and their descriptors, index aligned.
// Exactly one of BinaryDescriptors and FloatDescriptors is used, according to Kind.
type KeypointSet struct {
	Kind              DescriptorKind `json:"kind"`
	Keypoints         []Keypoint     `json:"keypoints"`
	BinaryDescriptors [][]byte       `json:"-"`
	FloatDescriptors  [][]float64    `json:"-"`
	// Bits is the number of meaningful bits of a binary descriptor
	Bits int `json:"bits,omitempty"`
	// MaxDistance is the largest distance two descriptors can have
	MaxDistance float64 `json:"max_distance"`
}

// Len returns the number of keypoints
func (s *KeypointSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Keypoints)
}

// Empty reports whether the set holds no keypoint
func (s *KeypointSet) Empty() bool {
	return s.Len() == 0
}

// scored pairs a keypoint with a descriptor during extraction
type scored struct {
	kp    Keypoint
	bin   []byte
	float []float64
}

// retainBest keeps the n strongest candidates (n <= 0 keeps all) in a
// deterministic order: response descending, then position.
func retainBest(cands []scored, n int) []scored {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i].kp, cands[j].kp
		if a.Response != b.Response {
			return a.Response > b.Response
		}
		if a.Octave != b.Octave {
			return a.Octave < b.Octave
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	if n > 0 && len(cands) > n {
		cands = cands[:n]
	}
	return cands
}

func newBinarySet(cands []scored, bits int) *KeypointSet {
	set := &KeypointSet{Kind: Binary, Bits: bits, MaxDistance: float64(bits)}
	for _, c := range cands {
		set.Keypoints = append(set.Keypoints, c.kp)
		set.BinaryDescriptors = append(set.BinaryDescriptors, c.bin)
	}
	return set
}

func newFloatSet(cands []scored, maxDistance float64) *KeypointSet {
	set := &KeypointSet{Kind: Float, MaxDistance: maxDistance}
	for _, c := range cands {
		set.Keypoints = append(set.Keypoints, c.kp)
		set.FloatDescriptors = append(set.FloatDescriptors, c.float)
	}
	return set
}

// normalizeAngle maps radians to degrees in [0, 360)
func normalizeAngle(rad float64) float64 {
	deg := rad * 180 / math.Pi
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
