package features

import (
	"math"
	"math/rand"

	"github.com/reefpulse/LagoPObs/logging"
	"github.com/reefpulse/LagoPObs/spectrogram"
)

const (
	orbDescriptorBits = 256
	orbPatternSeed    = 0x4c61676f
)

// ORBConfig holds ORB detector and descriptor settings
type ORBConfig struct {
	Algorithm       Algorithm `json:"algorithm"` // ORB or ORB custom, reported by Name
	NFeatures       int       `json:"n_features"`
	ScaleFactor     float64   `json:"scale_factor"`
	NLevels         int       `json:"n_levels"`
	EdgeThreshold   int       `json:"edge_threshold"`
	PatchSize       int       `json:"patch_size"`
	FastThreshold   float64   `json:"fast_threshold"` // on a 0..255 intensity scale
	HarrisBlockSize int       `json:"harris_block_size"`
	BlurSigma       float64   `json:"blur_sigma"` // smoothing before the BRIEF tests
}

// DefaultORBConfig mirrors the usual ORB defaults
func DefaultORBConfig() *ORBConfig {
	return &ORBConfig{
		Algorithm:       ORB,
		NFeatures:       500,
		ScaleFactor:     1.2,
		NLevels:         8,
		EdgeThreshold:   31,
		PatchSize:       31,
		FastThreshold:   20,
		HarrisBlockSize: 7,
		BlurSigma:       2,
	}
}

// CustomORBConfig is tuned for spectrograms: more features from fewer, finer
// pyramid levels and a lower FAST threshold to catch faint syllables.
func CustomORBConfig() *ORBConfig {
	return &ORBConfig{
		Algorithm:       ORBCustom,
		NFeatures:       1000,
		ScaleFactor:     1.1,
		NLevels:         4,
		EdgeThreshold:   15,
		PatchSize:       15,
		FastThreshold:   10,
		HarrisBlockSize: 5,
		BlurSigma:       1.5,
	}
}

// ORBExtractor detects oriented FAST corners and describes them with rotated BRIEF
type ORBExtractor struct {
	algorithm Algorithm
	config    *ORBConfig
	pattern   [orbDescriptorBits][4]int
	logger    logging.Logger
}

// NewORB creates an ORB extractor; the BRIEF test pattern is fixed for a given patch size
func NewORB(config *ORBConfig) *ORBExtractor {
	if config == nil {
		config = DefaultORBConfig()
	}
	alg := config.Algorithm
	if alg == "" {
		alg = ORB
	}
	o := &ORBExtractor{
		algorithm: alg,
		config:    config,
		logger:    logging.WithFields(logging.Fields{"component": "orb", "algorithm": string(alg)}),
	}
	o.pattern = briefPattern(config.PatchSize)
	return o
}

// briefPattern draws point pairs from an isotropic Gaussian of sigma patch/5
func briefPattern(patchSize int) [orbDescriptorBits][4]int {
	rng := rand.New(rand.NewSource(orbPatternSeed))
	half := patchSize / 2
	sigma := float64(patchSize) / 5

	draw := func() int {
		v := int(math.Round(rng.NormFloat64() * sigma))
		return max(-half, min(half, v))
	}

	var pattern [orbDescriptorBits][4]int
	for i := range pattern {
		pattern[i] = [4]int{draw(), draw(), draw(), draw()}
	}
	return pattern
}

func (o *ORBExtractor) Name() string         { return string(o.algorithm) }
func (o *ORBExtractor) Kind() DescriptorKind { return Binary }

// Extract implements Extractor
func (o *ORBExtractor) Extract(img *spectrogram.Image) *KeypointSet {
	cfg := o.config
	if img == nil || img.Width == 0 || img.Height == 0 {
		return newBinarySet(nil, orbDescriptorBits)
	}

	base := planeFromImage(img, 255)
	half := cfg.PatchSize / 2
	margin := max(cfg.EdgeThreshold, int(math.Ceil(float64(half)*math.Sqrt2))+1)

	var cands []scored
	for level := 0; level < cfg.NLevels; level++ {
		scale := math.Pow(cfg.ScaleFactor, float64(level))
		w := int(math.Round(float64(base.w) / scale))
		h := int(math.Round(float64(base.h) / scale))
		if w <= 2*margin || h <= 2*margin {
			break
		}

		lvl := base
		if level > 0 {
			lvl = base.resize(w, h)
		}
		smooth := lvl.blur(cfg.BlurSigma)

		for _, c := range fastDetect(lvl, cfg.FastThreshold, margin) {
			angle := intensityCentroidAngle(lvl, c.x, c.y, half)
			cands = append(cands, scored{
				kp: Keypoint{
					X:        float64(c.x) * scale,
					Y:        float64(c.y) * scale,
					Size:     float64(cfg.PatchSize) * scale,
					Angle:    normalizeAngle(angle),
					Response: harrisResponse(lvl, c.x, c.y, cfg.HarrisBlockSize),
					Octave:   level,
				},
				bin: o.describe(smooth, c.x, c.y, angle),
			})
		}
	}

	cands = retainBest(cands, cfg.NFeatures)

	o.logger.Debug("ORB keypoints extracted", logging.Fields{
		"keypoints": len(cands),
		"width":     img.Width,
		"height":    img.Height,
	})

	return newBinarySet(cands, orbDescriptorBits)
}

// intensityCentroidAngle returns the orientation of the patch centroid in radians
func intensityCentroidAngle(p *plane, cx, cy, radius int) float64 {
	var m01, m10 float64
	r2 := radius * radius
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy > r2 {
				continue
			}
			v := p.at(cx+dx, cy+dy)
			m10 += float64(dx) * v
			m01 += float64(dy) * v
		}
	}
	return math.Atan2(m01, m10)
}

// describe evaluates the steered BRIEF tests
func (o *ORBExtractor) describe(smooth *plane, cx, cy int, angle float64) []byte {
	cosA, sinA := math.Cos(angle), math.Sin(angle)
	desc := make([]byte, orbDescriptorBits/8)

	rotated := func(x, y int) float64 {
		rx := float64(x)*cosA - float64(y)*sinA
		ry := float64(x)*sinA + float64(y)*cosA
		return smooth.at(cx+int(math.Round(rx)), cy+int(math.Round(ry)))
	}

	for i, pr := range o.pattern {
		if rotated(pr[0], pr[1]) < rotated(pr[2], pr[3]) {
			desc[i/8] |= 1 << (i % 8)
		}
	}
	return desc
}
