package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/reefpulse/LagoPObs/logging"
	"github.com/reefpulse/LagoPObs/spectrogram"
)

const (
	siftDescrWidth    = 4
	siftDescrBins     = 8
	siftDescrMagThr   = 0.2
	siftOriBins       = 36
	siftOriPeakRatio  = 0.8
	siftImgBorder     = 5
	siftMaxInterpStep = 5
	siftInitSigma     = 0.5
)

// SIFTConfig holds SIFT settings. Intensities are on a 0..1 scale.
type SIFTConfig struct {
	NFeatures         int     `json:"n_features"` // 0 keeps every keypoint
	NOctaveLayers     int     `json:"n_octave_layers"`
	ContrastThreshold float64 `json:"contrast_threshold"`
	EdgeThreshold     float64 `json:"edge_threshold"`
	Sigma             float64 `json:"sigma"`
	MaxOctaves        int     `json:"max_octaves"`
}

// DefaultSIFTConfig returns Lowe's parameters with a feature cap
func DefaultSIFTConfig() *SIFTConfig {
	return &SIFTConfig{
		NFeatures:         1000,
		NOctaveLayers:     3,
		ContrastThreshold: 0.04,
		EdgeThreshold:     10,
		Sigma:             1.6,
		MaxOctaves:        6,
	}
}

// SIFTExtractor finds difference-of-Gaussian extrema and describes them with
// 4x4 histograms of 8 gradient orientations
type SIFTExtractor struct {
	config *SIFTConfig
	logger logging.Logger
}

// NewSIFT creates a SIFT extractor
func NewSIFT(config *SIFTConfig) *SIFTExtractor {
	if config == nil {
		config = DefaultSIFTConfig()
	}
	return &SIFTExtractor{
		config: config,
		logger: logging.WithFields(logging.Fields{"component": "sift"}),
	}
}

func (s *SIFTExtractor) Name() string         { return "SIFT" }
func (s *SIFTExtractor) Kind() DescriptorKind { return Float }

// Extract implements Extractor
func (s *SIFTExtractor) Extract(img *spectrogram.Image) *KeypointSet {
	cfg := s.config
	// unit vectors with non-negative entries are at most sqrt(2) apart
	maxDist := math.Sqrt2

	if img == nil || min(img.Width, img.Height) < 2*siftImgBorder+3 {
		return newFloatSet(nil, maxDist)
	}

	nOct := int(math.Floor(math.Log2(float64(min(img.Width, img.Height))))) - 2
	nOct = max(1, min(nOct, cfg.MaxOctaves))

	layers := cfg.NOctaveLayers
	increments := s.blurIncrements()

	base := planeFromImage(img, 1).blur(math.Sqrt(math.Max(cfg.Sigma*cfg.Sigma-siftInitSigma*siftInitSigma, 0.01)))

	var cands []scored
	var prev []*plane
	for o := 0; o < nOct; o++ {
		gauss := make([]*plane, layers+3)
		if o == 0 {
			gauss[0] = base
		} else {
			gauss[0] = prev[layers].halve()
			if min(gauss[0].w, gauss[0].h) < 2*siftImgBorder+3 {
				break
			}
		}
		for i := 1; i < len(gauss); i++ {
			gauss[i] = gauss[i-1].blur(increments[i])
		}

		dog := make([]*plane, layers+2)
		for i := range dog {
			dog[i] = subtract(gauss[i+1], gauss[i])
		}

		cands = append(cands, s.octaveKeypoints(o, gauss, dog)...)
		prev = gauss
	}

	cands = retainBest(cands, cfg.NFeatures)

	s.logger.Debug("SIFT keypoints extracted", logging.Fields{
		"keypoints": len(cands),
		"octaves":   nOct,
	})

	return newFloatSet(cands, maxDist)
}

// blurIncrements returns the extra blur applied to reach each layer of an octave
func (s *SIFTExtractor) blurIncrements() []float64 {
	layers := s.config.NOctaveLayers
	k := math.Pow(2, 1/float64(layers))
	inc := make([]float64, layers+3)
	inc[0] = s.config.Sigma
	for i := 1; i < len(inc); i++ {
		prev := math.Pow(k, float64(i-1)) * s.config.Sigma
		total := prev * k
		inc[i] = math.Sqrt(total*total - prev*prev)
	}
	return inc
}

func subtract(a, b *plane) *plane {
	out := newPlane(a.w, a.h)
	for i := range out.pix {
		out.pix[i] = a.pix[i] - b.pix[i]
	}
	return out
}

func (s *SIFTExtractor) octaveKeypoints(octave int, gauss, dog []*plane) []scored {
	cfg := s.config
	layers := cfg.NOctaveLayers
	threshold := 0.5 * cfg.ContrastThreshold / float64(layers)
	w, h := dog[0].w, dog[0].h

	var out []scored
	for layer := 1; layer <= layers; layer++ {
		for y := siftImgBorder; y < h-siftImgBorder; y++ {
			for x := siftImgBorder; x < w-siftImgBorder; x++ {
				v := dog[layer].at(x, y)
				if math.Abs(v) <= threshold || !isScaleSpaceExtremum(dog, layer, x, y, v) {
					continue
				}

				ext, ok := s.localize(dog, octave, layer, x, y)
				if !ok {
					continue
				}

				scaleOct := cfg.Sigma * math.Pow(2, (float64(ext.layer)+ext.layerOffset)/float64(layers))
				g := gauss[ext.layer]
				for _, angle := range siftOrientations(g, ext.x, ext.y, scaleOct) {
					k := ext.kp
					k.Size = 2 * scaleOct * math.Pow(2, float64(octave))
					k.Angle = normalizeAngle(angle)
					out = append(out, scored{kp: k, float: siftDescriptor(g, float64(ext.x), float64(ext.y), angle, scaleOct)})
				}
			}
		}
	}
	return out
}

func isScaleSpaceExtremum(dog []*plane, layer, x, y int, v float64) bool {
	isMax, isMin := v > 0, v < 0
	for l := layer - 1; l <= layer+1; l++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if l == layer && dx == 0 && dy == 0 {
					continue
				}
				n := dog[l].at(x+dx, y+dy)
				if n > v {
					isMax = false
				}
				if n < v {
					isMin = false
				}
				if !isMax && !isMin {
					return false
				}
			}
		}
	}
	return true
}

// extremum is a refined DoG extremum: the integer sample it converged to,
// the sub-layer offset and the keypoint in level-0 coordinates
type extremum struct {
	kp          Keypoint
	x, y, layer int
	layerOffset float64
}

// localize refines an extremum with a quadratic fit and applies the contrast and edge tests
func (s *SIFTExtractor) localize(dog []*plane, octave, layer, x, y int) (extremum, bool) {
	cfg := s.config
	layers := cfg.NOctaveLayers
	w, h := dog[0].w, dog[0].h

	var offset [3]float64
	var grad [3]float64
	converged := false

	for iter := 0; iter < siftMaxInterpStep; iter++ {
		d := func(l, dx, dy int) float64 { return dog[l].at(x+dx, y+dy) }

		grad = [3]float64{
			0.5 * (d(layer, 1, 0) - d(layer, -1, 0)),
			0.5 * (d(layer, 0, 1) - d(layer, 0, -1)),
			0.5 * (d(layer+1, 0, 0) - d(layer-1, 0, 0)),
		}
		c := d(layer, 0, 0)
		dxx := d(layer, 1, 0) + d(layer, -1, 0) - 2*c
		dyy := d(layer, 0, 1) + d(layer, 0, -1) - 2*c
		dss := d(layer+1, 0, 0) + d(layer-1, 0, 0) - 2*c
		dxy := 0.25 * (d(layer, 1, 1) - d(layer, -1, 1) - d(layer, 1, -1) + d(layer, -1, -1))
		dxs := 0.25 * (d(layer+1, 1, 0) - d(layer+1, -1, 0) - d(layer-1, 1, 0) + d(layer-1, -1, 0))
		dys := 0.25 * (d(layer+1, 0, 1) - d(layer+1, 0, -1) - d(layer-1, 0, 1) + d(layer-1, 0, -1))

		hess := mat.NewDense(3, 3, []float64{dxx, dxy, dxs, dxy, dyy, dys, dxs, dys, dss})
		var sol mat.VecDense
		if err := sol.SolveVec(hess, mat.NewVecDense(3, grad[:])); err != nil {
			return extremum{}, false
		}
		offset = [3]float64{-sol.AtVec(0), -sol.AtVec(1), -sol.AtVec(2)}

		if math.Abs(offset[0]) < 0.5 && math.Abs(offset[1]) < 0.5 && math.Abs(offset[2]) < 0.5 {
			converged = true
			break
		}
		if math.Abs(offset[0]) > 1e6 || math.Abs(offset[1]) > 1e6 || math.Abs(offset[2]) > 1e6 {
			return extremum{}, false
		}

		x += int(math.Round(offset[0]))
		y += int(math.Round(offset[1]))
		layer += int(math.Round(offset[2]))
		if layer < 1 || layer > layers || x < siftImgBorder || x >= w-siftImgBorder || y < siftImgBorder || y >= h-siftImgBorder {
			return extremum{}, false
		}
	}
	if !converged {
		return extremum{}, false
	}

	contrast := dog[layer].at(x, y) + 0.5*floats.Dot(grad[:], offset[:])
	if math.Abs(contrast)*float64(layers) < cfg.ContrastThreshold {
		return extremum{}, false
	}

	c := dog[layer].at(x, y)
	dxx := dog[layer].at(x+1, y) + dog[layer].at(x-1, y) - 2*c
	dyy := dog[layer].at(x, y+1) + dog[layer].at(x, y-1) - 2*c
	dxy := 0.25 * (dog[layer].at(x+1, y+1) - dog[layer].at(x-1, y+1) - dog[layer].at(x+1, y-1) + dog[layer].at(x-1, y-1))
	tr := dxx + dyy
	det := dxx*dyy - dxy*dxy
	r := cfg.EdgeThreshold
	if det <= 0 || tr*tr*r >= (r+1)*(r+1)*det {
		return extremum{}, false
	}

	scale := math.Pow(2, float64(octave))
	return extremum{
		kp: Keypoint{
			X:        (float64(x) + offset[0]) * scale,
			Y:        (float64(y) + offset[1]) * scale,
			Response: math.Abs(contrast),
			Octave:   octave,
		},
		x:           x,
		y:           y,
		layer:       layer,
		layerOffset: offset[2],
	}, true
}

// siftOrientations returns the dominant gradient directions (radians) around (x, y)
func siftOrientations(g *plane, x, y int, scaleOct float64) []float64 {
	sigma := 1.5 * scaleOct
	radius := int(math.Round(3 * sigma))
	var hist [siftOriBins]float64

	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			px, py := x+dx, y+dy
			if px <= 0 || py <= 0 || px >= g.w-1 || py >= g.h-1 {
				continue
			}
			gx, gy := g.gradient(px, py)
			weight := math.Exp(-float64(dx*dx+dy*dy) / (2 * sigma * sigma))
			bin := int(math.Round(float64(siftOriBins) * (math.Atan2(gy, gx) + math.Pi) / (2 * math.Pi)))
			hist[(bin%siftOriBins+siftOriBins)%siftOriBins] += weight * math.Hypot(gx, gy)
		}
	}

	var smooth [siftOriBins]float64
	for i := range hist {
		at := func(k int) float64 { return hist[(k+siftOriBins)%siftOriBins] }
		smooth[i] = (at(i-2)+at(i+2))/16 + (at(i-1)+at(i+1))*4/16 + at(i)*6/16
	}

	peak := floats.Max(smooth[:])
	if peak <= 0 {
		return []float64{0}
	}

	var angles []float64
	for i := range smooth {
		l := smooth[(i-1+siftOriBins)%siftOriBins]
		r := smooth[(i+1)%siftOriBins]
		if smooth[i] > l && smooth[i] > r && smooth[i] >= siftOriPeakRatio*peak {
			bin := float64(i) + 0.5*(l-r)/(l-2*smooth[i]+r)
			angles = append(angles, bin*2*math.Pi/siftOriBins-math.Pi)
		}
	}
	if len(angles) == 0 {
		angles = []float64{0}
	}
	return angles
}

// siftDescriptor builds the 128-d descriptor with trilinear interpolation
func siftDescriptor(g *plane, x, y, angle, scaleOct float64) []float64 {
	const d, n = siftDescrWidth, siftDescrBins
	cosA, sinA := math.Cos(angle), math.Sin(angle)
	histWidth := 3 * scaleOct
	radius := int(math.Round(histWidth * math.Sqrt2 * (d + 1) * 0.5))
	radius = min(radius, int(math.Hypot(float64(g.w), float64(g.h))))

	hist := make([]float64, (d+2)*(d+2)*(n+2))
	idx := func(r, c, o int) int { return (r*(d+2)+c)*(n+2) + o }
	expScale := -1.0 / (d * d * 0.5)

	cx, cy := int(math.Round(x)), int(math.Round(y))
	for i := -radius; i <= radius; i++ {
		for j := -radius; j <= radius; j++ {
			cRot := (float64(j)*cosA + float64(i)*sinA) / histWidth
			rRot := (-float64(j)*sinA + float64(i)*cosA) / histWidth
			rbin := rRot + d/2 - 0.5
			cbin := cRot + d/2 - 0.5
			if rbin <= -1 || rbin >= d || cbin <= -1 || cbin >= d {
				continue
			}
			px, py := cx+j, cy+i
			if px <= 0 || py <= 0 || px >= g.w-1 || py >= g.h-1 {
				continue
			}

			gx, gy := g.gradient(px, py)
			ori := math.Atan2(gy, gx) - angle
			for ori < 0 {
				ori += 2 * math.Pi
			}
			for ori >= 2*math.Pi {
				ori -= 2 * math.Pi
			}
			obin := ori * n / (2 * math.Pi)
			mag := math.Hypot(gx, gy) * math.Exp((cRot*cRot+rRot*rRot)*expScale)

			r0, c0, o0 := int(math.Floor(rbin)), int(math.Floor(cbin)), int(math.Floor(obin))
			fr, fc, fo := rbin-float64(r0), cbin-float64(c0), obin-float64(o0)

			for dr := 0; dr <= 1; dr++ {
				wr := fr
				if dr == 0 {
					wr = 1 - fr
				}
				for dc := 0; dc <= 1; dc++ {
					wc := fc
					if dc == 0 {
						wc = 1 - fc
					}
					for do := 0; do <= 1; do++ {
						wo := fo
						if do == 0 {
							wo = 1 - fo
						}
						hist[idx(r0+dr+1, c0+dc+1, (o0+do)%n)] += mag * wr * wc * wo
					}
				}
			}
		}
	}

	desc := make([]float64, 0, d*d*n)
	for r := 1; r <= d; r++ {
		for c := 1; c <= d; c++ {
			desc = append(desc, hist[idx(r, c, 0):idx(r, c, n)]...)
		}
	}

	normalizeDescriptor(desc, siftDescrMagThr)
	return desc
}

// normalizeDescriptor scales to unit length, clips at clip (if > 0) and renormalizes
func normalizeDescriptor(desc []float64, clip float64) {
	norm := floats.Norm(desc, 2)
	if norm <= 1e-12 {
		return
	}
	floats.Scale(1/norm, desc)
	if clip <= 0 {
		return
	}
	for i, v := range desc {
		desc[i] = math.Min(v, clip)
	}
	if norm = floats.Norm(desc, 2); norm > 1e-12 {
		floats.Scale(1/norm, desc)
	}
}
