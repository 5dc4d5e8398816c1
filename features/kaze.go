package features

import (
	"math"

	"github.com/reefpulse/LagoPObs/logging"
	"github.com/reefpulse/LagoPObs/spectrogram"
)

const (
	fedTauMax         = 0.25
	kazeOriRadius     = 6
	kazeOriWindow     = math.Pi / 3
	kazeOriStep       = 0.15
	kazeDerivFactor   = 1.5
	kazeContrastBins  = 300
	kazeSurfSubregion = 5
	mldbLattice       = 12
	mldbBits          = 486
)

// KAZEConfig holds the nonlinear scale space and detector settings shared by KAZE and AKAZE
type KAZEConfig struct {
	NFeatures          int     `json:"n_features"`
	Octaves            int     `json:"octaves"`
	Sublevels          int     `json:"sublevels"`
	Sigma0             float64 `json:"sigma0"`
	Threshold          float64 `json:"threshold"`           // Hessian response threshold, 0..1 intensities
	ContrastPercentile float64 `json:"contrast_percentile"` // gradient percentile used as diffusion contrast
	Downsample         bool    `json:"downsample"`          // halve resolution at each octave
}

// DefaultKAZEConfig keeps full resolution at every level
func DefaultKAZEConfig() *KAZEConfig {
	return &KAZEConfig{
		NFeatures:          1000,
		Octaves:            3,
		Sublevels:          4,
		Sigma0:             1.6,
		Threshold:          0.001,
		ContrastPercentile: 0.7,
		Downsample:         false,
	}
}

// DefaultAKAZEConfig builds a pyramid, halving the resolution at every octave
func DefaultAKAZEConfig() *KAZEConfig {
	return &KAZEConfig{
		NFeatures:          1000,
		Octaves:            4,
		Sublevels:          4,
		Sigma0:             1.6,
		Threshold:          0.001,
		ContrastPercentile: 0.7,
		Downsample:         true,
	}
}

// scaleLevel is one image of the nonlinear scale space
type scaleLevel struct {
	L      *plane
	det    *plane
	sigma  float64 // absolute scale in level-0 pixels
	ratio  float64 // level-0 pixels per level pixel
	octave int
}

// localSigma is the scale expressed in this level's pixels
func (l *scaleLevel) localSigma() float64 {
	return l.sigma / l.ratio
}

// nlFeature is a detected keypoint with its level and local coordinates
type nlFeature struct {
	kp    Keypoint
	level *scaleLevel
	x, y  float64
	angle float64
}

// nonlinearDetector builds the scale space and finds scale-normalized Hessian maxima
type nonlinearDetector struct {
	config *KAZEConfig
}

func (d *nonlinearDetector) detect(img *spectrogram.Image) []nlFeature {
	cfg := d.config
	if img == nil || min(img.Width, img.Height) < 8 {
		return nil
	}

	base := planeFromImage(img, 1)
	levels := d.scaleSpace(base)
	if len(levels) == 0 {
		return nil
	}

	for _, lvl := range levels {
		lvl.det = hessianDeterminant(lvl.L, lvl.localSigma())
	}

	var feats []nlFeature
	for i, lvl := range levels {
		s := lvl.localSigma()
		margin := int(math.Ceil(s)) + 1
		for y := margin; y < lvl.det.h-margin; y++ {
			for x := margin; x < lvl.det.w-margin; x++ {
				v := lvl.det.at(x, y)
				if v <= cfg.Threshold || !isLevelMaximum(levels, i, x, y, v) {
					continue
				}
				angle := surfOrientation(lvl.L, float64(x), float64(y), s)
				feats = append(feats, nlFeature{
					kp: Keypoint{
						X:        float64(x) * lvl.ratio,
						Y:        float64(y) * lvl.ratio,
						Size:     2 * kazeDerivFactor * lvl.sigma,
						Angle:    normalizeAngle(angle),
						Response: v,
						Octave:   lvl.octave,
					},
					level: lvl,
					x:     float64(x),
					y:     float64(y),
					angle: angle,
				})
			}
		}
	}
	return feats
}

// isLevelMaximum compares against the 3x3 neighbourhood and, when the
// adjacent levels share the resolution, the same location there
func isLevelMaximum(levels []*scaleLevel, i, x, y int, v float64) bool {
	det := levels[i].det
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if (dx != 0 || dy != 0) && det.at(x+dx, y+dy) >= v {
				return false
			}
		}
	}
	for _, j := range []int{i - 1, i + 1} {
		if j < 0 || j >= len(levels) || levels[j].det.w != det.w || levels[j].det.h != det.h {
			continue
		}
		if levels[j].det.at(x, y) >= v {
			return false
		}
	}
	return true
}

// scaleSpace evolves base with Perona-Malik diffusion through Fast Explicit Diffusion cycles
func (d *nonlinearDetector) scaleSpace(base *plane) []*scaleLevel {
	cfg := d.config
	L := base.blur(cfg.Sigma0)
	k := contrastFactor(base, cfg.ContrastPercentile)
	if k <= 0 {
		return nil
	}

	var levels []*scaleLevel
	ratio := 1.0
	prevTime := 0.5 * cfg.Sigma0 * cfg.Sigma0

	for o := 0; o < cfg.Octaves; o++ {
		for s := 0; s < cfg.Sublevels; s++ {
			sigma := cfg.Sigma0 * math.Pow(2, float64(o)+float64(s)/float64(cfg.Sublevels))
			etime := 0.5 * sigma * sigma

			if len(levels) > 0 {
				L = levels[len(levels)-1].L.clone()
				if cfg.Downsample && s == 0 {
					if min(L.w, L.h) < 16 {
						return levels
					}
					L = L.halve()
					ratio *= 2
					k *= 0.75
				}
				// diffusion time is measured in the current level's pixels
				dt := (etime - prevTime) / (ratio * ratio)
				fedDiffuse(L, k, dt)
			}

			levels = append(levels, &scaleLevel{L: L, sigma: sigma, ratio: ratio, octave: o})
			prevTime = etime
		}
	}
	return levels
}

// contrastFactor returns the given percentile of the gradient magnitude histogram
func contrastFactor(p *plane, percentile float64) float64 {
	smooth := p.blur(1.0)

	grads := make([]float64, 0, p.w*p.h)
	maxGrad := 0.0
	for y := 1; y < p.h-1; y++ {
		for x := 1; x < p.w-1; x++ {
			gx, gy := smooth.gradient(x, y)
			g := math.Hypot(gx, gy)
			grads = append(grads, g)
			maxGrad = math.Max(maxGrad, g)
		}
	}
	if maxGrad <= 1e-12 {
		return 0
	}

	var hist [kazeContrastBins]int
	nonZero := 0
	for _, g := range grads {
		if g <= 0 {
			continue
		}
		bin := min(kazeContrastBins-1, int(g/maxGrad*kazeContrastBins))
		hist[bin]++
		nonZero++
	}

	target := int(math.Ceil(percentile * float64(nonZero)))
	acc := 0
	for bin, n := range hist {
		acc += n
		if acc >= target {
			return maxGrad * float64(bin+1) / kazeContrastBins
		}
	}
	return maxGrad
}

// fedTaus returns step sizes whose sum is exactly t
func fedTaus(t float64) []float64 {
	if t <= 0 {
		return nil
	}
	n := int(math.Ceil(math.Sqrt(3*t/fedTauMax+0.25) - 0.5))
	n = max(n, 1)
	scale := 3 * t / (fedTauMax * float64(n*n+n))

	taus := make([]float64, n)
	for i := range taus {
		c := math.Cos(math.Pi * float64(2*i+1) / float64(4*n+2))
		taus[i] = scale * fedTauMax / (2 * c * c)
	}
	return taus
}

// fedDiffuse evolves L in place by total time t with conductance 1/(1+|grad|^2/k^2)
func fedDiffuse(L *plane, k float64, t float64) {
	taus := fedTaus(t)
	if len(taus) == 0 {
		return
	}

	cond := conductance(L, k)
	step := newPlane(L.w, L.h)
	for _, tau := range taus {
		for y := 0; y < L.h; y++ {
			for x := 0; x < L.w; x++ {
				c := cond.at(x, y)
				v := L.at(x, y)
				xp := (cond.at(x+1, y) + c) * (L.at(x+1, y) - v)
				xn := (c + cond.at(x-1, y)) * (v - L.at(x-1, y))
				yp := (cond.at(x, y+1) + c) * (L.at(x, y+1) - v)
				yn := (c + cond.at(x, y-1)) * (v - L.at(x, y-1))
				step.set(x, y, 0.5*(xp-xn+yp-yn))
			}
		}
		for i := range L.pix {
			L.pix[i] += tau * step.pix[i]
		}
	}
}

func conductance(L *plane, k float64) *plane {
	smooth := L.blur(1.0)
	out := newPlane(L.w, L.h)
	k2 := k * k
	for y := 0; y < L.h; y++ {
		for x := 0; x < L.w; x++ {
			gx, gy := smooth.scharr(x, y)
			out.set(x, y, 1/(1+(gx*gx+gy*gy)/k2))
		}
	}
	return out
}

// hessianDeterminant computes sigma^4 * (Lxx*Lyy - Lxy^2) with differences at step round(sigma)
func hessianDeterminant(L *plane, sigma float64) *plane {
	s := max(1, int(math.Round(sigma)))
	norm := math.Pow(sigma, 4) / math.Pow(float64(s), 4)
	out := newPlane(L.w, L.h)
	for y := 0; y < L.h; y++ {
		for x := 0; x < L.w; x++ {
			c := L.at(x, y)
			lxx := L.at(x+s, y) + L.at(x-s, y) - 2*c
			lyy := L.at(x, y+s) + L.at(x, y-s) - 2*c
			lxy := 0.25 * (L.at(x+s, y+s) - L.at(x-s, y+s) - L.at(x+s, y-s) + L.at(x-s, y-s))
			out.set(x, y, norm*(lxx*lyy-lxy*lxy))
		}
	}
	return out
}

// sampleGradient returns derivatives at (x, y) using differences spaced by s
func sampleGradient(L *plane, x, y, s float64) (gx, gy float64) {
	gx = (L.sample(x+s, y) - L.sample(x-s, y)) / (2 * s)
	gy = (L.sample(x, y+s) - L.sample(x, y-s)) / (2 * s)
	return gx, gy
}

// surfOrientation finds the dominant direction with a sliding pi/3 sector
func surfOrientation(L *plane, x, y, s float64) float64 {
	type sample struct{ gx, gy, angle float64 }
	var samples []sample

	for i := -kazeOriRadius; i <= kazeOriRadius; i++ {
		for j := -kazeOriRadius; j <= kazeOriRadius; j++ {
			if i*i+j*j >= kazeOriRadius*kazeOriRadius {
				continue
			}
			gx, gy := sampleGradient(L, x+float64(j)*s, y+float64(i)*s, s)
			w := math.Exp(-float64(i*i+j*j) / (2 * 2.5 * 2.5))
			gx, gy = gx*w, gy*w
			a := math.Atan2(gy, gx)
			if a < 0 {
				a += 2 * math.Pi
			}
			samples = append(samples, sample{gx, gy, a})
		}
	}

	best, bestAngle := 0.0, 0.0
	for start := 0.0; start < 2*math.Pi; start += kazeOriStep {
		end := start + kazeOriWindow
		var sx, sy float64
		for _, smp := range samples {
			a := smp.angle
			if (a >= start && a < end) || (end > 2*math.Pi && a < end-2*math.Pi) {
				sx += smp.gx
				sy += smp.gy
			}
		}
		if m := sx*sx + sy*sy; m > best {
			best = m
			bestAngle = math.Atan2(sy, sx)
		}
	}
	return bestAngle
}

// rotatedSample returns intensity and gradient, expressed in the keypoint frame,
// at offset (u, v) given in units of s
func rotatedSample(L *plane, f nlFeature, s, u, v float64) (val, rx, ry float64) {
	cosA, sinA := math.Cos(f.angle), math.Sin(f.angle)
	px := f.x + s*(u*cosA-v*sinA)
	py := f.y + s*(u*sinA+v*cosA)
	gx, gy := sampleGradient(L, px, py, s)
	return L.sample(px, py), gx*cosA + gy*sinA, -gx*sinA + gy*cosA
}

// KAZEExtractor detects nonlinear scale-space features and describes them with M-SURF
type KAZEExtractor struct {
	detector *nonlinearDetector
	logger   logging.Logger
}

// NewKAZE creates a KAZE extractor
func NewKAZE(config *KAZEConfig) *KAZEExtractor {
	if config == nil {
		config = DefaultKAZEConfig()
	}
	return &KAZEExtractor{
		detector: &nonlinearDetector{config: config},
		logger:   logging.WithFields(logging.Fields{"component": "kaze"}),
	}
}

func (k *KAZEExtractor) Name() string         { return "KAZE" }
func (k *KAZEExtractor) Kind() DescriptorKind { return Float }

// Extract implements Extractor
func (k *KAZEExtractor) Extract(img *spectrogram.Image) *KeypointSet {
	feats := k.detector.detect(img)

	cands := make([]scored, 0, len(feats))
	for _, f := range feats {
		cands = append(cands, scored{kp: f.kp, float: surfDescriptor(f)})
	}
	cands = retainBest(cands, k.detector.config.NFeatures)

	k.logger.Debug("KAZE keypoints extracted", logging.Fields{"keypoints": len(cands)})
	return newFloatSet(cands, 2)
}

// surfDescriptor sums rotated derivatives over 4x4 subregions of 5x5 samples
func surfDescriptor(f nlFeature) []float64 {
	const side = 4 * kazeSurfSubregion
	s := f.level.localSigma()
	desc := make([]float64, 64)

	for a := 0; a < side; a++ {
		for b := 0; b < side; b++ {
			u := float64(b) - float64(side-1)/2
			v := float64(a) - float64(side-1)/2
			_, rx, ry := rotatedSample(f.level.L, f, s, u, v)
			w := math.Exp(-(u*u + v*v) / (2 * 3.3 * 3.3))

			cell := (a/kazeSurfSubregion)*4 + b/kazeSurfSubregion
			desc[cell*4] += w * rx
			desc[cell*4+1] += w * ry
			desc[cell*4+2] += w * math.Abs(rx)
			desc[cell*4+3] += w * math.Abs(ry)
		}
	}

	normalizeDescriptor(desc, 0)
	return desc
}

// AKAZEExtractor uses the downsampled scale space with binary M-LDB descriptors
type AKAZEExtractor struct {
	detector *nonlinearDetector
	logger   logging.Logger
}

// NewAKAZE creates an AKAZE extractor
func NewAKAZE(config *KAZEConfig) *AKAZEExtractor {
	if config == nil {
		config = DefaultAKAZEConfig()
	}
	return &AKAZEExtractor{
		detector: &nonlinearDetector{config: config},
		logger:   logging.WithFields(logging.Fields{"component": "akaze"}),
	}
}

func (a *AKAZEExtractor) Name() string         { return "AKAZE" }
func (a *AKAZEExtractor) Kind() DescriptorKind { return Binary }

// Extract implements Extractor
func (a *AKAZEExtractor) Extract(img *spectrogram.Image) *KeypointSet {
	feats := a.detector.detect(img)

	cands := make([]scored, 0, len(feats))
	for _, f := range feats {
		cands = append(cands, scored{kp: f.kp, bin: mldbDescriptor(f)})
	}
	cands = retainBest(cands, a.detector.config.NFeatures)

	a.logger.Debug("AKAZE keypoints extracted", logging.Fields{"keypoints": len(cands)})
	return newBinarySet(cands, mldbBits)
}

// mldbDescriptor compares mean intensity and derivatives between the cells of
// 2x2, 3x3 and 4x4 grids laid over a 12x12 sample lattice
func mldbDescriptor(f nlFeature) []byte {
	s := f.level.localSigma()

	var val, dx, dy [mldbLattice][mldbLattice]float64
	for a := 0; a < mldbLattice; a++ {
		for b := 0; b < mldbLattice; b++ {
			u := (float64(b) - float64(mldbLattice-1)/2) * 10 / mldbLattice
			v := (float64(a) - float64(mldbLattice-1)/2) * 10 / mldbLattice
			val[a][b], dx[a][b], dy[a][b] = rotatedSample(f.level.L, f, s, u, v)
		}
	}

	desc := make([]byte, (mldbBits+7)/8)
	bit := 0
	for _, grid := range []int{2, 3, 4} {
		cell := mldbLattice / grid
		n := grid * grid
		means := make([][3]float64, n)
		for c := 0; c < n; c++ {
			r0, c0 := (c/grid)*cell, (c%grid)*cell
			for a := r0; a < r0+cell; a++ {
				for b := c0; b < c0+cell; b++ {
					means[c][0] += val[a][b]
					means[c][1] += dx[a][b]
					means[c][2] += dy[a][b]
				}
			}
		}
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				for ch := 0; ch < 3; ch++ {
					if means[i][ch] > means[j][ch] {
						desc[bit/8] |= 1 << (bit % 8)
					}
					bit++
				}
			}
		}
	}
	return desc
}
