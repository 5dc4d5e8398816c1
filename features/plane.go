package features

import (
	"math"

	"github.com/reefpulse/LagoPObs/algorithms/common"
	"github.com/reefpulse/LagoPObs/spectrogram"
)

// plane is a single channel float image used by the detectors
type plane struct {
	w, h int
	pix  []float64
}

func newPlane(w, h int) *plane {
	return &plane{w: w, h: h, pix: make([]float64, w*h)}
}

// planeFromImage copies a spectrogram scaled by gain (255 gives 8-bit like intensities)
func planeFromImage(img *spectrogram.Image, gain float64) *plane {
	p := newPlane(img.Width, img.Height)
	for i, v := range img.Pix {
		p.pix[i] = v * gain
	}
	return p
}

// at reads with replicated borders
func (p *plane) at(x, y int) float64 {
	x = common.ClampInt(x, 0, p.w-1)
	y = common.ClampInt(y, 0, p.h-1)
	return p.pix[y*p.w+x]
}

func (p *plane) set(x, y int, v float64) {
	p.pix[y*p.w+x] = v
}

func (p *plane) inside(x, y, margin int) bool {
	return x >= margin && y >= margin && x < p.w-margin && y < p.h-margin
}

// sample interpolates bilinearly with replicated borders
func (p *plane) sample(x, y float64) float64 {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	fx := x - float64(x0)
	fy := y - float64(y0)

	top := p.at(x0, y0) + fx*(p.at(x0+1, y0)-p.at(x0, y0))
	bottom := p.at(x0, y0+1) + fx*(p.at(x0+1, y0+1)-p.at(x0, y0+1))
	return top + fy*(bottom-top)
}

func (p *plane) clone() *plane {
	out := newPlane(p.w, p.h)
	copy(out.pix, p.pix)
	return out
}

func (p *plane) maxValue() float64 {
	return common.Max(p.pix)
}

// gaussianKernel returns a normalized kernel of radius ceil(3 sigma)
func gaussianKernel(sigma float64) []float64 {
	radius := max(1, int(math.Ceil(3*sigma)))
	k := make([]float64, 2*radius+1)
	sum := 0.0
	for i := range k {
		d := float64(i - radius)
		k[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// blur applies a separable Gaussian
func (p *plane) blur(sigma float64) *plane {
	if sigma <= 0 {
		return p.clone()
	}
	k := gaussianKernel(sigma)
	r := len(k) / 2

	tmp := newPlane(p.w, p.h)
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			acc := 0.0
			for i, kv := range k {
				acc += kv * p.at(x+i-r, y)
			}
			tmp.set(x, y, acc)
		}
	}

	out := newPlane(p.w, p.h)
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			acc := 0.0
			for i, kv := range k {
				acc += kv * tmp.at(x, y+i-r)
			}
			out.set(x, y, acc)
		}
	}
	return out
}

// resize scales to w x h with bilinear sampling of pixel centres
func (p *plane) resize(w, h int) *plane {
	out := newPlane(w, h)
	sx := float64(p.w) / float64(w)
	sy := float64(p.h) / float64(h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.set(x, y, p.sample((float64(x)+0.5)*sx-0.5, (float64(y)+0.5)*sy-0.5))
		}
	}
	return out
}

// halve keeps every other pixel, as used between scale-space octaves
func (p *plane) halve() *plane {
	out := newPlane(max(1, p.w/2), max(1, p.h/2))
	for y := 0; y < out.h; y++ {
		for x := 0; x < out.w; x++ {
			out.set(x, y, p.at(2*x, 2*y))
		}
	}
	return out
}

// gradient returns central differences at (x, y)
func (p *plane) gradient(x, y int) (dx, dy float64) {
	dx = 0.5 * (p.at(x+1, y) - p.at(x-1, y))
	dy = 0.5 * (p.at(x, y+1) - p.at(x, y-1))
	return dx, dy
}

// scharr returns Scharr derivatives at (x, y), normalized to unit gain
func (p *plane) scharr(x, y int) (dx, dy float64) {
	dx = (3*(p.at(x+1, y-1)-p.at(x-1, y-1)) + 10*(p.at(x+1, y)-p.at(x-1, y)) + 3*(p.at(x+1, y+1)-p.at(x-1, y+1))) / 32
	dy = (3*(p.at(x-1, y+1)-p.at(x-1, y-1)) + 10*(p.at(x, y+1)-p.at(x, y-1)) + 3*(p.at(x+1, y+1)-p.at(x+1, y-1))) / 32
	return dx, dy
}
