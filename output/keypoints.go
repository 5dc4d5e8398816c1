package output

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/reefpulse/LagoPObs/features"
	"github.com/reefpulse/LagoPObs/spectrogram"
)

var keypointColor = color.RGBA{R: 255, G: 64, B: 32, A: 255}

// KeypointImageName maps a recording to its keypoint image, e.g.
// site_20230601_001.wav -> site_20230601_001_keypoints.png
func KeypointImageName(file string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_keypoints.png"
}

// RenderKeypoints draws each keypoint as a circle of its size with a tick
// along its orientation over the grayscale spectrogram
func RenderKeypoints(img *spectrogram.Image, set *features.KeypointSet) *image.RGBA {
	gray := img.ToGray()
	out := image.NewRGBA(gray.Bounds())
	draw.Draw(out, out.Bounds(), gray, image.Point{}, draw.Src)

	if set == nil {
		return out
	}
	for _, kp := range set.Keypoints {
		r := math.Max(2, kp.Size/2)
		drawCircle(out, kp.X, kp.Y, r, keypointColor)

		a := kp.Angle * math.Pi / 180
		drawLine(out, kp.X, kp.Y, kp.X+r*math.Cos(a), kp.Y+r*math.Sin(a), keypointColor)
	}
	return out
}

// WriteKeypointImage renders and encodes the image as PNG
func WriteKeypointImage(path string, img *spectrogram.Image, set *features.KeypointSet) error {
	if img == nil || img.Width == 0 || img.Height == 0 {
		return fmt.Errorf("empty spectrogram for %s", path)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(f, RenderKeypoints(img, set)); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

func drawCircle(dst *image.RGBA, cx, cy, r float64, c color.Color) {
	steps := max(16, int(2*math.Pi*r))
	for i := 0; i < steps; i++ {
		t := 2 * math.Pi * float64(i) / float64(steps)
		dst.Set(int(math.Round(cx+r*math.Cos(t))), int(math.Round(cy+r*math.Sin(t))), c)
	}
}

func drawLine(dst *image.RGBA, x0, y0, x1, y1 float64, c color.Color) {
	steps := max(1, int(math.Ceil(math.Hypot(x1-x0, y1-y0))))
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		dst.Set(int(math.Round(x0+t*(x1-x0))), int(math.Round(y0+t*(y1-y0))), c)
	}
}
