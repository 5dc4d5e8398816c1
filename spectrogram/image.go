package spectrogram

import (
	"image"
	"image/color"
	"math"
)

// Image is a stacked spectrogram. Pix holds intensities in [0, 1], row-major,
// row 0 at the top. Rows [0, CarrierRows) are the carrier band with its highest
// frequency first; the remaining rows are the envelope band, lowest frequency last.
type Image struct {
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	CarrierRows int       `json:"carrier_rows"`
	Pix         []float64 `json:"-"`
}

// NewImage allocates a blank image
func NewImage(width, height, carrierRows int) *Image {
	return &Image{
		Width:       width,
		Height:      height,
		CarrierRows: carrierRows,
		Pix:         make([]float64, width*height),
	}
}

// At returns the intensity at column x, row y; outside the image it is 0
func (im *Image) At(x, y int) float64 {
	if x < 0 || y < 0 || x >= im.Width || y >= im.Height {
		return 0
	}
	return im.Pix[y*im.Width+x]
}

// Set stores v at column x, row y
func (im *Image) Set(x, y int, v float64) {
	im.Pix[y*im.Width+x] = v
}

// Rows returns the image as a [row][col] matrix copy
func (im *Image) Rows() [][]float64 {
	rows := make([][]float64, im.Height)
	for y := range rows {
		rows[y] = append([]float64(nil), im.Pix[y*im.Width:(y+1)*im.Width]...)
	}
	return rows
}

// ToGray converts the image to 8-bit grayscale
func (im *Image) ToGray() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, im.Width, im.Height))
	for y := 0; y < im.Height; y++ {
		for x := 0; x < im.Width; x++ {
			v := math.Round(255 * im.At(x, y))
			g.SetGray(x, y, color.Gray{Y: uint8(max(0, min(255, v)))})
		}
	}
	return g
}

// IsBlank reports whether every pixel is zero
func (im *Image) IsBlank() bool {
	for _, v := range im.Pix {
		if v != 0 {
			return false
		}
	}
	return true
}
