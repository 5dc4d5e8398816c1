//go:build opencv

package features

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/reefpulse/LagoPObs/logging"
	"github.com/reefpulse/LagoPObs/spectrogram"
)

// OpenCVExtractor delegates detection and description to OpenCV through gocv.
// A detector is created per call since gocv objects are not goroutine safe.
type OpenCVExtractor struct {
	alg    Algorithm
	logger logging.Logger
}

// NewOpenCVExtractor creates an OpenCV-backed extractor for alg
func NewOpenCVExtractor(alg Algorithm) (Extractor, error) {
	if _, err := ParseAlgorithm(string(alg)); err != nil {
		return nil, err
	}
	return &OpenCVExtractor{
		alg:    alg,
		logger: logging.WithFields(logging.Fields{"component": "opencv", "algorithm": string(alg)}),
	}, nil
}

func (o *OpenCVExtractor) Name() string         { return "OpenCV " + string(o.alg) }
func (o *OpenCVExtractor) Kind() DescriptorKind { return o.alg.Kind() }

// Extract implements Extractor
func (o *OpenCVExtractor) Extract(img *spectrogram.Image) *KeypointSet {
	empty := &KeypointSet{Kind: o.Kind()}
	if img == nil || img.Width == 0 || img.Height == 0 {
		return empty
	}

	gray := img.ToGray()
	mat, err := gocv.NewMatFromBytes(img.Height, img.Width, gocv.MatTypeCV8U, gray.Pix)
	if err != nil {
		o.logger.Error(err, "Failed to wrap spectrogram")
		return empty
	}
	defer mat.Close()

	mask := gocv.NewMat()
	defer mask.Close()

	kps, desc := o.detectAndCompute(mat, mask)
	defer desc.Close()

	if len(kps) == 0 || desc.Empty() {
		return empty
	}

	set, err := o.toKeypointSet(kps, desc)
	if err != nil {
		o.logger.Error(err, "Failed to read descriptors")
		return empty
	}
	return set
}

func (o *OpenCVExtractor) detectAndCompute(mat, mask gocv.Mat) ([]gocv.KeyPoint, gocv.Mat) {
	switch o.alg {
	case SIFT:
		d := gocv.NewSIFT()
		defer d.Close()
		return d.DetectAndCompute(mat, mask)
	case ORBCustom:
		c := CustomORBConfig()
		d := gocv.NewORBWithParams(c.NFeatures, float32(c.ScaleFactor), c.NLevels, c.EdgeThreshold,
			0, 2, gocv.ORBScoreTypeHarris, c.PatchSize, int(c.FastThreshold))
		defer d.Close()
		return d.DetectAndCompute(mat, mask)
	case AKAZE:
		d := gocv.NewAKAZE()
		defer d.Close()
		return d.DetectAndCompute(mat, mask)
	case KAZE:
		d := gocv.NewKAZE()
		defer d.Close()
		return d.DetectAndCompute(mat, mask)
	default:
		d := gocv.NewORB()
		defer d.Close()
		return d.DetectAndCompute(mat, mask)
	}
}

func (o *OpenCVExtractor) toKeypointSet(kps []gocv.KeyPoint, desc gocv.Mat) (*KeypointSet, error) {
	rows, cols := desc.Rows(), desc.Cols()
	if rows != len(kps) {
		return nil, fmt.Errorf("descriptor rows %d do not match %d keypoints", rows, len(kps))
	}

	set := &KeypointSet{Kind: o.Kind()}
	for _, kp := range kps {
		set.Keypoints = append(set.Keypoints, Keypoint{
			X: kp.X, Y: kp.Y, Size: kp.Size, Angle: kp.Angle, Response: kp.Response, Octave: kp.Octave,
		})
	}

	if set.Kind == Binary {
		raw := desc.ToBytes()
		for r := range rows {
			row := make([]byte, cols)
			copy(row, raw[r*cols:(r+1)*cols])
			set.BinaryDescriptors = append(set.BinaryDescriptors, row)
		}
		set.Bits = cols * 8
		set.MaxDistance = float64(set.Bits)
		return set, nil
	}

	raw, err := desc.DataPtrFloat32()
	if err != nil {
		return nil, err
	}
	for r := range rows {
		row := make([]float64, cols)
		for c := range cols {
			row[c] = float64(raw[r*cols+c])
		}
		normalizeDescriptor(row, 0)
		set.FloatDescriptors = append(set.FloatDescriptors, row)
	}
	set.MaxDistance = 2
	return set, nil
}
