//go:build !opencv

package features

import "fmt"

// NewOpenCVExtractor is only available in builds tagged opencv
func NewOpenCVExtractor(alg Algorithm) (Extractor, error) {
	return nil, fmt.Errorf("OpenCV backend for %q not compiled in (build with -tags opencv)", alg)
}
