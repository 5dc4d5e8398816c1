//go:build !opencv

package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpenCVBackendUnavailable(t *testing.T) {
	_, err := NewOpenCVExtractor(SIFT)
	assert.Error(t, err)

	_, err = NewMatcher(&Config{Algorithm: SIFT, NMatches: 10, OpenCV: true})
	assert.Error(t, err)
}
