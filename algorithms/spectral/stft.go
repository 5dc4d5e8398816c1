package spectral

import (
	"fmt"
	"math/cmplx"
	"runtime"
	"sync"

	"github.com/reefpulse/LagoPObs/logging"
)

// STFT provides Short-Time Fourier Transform functionality
type STFT struct {
	fft    *FFT
	logger logging.Logger
}

// STFTResult holds the result of STFT analysis
type STFTResult struct {
	Magnitude      [][]float64 `json:"magnitude"`       // Time x Frequency magnitude matrix
	TimeFrames     int         `json:"time_frames"`     // Number of time frames
	FreqBins       int         `json:"freq_bins"`       // Number of frequency bins
	SampleRate     int         `json:"sample_rate"`     // Sample rate
	WindowSize     int         `json:"window_size"`     // FFT window size
	HopSize        int         `json:"hop_size"`        // Hop size between frames
	FreqResolution float64     `json:"freq_resolution"` // Frequency resolution (Hz/bin)
	TimeResolution float64     `json:"time_resolution"` // Time resolution (seconds/frame)
}

// Window interface for windowing functions
type Window interface {
	ApplyInPlace(signal []float64) error
}

// NewSTFT creates a new STFT calculator
func NewSTFT() *STFT {
	return &STFT{
		fft:    NewFFT(),
		logger: logging.WithFields(logging.Fields{"component": "stft"}),
	}
}

// FrameCount returns the number of frames for a signal of length n.
// A signal shorter than one window yields a single zero-padded frame.
func FrameCount(n, windowSize, hopSize int) int {
	if n <= windowSize {
		return 1
	}
	return (n-windowSize)/hopSize + 1
}

// ComputeWithWindow computes the magnitude STFT on a pool of workers
func (s *STFT) ComputeWithWindow(signal []float64, windowSize int, hopSize int, sampleRate int, window Window) (*STFTResult, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}

	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive")
	}

	if hopSize <= 0 {
		return nil, fmt.Errorf("hop size must be positive")
	}

	numFrames := FrameCount(len(signal), windowSize, hopSize)
	freqBins := windowSize/2 + 1

	magnitude := make([][]float64, numFrames)
	for i := 0; i < numFrames; i++ {
		magnitude[i] = make([]float64, freqBins)
	}

	numWorkers := s.getOptimalWorkerCount(numFrames)
	jobs := make(chan int, numFrames)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		frameErr error
	)

	for iter := 0; iter < numWorkers; iter++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			frameBuffer := make([]float64, windowSize)

			for frameIdx := range jobs {
				start := frameIdx * hopSize
				end := min(start+windowSize, len(signal))

				clear(frameBuffer)
				copy(frameBuffer, signal[start:end])

				if window != nil {
					if err := window.ApplyInPlace(frameBuffer); err != nil {
						errOnce.Do(func() { frameErr = err })
						continue
					}
				}

				spectrum := s.fft.Compute(frameBuffer)
				for k := 0; k < freqBins; k++ {
					magnitude[frameIdx][k] = cmplx.Abs(spectrum[k])
				}
			}
		}()
	}

	for frameIdx := 0; frameIdx < numFrames; frameIdx++ {
		jobs <- frameIdx
	}
	close(jobs)
	wg.Wait()

	if frameErr != nil {
		return nil, fmt.Errorf("failed to window frame: %w", frameErr)
	}

	s.logger.Debug("STFT computed", logging.Fields{
		"frames":  numFrames,
		"bins":    freqBins,
		"workers": numWorkers,
	})

	return &STFTResult{
		Magnitude:      magnitude,
		TimeFrames:     numFrames,
		FreqBins:       freqBins,
		SampleRate:     sampleRate,
		WindowSize:     windowSize,
		HopSize:        hopSize,
		FreqResolution: float64(sampleRate) / float64(windowSize),
		TimeResolution: float64(hopSize) / float64(sampleRate),
	}, nil
}

// Band returns a Time x Bin copy of the magnitudes restricted to bins [lo, hi]
func (r *STFTResult) Band(lo, hi int) [][]float64 {
	out := make([][]float64, r.TimeFrames)
	if hi < lo {
		for t := range out {
			out[t] = []float64{}
		}
		return out
	}
	for t := range out {
		out[t] = append([]float64(nil), r.Magnitude[t][lo:hi+1]...)
	}
	return out
}

// getOptimalWorkerCount determines the number of workers based on workload
func (s *STFT) getOptimalWorkerCount(numFrames int) int {
	numCPU := runtime.NumCPU()

	if numFrames < 100 {
		return max(1, min(numCPU/2, numFrames))
	}

	if numFrames < 1000 {
		return max(1, min(numCPU, 8))
	}

	return numCPU
}
