package audio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/wav"

	"github.com/reefpulse/LagoPObs/internal/errors"
	"github.com/reefpulse/LagoPObs/logging"
)

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	MaxDuration time.Duration `json:"max_duration" yaml:"max_duration" mapstructure:"max_duration"` // 0 keeps the whole file
	MixToMono   bool          `json:"mix_to_mono" yaml:"mix_to_mono" mapstructure:"mix_to_mono"`
}

// DefaultDecoderConfig returns the decoder configuration used for analysis
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		MixToMono: true,
	}
}

// Decoder turns PCM WAV files into Recordings at their native sampling rate
type Decoder struct {
	config *DecoderConfig
	logger logging.Logger
}

// NewDecoder creates a new decoder
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &Decoder{
		config: config,
		logger: logging.WithFields(logging.Fields{"component": "audio_decoder"}),
	}
}

// DecodeFile decodes the WAV file at path
func (d *Decoder) DecodeFile(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.FileError(fmt.Errorf("failed to open audio file: %w", err), path)
	}
	defer f.Close()

	rec, err := d.Decode(f, filepath.Base(path))
	if err != nil {
		return nil, errors.New(err).
			Component("audio").
			Category(errors.CategoryAudio).
			FileContext(path).
			Build()
	}
	return rec, nil
}

// Decode reads a whole WAV stream. Samples are scaled to [-1, 1) and channels averaged.
func (d *Decoder) Decode(r io.ReadSeeker, filename string) (*Recording, error) {
	decoder := wav.NewDecoder(r)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%s: invalid WAV file format", filename)
	}

	divisor, err := getAudioDivisor(int(decoder.BitDepth))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read PCM data: %w", filename, err)
	}

	channels := max(1, int(decoder.NumChans))
	sampleRate := int(decoder.SampleRate)
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%s: invalid sample rate %d", filename, sampleRate)
	}

	frames := len(buf.Data) / channels
	if d.config.MaxDuration > 0 {
		frames = min(frames, int(d.config.MaxDuration.Seconds()*float64(sampleRate)))
	}

	var samples []float64
	if channels == 1 || d.config.MixToMono {
		samples = make([]float64, frames)
		for i := 0; i < frames; i++ {
			sum := 0
			for c := 0; c < channels; c++ {
				sum += buf.Data[i*channels+c]
			}
			samples[i] = float64(sum) / float64(channels) / divisor
		}
	} else {
		// first channel only
		samples = make([]float64, frames)
		for i := 0; i < frames; i++ {
			samples[i] = float64(buf.Data[i*channels]) / divisor
		}
	}

	d.logger.Debug("Decoded WAV file", logging.Fields{
		"file":        filename,
		"sample_rate": sampleRate,
		"channels":    channels,
		"bit_depth":   decoder.BitDepth,
		"samples":     len(samples),
	})

	return NewRecording(filename, samples, sampleRate), nil
}

// getAudioDivisor returns the full-scale value for a PCM bit depth
func getAudioDivisor(bitDepth int) (float64, error) {
	switch bitDepth {
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	default:
		return 0, fmt.Errorf("unsupported audio bit depth: %d", bitDepth)
	}
}
