package spectrogram

import "math"

// Config holds spectrogram configuration
type Config struct {
	WinFFT         int     `json:"win_fft" yaml:"win_fft"`                   // carrier STFT window in samples
	OvlpFFT        int     `json:"ovlp_fft" yaml:"ovlp_fft"`                 // carrier overlap in percent
	WinEnv         int     `json:"win_env" yaml:"win_env"`                   // envelope STFT window in samples
	OvlpEnv        int     `json:"ovlp_env" yaml:"ovlp_env"`                 // envelope overlap in percent
	DynamicRangeDB float64 `json:"dynamic_range_db" yaml:"dynamic_range_db"` // dB kept below each half's maximum
	Workers        int     `json:"workers" yaml:"workers"`
}

// DefaultConfig returns the window settings tuned for rock ptarmigan songs
func DefaultConfig() *Config {
	return &Config{
		WinFFT:         281,
		OvlpFFT:        75,
		WinEnv:         706,
		OvlpEnv:        90,
		DynamicRangeDB: 80,
	}
}

// HopSize converts a window and an overlap percentage into a hop in samples
func HopSize(window, overlapPercent int) int {
	hop := int(math.Round(float64(window) * float64(100-overlapPercent) / 100))
	return max(1, hop)
}
