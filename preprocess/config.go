package preprocess

// Config holds preprocessing configuration
type Config struct {
	FMin          float64 `json:"fmin" yaml:"fmin"`                     // lower band edge in Hz
	FMax          float64 `json:"fmax" yaml:"fmax"`                     // upper band edge in Hz
	Denoise       bool    `json:"denoise" yaml:"denoise"`               // wavelet denoising after filtering
	FilterOrder   int     `json:"filter_order" yaml:"filter_order"`     // Butterworth order per band edge
	WaveletLevels int     `json:"wavelet_levels" yaml:"wavelet_levels"` // maximum DWT depth
	Workers       int     `json:"workers" yaml:"workers"`               // 0 = one per CPU
}

// DefaultConfig returns the rock ptarmigan analysis band with denoising enabled
func DefaultConfig() *Config {
	return &Config{
		FMin:          950,
		FMax:          2800,
		Denoise:       true,
		FilterOrder:   4,
		WaveletLevels: 5,
	}
}
