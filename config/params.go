// Package config validates analysis parameters and loads run settings.
//
// Parameters arrive as strings, the way a user types them or a YAML file
// holds them. Parse turns them into typed Params and reports every problem it
// finds at once, together with the warnings about rounded decimals.
package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/reefpulse/LagoPObs/clustering"
	"github.com/reefpulse/LagoPObs/features"
	"github.com/reefpulse/LagoPObs/internal/errors"
	"github.com/reefpulse/LagoPObs/preprocess"
	"github.com/reefpulse/LagoPObs/spectrogram"
)

// ErrInvalidConfig is matched by every *ValidationError
var ErrInvalidConfig = errors.NewStd("invalid configuration")

// OverlapStep is the spacing of the accepted overlap percentages (5, 10, ..., 95)
const OverlapStep = 5

// RawParams holds analysis parameters before validation
type RawParams struct {
	ApplyDenoise        string `mapstructure:"apply_denoise" yaml:"apply_denoise" json:"apply_denoise"`
	FMin                string `mapstructure:"fmin" yaml:"fmin" json:"fmin"`
	FMax                string `mapstructure:"fmax" yaml:"fmax" json:"fmax"`
	WinFFT              string `mapstructure:"win_fft" yaml:"win_fft" json:"win_fft"`
	OvlpFFT             string `mapstructure:"ovlp_fft" yaml:"ovlp_fft" json:"ovlp_fft"`
	WinEnv              string `mapstructure:"win_env" yaml:"win_env" json:"win_env"`
	OvlpEnv             string `mapstructure:"ovlp_env" yaml:"ovlp_env" json:"ovlp_env"`
	NMatches            string `mapstructure:"n_matches" yaml:"n_matches" json:"n_matches"`
	FeatureAlgorithm    string `mapstructure:"features" yaml:"features" json:"features"`
	ClusteringAlgorithm string `mapstructure:"clustering" yaml:"clustering" json:"clustering"`
	EstimatePopulation  string `mapstructure:"estimate_population" yaml:"estimate_population" json:"estimate_population"`
	NClusters           string `mapstructure:"n_clusters" yaml:"n_clusters" json:"n_clusters"`
}

// DefaultRawParams returns the rock ptarmigan defaults
func DefaultRawParams() RawParams {
	return RawParams{
		ApplyDenoise:        "Yes",
		FMin:                "950",
		FMax:                "2800",
		WinFFT:              "281",
		OvlpFFT:             "75",
		WinEnv:              "706",
		OvlpEnv:             "90",
		NMatches:            "53",
		FeatureAlgorithm:    string(features.ORBCustom),
		ClusteringAlgorithm: string(clustering.AffinityPropagation),
		EstimatePopulation:  "Yes",
		NClusters:           "0",
	}
}

// Params are validated analysis parameters
type Params struct {
	ApplyDenoise        bool                 `yaml:"apply_denoise" json:"apply_denoise"`
	FMin                int                  `yaml:"fmin" json:"fmin"`
	FMax                int                  `yaml:"fmax" json:"fmax"`
	WinFFT              int                  `yaml:"win_fft" json:"win_fft"`
	OvlpFFT             int                  `yaml:"ovlp_fft" json:"ovlp_fft"`
	WinEnv              int                  `yaml:"win_env" json:"win_env"`
	OvlpEnv             int                  `yaml:"ovlp_env" json:"ovlp_env"`
	NMatches            int                  `yaml:"n_matches" json:"n_matches"`
	FeatureAlgorithm    features.Algorithm   `yaml:"features" json:"features"`
	ClusteringAlgorithm clustering.Algorithm `yaml:"clustering" json:"clustering"`
	EstimatePopulation  bool                 `yaml:"estimate_population" json:"estimate_population"`
	NClusters           int                  `yaml:"n_clusters" json:"n_clusters"` // 0 = chosen by the algorithm
}

// DefaultParams returns the parsed defaults
func DefaultParams() Params {
	p, _, err := Parse(DefaultRawParams())
	if err != nil {
		panic(err)
	}
	return p
}

// Warning is a non-blocking remark about a parameter
type Warning string

// ValidationError lists every problem found in a configuration. Warnings
// found in the same pass are carried along.
type ValidationError struct {
	Problems []string
	Warnings []Warning
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("We cannot continue as several problems occured:")
	for _, p := range e.Problems {
		b.WriteString("\n- ")
		b.WriteString(p)
	}
	for _, w := range e.Warnings {
		b.WriteString("\n- ")
		b.WriteString(string(w))
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// validator collects problems and warnings in check order
type validator struct {
	problems []string
	warnings []Warning
}

func (v *validator) problem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

// integer parses a numeric field, rounding decimals with a warning
func (v *validator) integer(value, name string) (int, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		v.problem("The %s is not a number.", name)
		return 0, false
	}
	if f != math.Trunc(f) {
		v.warnings = append(v.warnings,
			Warning(fmt.Sprintf("The %s is a decimal, it will be rounded to the closest integer.", name)))
	}
	return int(math.Round(f)), true
}

func (v *validator) overlap(value, name string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < OverlapStep || n > 100-OverlapStep || n%OverlapStep != 0 {
		v.problem("The %s must be one of %s.", name, overlapChoices())
		return 0
	}
	return n
}

func (v *validator) yesNo(value, name string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "y", "true", "1":
		return true
	case "no", "n", "false", "0":
		return false
	}
	v.problem("The %s must be Yes or No.", name)
	return false
}

// OverlapChoices lists the accepted overlap percentages
func OverlapChoices() []int {
	var out []int
	for o := OverlapStep; o < 100; o += OverlapStep {
		out = append(out, o)
	}
	return out
}

func overlapChoices() string {
	parts := make([]string, 0, 19)
	for _, o := range OverlapChoices() {
		parts = append(parts, strconv.Itoa(o))
	}
	return strings.Join(parts, ", ")
}

// Parse validates raw parameters. On failure the error is a *ValidationError
// holding every problem.
func Parse(raw RawParams) (Params, []Warning, error) {
	v := &validator{}
	var p Params

	p.ApplyDenoise = v.yesNo(raw.ApplyDenoise, "wavelet filtering choice")

	winFFT, okWin := v.integer(raw.WinFFT, "window length")
	winEnv, okEnv := v.integer(raw.WinEnv, "envelope window length")
	fmin, okMin := v.integer(raw.FMin, "lowest frequency")
	fmax, okMax := v.integer(raw.FMax, "highest frequency")
	nMatches, okMatches := v.integer(raw.NMatches, "number of matches")

	if okMin && okMax && fmin >= fmax {
		v.problem("The lowest frequency is superior or equal to the highest frequency.")
	}
	if okMin && fmin <= 0 {
		v.problem("The lowest frequency must be strictly positive.")
	}
	if okMatches {
		switch {
		case nMatches > features.MaxMatches:
			v.problem("The number of matches is too high (>%d) compared to the number of extracted features.", features.MaxMatches)
		case nMatches <= 0:
			v.problem("The number of matches must be strictly positive.")
		}
	}
	if okWin && winFFT <= 0 {
		v.problem("The window length must be strictly positive.")
	}
	if okEnv && winEnv <= 0 {
		v.problem("The envelope window length must be strictly positive.")
	}

	p.OvlpFFT = v.overlap(raw.OvlpFFT, "overlap of the sound STFT")
	p.OvlpEnv = v.overlap(raw.OvlpEnv, "overlap of the envelope STFT")

	if alg, err := features.ParseAlgorithm(raw.FeatureAlgorithm); err != nil {
		v.problem("The feature extraction algorithm %q is not supported.", raw.FeatureAlgorithm)
	} else {
		p.FeatureAlgorithm = alg
	}
	if alg, err := clustering.ParseAlgorithm(raw.ClusteringAlgorithm); err != nil {
		v.problem("The clustering algorithm %q is not supported.", raw.ClusteringAlgorithm)
	} else {
		p.ClusteringAlgorithm = alg
	}

	p.EstimatePopulation = v.yesNo(raw.EstimatePopulation, "population estimation choice")

	if strings.TrimSpace(raw.NClusters) != "" {
		if n, ok := v.integer(raw.NClusters, "number of clusters"); ok {
			if n < 0 {
				v.problem("The number of clusters cannot be negative.")
			}
			p.NClusters = n
		}
	}

	p.WinFFT, p.WinEnv, p.FMin, p.FMax, p.NMatches = winFFT, winEnv, fmin, fmax, nMatches

	if len(v.problems) > 0 {
		return Params{}, v.warnings, &ValidationError{Problems: v.problems, Warnings: v.warnings}
	}
	return p, v.warnings, nil
}

// Raw converts validated parameters back to their string form
func (p Params) Raw() RawParams {
	return RawParams{
		ApplyDenoise:        yesNo(p.ApplyDenoise),
		FMin:                strconv.Itoa(p.FMin),
		FMax:                strconv.Itoa(p.FMax),
		WinFFT:              strconv.Itoa(p.WinFFT),
		OvlpFFT:             strconv.Itoa(p.OvlpFFT),
		WinEnv:              strconv.Itoa(p.WinEnv),
		OvlpEnv:             strconv.Itoa(p.OvlpEnv),
		NMatches:            strconv.Itoa(p.NMatches),
		FeatureAlgorithm:    string(p.FeatureAlgorithm),
		ClusteringAlgorithm: string(p.ClusteringAlgorithm),
		EstimatePopulation:  yesNo(p.EstimatePopulation),
		NClusters:           strconv.Itoa(p.NClusters),
	}
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// Summary renders the parameter listing shown before a run starts
func (p Params) Summary() string {
	lines := []string{
		"Apply wavelet filtering: " + yesNo(p.ApplyDenoise),
		fmt.Sprintf("Lowest frequency: %d", p.FMin),
		fmt.Sprintf("Highest frequency: %d", p.FMax),
		fmt.Sprintf("Window length: %d", p.WinFFT),
		fmt.Sprintf("Overlap (%%): %d", p.OvlpFFT),
		fmt.Sprintf("Envelope window length: %d", p.WinEnv),
		fmt.Sprintf("Envelope overlap (%%): %d", p.OvlpEnv),
		fmt.Sprintf("Number of matches: %d", p.NMatches),
		"Feature extraction algorithm: " + string(p.FeatureAlgorithm),
		"Clustering algorithm: " + string(p.ClusteringAlgorithm),
		"Estimation of population: " + yesNo(p.EstimatePopulation),
	}
	if p.NClusters > 0 {
		lines = append(lines, fmt.Sprintf("Number of clusters: %d", p.NClusters))
	}
	return strings.Join(lines, "\n")
}

// Preprocess returns the preprocessing stage configuration
func (p Params) Preprocess(workers int) *preprocess.Config {
	c := preprocess.DefaultConfig()
	c.FMin = float64(p.FMin)
	c.FMax = float64(p.FMax)
	c.Denoise = p.ApplyDenoise
	c.Workers = workers
	return c
}

// Spectrogram returns the spectrogram stage configuration
func (p Params) Spectrogram(workers int) *spectrogram.Config {
	c := spectrogram.DefaultConfig()
	c.WinFFT = p.WinFFT
	c.OvlpFFT = p.OvlpFFT
	c.WinEnv = p.WinEnv
	c.OvlpEnv = p.OvlpEnv
	c.Workers = workers
	return c
}

// Matcher returns the feature matching configuration
func (p Params) Matcher(workers int, openCV bool) *features.Config {
	return &features.Config{
		Algorithm: p.FeatureAlgorithm,
		NMatches:  p.NMatches,
		Workers:   workers,
		OpenCV:    openCV,
	}
}

// Clustering returns the clustering parameters
func (p Params) Clustering() clustering.Params {
	c := clustering.DefaultParams()
	c.NClusters = p.NClusters
	return c
}
