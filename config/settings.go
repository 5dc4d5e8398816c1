package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/reefpulse/LagoPObs/audio"
	"github.com/reefpulse/LagoPObs/internal/errors"
)

//go:embed config.yaml
var defaultConfig []byte

// ConfigName is the base name of the settings file looked up in ConfigPaths
const ConfigName = "lagopobs"

// EnvPrefix prefixes environment overrides, e.g. LAGOPOBS_ANALYSIS_FMIN
const EnvPrefix = "LAGOPOBS"

// Settings holds everything a run needs besides the recordings themselves
type Settings struct {
	Input          string    `mapstructure:"input" yaml:"input"`
	Output         string    `mapstructure:"output" yaml:"output"`
	Analysis       RawParams `mapstructure:"analysis" yaml:"analysis"`
	Workers        int       `mapstructure:"workers" yaml:"workers"`
	KeypointImages bool      `mapstructure:"keypoint_images" yaml:"keypoint_images"`
	OpenCV         bool      `mapstructure:"opencv" yaml:"opencv"`
	Database       string    `mapstructure:"database" yaml:"database"`
	Log            struct {
		Level string `mapstructure:"level" yaml:"level"`
		Debug bool   `mapstructure:"debug" yaml:"debug"`
	} `mapstructure:"log" yaml:"log"`
}

// DefaultConfig returns the embedded default settings file
func DefaultConfig() []byte {
	return bytes.Clone(defaultConfig)
}

// ConfigPaths returns the directories searched for lagopobs.yaml, in order
func ConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "lagopobs"))
	}
	return append(paths, "/etc/lagopobs")
}

// NewViper layers the embedded defaults, an optional settings file and the
// environment. An empty file searches ConfigPaths; a missing file there is not an error.
func NewViper(file string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaultConfig)); err != nil {
		return nil, errors.New(fmt.Errorf("error reading embedded config: %w", err)).
			Component("config").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(ConfigName)
		for _, p := range ConfigPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, errors.New(fmt.Errorf("error reading config file: %w", err)).
				Component("config").
				Category(errors.CategoryConfiguration).
				Context("file", file).
				Build()
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// Decode unmarshals v into Settings
func Decode(v *viper.Viper) (*Settings, error) {
	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("config").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return s, nil
}

// Load is NewViper followed by Decode
func Load(file string) (*Settings, error) {
	v, err := NewViper(file)
	if err != nil {
		return nil, err
	}
	return Decode(v)
}

// ValidatePaths returns the problems with the input and output directories
func ValidatePaths(input, output string) []string {
	var problems []string
	if info, err := os.Stat(input); err != nil || !info.IsDir() {
		problems = append(problems, "Your input folder does not exist.")
	} else if wavs, err := audio.ListWAVs(input); err != nil || len(wavs) == 0 {
		problems = append(problems, "Your input folder does not contain WAV files.")
	}
	if info, err := os.Stat(output); err != nil || !info.IsDir() {
		problems = append(problems, "Your output folder does not exist.")
	}
	return problems
}

// Validate checks the directories and the analysis parameters in one pass
func (s *Settings) Validate() (Params, []Warning, error) {
	problems := ValidatePaths(s.Input, s.Output)
	p, warnings, err := Parse(s.Analysis)
	if err != nil {
		var ve *ValidationError
		if !errors.As(err, &ve) {
			return Params{}, warnings, err
		}
		problems = append(problems, ve.Problems...)
	}
	if len(problems) > 0 {
		return Params{}, warnings, &ValidationError{Problems: problems, Warnings: warnings}
	}
	return p, warnings, nil
}
