package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reefpulse/LagoPObs/clustering"
	"github.com/reefpulse/LagoPObs/features"
	"github.com/reefpulse/LagoPObs/internal/errors"
)

func TestParseDefaults(t *testing.T) {
	p, warnings, err := Parse(DefaultRawParams())
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.True(t, p.ApplyDenoise)
	assert.Equal(t, 950, p.FMin)
	assert.Equal(t, 2800, p.FMax)
	assert.Equal(t, 281, p.WinFFT)
	assert.Equal(t, 75, p.OvlpFFT)
	assert.Equal(t, 706, p.WinEnv)
	assert.Equal(t, 90, p.OvlpEnv)
	assert.Equal(t, 53, p.NMatches)
	assert.Equal(t, features.ORBCustom, p.FeatureAlgorithm)
	assert.Equal(t, clustering.AffinityPropagation, p.ClusteringAlgorithm)
	assert.True(t, p.EstimatePopulation)
	assert.Zero(t, p.NClusters)
}

func problemsOf(t *testing.T, err error) []string {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	return ve.Problems
}

func TestParseProblems(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*RawParams)
		want   string
	}{
		{"inverted band", func(r *RawParams) { r.FMin, r.FMax = "2800", "950" },
			"The lowest frequency is superior or equal to the highest frequency."},
		{"equal band", func(r *RawParams) { r.FMax = "950" },
			"The lowest frequency is superior or equal to the highest frequency."},
		{"non numeric window", func(r *RawParams) { r.WinFFT = "abc" },
			"The window length is not a number."},
		{"too many matches", func(r *RawParams) { r.NMatches = "501" },
			"The number of matches is too high (>500) compared to the number of extracted features."},
		{"zero matches", func(r *RawParams) { r.NMatches = "0" },
			"The number of matches must be strictly positive."},
		{"negative fmin", func(r *RawParams) { r.FMin = "-5" },
			"The lowest frequency must be strictly positive."},
		{"zero envelope window", func(r *RawParams) { r.WinEnv = "0" },
			"The envelope window length must be strictly positive."},
		{"unknown features", func(r *RawParams) { r.FeatureAlgorithm = "SURF" },
			`The feature extraction algorithm "SURF" is not supported.`},
		{"unknown clustering", func(r *RawParams) { r.ClusteringAlgorithm = "Spectral" },
			`The clustering algorithm "Spectral" is not supported.`},
		{"bad denoise flag", func(r *RawParams) { r.ApplyDenoise = "maybe" },
			"The wavelet filtering choice must be Yes or No."},
		{"negative clusters", func(r *RawParams) { r.NClusters = "-1" },
			"The number of clusters cannot be negative."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := DefaultRawParams()
			tt.modify(&raw)
			_, _, err := Parse(raw)
			assert.Contains(t, problemsOf(t, err), tt.want)
		})
	}
}

func TestParseOverlapSteps(t *testing.T) {
	for _, o := range OverlapChoices() {
		raw := DefaultRawParams()
		raw.OvlpFFT = strconv.Itoa(o)
		_, _, err := Parse(raw)
		assert.NoError(t, err, "overlap %d", o)
	}
	assert.Len(t, OverlapChoices(), 19)

	for _, bad := range []string{"0", "12", "100", "x"} {
		raw := DefaultRawParams()
		raw.OvlpEnv = bad
		_, _, err := Parse(raw)
		problems := problemsOf(t, err)
		require.Len(t, problems, 1, bad)
		assert.Contains(t, problems[0], "overlap of the envelope STFT")
	}
}

func TestParseAggregatesEveryProblem(t *testing.T) {
	raw := DefaultRawParams()
	raw.FMin = "abc"
	raw.WinFFT = "x"
	raw.NMatches = "900"
	raw.WinEnv = "706.4"

	_, warnings, err := Parse(raw)
	problems := problemsOf(t, err)
	assert.Equal(t, []string{
		"The window length is not a number.",
		"The lowest frequency is not a number.",
		"The number of matches is too high (>500) compared to the number of extracted features.",
	}, problems)
	require.Len(t, warnings, 1)

	// the frequency ordering is only checked when both bounds parse
	for _, p := range problems {
		assert.NotContains(t, p, "superior")
	}

	msg := err.Error()
	assert.True(t, strings.HasPrefix(msg, "We cannot continue as several problems occured:"))
	assert.Contains(t, msg, "- The envelope window length is a decimal")
}

func TestParseRoundsDecimals(t *testing.T) {
	raw := DefaultRawParams()
	raw.FMin = "950.6"
	raw.NMatches = "52.5"

	p, warnings, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, 951, p.FMin)
	assert.Equal(t, 53, p.NMatches)
	assert.Equal(t, []Warning{
		"The lowest frequency is a decimal, it will be rounded to the closest integer.",
		"The number of matches is a decimal, it will be rounded to the closest integer.",
	}, warnings)
}

func TestParseCaseInsensitiveNames(t *testing.T) {
	raw := DefaultRawParams()
	raw.FeatureAlgorithm = "akaze"
	raw.ClusteringAlgorithm = "hdbscan"
	raw.ApplyDenoise = "no"

	p, _, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, features.AKAZE, p.FeatureAlgorithm)
	assert.Equal(t, clustering.HDBSCAN, p.ClusteringAlgorithm)
	assert.False(t, p.ApplyDenoise)
}

func TestRawRoundTrip(t *testing.T) {
	p := DefaultParams()
	q, warnings, err := Parse(p.Raw())
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, p, q)
}

func TestSummary(t *testing.T) {
	s := DefaultParams().Summary()
	assert.Contains(t, s, "Apply wavelet filtering: Yes")
	assert.Contains(t, s, "Overlap (%): 75")
	assert.Contains(t, s, "Clustering algorithm: Affinity Propagation")
	assert.NotContains(t, s, "Number of clusters")
}

func TestStageConfigs(t *testing.T) {
	p := DefaultParams()
	p.NClusters = 3

	pre := p.Preprocess(2)
	assert.InDelta(t, 950.0, pre.FMin, 0)
	assert.InDelta(t, 2800.0, pre.FMax, 0)
	assert.True(t, pre.Denoise)
	assert.Equal(t, 2, pre.Workers)

	sc := p.Spectrogram(2)
	assert.Equal(t, 281, sc.WinFFT)
	assert.Equal(t, 90, sc.OvlpEnv)

	m := p.Matcher(4, false)
	assert.Equal(t, features.ORBCustom, m.Algorithm)
	assert.Equal(t, 53, m.NMatches)

	assert.Equal(t, 3, p.Clustering().NClusters)
}

func TestValidatePaths(t *testing.T) {
	empty := t.TempDir()
	withWav := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(withWav, "a_20210601.wav"), []byte("RIFF"), 0o644))
	missing := filepath.Join(empty, "missing")

	assert.Empty(t, ValidatePaths(withWav, empty))
	assert.Equal(t, []string{"Your input folder does not contain WAV files."}, ValidatePaths(empty, empty))
	assert.Equal(t, []string{
		"Your input folder does not exist.",
		"Your output folder does not exist.",
	}, ValidatePaths(missing, missing))
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultRawParams(), s.Analysis)
	assert.True(t, s.KeypointImages)
	assert.Equal(t, "info", s.Log.Level)
	assert.Empty(t, s.Database)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "custom.yaml")
	content := "analysis:\n  fmin: \"1000\"\n  clustering: K-Means\nworkers: 3\n"
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))
	t.Setenv("LAGOPOBS_ANALYSIS_FMAX", "3000")

	s, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "1000", s.Analysis.FMin)
	assert.Equal(t, "3000", s.Analysis.FMax)
	assert.Equal(t, "K-Means", s.Analysis.ClusteringAlgorithm)
	assert.Equal(t, "281", s.Analysis.WinFFT)
	assert.Equal(t, 3, s.Workers)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestSettingsValidateAggregates(t *testing.T) {
	s := &Settings{Input: filepath.Join(t.TempDir(), "missing"), Output: t.TempDir()}
	s.Analysis = DefaultRawParams()
	s.Analysis.FMin, s.Analysis.FMax = "2800", "950"

	_, _, err := s.Validate()
	problems := problemsOf(t, err)
	assert.Equal(t, []string{
		"Your input folder does not exist.",
		"The lowest frequency is superior or equal to the highest frequency.",
	}, problems)
}

// chdir changes the working directory for the duration of the test,
// restoring it on cleanup (equivalent of testing.T.Chdir, Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
