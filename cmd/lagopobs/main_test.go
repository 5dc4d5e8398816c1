package main

import (
	"bytes"
	"context"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reefpulse/LagoPObs/clustering"
	"github.com/reefpulse/LagoPObs/config"
	"github.com/reefpulse/LagoPObs/output"
)

func writeSong(t *testing.T, path string, rate int, seed int64) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	n := rate
	data := make([]int, n)
	syllable := rate / 8
	for i := range data {
		v := 0.02 * rng.NormFloat64()
		if k := i % (2 * syllable); k < syllable {
			ts := float64(k) / float64(rate)
			v += 0.8 * math.Sin(math.Pi*float64(k)/float64(syllable)) * math.Sin(2*math.Pi*(1200*ts+4000*ts*ts))
		}
		data[i] = int(max(-1, min(1, v)) * 32000)
	}

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{SampleRate: rate, NumChannels: 1},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(bytes.NewReader(nil))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestAnalyzeThenListRuns(t *testing.T) {
	chdir(t, t.TempDir())
	in, out := t.TempDir(), t.TempDir()
	db := filepath.Join(t.TempDir(), "runs.db")
	for i, name := range []string{"site_20230619_1.wav", "site_20230619_2.wav", "site_20230620_3.wav"} {
		writeSong(t, filepath.Join(in, name), 16000, int64(i))
	}

	stdout, _, err := execute(t, "analyze", "-i", in, "-o", out, "--db", db,
		"--denoise", "No", "--keypoint-images=false", "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Do you wish to proceed with the following parameters?")
	assert.Contains(t, stdout, "Input folder: "+in)
	assert.Contains(t, stdout, "Estimated individuals:")

	for _, name := range []string{output.ClusteringResultsFile, output.RunConfigFile, output.PresenceIndexFile, output.PopulationEstimateFile} {
		assert.FileExists(t, filepath.Join(out, name))
	}
	files, labels, err := output.ReadClusteringResults(filepath.Join(out, output.ClusteringResultsFile))
	require.NoError(t, err)
	assert.Equal(t, []string{"site_20230619_1.wav", "site_20230619_2.wav", "site_20230620_3.wav"}, files)
	assert.Len(t, labels, 3)

	var snap runSnapshot
	require.NoError(t, output.ReadRunConfig(filepath.Join(out, output.RunConfigFile), &snap))
	assert.False(t, snap.Params.ApplyDenoise)
	assert.Equal(t, 950, snap.Params.FMin)

	stdout, _, err = execute(t, "runs", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "ORB custom")
	assert.Contains(t, stdout, "Affinity Propagation")
}

func TestAnalyzeRejectsInvalidParameters(t *testing.T) {
	chdir(t, t.TempDir())
	in, out := t.TempDir(), t.TempDir()
	writeSong(t, filepath.Join(in, "site_20230619_1.wav"), 16000, 1)

	_, _, err := execute(t, "analyze", "-i", in, "-o", out, "--fmin", "2800", "--fmax", "950", "--n-matches", "abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "The lowest frequency is superior or equal to the highest frequency.")
	assert.Contains(t, err.Error(), "The number of matches is not a number.")
	assert.NoFileExists(t, filepath.Join(out, output.ClusteringResultsFile))
}

func TestAnalyzeConfirmDeclined(t *testing.T) {
	chdir(t, t.TempDir())
	in, out := t.TempDir(), t.TempDir()
	writeSong(t, filepath.Join(in, "site_20230619_1.wav"), 16000, 1)

	stdout, _, err := execute(t, "analyze", "-i", in, "-o", out, "--confirm")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Analysis cancelled.")
	assert.NoFileExists(t, filepath.Join(out, output.ClusteringResultsFile))
}

func TestEstimateFromClusteringTable(t *testing.T) {
	chdir(t, t.TempDir())
	out := t.TempDir()
	results := filepath.Join(t.TempDir(), output.ClusteringResultsFile)
	require.NoError(t, output.WriteClusteringResults(results,
		[]string{"a_20230601_1.wav", "a_20230602_2.wav", "a_20230602_3.wav"},
		clustering.Labels{0, 0, 1}))

	stdout, _, err := execute(t, "estimate", "-r", results, "-o", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Resident individuals: 2")

	indices, err := output.ReadPresenceIndex(filepath.Join(out, output.PresenceIndexFile))
	require.NoError(t, err)
	require.Len(t, indices, 2)
	assert.InDelta(t, 1.0, indices[0].Index, 1e-12)
}

func TestEstimateUndatedFiles(t *testing.T) {
	chdir(t, t.TempDir())
	results := filepath.Join(t.TempDir(), output.ClusteringResultsFile)
	require.NoError(t, output.WriteClusteringResults(results, []string{"nodate.wav"}, clustering.Labels{0}))

	_, stderr, err := execute(t, "estimate", "-r", results, "-o", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, stderr, "Population estimation not performed")
}

func TestRunsRequiresDatabase(t *testing.T) {
	chdir(t, t.TempDir())
	_, _, err := execute(t, "runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--db")
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
