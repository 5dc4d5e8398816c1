package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reefpulse/LagoPObs/audio"
	"github.com/reefpulse/LagoPObs/config"
	"github.com/reefpulse/LagoPObs/output"
	"github.com/reefpulse/LagoPObs/pipeline"
	"github.com/reefpulse/LagoPObs/store"
)

const dateFormatHelp = "Population estimation not performed as the filenames format is wrong. " +
	"Filenames must be split in different parts, separated by underscores, with the date in the second " +
	"position and with the following format: yearmonthday. For example: 'xxxxx_20230619_xxxxxx.wav' " +
	"means that the file was recorded on June 19, 2023."

// runSnapshot is written to run_config.yaml and stored with the run
type runSnapshot struct {
	Input  string        `yaml:"input" json:"input"`
	Output string        `yaml:"output" json:"output"`
	Params config.Params `yaml:"params" json:"params"`
}

func analyzeCommand(a *app) *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Cluster the recordings of a directory and estimate the population",
		Long: "Reads every WAV file of the input directory, clusters the vocalizations by individual " +
			"and writes the clustering, presence and population tables to the output directory.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.analyze(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), confirm)
		},
	}

	defaults := config.DefaultRawParams()
	f := cmd.Flags()
	f.StringP("input", "i", ".", "Directory holding the WAV recordings")
	f.StringP("output", "o", ".", "Directory receiving the results")
	f.String("denoise", defaults.ApplyDenoise, "Apply wavelet filtering (Yes/No)")
	f.String("fmin", defaults.FMin, "Lowest frequency in Hz")
	f.String("fmax", defaults.FMax, "Highest frequency in Hz")
	f.String("win-fft", defaults.WinFFT, "Window length of the sound STFT")
	f.String("ovlp-fft", defaults.OvlpFFT, "Overlap in percent of the sound STFT (5 to 95, step 5)")
	f.String("win-env", defaults.WinEnv, "Window length of the envelope STFT")
	f.String("ovlp-env", defaults.OvlpEnv, "Overlap in percent of the envelope STFT (5 to 95, step 5)")
	f.String("n-matches", defaults.NMatches, "Number of best matches kept per pair (at most 500)")
	f.String("features", defaults.FeatureAlgorithm, "Feature extraction algorithm: SIFT, ORB, ORB custom, AKAZE, KAZE")
	f.String("clustering", defaults.ClusteringAlgorithm, "Clustering algorithm")
	f.String("estimate", defaults.EstimatePopulation, "Estimate the population (Yes/No)")
	f.String("n-clusters", defaults.NClusters, "Number of clusters for algorithms that need one, 0 = automatic")
	f.Int("workers", 0, "Parallel workers, 0 = one per CPU")
	f.Bool("keypoint-images", true, "Write spectrograms annotated with their keypoints")
	f.Bool("opencv", false, "Use OpenCV keypoints (requires a build with the opencv tag)")
	f.String("db", "", "SQLite database recording the run")
	f.BoolVar(&confirm, "confirm", false, "Ask for confirmation before starting")

	return cmd
}

func (a *app) analyze(ctx context.Context, in io.Reader, out, errOut io.Writer, confirm bool) error {
	s := a.settings

	params, warnings, err := s.Validate()
	if err != nil {
		return err
	}
	if len(warnings) > 0 {
		fmt.Fprintln(errOut, "Several decimals were detected in the parameters:")
		for _, w := range warnings {
			fmt.Fprintln(errOut, "- "+string(w))
		}
	}

	fmt.Fprintln(out, "Do you wish to proceed with the following parameters?")
	fmt.Fprintln(out, "Input folder: "+s.Input)
	fmt.Fprintln(out, "Output folder: "+s.Output)
	fmt.Fprintln(out, params.Summary())
	if confirm && !askYesNo(in, out) {
		fmt.Fprintln(out, "Analysis cancelled.")
		return nil
	}

	paths, err := audio.ListWAVs(s.Input)
	if err != nil {
		return err
	}
	recs, err := audio.NewDecoder(nil).LoadBatch(ctx, paths, s.Workers)
	if err != nil {
		return err
	}

	writer, err := output.NewWriter(s.Output, output.DefaultRetryConfig())
	if err != nil {
		return err
	}
	snapshot := runSnapshot{Input: s.Input, Output: s.Output, Params: params}
	if err := writer.RunConfig(ctx, snapshot); err != nil {
		return err
	}

	progress := newProgressObserver(errOut)
	p, err := pipeline.NewPipeline(&pipeline.Config{
		Params:         params,
		Workers:        s.Workers,
		OpenCV:         s.OpenCV,
		KeypointImages: s.KeypointImages,
	}, progress)
	if err != nil {
		progress.finish(false)
		return err
	}
	p.SetWriter(writer)

	res, err := p.Run(ctx, recs)
	progress.finish(err == nil)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%d recordings, %d clusters\n", len(res.Files), res.NClusters)
	if res.DateErr != nil {
		fmt.Fprintln(errOut, dateFormatHelp)
		fmt.Fprintln(errOut, res.DateErr)
	}
	if res.Population != nil {
		fmt.Fprintf(out, "Estimated individuals: %d\nResident individuals: %d\n",
			res.Population.Estimate.Individuals, res.Population.Estimate.Residents)
	}
	fmt.Fprintln(out, "Results written to "+writer.Dir())

	if s.Database != "" {
		return recordRun(ctx, s.Database, snapshot, res)
	}
	return nil
}

// recordRun stores the run in the history database
func recordRun(ctx context.Context, path string, snapshot runSnapshot, res *pipeline.Result) error {
	db, err := store.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := store.NewRun(snapshot)
	if err != nil {
		return err
	}
	run.InputDir = snapshot.Input
	run.FeatureAlgorithm = string(snapshot.Params.FeatureAlgorithm)
	run.ClusteringAlgorithm = string(snapshot.Params.ClusteringAlgorithm)
	run.Recordings = len(res.Files)
	run.NClusters = res.NClusters

	var presence []store.PresenceRow
	if res.Population != nil {
		run.Individuals = res.Population.Estimate.Individuals
		run.Residents = res.Population.Estimate.Residents
		presence = store.NewPresenceRows(res.Population.Indices)
	}
	return db.SaveRun(ctx, run, store.NewAssignments(res.Files, res.Labels), presence)
}

func askYesNo(in io.Reader, out io.Writer) bool {
	fmt.Fprint(out, "[y/N] ")
	answer, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
