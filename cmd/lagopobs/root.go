package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/reefpulse/LagoPObs/config"
	"github.com/reefpulse/LagoPObs/logging"
)

// app carries the state shared by the sub-commands
type app struct {
	configFile string
	v          *viper.Viper
	settings   *config.Settings
}

// flagKeys maps command line flags to settings keys
var flagKeys = map[string]string{
	"input":           "input",
	"output":          "output",
	"denoise":         "analysis.apply_denoise",
	"fmin":            "analysis.fmin",
	"fmax":            "analysis.fmax",
	"win-fft":         "analysis.win_fft",
	"ovlp-fft":        "analysis.ovlp_fft",
	"win-env":         "analysis.win_env",
	"ovlp-env":        "analysis.ovlp_env",
	"n-matches":       "analysis.n_matches",
	"features":        "analysis.features",
	"clustering":      "analysis.clustering",
	"estimate":        "analysis.estimate_population",
	"n-clusters":      "analysis.n_clusters",
	"workers":         "workers",
	"keypoint-images": "keypoint_images",
	"opencv":          "opencv",
	"db":              "database",
	"log-level":       "log.level",
	"debug":           "log.debug",
}

func newRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "lagopobs",
		Short:         "Rock ptarmigan population observatory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "Settings file (default: lagopobs.yaml in ., ~/.config/lagopobs, /etc/lagopobs)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return a.initialize(cmd)
	}

	rootCmd.AddCommand(
		analyzeCommand(a),
		estimateCommand(a),
		runsCommand(a),
	)
	return rootCmd
}

// initialize loads the settings, lets explicitly set flags override them and
// configures logging
func (a *app) initialize(cmd *cobra.Command) error {
	v, err := config.NewViper(a.configFile)
	if err != nil {
		return err
	}

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(key, f)
	})
	if bindErr != nil {
		return bindErr
	}

	settings, err := config.Decode(v)
	if err != nil {
		return err
	}
	a.v = v
	a.settings = settings

	level, err := logging.ParseLevel(settings.Log.Level)
	if err != nil {
		return err
	}
	if settings.Log.Debug {
		level = logging.DebugLevel
	}
	logging.SetLevel(level)
	return nil
}
