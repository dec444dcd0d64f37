// Package cli defines the captrain command tree: prepare turns a raw dataset
// into example files, run trains and evaluates a captioning model over them.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dkarras/captrain/internal/config"
)

var (
	cfgFile string
	verbose bool

	rootCmd = &cobra.Command{
		Use:   "captrain",
		Short: "Train and evaluate audio captioning models",
		Long: `captrain trains a sequence model that captions audio clips and scores it
against multi-annotator references. A run is driven entirely by a YAML
settings file; see 'prepare --help' and 'run --help' for the two stages.`,
		SilenceUsage: true,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to settings file (default: built-in settings)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level regardless of the settings file")
}

// loadSettings resolves the effective settings for a command: the built-in
// defaults, or the --config file when one was given, with the --verbose flag
// applied on top.
func loadSettings() (*config.Settings, error) {
	s := config.Default()
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
		s = loaded
	}
	if verbose {
		s.Logging.Level = "debug"
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}
