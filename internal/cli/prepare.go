package cli

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dkarras/captrain/internal/config"
	"github.com/dkarras/captrain/internal/data"
	"github.com/dkarras/captrain/internal/logging"
)

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Turn the raw dataset into example files",
	Long: `Reads the caption CSV and WAV clips of the development and evaluation
splits, builds the vocabulary from the development captions, extracts audio
features and writes one example file per clip and caption. 'captrain run'
consumes these files.`,
	Example: `  captrain prepare --config captrain.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		return prepareDataset(s)
	},
}

func init() {
	rootCmd.AddCommand(prepareCmd)
}

func prepareDataset(s *config.Settings) error {
	lg, err := logging.New(s.Logging.Dir, uuid.NewString(), config.ParseLogLevel(s.Logging.Level))
	if err != nil {
		return err
	}
	defer lg.Close()

	// The development split defines the vocabulary; the evaluation split
	// reuses it so class indices line up. Unseen evaluation words map to
	// the unknown token.
	voc, _, err := data.Prepare(s.Data.DevSplit, s, nil, lg)
	if err != nil {
		return err
	}
	_, _, err = data.Prepare(s.Data.EvalSplit, s, voc, lg)
	return err
}
