package cli

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dkarras/captrain/internal/checkpoint"
	"github.com/dkarras/captrain/internal/config"
	"github.com/dkarras/captrain/internal/data"
	"github.com/dkarras/captrain/internal/device"
	"github.com/dkarras/captrain/internal/evaluate"
	"github.com/dkarras/captrain/internal/logging"
	"github.com/dkarras/captrain/internal/metrics"
	"github.com/dkarras/captrain/internal/model"
	"github.com/dkarras/captrain/internal/train"
	"github.com/dkarras/captrain/internal/vocab"
)

var seed int64

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Train and/or evaluate a captioning model",
	Long: `Runs the stages selected in the settings file. Training optimizes the model
over the development split with per-epoch checkpoints and early stopping,
then restores the best epoch. Evaluation decodes the evaluation split and
reports caption quality metrics.

Both stages need prepared example files; run 'captrain prepare' first.`,
	Example: `  # Train and evaluate with the settings in captrain.yaml
  captrain run --config captrain.yaml

  # Evaluate only (set workflow.do_training: false in the settings file),
  # reusing the latest checkpoint from an earlier training run
  captrain run --config eval.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		return runWorkflow(s)
	},
}

func init() {
	runCmd.Flags().Int64Var(&seed, "seed", 42, "seed for weight init, batch shuffling and decode sampling")
	rootCmd.AddCommand(runCmd)
}

func runWorkflow(s *config.Settings) error {
	runID := uuid.NewString()

	lg, err := logging.New(s.Logging.Dir, runID, config.ParseLogLevel(s.Logging.Level))
	if err != nil {
		return err
	}
	defer lg.Close()

	dev := device.Select(s.Training.ForceCPU)
	lg.Main.Info("Process on device", "device", dev.Name, "force_cpu", dev.ForceCPU)
	lg.Main.Info("run starting", "run_id", runID, "seed", seed)

	voc, err := vocab.Load(s.IndicesFilePath())
	if err != nil {
		return fmt.Errorf("loading vocabulary: %w", err)
	}

	rng := rand.New(rand.NewSource(seed))
	net := model.NewTransducer(
		s.Data.Features.Bands, s.Model.HiddenSize, voc.Len(),
		s.Data.MaxCaptionLength, rng)
	lg.Main.Info("model created",
		"classes", voc.Len(), "hidden", s.Model.HiddenSize,
		"parameters", model.NumParams(net))

	trained := false
	if s.Workflow.DoTraining {
		src, err := data.NewLoader(s.DatasetDir(), s.Data.DevSplit, s.Data, rng)
		if err != nil {
			return err
		}
		lg.Main.Info("development split loaded",
			"examples", src.Examples(), "batches", src.Len())

		trainer := &train.Trainer{
			Settings:  s,
			Net:       net,
			Objective: model.CrossEntropy{},
			Optimizer: model.NewAdam(s.Training.Optimizer.LR),
			Vocab:     voc,
			Log:       lg,
			Rand:      rng,
		}
		if err := trainer.Run(src); err != nil {
			return fmt.Errorf("training: %w", err)
		}
		trained = true
	}

	if s.Workflow.DoEvaluation {
		// Without a training stage in this run, pick up where the last
		// one left off.
		if !trained {
			path := checkpoint.LatestPath(s.ModelDir(), s.Model.FileName)
			state, err := checkpoint.Load(path)
			if err != nil {
				return fmt.Errorf("loading model for evaluation: %w", err)
			}
			if err := net.LoadStateDict(state); err != nil {
				return fmt.Errorf("loading model for evaluation: %w", err)
			}
			lg.Main.Info("model restored", "checkpoint", path)
		}

		src, err := data.NewLoader(s.DatasetDir(), s.Data.EvalSplit, s.Data, nil)
		if err != nil {
			return err
		}
		if err := evaluate.Run(src, net, voc, s, metrics.WordOverlap{}, lg); err != nil {
			return err
		}
	}

	lg.Main.Info("run finished", "run_id", runID)
	return nil
}
