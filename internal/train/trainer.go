package train

import (
	"fmt"
	"math/rand"
	"os"
	"sort"
	"time"

	"github.com/dkarras/captrain/internal/caption"
	"github.com/dkarras/captrain/internal/checkpoint"
	"github.com/dkarras/captrain/internal/config"
	"github.com/dkarras/captrain/internal/logging"
	"github.com/dkarras/captrain/internal/model"
	"github.com/dkarras/captrain/internal/tensor"
	"github.com/dkarras/captrain/internal/vocab"
)

// lossSentinel guarantees the first epoch registers as an improvement
// whenever its loss clears the threshold.
const lossSentinel = 1e8

// Trainer owns the multi-epoch optimization loop: improvement tracking,
// checkpointing, patience-driven early stopping and the periodic qualitative
// decode.
type Trainer struct {
	Settings  *config.Settings
	Net       model.Network
	Objective model.Objective
	Optimizer Optimizer
	Vocab     *vocab.Vocabulary
	Log       *logging.Log
	// Rand draws the example indices for the periodic decode. Injected so
	// tests can fix the sampling.
	Rand *rand.Rand
}

// Run trains over src until the epoch budget is exhausted or patience runs
// out, then reloads the parameters of the best epoch so the caller gets the
// best model rather than the last one.
//
// Checkpoint files assume a single writer. Two runs sharing a model
// directory will clobber each other's latest checkpoints.
func (t *Trainer) Run(src Source) error {
	cfg := t.Settings.Training
	modelDir := t.Settings.ModelDir()
	fileName := t.Settings.Model.FileName

	if err := os.MkdirAll(modelDir, 0755); err != nil {
		return fmt.Errorf("creating model dir: %w", err)
	}

	prvLoss := float64(lossSentinel)
	patienceCounter := 0
	bestEpoch := 0
	stoppedEarly := false

	t.Log.Main.Info("Starting training", "epochs", cfg.NbEpochs, "patience", cfg.Patience)

	for epoch := 0; epoch < cfg.NbEpochs; epoch++ {
		start := time.Now()

		out, err := RunEpoch(src, t.Net, t.Objective, t.Optimizer, cfg.GradNorm)
		if err != nil {
			return fmt.Errorf("epoch %d: %w", epoch, err)
		}
		loss := out.MeanLoss()

		t.Log.Main.Info("epoch done",
			"epoch", epoch, "loss", fmt.Sprintf("%.4f", loss),
			"duration", time.Since(start).Round(time.Millisecond))

		if (epoch+1)%cfg.TextOutputEveryNbEpochs == 0 {
			if err := t.decodeSample(out); err != nil {
				return fmt.Errorf("epoch %d: %w", epoch, err)
			}
		}

		if prvLoss-loss > cfg.LossThr {
			prvLoss = loss
			bestEpoch = epoch
			if err := checkpoint.Save(checkpoint.EpochPath(modelDir, epoch, fileName), t.Net.StateDict()); err != nil {
				return fmt.Errorf("epoch %d: %w", epoch, err)
			}
			patienceCounter = 0
		} else {
			patienceCounter++
		}

		// Rolling checkpoints every epoch, improvement or not, so a crashed
		// run can resume from its most recent state.
		if err := checkpoint.Save(checkpoint.LatestPath(modelDir, fileName), t.Net.StateDict()); err != nil {
			return fmt.Errorf("epoch %d: %w", epoch, err)
		}
		if err := checkpoint.Save(checkpoint.LatestOptimizerPath(modelDir, fileName), t.Optimizer.StateDict()); err != nil {
			return fmt.Errorf("epoch %d: %w", epoch, err)
		}

		if patienceCounter >= cfg.Patience {
			t.Log.Main.Info("no lower training loss, stopping early",
				"epochs_without_improvement", patienceCounter, "epoch", epoch)
			stoppedEarly = true
			break
		}
	}

	t.Log.Main.Info("Training done", "best_epoch", bestEpoch, "stopped_early", stoppedEarly)

	best, err := checkpoint.Load(checkpoint.EpochPath(modelDir, bestEpoch, fileName))
	if err != nil {
		return fmt.Errorf("restoring best epoch %d: %w", bestEpoch, err)
	}
	if err := t.Net.LoadStateDict(best); err != nil {
		return fmt.Errorf("restoring best epoch %d: %w", bestEpoch, err)
	}
	return nil
}

// decodeSample decodes a small random subset of the epoch's outputs for
// qualitative monitoring. It never touches training state.
func (t *Trainer) decodeSample(out *EpochOutput) error {
	n := t.Settings.Training.NbExamplesToSample
	if n <= 0 || len(out.Predictions) == 0 {
		return nil
	}
	if n > len(out.Predictions) {
		n = len(out.Predictions)
	}

	indices := t.Rand.Perm(len(out.Predictions))[:n]
	sort.Ints(indices)

	preds := make([]*tensor.Tensor, n)
	targets := make([][]int, n)
	names := make([]string, n)
	for i, idx := range indices {
		preds[i] = out.Predictions[idx]
		targets[i] = out.Targets[idx]
		names[i] = out.FileNames[idx]
	}

	_, _, err := caption.Decode(preds, targets, t.Vocab, names,
		t.Settings.Data.EOSToken, false, t.Log)
	return err
}
