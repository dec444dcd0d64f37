// Package train owns the epoch-level control loop: a single pass over a data
// source, and the multi-epoch orchestrator with its checkpointing and early
// stopping policy.
package train

import (
	"fmt"

	"github.com/dkarras/captrain/internal/config"
	"github.com/dkarras/captrain/internal/data"
	"github.com/dkarras/captrain/internal/model"
	"github.com/dkarras/captrain/internal/tensor"
)

// Source serves a split in batches. Batches are pulled lazily, one at a time.
type Source interface {
	Len() int
	Batch(i int) ([]data.Example, error)
}

// Optimizer applies accumulated gradients to parameters. Its state is
// checkpointed every epoch alongside the model's.
type Optimizer interface {
	Step(params []*model.Param)
	StateDict() map[string]*tensor.Tensor
}

// EpochOutput is everything one pass produced, index-aligned per example
// across the whole pass. It is consumed immediately by the orchestrator that
// requested it.
type EpochOutput struct {
	// Losses holds one mean loss per batch; empty for inference passes.
	Losses []float64
	// Predictions holds the [steps x classes] logit matrix per example.
	Predictions []*tensor.Tensor
	// Targets holds the ground-truth index sequence per example.
	Targets [][]int
	// FileNames holds the source clip name per example.
	FileNames []string
}

// MeanLoss returns the mean of the per-batch losses.
func (o *EpochOutput) MeanLoss() float64 {
	if len(o.Losses) == 0 {
		return 0
	}
	sum := 0.0
	for _, l := range o.Losses {
		sum += l
	}
	return sum / float64(len(o.Losses))
}

// RunEpoch drives one full pass of src through net.
//
// With both objective and optimizer nil the pass is inference-only: the
// network is put in eval mode and no gradients are touched. With both
// present the pass trains: per batch, gradients are accumulated over the
// examples, averaged, optionally clipped to the configured norm, and applied
// with one optimizer step. Supplying only one of the two is a programming
// error and is rejected.
func RunEpoch(src Source, net model.Network, objective model.Objective, optimizer Optimizer, clip config.GradNormSettings) (*EpochOutput, error) {
	training := objective != nil && optimizer != nil
	if !training && (objective != nil || optimizer != nil) {
		return nil, fmt.Errorf("epoch: objective and optimizer must both be set or both be nil")
	}

	if training {
		net.Train()
	} else {
		net.Eval()
	}

	out := &EpochOutput{}
	for i := 0; i < src.Len(); i++ {
		batch, err := src.Batch(i)
		if err != nil {
			return nil, fmt.Errorf("epoch: %w", err)
		}
		if len(batch) == 0 {
			continue
		}

		if training {
			net.ZeroGrad()
		}

		batchLoss := 0.0
		for _, ex := range batch {
			logits := net.Forward(ex.Features, len(ex.Target))

			if training {
				loss, dLogits := objective.Loss(logits, ex.Target)
				net.Backward(dLogits)
				batchLoss += loss
			}

			out.Predictions = append(out.Predictions, logits)
			out.Targets = append(out.Targets, ex.Target)
			out.FileNames = append(out.FileNames, ex.FileName)
		}

		if training {
			params := net.Parameters()
			scaleGrads(params, 1/float64(len(batch)))
			if clip.Active {
				model.ClipGradNorm(params, clip.Value)
			}
			optimizer.Step(params)
			out.Losses = append(out.Losses, batchLoss/float64(len(batch)))
		}
	}

	return out, nil
}

func scaleGrads(params []*model.Param, s float64) {
	for _, p := range params {
		for i := range p.Grad.Data {
			p.Grad.Data[i] *= s
		}
	}
}
