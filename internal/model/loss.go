package model

import (
	"math"

	"github.com/dkarras/captrain/internal/tensor"
)

// Objective computes a scalar loss and its gradient w.r.t. the logits.
type Objective interface {
	Loss(logits *tensor.Tensor, target []int) (float64, *tensor.Tensor)
}

// CrossEntropy is the per-timestep softmax cross-entropy objective, averaged
// over the compared steps.
type CrossEntropy struct{}

// Loss compares each logit row against the target class index at the same
// step. When the logit and target lengths differ, only the overlapping steps
// are compared.
func (CrossEntropy) Loss(logits *tensor.Tensor, target []int) (float64, *tensor.Tensor) {
	steps := logits.Rows
	if len(target) < steps {
		steps = len(target)
	}

	dLogits := tensor.New(logits.Rows, logits.Cols)
	if steps == 0 {
		return 0, dLogits
	}

	probs := logits.Softmax()
	loss := 0.0
	inv := 1.0 / float64(steps)

	for s := 0; s < steps; s++ {
		pRow := probs.Row(s)
		cls := target[s]
		loss -= math.Log(math.Max(pRow[cls], 1e-12))

		dRow := dLogits.Row(s)
		for k, p := range pRow {
			dRow[k] = p * inv
		}
		dRow[cls] -= inv
	}

	return loss * inv, dLogits
}
