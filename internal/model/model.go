// Package model defines the trainable network contract consumed by the
// training and evaluation orchestrators, plus a compact reference
// implementation, the cross-entropy objective and the Adam optimizer.
package model

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/dkarras/captrain/internal/tensor"
)

// Param is one named trainable tensor with its gradient accumulator.
type Param struct {
	Name  string
	Value *tensor.Tensor
	Grad  *tensor.Tensor
}

// Network is the model contract: forward pass, gradient propagation,
// parameter enumeration, train/eval mode switches and state serialization.
type Network interface {
	// Forward maps an input feature matrix ([frames x featDim]) to output
	// logits ([steps x classes]).
	Forward(features *tensor.Tensor, steps int) *tensor.Tensor
	// Backward propagates the loss gradient w.r.t. the logits of the most
	// recent Forward call, accumulating into parameter gradients.
	Backward(dLogits *tensor.Tensor)
	Parameters() []*Param
	ZeroGrad()
	Train()
	Eval()
	StateDict() map[string]*tensor.Tensor
	LoadStateDict(state map[string]*tensor.Tensor) error
}

// Transducer is a small sequence transducer: a mean-pooled tanh encoder over
// the input frames combined with a learned per-step embedding, projected to
// class logits. It exists to give the control loop a real network to drive;
// it makes no claim to state-of-the-art captioning.
type Transducer struct {
	featDim  int
	hidden   int
	classes  int
	maxSteps int

	wEnc  *Param // [featDim x hidden]
	bEnc  *Param // [1 x hidden]
	eStep *Param // [maxSteps x hidden]
	wOut  *Param // [hidden x classes]
	bOut  *Param // [1 x classes]

	training bool

	// forward cache for Backward, only populated in training mode
	cachePooled *tensor.Tensor // [1 x featDim]
	cacheHidden *tensor.Tensor // [steps x hidden]
}

// NewTransducer builds a transducer with normally distributed initial
// weights scaled by fan-in.
func NewTransducer(featDim, hidden, classes, maxSteps int, rng *rand.Rand) *Transducer {
	t := &Transducer{
		featDim:  featDim,
		hidden:   hidden,
		classes:  classes,
		maxSteps: maxSteps,
		wEnc:     newParam("w_enc", featDim, hidden),
		bEnc:     newParam("b_enc", 1, hidden),
		eStep:    newParam("e_step", maxSteps, hidden),
		wOut:     newParam("w_out", hidden, classes),
		bOut:     newParam("b_out", 1, classes),
		training: true,
	}
	t.wEnc.Value.FillRandNorm(0, 1/math.Sqrt(float64(featDim)), rng)
	t.eStep.Value.FillRandNorm(0, 1/math.Sqrt(float64(hidden)), rng)
	t.wOut.Value.FillRandNorm(0, 1/math.Sqrt(float64(hidden)), rng)
	return t
}

func newParam(name string, rows, cols int) *Param {
	return &Param{
		Name:  name,
		Value: tensor.New(rows, cols),
		Grad:  tensor.New(rows, cols),
	}
}

// Classes returns the size of the output distribution.
func (t *Transducer) Classes() int { return t.classes }

// Forward runs the encoder over the feature frames and emits logits for the
// requested number of output steps. Steps beyond maxSteps reuse the last
// step embedding.
func (t *Transducer) Forward(features *tensor.Tensor, steps int) *tensor.Tensor {
	pooled := tensor.New(1, t.featDim)
	for i := 0; i < features.Rows; i++ {
		row := features.Row(i)
		for j, v := range row {
			pooled.Data[j] += v
		}
	}
	if features.Rows > 0 {
		for j := range pooled.Data {
			pooled.Data[j] /= float64(features.Rows)
		}
	}

	enc := tensor.New(1, t.hidden)
	tensor.MatMul(pooled, t.wEnc.Value, enc)

	hidden := tensor.New(steps, t.hidden)
	for s := 0; s < steps; s++ {
		e := s
		if e >= t.maxSteps {
			e = t.maxSteps - 1
		}
		hRow := hidden.Row(s)
		eRow := t.eStep.Value.Row(e)
		for j := 0; j < t.hidden; j++ {
			hRow[j] = math.Tanh(enc.Data[j] + t.bEnc.Value.Data[j] + eRow[j])
		}
	}

	logits := tensor.New(steps, t.classes)
	tensor.MatMul(hidden, t.wOut.Value, logits)
	for s := 0; s < steps; s++ {
		row := logits.Row(s)
		for j := range row {
			row[j] += t.bOut.Value.Data[j]
		}
	}

	if t.training {
		t.cachePooled = pooled
		t.cacheHidden = hidden
	} else {
		t.cachePooled = nil
		t.cacheHidden = nil
	}

	return logits
}

// Backward accumulates parameter gradients from the loss gradient w.r.t. the
// logits of the most recent training-mode Forward call.
func (t *Transducer) Backward(dLogits *tensor.Tensor) {
	if t.cacheHidden == nil {
		panic("model: Backward called without a training-mode Forward")
	}

	steps := dLogits.Rows
	hidden := t.cacheHidden
	pooled := t.cachePooled

	// output projection
	for s := 0; s < steps; s++ {
		dRow := dLogits.Row(s)
		hRow := hidden.Row(s)
		for j := 0; j < t.hidden; j++ {
			for k := 0; k < t.classes; k++ {
				t.wOut.Grad.Data[j*t.classes+k] += hRow[j] * dRow[k]
			}
		}
		for k := 0; k < t.classes; k++ {
			t.bOut.Grad.Data[k] += dRow[k]
		}
	}

	// through tanh into the encoder and step embeddings
	dPreSum := make([]float64, t.hidden)
	for s := 0; s < steps; s++ {
		dRow := dLogits.Row(s)
		hRow := hidden.Row(s)
		e := s
		if e >= t.maxSteps {
			e = t.maxSteps - 1
		}
		eGrad := t.eStep.Grad.Row(e)
		for j := 0; j < t.hidden; j++ {
			dh := 0.0
			for k := 0; k < t.classes; k++ {
				dh += dRow[k] * t.wOut.Value.Data[j*t.classes+k]
			}
			dPre := dh * (1 - hRow[j]*hRow[j])
			eGrad[j] += dPre
			t.bEnc.Grad.Data[j] += dPre
			dPreSum[j] += dPre
		}
	}

	for f := 0; f < t.featDim; f++ {
		x := pooled.Data[f]
		for j := 0; j < t.hidden; j++ {
			t.wEnc.Grad.Data[f*t.hidden+j] += x * dPreSum[j]
		}
	}
}

// Parameters returns all trainable parameters in a stable order.
func (t *Transducer) Parameters() []*Param {
	return []*Param{t.wEnc, t.bEnc, t.eStep, t.wOut, t.bOut}
}

// ZeroGrad resets every parameter gradient.
func (t *Transducer) ZeroGrad() {
	for _, p := range t.Parameters() {
		p.Grad.Zero()
	}
}

// Train switches the network to training mode (forward passes cache
// activations for Backward).
func (t *Transducer) Train() { t.training = true }

// Eval switches the network to inference mode.
func (t *Transducer) Eval() { t.training = false }

// StateDict returns a deep copy of the parameter values keyed by name.
func (t *Transducer) StateDict() map[string]*tensor.Tensor {
	state := make(map[string]*tensor.Tensor, 5)
	for _, p := range t.Parameters() {
		state[p.Name] = p.Value.Clone()
	}
	return state
}

// LoadStateDict copies the given state into the network parameters. Every
// parameter must be present with a matching shape.
func (t *Transducer) LoadStateDict(state map[string]*tensor.Tensor) error {
	for _, p := range t.Parameters() {
		src, ok := state[p.Name]
		if !ok {
			return fmt.Errorf("state dict missing parameter %q", p.Name)
		}
		if src.Rows != p.Value.Rows || src.Cols != p.Value.Cols {
			return fmt.Errorf("parameter %q has shape %dx%d, want %dx%d",
				p.Name, src.Rows, src.Cols, p.Value.Rows, p.Value.Cols)
		}
		copy(p.Value.Data, src.Data)
	}
	return nil
}

// NumParams returns the total number of trainable scalars.
func NumParams(n Network) int {
	total := 0
	for _, p := range n.Parameters() {
		total += p.Value.Size()
	}
	return total
}
