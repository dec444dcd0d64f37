package model

import (
	"fmt"
	"math"

	"github.com/dkarras/captrain/internal/tensor"
)

// Adam implements the Adam update rule with bias correction.
type Adam struct {
	LR      float64
	Beta1   float64
	Beta2   float64
	Epsilon float64

	m map[string]*tensor.Tensor
	v map[string]*tensor.Tensor
	t int
}

// NewAdam returns an Adam optimizer with the usual moment defaults.
func NewAdam(lr float64) *Adam {
	return &Adam{
		LR:      lr,
		Beta1:   0.9,
		Beta2:   0.999,
		Epsilon: 1e-8,
		m:       make(map[string]*tensor.Tensor),
		v:       make(map[string]*tensor.Tensor),
	}
}

// Step applies one update to every parameter from its accumulated gradient.
func (a *Adam) Step(params []*Param) {
	a.t++
	bc1 := 1 - math.Pow(a.Beta1, float64(a.t))
	bc2 := 1 - math.Pow(a.Beta2, float64(a.t))

	for _, p := range params {
		m, ok := a.m[p.Name]
		if !ok {
			m = tensor.New(p.Value.Rows, p.Value.Cols)
			a.m[p.Name] = m
		}
		v, ok := a.v[p.Name]
		if !ok {
			v = tensor.New(p.Value.Rows, p.Value.Cols)
			a.v[p.Name] = v
		}

		for i := range p.Value.Data {
			g := p.Grad.Data[i]
			m.Data[i] = a.Beta1*m.Data[i] + (1-a.Beta1)*g
			v.Data[i] = a.Beta2*v.Data[i] + (1-a.Beta2)*g*g

			mHat := m.Data[i] / bc1
			vHat := v.Data[i] / bc2

			p.Value.Data[i] -= a.LR * mHat / (math.Sqrt(vHat) + a.Epsilon)
		}
	}
}

// StateDict serializes the optimizer moments and step count so a crashed run
// can resume from the latest checkpoint.
func (a *Adam) StateDict() map[string]*tensor.Tensor {
	state := make(map[string]*tensor.Tensor, 2*len(a.m)+1)
	for name, m := range a.m {
		state["m:"+name] = m.Clone()
	}
	for name, v := range a.v {
		state["v:"+name] = v.Clone()
	}
	step := tensor.New(1, 1)
	step.Data[0] = float64(a.t)
	state["t"] = step
	return state
}

// LoadStateDict restores moments and step count from a checkpoint.
func (a *Adam) LoadStateDict(state map[string]*tensor.Tensor) error {
	step, ok := state["t"]
	if !ok {
		return fmt.Errorf("optimizer state missing step count")
	}
	a.t = int(step.Data[0])

	a.m = make(map[string]*tensor.Tensor)
	a.v = make(map[string]*tensor.Tensor)
	for key, val := range state {
		switch {
		case len(key) > 2 && key[:2] == "m:":
			a.m[key[2:]] = val.Clone()
		case len(key) > 2 && key[:2] == "v:":
			a.v[key[2:]] = val.Clone()
		}
	}
	return nil
}

// ClipGradNorm rescales all gradients so their global L2 norm does not exceed
// maxNorm. Returns the norm measured before clipping.
func ClipGradNorm(params []*Param, maxNorm float64) float64 {
	total := 0.0
	for _, p := range params {
		for _, g := range p.Grad.Data {
			total += g * g
		}
	}
	norm := math.Sqrt(total)

	if norm > maxNorm && norm > 0 {
		scale := maxNorm / norm
		for _, p := range params {
			for i := range p.Grad.Data {
				p.Grad.Data[i] *= scale
			}
		}
	}
	return norm
}
