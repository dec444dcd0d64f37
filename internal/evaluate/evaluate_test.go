package evaluate

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/dkarras/captrain/internal/caption"
	"github.com/dkarras/captrain/internal/config"
	"github.com/dkarras/captrain/internal/data"
	"github.com/dkarras/captrain/internal/logging"
	"github.com/dkarras/captrain/internal/metrics"
	"github.com/dkarras/captrain/internal/model"
	"github.com/dkarras/captrain/internal/tensor"
	"github.com/dkarras/captrain/internal/vocab"
)

// evalVocab: hello=0, world=1, <eos>=2.
func evalVocab() *vocab.Vocabulary {
	return vocab.New([]string{"hello", "world", "<eos>"})
}

type memSource struct {
	batches [][]data.Example
}

func (s *memSource) Len() int { return len(s.batches) }

func (s *memSource) Batch(i int) ([]data.Example, error) {
	return s.batches[i], nil
}

// fixedNet always emits the same token sequence, padding with <eos> when
// asked for more steps. It records the mode it was put in.
type fixedNet struct {
	sequence []int
	evalMode bool
}

func (n *fixedNet) Forward(features *tensor.Tensor, steps int) *tensor.Tensor {
	logits := tensor.New(steps, 3)
	for s := 0; s < steps; s++ {
		class := 2
		if s < len(n.sequence) {
			class = n.sequence[s]
		}
		logits.Set(s, class, 1)
	}
	return logits
}

func (n *fixedNet) Backward(dLogits *tensor.Tensor) { panic("inference only") }
func (n *fixedNet) Parameters() []*model.Param      { return nil }
func (n *fixedNet) ZeroGrad()                       {}
func (n *fixedNet) Train()                          { n.evalMode = false }
func (n *fixedNet) Eval()                           { n.evalMode = true }

func (n *fixedNet) StateDict() map[string]*tensor.Tensor { return nil }

func (n *fixedNet) LoadStateDict(map[string]*tensor.Tensor) error { return nil }

// recordingScorer captures what it was handed and reports a fixed result.
type recordingScorer struct {
	preds []caption.Predicted
	refs  []caption.Reference
	err   error
}

func (s *recordingScorer) Evaluate(preds []caption.Predicted, refs []caption.Reference) (map[string]metrics.Result, error) {
	s.preds = preds
	s.refs = refs
	if s.err != nil {
		return nil, s.err
	}
	return map[string]metrics.Result{"wordacc": {Score: 0.5}}, nil
}

func evalSettings() *config.Settings {
	s := config.Default()
	s.Data.EOSToken = "<eos>"
	return s
}

func TestRunScoresDecodedOutput(t *testing.T) {
	src := &memSource{batches: [][]data.Example{{
		{FileName: "a.wav", Features: tensor.New(2, 4), Target: []int{0, 1, 2}},
		{FileName: "b.wav", Features: tensor.New(2, 4), Target: []int{1, 2}},
	}}}
	net := &fixedNet{sequence: []int{0, 1}}
	scorer := &recordingScorer{}

	if err := Run(src, net, evalVocab(), evalSettings(), scorer, logging.Discard()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !net.evalMode {
		t.Error("evaluation must leave the network in eval mode")
	}

	wantPreds := []caption.Predicted{
		{FileName: "a", Caption: "hello world"},
		{FileName: "b", Caption: "hello world"},
	}
	if !reflect.DeepEqual(scorer.preds, wantPreds) {
		t.Errorf("scorer predictions = %+v, want %+v", scorer.preds, wantPreds)
	}

	wantRefs := []caption.Reference{
		{FileName: "a", Captions: []string{"hello world"}},
		{FileName: "b", Captions: []string{"world"}},
	}
	if !reflect.DeepEqual(scorer.refs, wantRefs) {
		t.Errorf("scorer references = %+v, want %+v", scorer.refs, wantRefs)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	src := &memSource{batches: [][]data.Example{{
		{FileName: "a.wav", Features: tensor.New(2, 4), Target: []int{0, 1, 2}},
	}}}
	net := &fixedNet{sequence: []int{1, 0}}

	first := &recordingScorer{}
	second := &recordingScorer{}
	if err := Run(src, net, evalVocab(), evalSettings(), first, logging.Discard()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if err := Run(src, net, evalVocab(), evalSettings(), second, logging.Discard()); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if !reflect.DeepEqual(first.preds, second.preds) || !reflect.DeepEqual(first.refs, second.refs) {
		t.Error("repeated evaluation of the same model and data produced different captions")
	}
}

func TestRunPropagatesScorerError(t *testing.T) {
	src := &memSource{batches: [][]data.Example{{
		{FileName: "a.wav", Features: tensor.New(2, 4), Target: []int{0, 2}},
	}}}
	net := &fixedNet{sequence: []int{0}}
	scorer := &recordingScorer{err: fmt.Errorf("no annotations")}

	if err := Run(src, net, evalVocab(), evalSettings(), scorer, logging.Discard()); err == nil {
		t.Error("Run() must surface scorer failures")
	}
}

func TestRunRejectsTargetsWithoutEOS(t *testing.T) {
	src := &memSource{batches: [][]data.Example{{
		{FileName: "a.wav", Features: tensor.New(2, 4), Target: []int{0, 1}},
	}}}
	net := &fixedNet{sequence: []int{0, 1}}

	if err := Run(src, net, evalVocab(), evalSettings(), &recordingScorer{}, logging.Discard()); err == nil {
		t.Error("Run() must fail when a ground-truth sequence has no end token")
	}
}
