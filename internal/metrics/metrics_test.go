package metrics

import (
	"math"
	"testing"

	"github.com/dkarras/captrain/internal/caption"
)

func TestEvaluatePerfectMatch(t *testing.T) {
	preds := []caption.Predicted{{FileName: "a", Caption: "a dog barks"}}
	refs := []caption.Reference{{FileName: "a", Captions: []string{"a dog barks"}}}

	got, err := WordOverlap{}.Evaluate(preds, refs)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got["wordacc"].Score != 1.0 {
		t.Errorf("wordacc = %g, want 1.0", got["wordacc"].Score)
	}
	if got["exact"].Score != 1.0 {
		t.Errorf("exact = %g, want 1.0", got["exact"].Score)
	}
}

func TestEvaluateBestReferenceWins(t *testing.T) {
	preds := []caption.Predicted{{FileName: "a", Caption: "a dog barks"}}
	refs := []caption.Reference{{
		FileName: "a",
		Captions: []string{"water runs down a drain", "a dog barks"},
	}}

	got, err := WordOverlap{}.Evaluate(preds, refs)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got["wordacc"].Score != 1.0 {
		t.Errorf("wordacc = %g, want 1.0 (best reference)", got["wordacc"].Score)
	}
}

func TestEvaluatePartialOverlap(t *testing.T) {
	preds := []caption.Predicted{{FileName: "a", Caption: "a cat barks"}}
	refs := []caption.Reference{{FileName: "a", Captions: []string{"a dog barks"}}}

	got, err := WordOverlap{}.Evaluate(preds, refs)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	want := 1.0 - 1.0/3.0 // one substitution over three reference words
	if math.Abs(got["wordacc"].Score-want) > 1e-12 {
		t.Errorf("wordacc = %g, want %g", got["wordacc"].Score, want)
	}
	if got["exact"].Score != 0 {
		t.Errorf("exact = %g, want 0", got["exact"].Score)
	}
}

func TestEvaluateNormalization(t *testing.T) {
	preds := []caption.Predicted{{FileName: "a", Caption: "A Dog Barks!"}}
	refs := []caption.Reference{{FileName: "a", Captions: []string{"a dog barks"}}}

	got, err := WordOverlap{}.Evaluate(preds, refs)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got["exact"].Score != 1.0 {
		t.Errorf("exact = %g, want 1.0 after normalization", got["exact"].Score)
	}
}

func TestEvaluateAccuracyFloor(t *testing.T) {
	// Hypothesis much longer than the reference would drive 1-WER negative;
	// the per-file accuracy floors at zero instead.
	preds := []caption.Predicted{{FileName: "a", Caption: "x y z w v u t s"}}
	refs := []caption.Reference{{FileName: "a", Captions: []string{"dog"}}}

	got, err := WordOverlap{}.Evaluate(preds, refs)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got["wordacc"].Score != 0 {
		t.Errorf("wordacc = %g, want 0", got["wordacc"].Score)
	}
}

func TestEvaluateRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		preds []caption.Predicted
		refs  []caption.Reference
	}{
		{
			name:  "length mismatch",
			preds: []caption.Predicted{{FileName: "a"}},
			refs:  nil,
		},
		{
			name:  "empty",
			preds: nil,
			refs:  nil,
		},
		{
			name:  "misaligned keys",
			preds: []caption.Predicted{{FileName: "a"}},
			refs:  []caption.Reference{{FileName: "b", Captions: []string{"x"}}},
		},
		{
			name:  "reference without captions",
			preds: []caption.Predicted{{FileName: "a"}},
			refs:  []caption.Reference{{FileName: "a"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := (WordOverlap{}).Evaluate(tt.preds, tt.refs); err == nil {
				t.Error("Evaluate() should return an error")
			}
		})
	}
}

func TestWordErrorRateTable(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		hyp  string
		want float64
	}{
		{"identical", "the cat sat on the mat", "the cat sat on the mat", 0},
		{"one_substitution", "the cat sat on the mat", "the cat sit on the mat", 1.0 / 6.0},
		{"one_insertion", "the cat sat", "the big cat sat", 1.0 / 3.0},
		{"one_deletion", "the cat sat on the mat", "the cat on the mat", 1.0 / 6.0},
		{"completely_different", "the cat sat", "a dog ran", 1.0},
		{"empty_hypothesis", "some words", "", 1.0},
		{"both_empty", "", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wordErrorRate(normalizeWords(tt.ref), normalizeWords(tt.hyp))
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("wordErrorRate = %g, want %g", got, tt.want)
			}
		})
	}
}
