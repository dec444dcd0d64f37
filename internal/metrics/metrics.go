// Package metrics scores predicted captions against multi-reference ground
// truth. The Scorer contract is what the evaluation orchestrator consumes;
// the bundled implementation reports word-overlap style scores and can be
// swapped for an external captioning scorer without touching the core loop.
package metrics

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/dkarras/captrain/internal/caption"
)

// Result holds one metric's outcome. Score is the aggregate over the whole
// evaluation set.
type Result struct {
	Score float64
}

// Scorer computes named quality metrics from aligned predicted and reference
// caption records.
type Scorer interface {
	Evaluate(preds []caption.Predicted, refs []caption.Reference) (map[string]Result, error)
}

// WordOverlap is the bundled scorer. For every file it measures the
// predicted caption against each reference and keeps the best match.
type WordOverlap struct{}

// Evaluate returns two metrics: "wordacc", the mean best-reference word
// accuracy (1 - WER, floored at zero), and "exact", the fraction of files
// whose prediction matches a reference verbatim after normalization.
func (WordOverlap) Evaluate(preds []caption.Predicted, refs []caption.Reference) (map[string]Result, error) {
	if len(preds) != len(refs) {
		return nil, fmt.Errorf("metrics: %d predictions but %d reference records", len(preds), len(refs))
	}
	if len(preds) == 0 {
		return nil, fmt.Errorf("metrics: nothing to score")
	}

	var accSum, exact float64
	for i, p := range preds {
		r := refs[i]
		if p.FileName != r.FileName {
			return nil, fmt.Errorf("metrics: record %d mismatch: predicted %q vs reference %q",
				i, p.FileName, r.FileName)
		}
		if len(r.Captions) == 0 {
			return nil, fmt.Errorf("metrics: no references for %q", r.FileName)
		}

		best := 0.0
		matched := false
		hyp := normalizeWords(p.Caption)
		for _, ref := range r.Captions {
			refWords := normalizeWords(ref)
			acc := 1 - wordErrorRate(refWords, hyp)
			if acc < 0 {
				acc = 0
			}
			if acc > best {
				best = acc
			}
			if len(refWords) == len(hyp) && acc == 1 {
				matched = true
			}
		}
		accSum += best
		if matched {
			exact++
		}
	}

	n := float64(len(preds))
	return map[string]Result{
		"wordacc": {Score: accSum / n},
		"exact":   {Score: exact / n},
	}, nil
}

// wordErrorRate is the word-level edit distance between reference and
// hypothesis divided by the reference length.
func wordErrorRate(refWords, hypWords []string) float64 {
	n := len(refWords)
	m := len(hypWords)
	if n == 0 {
		if m == 0 {
			return 0
		}
		return 1
	}

	d := make([][]int, n+1)
	for i := range d {
		d[i] = make([]int, m+1)
		d[i][0] = i
	}
	for j := 0; j <= m; j++ {
		d[0][j] = j
	}

	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if refWords[i-1] == hypWords[j-1] {
				d[i][j] = d[i-1][j-1]
			} else {
				sub := d[i-1][j-1] + 1
				del := d[i-1][j] + 1
				ins := d[i][j-1] + 1
				d[i][j] = min(sub, min(del, ins))
			}
		}
	}

	return float64(d[n][m]) / float64(n)
}

// normalizeWords lowercases text, strips punctuation, and splits into words.
func normalizeWords(s string) []string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return r
	}, s)
	return strings.Fields(s)
}
