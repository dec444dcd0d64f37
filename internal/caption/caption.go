// Package caption converts model output distributions and ground-truth index
// sequences into scoreable caption records.
package caption

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dkarras/captrain/internal/logging"
	"github.com/dkarras/captrain/internal/tensor"
	"github.com/dkarras/captrain/internal/vocab"
)

// ErrMissingEOS marks a ground-truth sequence with no end-of-sequence token.
// That is a dataset defect and is surfaced, never masked.
var ErrMissingEOS = errors.New("ground truth has no end-of-sequence token")

// Predicted is the single predicted caption for a file.
type Predicted struct {
	FileName string
	Caption  string
}

// MarshalJSON renders the record in the scorer's expected shape:
// {"file_name": ..., "caption_predicted": ...}.
func (p Predicted) MarshalJSON() ([]byte, error) {
	return marshalOrdered([][2]string{
		{"file_name", p.FileName},
		{"caption_predicted", p.Caption},
	})
}

// Reference holds the ground-truth captions for a file in the order they
// were encountered. Multiple references per file are normal: a clip commonly
// appears once per annotator.
type Reference struct {
	FileName string
	Captions []string
}

// MarshalJSON renders the record with numbered caption fields:
// {"file_name": ..., "caption_1": ..., "caption_2": ...}.
func (r Reference) MarshalJSON() ([]byte, error) {
	pairs := make([][2]string, 0, len(r.Captions)+1)
	pairs = append(pairs, [2]string{"file_name", r.FileName})
	for i, c := range r.Captions {
		pairs = append(pairs, [2]string{fmt.Sprintf("caption_%d", i+1), c})
	}
	return marshalOrdered(pairs)
}

func marshalOrdered(pairs [][2]string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(kv[0])
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(kv[1])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// FileKey derives the grouping key from a source file path: the base name
// with everything from the first "." stripped, so "clips/foo.bar.wav"
// becomes "foo".
func FileKey(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		return base[:i]
	}
	return base
}

// Decode turns parallel sequences of predicted logits, ground-truth index
// sequences and source file names into predicted and reference caption
// records, grouped by file key in first-appearance order.
//
// Predicted distributions become token sequences by softmax + argmax per
// timestep. Ground truth is truncated at its first EOS token and decoding
// fails if that token is absent; a prediction without EOS is kept whole.
// Every item is written to the captions sink and mirrored to the main sink
// when printToConsole is set.
func Decode(
	predicted []*tensor.Tensor,
	groundTruth [][]int,
	voc *vocab.Vocabulary,
	fileNames []string,
	eosToken string,
	printToConsole bool,
	lg *logging.Log,
) ([]Predicted, []Reference, error) {
	if len(predicted) != len(groundTruth) || len(predicted) != len(fileNames) {
		return nil, nil, fmt.Errorf("decode: got %d predictions, %d targets, %d file names",
			len(predicted), len(groundTruth), len(fileNames))
	}

	lg.Captions.Info("Captions start")
	lg.Main.Info("Starting decoding of captions")

	var (
		preds []Predicted
		refs  []Reference
		// first-appearance index into refs, keyed by file key
		seen = make(map[string]int)
	)

	for i := range predicted {
		predTokens, err := decodePrediction(predicted[i], voc, eosToken)
		if err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", fileNames[i], err)
		}

		gtTokens, err := decodeGroundTruth(groundTruth[i], voc, eosToken)
		if err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", fileNames[i], err)
		}

		predCaption := strings.Join(predTokens, " ")
		gtCaption := strings.Join(gtTokens, " ")
		key := FileKey(fileNames[i])

		if idx, ok := seen[key]; ok {
			refs[idx].Captions = append(refs[idx].Captions, gtCaption)
		} else {
			seen[key] = len(refs)
			preds = append(preds, Predicted{FileName: key, Caption: predCaption})
			refs = append(refs, Reference{FileName: key, Captions: []string{gtCaption}})
		}

		lg.Captions.Info("captions for file",
			"file", key, "predicted", predCaption, "original", gtCaption)
		if printToConsole {
			lg.Main.Info("captions for file",
				"file", key, "predicted", predCaption, "original", gtCaption)
		}
	}

	lg.Main.Info("Decoding of captions ended")
	return preds, refs, nil
}

// decodePrediction converts a logit matrix to token strings, truncating at
// the first EOS token when one appears.
func decodePrediction(logits *tensor.Tensor, voc *vocab.Vocabulary, eosToken string) ([]string, error) {
	ids := logits.Softmax().ArgMaxRows()

	tokens := make([]string, 0, len(ids))
	for _, id := range ids {
		tok, err := voc.Token(id)
		if err != nil {
			return nil, err
		}
		if tok == eosToken {
			return tokens, nil
		}
		tokens = append(tokens, tok)
	}
	return tokens, nil
}

// decodeGroundTruth maps index sequences to token strings and truncates at
// the first EOS token; its absence is an error.
func decodeGroundTruth(ids []int, voc *vocab.Vocabulary, eosToken string) ([]string, error) {
	tokens := make([]string, 0, len(ids))
	for _, id := range ids {
		tok, err := voc.Token(id)
		if err != nil {
			return nil, err
		}
		if tok == eosToken {
			return tokens, nil
		}
		tokens = append(tokens, tok)
	}
	return nil, ErrMissingEOS
}
