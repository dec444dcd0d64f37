// Package data owns the on-disk dataset: the prepare step that turns WAV
// clips and caption CSVs into example files, and the batch loader the epoch
// runner pulls from.
package data

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/dkarras/captrain/internal/tensor"
)

// Example is one (clip, caption) training pair.
type Example struct {
	// FileName is the source clip name, e.g. "park.wav". Several examples
	// share a FileName when the clip has multiple reference captions.
	FileName string
	// Features is the [frames x bands] input matrix.
	Features *tensor.Tensor
	// Target is the caption as class indices, terminated by the EOS index.
	Target []int
}

// storedExample is the gob shape of an Example.
type storedExample struct {
	FileName string
	Rows     int
	Cols     int
	Features []float64
	Target   []int
}

// WriteExample serializes an example to path.
func WriteExample(path string, ex Example) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating example file: %w", err)
	}

	stored := storedExample{
		FileName: ex.FileName,
		Rows:     ex.Features.Rows,
		Cols:     ex.Features.Cols,
		Features: ex.Features.Data,
		Target:   ex.Target,
	}
	err = gob.NewEncoder(f).Encode(stored)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("writing example %s: %w", path, err)
	}
	return nil
}

// ReadExample deserializes an example from path.
func ReadExample(path string) (Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return Example{}, fmt.Errorf("opening example file: %w", err)
	}
	defer f.Close()

	var stored storedExample
	if err := gob.NewDecoder(f).Decode(&stored); err != nil {
		return Example{}, fmt.Errorf("decoding example %s: %w", path, err)
	}

	feat := tensor.New(stored.Rows, stored.Cols)
	copy(feat.Data, stored.Features)
	return Example{
		FileName: stored.FileName,
		Features: feat,
		Target:   stored.Target,
	}, nil
}
