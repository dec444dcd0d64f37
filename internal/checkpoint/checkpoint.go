// Package checkpoint persists and restores named parameter tensors. Files
// are written atomically (temp file + rename) and carry a BLAKE2b-256 digest
// so a truncated or corrupted checkpoint is rejected at load time instead of
// silently producing a broken model.
package checkpoint

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"

	"github.com/dkarras/captrain/internal/tensor"
)

var magic = []byte("CAPCKPT1")

type entry struct {
	Rows int
	Cols int
	Data []float64
}

// EpochPath returns the per-improvement snapshot path for an epoch.
func EpochPath(dir string, epoch int, fileName string) string {
	return filepath.Join(dir, fmt.Sprintf("epoch_%05d_%s", epoch, fileName))
}

// LatestPath returns the rolling latest model checkpoint path.
func LatestPath(dir, fileName string) string {
	return filepath.Join(dir, "latest_"+fileName)
}

// LatestOptimizerPath returns the rolling latest optimizer checkpoint path.
func LatestOptimizerPath(dir, fileName string) string {
	return filepath.Join(dir, "latest_optimizer_"+fileName)
}

// Save serializes the state to path. The write goes to a temp file in the
// same directory first and is renamed into place, so a crash mid-write never
// leaves a half-written checkpoint under the final name.
func Save(path string, state map[string]*tensor.Tensor) error {
	payload := make(map[string]entry, len(state))
	for name, t := range state {
		payload[name] = entry{Rows: t.Rows, Cols: t.Cols, Data: t.Data}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}

	digest := blake2b.Sum256(buf.Bytes())

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating checkpoint file: %w", err)
	}

	_, err = f.Write(magic)
	if err == nil {
		_, err = f.Write(digest[:])
	}
	if err == nil {
		_, err = f.Write(buf.Bytes())
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing checkpoint: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("moving checkpoint into place: %w", err)
	}
	return nil
}

// Load reads a checkpoint, verifies its digest and returns the state. Any
// mismatch is fatal; there is no partial recovery.
func Load(path string) (map[string]*tensor.Tensor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}

	headerLen := len(magic) + blake2b.Size256
	if len(data) < headerLen {
		return nil, fmt.Errorf("checkpoint %s is truncated", path)
	}
	if !bytes.Equal(data[:len(magic)], magic) {
		return nil, fmt.Errorf("checkpoint %s has unknown format", path)
	}

	stored := data[len(magic):headerLen]
	payload := data[headerLen:]
	digest := blake2b.Sum256(payload)
	if !bytes.Equal(stored, digest[:]) {
		return nil, fmt.Errorf("checkpoint %s is corrupt: digest mismatch", path)
	}

	var entries map[string]entry
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding checkpoint %s: %w", path, err)
	}

	state := make(map[string]*tensor.Tensor, len(entries))
	for name, e := range entries {
		t := tensor.New(e.Rows, e.Cols)
		copy(t.Data, e.Data)
		state[name] = t
	}
	return state, nil
}
