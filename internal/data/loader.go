package data

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dkarras/captrain/internal/config"
)

// Loader serves a split's examples in fixed-size batches. Example files are
// listed once at construction and read lazily per batch, so a large split
// never sits in memory all at once.
type Loader struct {
	paths     []string
	batchSize int
	rng       *rand.Rand
}

// ExamplesDir returns the directory prepared example files live in for a
// split.
func ExamplesDir(datasetDir, split string) string {
	return filepath.Join(datasetDir, split+"_examples")
}

// NewLoader lists the example files of a split in sorted order. For training
// the order is reshuffled with the provided source at the start of every
// pass; evaluation passes a nil rng and keeps the stable sorted order.
func NewLoader(datasetDir, split string, cfg config.DataSettings, rng *rand.Rand) (*Loader, error) {
	dir := ExamplesDir(datasetDir, split)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing examples for split %s: %w", split, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".gob") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("split %s has no prepared examples in %s", split, dir)
	}
	sort.Strings(paths)

	return &Loader{paths: paths, batchSize: cfg.BatchSize, rng: rng}, nil
}

// Len returns the number of batches in one pass.
func (l *Loader) Len() int {
	return (len(l.paths) + l.batchSize - 1) / l.batchSize
}

// Examples returns the total number of examples.
func (l *Loader) Examples() int {
	return len(l.paths)
}

// Batch reads and returns batch i. The final batch may be smaller than the
// configured batch size. Requesting batch 0 starts a new pass, which
// reshuffles the example order when the loader was built with an rng.
func (l *Loader) Batch(i int) ([]Example, error) {
	if i < 0 || i >= l.Len() {
		return nil, fmt.Errorf("batch index %d out of range (have %d)", i, l.Len())
	}

	if i == 0 && l.rng != nil {
		l.rng.Shuffle(len(l.paths), func(a, b int) {
			l.paths[a], l.paths[b] = l.paths[b], l.paths[a]
		})
	}

	start := i * l.batchSize
	end := start + l.batchSize
	if end > len(l.paths) {
		end = len(l.paths)
	}

	batch := make([]Example, 0, end-start)
	for _, p := range l.paths[start:end] {
		ex, err := ReadExample(p)
		if err != nil {
			return nil, err
		}
		batch = append(batch, ex)
	}
	return batch, nil
}
