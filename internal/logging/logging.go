// Package logging wires the two output sinks of a run: a main sink for
// progress and diagnostics, and a captions sink that records every decoded
// caption. Neither is process-global; a *Log is handed to the components
// that need one.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Log bundles the two sinks of a run.
type Log struct {
	Main     *slog.Logger
	Captions *slog.Logger

	files []*os.File
}

// New creates the log directory if needed and opens one file per sink, both
// named after the run ID. The main sink also mirrors to stderr. The caller
// owns the returned Log and must Close it.
func New(dir, runID string, level slog.Level) (*Log, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}

	mainFile, err := os.Create(filepath.Join(dir, runID+"_main.log"))
	if err != nil {
		return nil, fmt.Errorf("opening main log: %w", err)
	}

	captionsFile, err := os.Create(filepath.Join(dir, runID+"_captions.log"))
	if err != nil {
		mainFile.Close()
		return nil, fmt.Errorf("opening captions log: %w", err)
	}

	opts := &slog.HandlerOptions{Level: level}
	return &Log{
		Main:     slog.New(slog.NewTextHandler(io.MultiWriter(os.Stderr, mainFile), opts)),
		Captions: slog.New(slog.NewTextHandler(captionsFile, opts)),
		files:    []*os.File{mainFile, captionsFile},
	}, nil
}

// Discard returns a Log whose sinks drop everything. Used in tests.
func Discard() *Log {
	h := slog.NewTextHandler(io.Discard, nil)
	return &Log{
		Main:     slog.New(h),
		Captions: slog.New(h),
	}
}

// Close flushes and closes the underlying log files.
func (l *Log) Close() error {
	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
