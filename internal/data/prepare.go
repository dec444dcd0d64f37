package data

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dkarras/captrain/internal/caption"
	"github.com/dkarras/captrain/internal/config"
	"github.com/dkarras/captrain/internal/features"
	"github.com/dkarras/captrain/internal/logging"
	"github.com/dkarras/captrain/internal/vocab"
)

// captionRow is one clip with its reference captions from the split CSV.
type captionRow struct {
	fileName string
	captions []string
}

// Prepare turns a split's caption CSV and WAV clips into example files the
// loader can serve. The CSV lives at <datasetDir>/<split>.csv with a
// file_name column followed by caption_1..caption_N columns; clips live
// under <datasetDir>/<split>/.
//
// When voc is nil a vocabulary is built from this split's captions and saved
// to the configured indices file; pass the dev vocabulary when preparing the
// evaluation split so both use the same class indices. Returns the
// vocabulary used and the number of examples written.
func Prepare(split string, s *config.Settings, voc *vocab.Vocabulary, lg *logging.Log) (*vocab.Vocabulary, int, error) {
	datasetDir := s.DatasetDir()

	rows, err := readCaptionCSV(filepath.Join(datasetDir, split+".csv"))
	if err != nil {
		return nil, 0, err
	}

	if voc == nil {
		var all []string
		for _, r := range rows {
			all = append(all, r.captions...)
		}
		voc = BuildVocabulary(all, s.Data.EOSToken)
		if err := voc.Save(s.IndicesFilePath()); err != nil {
			return nil, 0, err
		}
		lg.Main.Info("built vocabulary", "split", split, "classes", voc.Len())
	}

	outDir := ExamplesDir(datasetDir, split)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, 0, fmt.Errorf("creating examples dir: %w", err)
	}

	written := 0
	for _, r := range rows {
		clipPath := filepath.Join(datasetDir, split, r.fileName)
		feat, err := features.Extract(clipPath, s.Data.Features)
		if err != nil {
			return nil, 0, fmt.Errorf("preparing %s: %w", r.fileName, err)
		}

		stem := caption.FileKey(r.fileName)
		for i, c := range r.captions {
			ex := Example{
				FileName: r.fileName,
				Features: feat,
				Target:   Encode(c, voc, s.Data.EOSToken, s.Data.MaxCaptionLength),
			}
			path := filepath.Join(outDir, fmt.Sprintf("%s.%d.gob", stem, i+1))
			if err := WriteExample(path, ex); err != nil {
				return nil, 0, err
			}
			written++
		}

		lg.Main.Debug("prepared clip", "file", r.fileName, "captions", len(r.captions))
	}

	lg.Main.Info("split prepared", "split", split, "clips", len(rows), "examples", written)
	return voc, written, nil
}

// readCaptionCSV parses a split CSV into caption rows, skipping empty
// caption cells.
func readCaptionCSV(path string) ([]captionRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening caption CSV: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // caption counts vary per dataset
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing caption CSV %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("caption CSV %s has no data rows", path)
	}
	if len(records[0]) == 0 || records[0][0] != "file_name" {
		return nil, fmt.Errorf("caption CSV %s: first column must be file_name", path)
	}

	rows := make([]captionRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) < 2 {
			return nil, fmt.Errorf("caption CSV %s: row %d has no captions", path, i+2)
		}
		row := captionRow{fileName: rec[0]}
		for _, c := range rec[1:] {
			if strings.TrimSpace(c) != "" {
				row.captions = append(row.captions, c)
			}
		}
		if len(row.captions) == 0 {
			return nil, fmt.Errorf("caption CSV %s: %s has no captions", path, row.fileName)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
