// Package evaluate runs a trained model over the held-out evaluation split,
// decodes every output and scores the result.
package evaluate

import (
	"fmt"
	"sort"

	"github.com/dkarras/captrain/internal/caption"
	"github.com/dkarras/captrain/internal/config"
	"github.com/dkarras/captrain/internal/logging"
	"github.com/dkarras/captrain/internal/metrics"
	"github.com/dkarras/captrain/internal/model"
	"github.com/dkarras/captrain/internal/train"
	"github.com/dkarras/captrain/internal/vocab"
)

// Run performs one inference pass over src, decodes the full output set (no
// sampling, no console mirror) and logs every metric the scorer reports. The
// model is left in evaluation mode.
func Run(src train.Source, net model.Network, voc *vocab.Vocabulary, s *config.Settings, scorer metrics.Scorer, lg *logging.Log) error {
	lg.Main.Info("Starting evaluation on evaluation data")

	out, err := train.RunEpoch(src, net, nil, nil, config.GradNormSettings{})
	if err != nil {
		return fmt.Errorf("evaluation pass: %w", err)
	}

	preds, refs, err := caption.Decode(out.Predictions, out.Targets, voc,
		out.FileNames, s.Data.EOSToken, false, lg)
	if err != nil {
		return fmt.Errorf("evaluation decode: %w", err)
	}

	lg.Main.Info("Evaluation done", "files", len(preds))

	results, err := scorer.Evaluate(preds, refs)
	if err != nil {
		return fmt.Errorf("scoring: %w", err)
	}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		lg.Main.Info(fmt.Sprintf("%-7s: %7.4f", name, results[name].Score))
	}
	return nil
}
