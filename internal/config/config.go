package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Settings holds the full configuration for a run. It is resolved once at
// startup and treated as read-only afterwards.
type Settings struct {
	Workflow WorkflowSettings `yaml:"workflow"`
	Data     DataSettings     `yaml:"data"`
	Model    ModelSettings    `yaml:"model"`
	Training TrainingSettings `yaml:"training"`
	Logging  LoggingSettings  `yaml:"logging"`
}

// WorkflowSettings selects which stages of the pipeline run.
type WorkflowSettings struct {
	DoTraining   bool `yaml:"do_training"`
	DoEvaluation bool `yaml:"do_evaluation"`
}

// DataSettings describes the dataset layout and caption encoding.
type DataSettings struct {
	RootDir                string          `yaml:"root_dir"`
	DatasetDir             string          `yaml:"dataset_dir"`
	DevSplit               string          `yaml:"dev_split"`
	EvalSplit              string          `yaml:"eval_split"`
	BatchSize              int             `yaml:"batch_size"`
	EOSToken               string          `yaml:"eos_token"`
	OutputFieldName        string          `yaml:"output_field_name"`
	WordsListFileName      string          `yaml:"words_list_file_name"`
	CharactersListFileName string          `yaml:"characters_list_file_name"`
	MaxCaptionLength       int             `yaml:"max_caption_length"`
	Features               FeatureSettings `yaml:"features"`
}

// FeatureSettings controls audio feature extraction in the prepare step.
type FeatureSettings struct {
	FrameLength int `yaml:"frame_length"` // samples per analysis frame
	HopLength   int `yaml:"hop_length"`   // samples between frame starts
	Bands       int `yaml:"bands"`        // band-energy count per frame
}

// ModelSettings describes where model checkpoints live and the network size.
type ModelSettings struct {
	RootDir    string `yaml:"root_dir"`
	ModelsDir  string `yaml:"models_dir"`
	FileName   string `yaml:"file_name"`
	HiddenSize int    `yaml:"hidden_size"`
}

// TrainingSettings holds the optimization hyperparameters.
type TrainingSettings struct {
	NbEpochs                int               `yaml:"nb_epochs"`
	Patience                int               `yaml:"patience"`
	LossThr                 float64           `yaml:"loss_thr"`
	Optimizer               OptimizerSettings `yaml:"optimizer"`
	GradNorm                GradNormSettings  `yaml:"grad_norm"`
	TextOutputEveryNbEpochs int               `yaml:"text_output_every_nb_epochs"`
	NbExamplesToSample      int               `yaml:"nb_examples_to_sample"`
	ForceCPU                bool              `yaml:"force_cpu"`
}

// OptimizerSettings configures the Adam optimizer.
type OptimizerSettings struct {
	LR float64 `yaml:"lr"`
}

// GradNormSettings configures gradient-norm clipping. Clipping only happens
// when Active is true.
type GradNormSettings struct {
	Active bool    `yaml:"norm"`
	Value  float64 `yaml:"value"`
}

// LoggingSettings controls the main and caption log sinks.
type LoggingSettings struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// Default returns Settings with sensible default values.
func Default() *Settings {
	return &Settings{
		Workflow: WorkflowSettings{
			DoTraining:   true,
			DoEvaluation: true,
		},
		Data: DataSettings{
			RootDir:                "data",
			DatasetDir:             "dataset",
			DevSplit:               "development",
			EvalSplit:              "evaluation",
			BatchSize:              16,
			EOSToken:               "<eos>",
			OutputFieldName:        "words_ind",
			WordsListFileName:      "words_list.json",
			CharactersListFileName: "characters_list.json",
			MaxCaptionLength:       30,
			Features: FeatureSettings{
				FrameLength: 1024,
				HopLength:   512,
				Bands:       64,
			},
		},
		Model: ModelSettings{
			RootDir:    "outputs",
			ModelsDir:  "models",
			FileName:   "captioner.ckpt",
			HiddenSize: 128,
		},
		Training: TrainingSettings{
			NbEpochs:                300,
			Patience:                10,
			LossThr:                 1e-2,
			Optimizer:               OptimizerSettings{LR: 1e-4},
			GradNorm:                GradNormSettings{Active: true, Value: 1.0},
			TextOutputEveryNbEpochs: 10,
			NbExamplesToSample:      5,
		},
		Logging: LoggingSettings{
			Dir:   "outputs/logs",
			Level: "info",
		},
	}
}

// Load reads and parses a YAML settings file. Missing fields are filled with
// defaults. Tilde (~) in the data and model roots is expanded to the user's
// home directory.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	s := Default()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing settings file: %w", err)
	}

	s.Data.RootDir = expandTilde(s.Data.RootDir)
	s.Model.RootDir = expandTilde(s.Model.RootDir)

	return s, nil
}

// Validate checks the settings for invalid values.
func (s *Settings) Validate() error {
	if s.Data.RootDir == "" {
		return fmt.Errorf("data.root_dir must not be empty")
	}

	if s.Data.BatchSize <= 0 {
		return fmt.Errorf("data.batch_size must be > 0, got %d", s.Data.BatchSize)
	}

	if s.Data.EOSToken == "" {
		return fmt.Errorf("data.eos_token must not be empty")
	}

	if s.Data.MaxCaptionLength <= 0 {
		return fmt.Errorf("data.max_caption_length must be > 0, got %d", s.Data.MaxCaptionLength)
	}

	if s.Data.Features.FrameLength <= 0 || s.Data.Features.HopLength <= 0 {
		return fmt.Errorf("data.features frame_length and hop_length must be > 0")
	}

	if s.Data.Features.Bands <= 0 {
		return fmt.Errorf("data.features.bands must be > 0, got %d", s.Data.Features.Bands)
	}

	if s.Data.Features.Bands > s.Data.Features.FrameLength {
		return fmt.Errorf("data.features.bands (%d) must not exceed frame_length (%d)",
			s.Data.Features.Bands, s.Data.Features.FrameLength)
	}

	if s.Model.FileName == "" {
		return fmt.Errorf("model.file_name must not be empty")
	}

	if s.Model.HiddenSize <= 0 {
		return fmt.Errorf("model.hidden_size must be > 0, got %d", s.Model.HiddenSize)
	}

	if s.Training.NbEpochs <= 0 {
		return fmt.Errorf("training.nb_epochs must be > 0, got %d", s.Training.NbEpochs)
	}

	if s.Training.Patience <= 0 {
		return fmt.Errorf("training.patience must be > 0, got %d", s.Training.Patience)
	}

	if s.Training.Optimizer.LR <= 0 {
		return fmt.Errorf("training.optimizer.lr must be > 0, got %g", s.Training.Optimizer.LR)
	}

	if s.Training.GradNorm.Active && s.Training.GradNorm.Value <= 0 {
		return fmt.Errorf("training.grad_norm.value must be > 0 when clipping is active, got %g", s.Training.GradNorm.Value)
	}

	if s.Training.TextOutputEveryNbEpochs <= 0 {
		return fmt.Errorf("training.text_output_every_nb_epochs must be > 0, got %d", s.Training.TextOutputEveryNbEpochs)
	}

	if s.Training.NbExamplesToSample < 0 {
		return fmt.Errorf("training.nb_examples_to_sample must be >= 0, got %d", s.Training.NbExamplesToSample)
	}

	switch s.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", s.Logging.Level)
	}

	return nil
}

// DatasetDir returns the directory holding the dataset files.
func (s *Settings) DatasetDir() string {
	return filepath.Join(s.Data.RootDir, s.Data.DatasetDir)
}

// ModelDir returns the directory checkpoints are written to.
func (s *Settings) ModelDir() string {
	return filepath.Join(s.Model.RootDir, s.Model.ModelsDir)
}

// IndicesFilePath returns the vocabulary file path, choosing the words or
// characters list by whether the output field name starts with "words".
func (s *Settings) IndicesFilePath() string {
	name := s.Data.CharactersListFileName
	if strings.HasPrefix(s.Data.OutputFieldName, "words") {
		name = s.Data.WordsListFileName
	}
	return filepath.Join(s.DatasetDir(), name)
}

// ParseLogLevel converts a level string to a slog.Level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
