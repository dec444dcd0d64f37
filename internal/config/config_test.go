package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	s := Default()

	if !s.Workflow.DoTraining {
		t.Error("Workflow.DoTraining should default to true")
	}
	if !s.Workflow.DoEvaluation {
		t.Error("Workflow.DoEvaluation should default to true")
	}
	if s.Data.BatchSize != 16 {
		t.Errorf("Data.BatchSize = %d, want 16", s.Data.BatchSize)
	}
	if s.Data.EOSToken != "<eos>" {
		t.Errorf("Data.EOSToken = %q, want %q", s.Data.EOSToken, "<eos>")
	}
	if s.Training.Patience != 10 {
		t.Errorf("Training.Patience = %d, want 10", s.Training.Patience)
	}
	if s.Training.LossThr != 1e-2 {
		t.Errorf("Training.LossThr = %g, want 1e-2", s.Training.LossThr)
	}
	if s.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", s.Logging.Level, "info")
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
workflow:
  do_training: true
  do_evaluation: false
data:
  root_dir: /tmp/clips
  batch_size: 8
  eos_token: "<end>"
  output_field_name: chars_ind
model:
  file_name: test-model.ckpt
  hidden_size: 64
training:
  nb_epochs: 25
  patience: 3
  loss_thr: 0.05
  optimizer:
    lr: 0.001
  grad_norm:
    norm: true
    value: 2.0
logging:
  level: debug
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "settings.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test settings: %v", err)
	}

	s, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if s.Workflow.DoEvaluation {
		t.Error("Workflow.DoEvaluation = true, want false")
	}
	if s.Data.RootDir != "/tmp/clips" {
		t.Errorf("Data.RootDir = %q, want %q", s.Data.RootDir, "/tmp/clips")
	}
	if s.Data.BatchSize != 8 {
		t.Errorf("Data.BatchSize = %d, want 8", s.Data.BatchSize)
	}
	if s.Data.EOSToken != "<end>" {
		t.Errorf("Data.EOSToken = %q, want %q", s.Data.EOSToken, "<end>")
	}
	if s.Model.FileName != "test-model.ckpt" {
		t.Errorf("Model.FileName = %q, want %q", s.Model.FileName, "test-model.ckpt")
	}
	if s.Training.NbEpochs != 25 {
		t.Errorf("Training.NbEpochs = %d, want 25", s.Training.NbEpochs)
	}
	if s.Training.Optimizer.LR != 0.001 {
		t.Errorf("Training.Optimizer.LR = %g, want 0.001", s.Training.Optimizer.LR)
	}
	if !s.Training.GradNorm.Active || s.Training.GradNorm.Value != 2.0 {
		t.Errorf("Training.GradNorm = %+v, want active with value 2.0", s.Training.GradNorm)
	}
	if s.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", s.Logging.Level, "debug")
	}

	// Fields absent from the file keep their defaults.
	if s.Data.MaxCaptionLength != 30 {
		t.Errorf("Data.MaxCaptionLength = %d, want default 30", s.Data.MaxCaptionLength)
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	yamlContent := `
data:
  root_dir: ~/clotho
model:
  root_dir: ~/outputs
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "settings.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test settings: %v", err)
	}

	s, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if want := filepath.Join(home, "clotho"); s.Data.RootDir != want {
		t.Errorf("Data.RootDir = %q, want %q", s.Data.RootDir, want)
	}
	if want := filepath.Join(home, "outputs"); s.Model.RootDir != want {
		t.Errorf("Model.RootDir = %q, want %q", s.Model.RootDir, want)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/settings.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Settings)
		wantErr bool
	}{
		{
			name:    "valid defaults",
			modify:  func(s *Settings) {},
			wantErr: false,
		},
		{
			name:    "empty data root",
			modify:  func(s *Settings) { s.Data.RootDir = "" },
			wantErr: true,
		},
		{
			name:    "zero batch size",
			modify:  func(s *Settings) { s.Data.BatchSize = 0 },
			wantErr: true,
		},
		{
			name:    "empty eos token",
			modify:  func(s *Settings) { s.Data.EOSToken = "" },
			wantErr: true,
		},
		{
			name:    "zero max caption length",
			modify:  func(s *Settings) { s.Data.MaxCaptionLength = 0 },
			wantErr: true,
		},
		{
			name:    "zero feature bands",
			modify:  func(s *Settings) { s.Data.Features.Bands = 0 },
			wantErr: true,
		},
		{
			name:    "more bands than frame samples",
			modify:  func(s *Settings) { s.Data.Features = FeatureSettings{FrameLength: 4, HopLength: 2, Bands: 8} },
			wantErr: true,
		},
		{
			name:    "empty model file name",
			modify:  func(s *Settings) { s.Model.FileName = "" },
			wantErr: true,
		},
		{
			name:    "zero epochs",
			modify:  func(s *Settings) { s.Training.NbEpochs = 0 },
			wantErr: true,
		},
		{
			name:    "zero patience",
			modify:  func(s *Settings) { s.Training.Patience = 0 },
			wantErr: true,
		},
		{
			name:    "negative learning rate",
			modify:  func(s *Settings) { s.Training.Optimizer.LR = -1 },
			wantErr: true,
		},
		{
			name:    "active clip with zero value",
			modify:  func(s *Settings) { s.Training.GradNorm = GradNormSettings{Active: true, Value: 0} },
			wantErr: true,
		},
		{
			name:    "inactive clip with zero value is fine",
			modify:  func(s *Settings) { s.Training.GradNorm = GradNormSettings{Active: false, Value: 0} },
			wantErr: false,
		},
		{
			name:    "zero decode interval",
			modify:  func(s *Settings) { s.Training.TextOutputEveryNbEpochs = 0 },
			wantErr: true,
		},
		{
			name:    "negative sample count",
			modify:  func(s *Settings) { s.Training.NbExamplesToSample = -2 },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			modify:  func(s *Settings) { s.Logging.Level = "loud" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.modify(s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIndicesFilePath(t *testing.T) {
	tests := []struct {
		name        string
		outputField string
		wantFile    string
	}{
		{"words output", "words_ind", "words_list.json"},
		{"words prefix variant", "words_one_hot", "words_list.json"},
		{"characters output", "chars_ind", "characters_list.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			s.Data.OutputFieldName = tt.outputField
			got := s.IndicesFilePath()
			want := filepath.Join("data", "dataset", tt.wantFile)
			if got != want {
				t.Errorf("IndicesFilePath() = %q, want %q", got, want)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
