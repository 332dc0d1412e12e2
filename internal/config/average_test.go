package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultAverageConfig(t *testing.T) {
	cfg := DefaultAverageConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}

	empty := EmptyAverageConfig()
	if cfg.GetOversampling() != empty.GetOversampling() {
		t.Errorf("GetOversampling() = %v, empty default %v", cfg.GetOversampling(), empty.GetOversampling())
	}
	if cfg.GetIterations() != empty.GetIterations() {
		t.Errorf("GetIterations() = %d, empty default %d", cfg.GetIterations(), empty.GetIterations())
	}
	if cfg.GetWorkerFraction() != empty.GetWorkerFraction() {
		t.Errorf("GetWorkerFraction() = %v, empty default %v", cfg.GetWorkerFraction(), empty.GetWorkerFraction())
	}
	if cfg.GetProgressInterval() != empty.GetProgressInterval() {
		t.Errorf("GetProgressInterval() = %v, empty default %v", cfg.GetProgressInterval(), empty.GetProgressInterval())
	}
	if cfg.GetMaxImagePixels() != empty.GetMaxImagePixels() {
		t.Errorf("GetMaxImagePixels() = %d, empty default %d", cfg.GetMaxImagePixels(), empty.GetMaxImagePixels())
	}
	if cfg.GetEventBuffer() != empty.GetEventBuffer() {
		t.Errorf("GetEventBuffer() = %d, empty default %d", cfg.GetEventBuffer(), empty.GetEventBuffer())
	}
	if cfg.GetPrealign() != empty.GetPrealign() {
		t.Errorf("GetPrealign() = %v, empty default %v", cfg.GetPrealign(), empty.GetPrealign())
	}
}

func TestDefaultsFileMatchesDefaults(t *testing.T) {
	got := MustLoadDefaultConfig()
	if diff := cmp.Diff(DefaultAverageConfig(), got); diff != "" {
		t.Errorf("%s differs from DefaultAverageConfig (-code +file):\n%s", DefaultConfigPath, diff)
	}
}

func TestLoadAverageConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "average.json")

	testJSON := `{
  "oversampling": 4,
  "iterations": 10,
  "progress_interval": "250ms",
  "prealign": false,
  "runs_db": "runs.db"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadAverageConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.GetOversampling() != 4 {
		t.Errorf("GetOversampling() = %v, want 4", cfg.GetOversampling())
	}
	if cfg.GetIterations() != 10 {
		t.Errorf("GetIterations() = %d, want 10", cfg.GetIterations())
	}
	if cfg.GetProgressInterval() != 250*time.Millisecond {
		t.Errorf("GetProgressInterval() = %v, want 250ms", cfg.GetProgressInterval())
	}
	if cfg.GetPrealign() {
		t.Error("GetPrealign() = true, want false")
	}
	if cfg.GetRunsDB() != "runs.db" {
		t.Errorf("GetRunsDB() = %q, want runs.db", cfg.GetRunsDB())
	}

	// Omitted fields fall back to defaults.
	if cfg.WorkerFraction != nil {
		t.Errorf("WorkerFraction = %v, want nil", *cfg.WorkerFraction)
	}
	if cfg.GetWorkerFraction() != 0.75 {
		t.Errorf("GetWorkerFraction() = %v, want 0.75", cfg.GetWorkerFraction())
	}
	if cfg.GetPlotsDir() != "" {
		t.Errorf("GetPlotsDir() = %q, want empty", cfg.GetPlotsDir())
	}
}

func TestLoadAverageConfigRejects(t *testing.T) {
	tmpDir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(tmpDir, name)
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
		return p
	}

	tests := []struct {
		name string
		path string
		want string
	}{
		{"missing file", filepath.Join(tmpDir, "nope.json"), "failed to stat"},
		{"wrong extension", write("average.yaml", "{}"), ".json extension"},
		{"invalid JSON", write("broken.json", `{"iterations": `), "failed to parse"},
		{"wrong type", write("typed.json", `{"iterations": "many"}`), "failed to parse"},
		{"invalid value", write("bad.json", `{"oversampling": 0.5}`), "invalid configuration"},
		{"too large", write("big.json", `{"runs_db": "`+strings.Repeat("x", 1<<20)+`"}`), "too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadAverageConfig(tt.path)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *AverageConfig
		wantErr bool
	}{
		{"valid config", DefaultAverageConfig(), false},
		{"empty config is valid", &AverageConfig{}, false},
		{"oversampling below one", &AverageConfig{Oversampling: ptrFloat64(0.9)}, true},
		{"negative iterations", &AverageConfig{Iterations: ptrInt(-1)}, true},
		{"zero iterations", &AverageConfig{Iterations: ptrInt(0)}, false},
		{"negative workers", &AverageConfig{Workers: ptrInt(-2)}, true},
		{"worker fraction zero", &AverageConfig{WorkerFraction: ptrFloat64(0)}, true},
		{"worker fraction above one", &AverageConfig{WorkerFraction: ptrFloat64(1.5)}, true},
		{"invalid progress interval", &AverageConfig{ProgressInterval: ptrString("soon")}, true},
		{"negative progress interval", &AverageConfig{ProgressInterval: ptrString("-1s")}, true},
		{"negative event buffer", &AverageConfig{EventBuffer: ptrInt(-1)}, true},
		{"zero image limit", &AverageConfig{MaxImagePixels: ptrInt(0)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetProgressInterval(t *testing.T) {
	tests := []struct {
		name string
		cfg  *AverageConfig
		want time.Duration
	}{
		{"unset", &AverageConfig{}, 500 * time.Millisecond},
		{"empty", &AverageConfig{ProgressInterval: ptrString("")}, 500 * time.Millisecond},
		{"two seconds", &AverageConfig{ProgressInterval: ptrString("2s")}, 2 * time.Second},
		{"unparseable falls back", &AverageConfig{ProgressInterval: ptrString("later")}, 500 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.GetProgressInterval(); got != tt.want {
				t.Errorf("GetProgressInterval() = %v, want %v", got, tt.want)
			}
		})
	}
}
