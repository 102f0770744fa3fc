package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
exclude: [artifacts]
exclude_globs: ["packages/**/schema/raw"]
workers: 4
dry_run: true
log_level: debug
debounce: 500ms
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := &Config{
		Exclude:      []string{"artifacts"},
		ExcludeGlobs: []string{"packages/**/schema/raw"},
		Workers:      4,
		DryRun:       true,
		LogLevel:     "debug",
		Debounce:     500 * time.Millisecond,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
	if cfg.Level() != slog.LevelDebug {
		t.Errorf("Level() = %v, want debug", cfg.Level())
	}
}

func TestParseEmptyIsDefault(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) error = %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Parse(nil) mismatch (-want +got):\n%s", diff)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"unknown key", "wrokers: 2", "field wrokers not found"},
		{"negative workers", "workers: -1", "workers must not be negative"},
		{"bad level", "log_level: loud", "log_level"},
		{"bad glob", `exclude_globs: ["a/[b"]`, "not a valid pattern"},
		{"empty exclude", `exclude: [""]`, "exclude[0] is empty"},
		{"negative debounce", "debounce: -1s", "debounce must not be negative"},
		{"not yaml", "workers: [", "parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseZeroWorkersMeansOne(t *testing.T) {
	cfg, err := Parse([]byte("workers: 0"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workers != 1 {
		t.Errorf("Workers = %d, want 1", cfg.Workers)
	}
}

func TestLoadWithoutFiles(t *testing.T) {
	cfg, err := Load(t.TempDir(), "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDefaultFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileName), "workers: 3\n")

	cfg, err := Load(root, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workers != 3 {
		t.Errorf("Workers = %d, want 3", cfg.Workers)
	}
	if cfg.Source != filepath.Join(root, FileName) {
		t.Errorf("Source = %q", cfg.Source)
	}
}

func TestLoadExplicitMissing(t *testing.T) {
	_, err := Load(t.TempDir(), filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() error = nil for missing explicit config")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileName), "workers: 3\nlog_level: warn\n")
	writeFile(t, filepath.Join(root, EnvFileName), "SCHEMASPLIT_WORKERS=5\nSCHEMASPLIT_DRY_RUN=true\nUNRELATED=1\n")
	t.Setenv(envLogLevel, "error")

	cfg, err := Load(root, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workers != 5 {
		t.Errorf("Workers = %d, want 5 from .env", cfg.Workers)
	}
	if !cfg.DryRun {
		t.Error("DryRun = false, want true from .env")
	}
	if cfg.Level() != slog.LevelError {
		t.Errorf("Level() = %v, want error from environment", cfg.Level())
	}
	if _, ok := os.LookupEnv("UNRELATED"); ok {
		t.Error(".env leaked into the process environment")
	}
}

func TestLoadEnvPrecedence(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, EnvFileName), "SCHEMASPLIT_WORKERS=5\n")
	t.Setenv(envWorkers, "2")

	cfg, err := Load(root, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workers != 2 {
		t.Errorf("Workers = %d, want 2 from the real environment", cfg.Workers)
	}
}

func TestLoadBadEnv(t *testing.T) {
	root := t.TempDir()
	t.Setenv(envWorkers, "many")
	if _, err := Load(root, ""); err == nil || !strings.Contains(err.Error(), envWorkers) {
		t.Errorf("Load() error = %v, want %s error", err, envWorkers)
	}
}
