package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseOverlaysDefaults(t *testing.T) {
	raw := []byte(`
seed: 7
ticks: 50
tick_interval: 250ms
npcs: 3
catalog:
  base_price: 20
journal:
  sqlite_path: run.db
`)
	cfg, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	def := Default()
	if cfg.Seed != 7 || cfg.Ticks != 50 || cfg.Npcs != 3 {
		t.Fatalf("scalars not decoded: %+v", cfg)
	}
	if cfg.TickInterval != 250*time.Millisecond {
		t.Fatalf("tick_interval = %s", cfg.TickInterval)
	}
	if cfg.Businesses != def.Businesses || cfg.ReportEvery != def.ReportEvery {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if cfg.Catalog.BasePrice != 20 || cfg.Catalog.MaxProducts != def.Catalog.MaxProducts {
		t.Fatalf("catalog = %+v", cfg.Catalog)
	}
	if cfg.Journal.SQLitePath != "run.db" || cfg.Journal.JSONLDir != "" {
		t.Fatalf("journal = %+v", cfg.Journal)
	}
}

func TestParseEmptyDocumentGivesDefault(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("got %+v, want defaults", cfg)
	}
}

func TestParseRejectsInvalidScenarios(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown key", "sede: 1\n"},
		{"negative npcs", "npcs: -1\n"},
		{"string ticks", "ticks: many\n"},
		{"bad level", "log_level: loud\n"},
		{"zero report window", "report_every: 0\n"},
		{"zero base price", "catalog:\n  base_price: 0\n"},
		{"unknown catalog key", "catalog:\n  colour: red\n"},
		{"inverted catalog bounds", "catalog:\n  min_products: 5\n  max_products: 2\n"},
		{"not a mapping", "- 1\n- 2\n"},
		{"bad duration", "tick_interval: soon\n"},
	}
	for _, tc := range tests {
		if _, err := Parse([]byte(tc.raw)); !errors.Is(err, ErrInvalidScenario) {
			t.Fatalf("%s: expected ErrInvalidScenario, got %v", tc.name, err)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("BAZAAR_SEED", "99")
	t.Setenv("BAZAAR_TICKS", "not-a-number")
	t.Setenv("BAZAAR_LOG_LEVEL", "DEBUG")
	t.Setenv("BAZAAR_JOURNAL_DB", "/tmp/j.db")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.Seed != 99 {
		t.Fatalf("seed = %d, want 99", cfg.Seed)
	}
	if cfg.Ticks != Default().Ticks {
		t.Fatalf("unparseable ticks override applied: %d", cfg.Ticks)
	}
	if cfg.Level() != slog.LevelDebug {
		t.Fatalf("level = %s, want DEBUG", cfg.Level())
	}
	if cfg.Journal.SQLitePath != "/tmp/j.db" {
		t.Fatalf("journal db = %q", cfg.Journal.SQLitePath)
	}
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte("seed: 3\nbusinesses: 2\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Seed != 3 || cfg.Businesses != 2 {
		t.Fatalf("cfg = %+v", cfg)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"":      slog.LevelInfo,
		"Warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("trace"); !errors.Is(err, ErrInvalidScenario) {
		t.Fatalf("expected ErrInvalidScenario, got %v", err)
	}
}
