// Package config loads bazaar scenarios from YAML, validates them against an
// embedded JSON Schema and applies environment overrides.
package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed scenario.schema.json
var schemaJSON string

var scenarioSchema = jsonschema.MustCompileString("scenario.schema.json", schemaJSON)

// ErrInvalidScenario wraps every schema or consistency failure.
var ErrInvalidScenario = errors.New("invalid scenario")

type Config struct {
	Seed           int64         `yaml:"seed"`
	Ticks          int           `yaml:"ticks"`
	TickInterval   time.Duration `yaml:"tick_interval"`
	ReportEvery    int           `yaml:"report_every"`
	Businesses     int           `yaml:"businesses"`
	Npcs           int           `yaml:"npcs"`
	ArrivalEvery   int           `yaml:"arrival_every"`
	InitialSavings float64       `yaml:"initial_savings"`
	LogLevel       string        `yaml:"log_level"`

	Catalog Catalog `yaml:"catalog"`
	Journal Journal `yaml:"journal"`
}

type Catalog struct {
	MinProducts int     `yaml:"min_products"`
	MaxProducts int     `yaml:"max_products"`
	BasePrice   float64 `yaml:"base_price"`
}

// Journal names the optional event sinks. Empty paths disable a sink.
type Journal struct {
	SQLitePath string `yaml:"sqlite_path"`
	JSONLDir   string `yaml:"jsonl_dir"`
}

// Default returns a small runnable scenario.
func Default() Config {
	return Config{
		Seed:           0,
		Ticks:          200,
		TickInterval:   0,
		ReportEvery:    20,
		Businesses:     5,
		Npcs:           10,
		ArrivalEvery:   50,
		InitialSavings: 1000,
		LogLevel:       "info",
		Catalog: Catalog{
			MinProducts: 1,
			MaxProducts: 4,
			BasePrice:   10,
		},
	}
}

// Load reads a scenario file, validates it and overlays it on Default.
// Environment overrides are applied last.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(raw)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// Parse validates raw YAML and decodes it over Default. Keys left out of the
// document keep their default values.
func Parse(raw []byte) (Config, error) {
	if err := Validate(raw); err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if err := cfg.Check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks raw YAML against the scenario schema. An empty document is
// valid.
func Validate(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if doc == nil {
		return nil
	}
	// The validator expects encoding/json value types.
	buf, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	var v any
	if err := json.Unmarshal(buf, &v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if err := scenarioSchema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	return nil
}

// Check reports cross-field problems the schema cannot express.
func (c Config) Check() error {
	if c.Catalog.MaxProducts < c.Catalog.MinProducts {
		return fmt.Errorf("%w: catalog.max_products %d below min_products %d",
			ErrInvalidScenario, c.Catalog.MaxProducts, c.Catalog.MinProducts)
	}
	if c.TickInterval < 0 {
		return fmt.Errorf("%w: negative tick_interval %s", ErrInvalidScenario, c.TickInterval)
	}
	if c.ReportEvery < 1 {
		return fmt.Errorf("%w: report_every must be at least 1", ErrInvalidScenario)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from BAZAAR_* environment variables. Unparseable
// values are ignored.
func (c *Config) ApplyEnv() {
	c.Seed = envInt64Default("BAZAAR_SEED", c.Seed)
	c.Ticks = envIntDefault("BAZAAR_TICKS", c.Ticks)
	c.TickInterval = envDurationDefault("BAZAAR_TICK_INTERVAL", c.TickInterval)
	c.LogLevel = strings.ToLower(envDefault("BAZAAR_LOG_LEVEL", c.LogLevel))
	c.Journal.SQLitePath = envDefault("BAZAAR_JOURNAL_DB", c.Journal.SQLitePath)
	c.Journal.JSONLDir = envDefault("BAZAAR_JSONL_DIR", c.Journal.JSONLDir)
}

// Level returns the slog level for LogLevel, falling back to Info.
func (c Config) Level() slog.Level {
	lvl, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: unknown log level %q", ErrInvalidScenario, s)
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envInt64Default(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
