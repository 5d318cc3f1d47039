package pluginfilter

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ferro-labs/plugin-filter/internal/history"
	"github.com/ferro-labs/plugin-filter/internal/probe"
	"github.com/ferro-labs/plugin-filter/internal/report"
	"github.com/ferro-labs/plugin-filter/internal/validator"
)

// Default file locations.
const (
	DefaultInputFile  = "plugin.json"
	DefaultOutputFile = "dist/filtered_plugin.json"
)

// Environment variables read by ApplyEnv.
const (
	EnvConfig      = "PLUGINFILTER_CONFIG"
	EnvInputFile   = "INPUT_FILE"
	EnvOutputFile  = "OUTPUT_FILE"
	EnvTimeout     = "TIMEOUT"
	EnvConcurrency = "CONCURRENCY"
	EnvHistoryDSN  = "PLUGINFILTER_HISTORY_DSN"
)

// ErrInvalidConfig is returned by ValidateConfig.
var ErrInvalidConfig = errors.New("invalid config")

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{
		InputFile:    DefaultInputFile,
		OutputFile:   DefaultOutputFile,
		Timeout:      Duration(validator.DefaultTimeout),
		Concurrency:  validator.DefaultConcurrency,
		MaxRedirects: probe.DefaultMaxRedirects,
		Report:       report.FormatText,
	}
}

// LoadConfig reads a config file over DefaultConfig. Fields missing from the
// file keep their defaults.
// Supported formats: JSON (.json), YAML (.yaml, .yml).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}

	return &cfg, nil
}

// ApplyEnv overlays the recognised environment variables onto cfg. getenv is
// usually os.Getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if v := strings.TrimSpace(getenv(EnvInputFile)); v != "" {
		cfg.InputFile = v
	}
	if v := strings.TrimSpace(getenv(EnvOutputFile)); v != "" {
		cfg.OutputFile = v
	}
	if v := strings.TrimSpace(getenv(EnvTimeout)); v != "" {
		d, err := ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		cfg.Timeout = d
	}
	if v := strings.TrimSpace(getenv(EnvConcurrency)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", EnvConcurrency, v)
		}
		cfg.Concurrency = n
	}
	if v := strings.TrimSpace(getenv(EnvHistoryDSN)); v != "" {
		cfg.History.DSN = v
	}
	return nil
}

// ValidateConfig validates a Config for correctness.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.InputFile) == "" {
		return fmt.Errorf("%w: input file is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.OutputFile) == "" {
		return fmt.Errorf("%w: output file is required", ErrInvalidConfig)
	}
	if cfg.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be at least 1, got %d", ErrInvalidConfig, cfg.Concurrency)
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalidConfig, cfg.Timeout)
	}
	if cfg.MaxRedirects < 0 {
		return fmt.Errorf("%w: max_redirects must not be negative", ErrInvalidConfig)
	}
	if cfg.Report != "" {
		if _, ok := report.Get(cfg.Report); !ok {
			return fmt.Errorf("%w: unknown report format %q (available: %s)",
				ErrInvalidConfig, cfg.Report, strings.Join(report.Names(), ", "))
		}
	}
	switch strings.ToLower(cfg.History.Driver) {
	case "", history.DriverSQLite, history.DriverPostgres:
	default:
		return fmt.Errorf("%w: unknown history driver %q", ErrInvalidConfig, cfg.History.Driver)
	}
	return nil
}
