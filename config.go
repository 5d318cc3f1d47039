package pluginfilter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the configuration for a filter run.
type Config struct {
	// InputFile is the plugin list to validate.
	InputFile string `json:"input_file" yaml:"input_file"`
	// OutputFile receives the valid subset. Its directory is created on write.
	OutputFile string `json:"output_file" yaml:"output_file"`
	// Timeout bounds every single probe.
	Timeout Duration `json:"timeout" yaml:"timeout"`
	// Concurrency is the maximum number of probes in flight.
	Concurrency int `json:"concurrency" yaml:"concurrency"`
	// MaxRedirects caps redirect hops per probe.
	MaxRedirects int `json:"max_redirects,omitempty" yaml:"max_redirects,omitempty"`
	// UserAgent overrides the default probe User-Agent.
	UserAgent string `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`
	// Report selects the console reporter (text, json).
	Report string `json:"report,omitempty" yaml:"report,omitempty"`
	// History configures the optional outcome audit store.
	History HistoryConfig `json:"history,omitempty" yaml:"history,omitempty"`
	// MetricsFile, when set, receives a Prometheus textfile after each run.
	MetricsFile string `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty"`
}

// HistoryConfig selects the history backend. An empty DSN disables it.
type HistoryConfig struct {
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"` // sqlite (default) or postgres
	DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// Enabled reports whether outcomes should be persisted.
func (h HistoryConfig) Enabled() bool { return strings.TrimSpace(h.DSN) != "" }

// Duration is a time.Duration that reads either a Go duration string
// ("1500ms", "5s") or a bare number of seconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String implements fmt.Stringer.
func (d Duration) String() string { return time.Duration(d).String() }

// ParseDuration accepts "5s" style strings and bare seconds ("5", "0.5").
func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return Duration(d), nil
}

// MarshalJSON writes the duration as a Go duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		*d = Duration(val * float64(time.Second))
		return nil
	case string:
		parsed, err := ParseDuration(val)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
}

// MarshalYAML writes the duration as a Go duration string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	parsed, err := ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = parsed
	return nil
}
