// Package report renders a validation ResultSet for humans or machines.
//
// Reporters are registered by name, the same way the built-in ones below
// register themselves in init, and selected with --report.
package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ferro-labs/plugin-filter/internal/validator"
)

// Built-in reporter names.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Reporter writes a summary of rs to w.
type Reporter interface {
	Report(w io.Writer, rs validator.ResultSet) error
}

func init() {
	Register(FormatText, func() Reporter { return Text{} })
	Register(FormatJSON, func() Reporter { return JSON{} })
}

// Text is the console summary: counts followed by one line per invalid
// plugin.
type Text struct{}

// Report implements Reporter.
func (Text) Report(w io.Writer, rs validator.ResultSet) error {
	if _, err := fmt.Fprintf(w, "\n✅ Valid plugins: %d\n", len(rs.Valid)); err != nil {
		return err
	}
	if len(rs.Invalid) == 0 {
		return nil
	}
	if _, err := fmt.Fprintf(w, "❌ Invalid plugins: %d\n", len(rs.Invalid)); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "List of invalid plugins:"); err != nil {
		return err
	}
	for _, o := range rs.Invalid {
		if _, err := fmt.Fprintf(w, "- [%s] %s — %s\n", o.Record.Name, o.Record.URL, o.Reason); err != nil {
			return err
		}
	}
	return nil
}

// InvalidEntry is the machine-readable form of an invalid outcome.
type InvalidEntry struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	Version    string `json:"version,omitempty"`
	Reason     string `json:"reason"`
	StatusCode int    `json:"status_code,omitempty"`
}

// Summary is the document emitted by the JSON reporter.
type Summary struct {
	Valid   int            `json:"valid"`
	Invalid []InvalidEntry `json:"invalid"`
}

// Summarize converts rs into a Summary.
func Summarize(rs validator.ResultSet) Summary {
	return Summary{Valid: len(rs.Valid), Invalid: InvalidEntries(rs.Invalid)}
}

// InvalidEntries converts invalid outcomes, keeping their order.
func InvalidEntries(outcomes []validator.Outcome) []InvalidEntry {
	entries := make([]InvalidEntry, 0, len(outcomes))
	for _, o := range outcomes {
		entries = append(entries, InvalidEntry{
			Name:       o.Record.Name,
			URL:        o.Record.URL,
			Version:    o.Record.Version,
			Reason:     o.Reason,
			StatusCode: o.StatusCode,
		})
	}
	return entries
}

// JSON emits a Summary as a single indented JSON document.
type JSON struct{}

// Report implements Reporter.
func (JSON) Report(w io.Writer, rs validator.ResultSet) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(Summarize(rs))
}
