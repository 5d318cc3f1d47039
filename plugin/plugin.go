// Package plugin defines the plugin list document and the Record type that
// every other package passes around, together with the loader and writer for
// the on-disk JSON form.
//
// A document looks like:
//
//	{
//	  "desc": "community plugins",
//	  "plugins": [
//	    {"name": "hello", "url": "https://example.com/hello", "version": "1.0.0"}
//	  ]
//	}
//
// Records are identified by position only. Two records with the same name or
// URL are kept and validated independently.
package plugin

import "errors"

// Record is a single plugin entry. It is never mutated after loading.
type Record struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
	// Version is optional and omitted from the output when empty.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
}

// Document is the top-level shape shared by the input and output files.
type Document struct {
	Desc    string   `json:"desc" yaml:"desc"`
	Plugins []Record `json:"plugins" yaml:"plugins"`
}

// Errors returned by Load, Parse and Write. Callers match them with errors.Is;
// the concrete cause stays wrapped alongside.
var (
	// ErrIO reports an unreadable input or an unwritable output path.
	ErrIO = errors.New("plugin list I/O error")
	// ErrParse reports input that is not JSON or does not match the schema.
	ErrParse = errors.New("plugin list parse error")
)
