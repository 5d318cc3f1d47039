package plugin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and parses the plugin list at path.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return Document{}, fmt.Errorf("%w: reading %s: %w", ErrIO, path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes a plugin list and checks it against the document schema.
// Records missing name or url are rejected here rather than at probe time.
func Parse(data []byte) (Document, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Document{}, fmt.Errorf("%w: decoding JSON: %w", ErrParse, err)
	}
	if err := compiledSchema().Validate(raw); err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrParse, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: decoding plugin list: %w", ErrParse, err)
	}
	if doc.Plugins == nil {
		doc.Plugins = []Record{}
	}
	return doc, nil
}

// Encode renders doc with two-space indentation. HTML escaping is disabled so
// non-ASCII text and characters like & survive verbatim.
func Encode(doc Document) ([]byte, error) {
	if doc.Plugins == nil {
		doc.Plugins = []Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encoding plugin list: %w", err)
	}
	return buf.Bytes(), nil
}

// Write stores doc at path, creating the parent directory when needed. The
// file is written to a temporary sibling first and renamed into place, so a
// failed write never leaves a truncated output behind.
func Write(path string, doc Document) error {
	data, err := Encode(doc)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating output directory %s: %w", ErrIO, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("%w: creating %s: %w", ErrIO, path, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: writing %s: %w", ErrIO, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: writing %s: %w", ErrIO, path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("%w: writing %s: %w", ErrIO, path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: replacing %s: %w", ErrIO, path, err)
	}
	return nil
}
