// Package buffer writes registry outputs to disk: indented JSON documents
// (snapshot, canonical sequence, gaps, details) and, optionally, one
// markdown file per extracted record. Every file is written atomically
// (write .tmp then rename) so a crash never leaves a half-written output.
package buffer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteJSON encodes v with four-space indentation and unescaped HTML
// characters, and atomically replaces path. Parent directories are created.
func WriteJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("buffer: encode %s: %w", filepath.Base(path), err)
	}
	return writeAtomic(path, buf.Bytes())
}

// ReadJSON decodes the file at path into v. A missing file keeps
// fs.ErrNotExist in the error chain.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("buffer: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("buffer: decode %s: %w", path, err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("buffer: mkdir %s: %w", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("buffer: write tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("buffer: rename: %w", err)
	}
	return nil
}
