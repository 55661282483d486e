// Package statestore persists a component's whole state as a single JSON
// document. The learner and the ledger each own one document and
// read-modify-write it as a whole; the interface exists so tests can
// substitute an in-memory store and production gets atomic file writes.
package statestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/starford/ansuz/internal/sanitize"
)

// Store loads and saves one JSON state document.
type Store interface {
	// Load decodes the document into v. A missing document is not an
	// error: v is left untouched so first use starts from zero values.
	Load(v any) error
	// Save encodes v and persists it, replacing the previous document.
	Save(v any) error
}

// JSONFile is a Store backed by a single file with atomic replace writes.
type JSONFile struct {
	path string
}

// NewJSONFile creates a file-backed store at path. Parent directories are
// created on first save.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

// Load reads and decodes the state file. Missing file leaves v untouched.
func (s *JSONFile) Load(v any) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("statestore: read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("statestore: decode %s: %w", s.path, err)
	}
	return nil
}

// Save encodes v, sanitizes the encoding, and atomically replaces the
// state file (tmp file → fsync → rename).
func (s *JSONFile) Save(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("statestore: encode: %w", err)
	}
	data = sanitize.Bytes(data)

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("statestore: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-tmp-*")
	if err != nil {
		return fmt.Errorf("statestore: create temp: %w", err)
	}
	tmpName := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("statestore: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("statestore: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("statestore: close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("statestore: rename: %w", err)
	}
	success = true
	return nil
}

// Memory is an in-memory Store for tests.
type Memory struct {
	data []byte
	// Saves counts Save calls, so tests can assert dry runs persist nothing.
	Saves int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Load decodes the last saved document, if any.
func (m *Memory) Load(v any) error {
	if m.data == nil {
		return nil
	}
	return json.Unmarshal(m.data, v)
}

// Save encodes v into memory.
func (m *Memory) Save(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.data = sanitize.Bytes(data)
	m.Saves++
	return nil
}
