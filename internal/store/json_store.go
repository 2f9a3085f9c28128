package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Haraven/autobiographical-exercise/internal/model"
)

// JSONStore implements PairingStore on a human-readable JSON file that is
// rewritten wholesale on every flush.
type JSONStore struct {
	path string
}

// NewJSONStore returns a store backed by the JSON file at path. The file is
// created on the first non-empty flush.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Path returns the backing file location.
func (s *JSONStore) Path() string {
	return s.path
}

// Load reads the pairing table. A missing file is a first run.
func (s *JSONStore) Load(_ context.Context) ([]model.Pairing, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading pairings %s: %w", s.path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrCorrupt, s.path)
	}

	var pairings []model.Pairing
	if err := json.Unmarshal(data, &pairings); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrCorrupt, s.path, err)
	}
	if pairings == nil {
		return nil, fmt.Errorf("%w: %s holds null instead of a list", ErrCorrupt, s.path)
	}

	// Records written before sequence numbers existed are numbered after
	// the highest explicit id, in file order.
	next := model.NextPairingID(pairings)
	for i := range pairings {
		if pairings[i].ID == 0 {
			pairings[i].ID = next
			next++
		}
	}

	if err := validateLoaded(s.path, pairings); err != nil {
		return nil, err
	}
	return pairings, nil
}

// Flush writes pairings to a temporary file next to the target and renames
// it into place, so a crash never leaves a truncated table behind.
func (s *JSONStore) Flush(_ context.Context, pairings []model.Pairing) error {
	if len(pairings) == 0 {
		return nil
	}

	data, err := Encode(pairings)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating pairing directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp pairing file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp pairing file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp pairing file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp pairing file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing pairings %s: %w", s.path, err)
	}
	return nil
}

// Close is a no-op; the file is only open during Load and Flush.
func (s *JSONStore) Close() error {
	return nil
}

// Encode renders pairings in the on-disk format: an indented JSON array in
// sequence order with a trailing newline.
func Encode(pairings []model.Pairing) ([]byte, error) {
	data, err := json.MarshalIndent(pairings, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding pairings: %w", err)
	}
	return append(data, '\n'), nil
}
