package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/danieljhkim/mdbook-confluence/internal/fsops"
)

// RecordFile is the record's file name inside the output directory.
const RecordFile = "last-sync.json"

// StateStore provides an interface for persisting the last sync record.
type StateStore interface {
	// Load returns the saved record. Returns os.ErrNotExist if there is none.
	Load() (*Record, error)

	// Save writes the record atomically.
	Save(rec *Record) error
}

// FileStateStore implements StateStore using a JSON file on disk.
type FileStateStore struct {
	fs   fsops.FS
	path string
}

// NewFileStateStore creates a store for the record in dir.
func NewFileStateStore(fs fsops.FS, dir string) *FileStateStore {
	return &FileStateStore{
		fs:   fs,
		path: filepath.Join(dir, RecordFile),
	}
}

// Path returns the record file path.
func (s *FileStateStore) Path() string {
	return s.path
}

// Load reads the saved record.
func (s *FileStateStore) Load() (*Record, error) {
	data, err := s.fs.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("failed to read sync record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sync record: %w", err)
	}
	if rec.Schema != SchemaVersion {
		return nil, fmt.Errorf("sync record has schema %d, expected %d", rec.Schema, SchemaVersion)
	}
	if rec.Pages == nil {
		rec.Pages = make(map[string]PageRecord)
	}

	return &rec, nil
}

// Save writes the record atomically.
func (s *FileStateStore) Save(rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sync record: %w", err)
	}

	if err := s.fs.AtomicWrite(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write sync record: %w", err)
	}

	return nil
}
