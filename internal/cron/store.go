package cron

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const storeVersion = 1

// storeFile is the on-disk layout of jobs.json.
type storeFile struct {
	Version int    `json:"version"`
	Jobs    []*Job `json:"jobs"`
}

// Store persists jobs as a single JSON document. Callers synchronize
// access; the Service holds its own mutex around load and save.
type Store struct {
	path string
}

// NewStore creates a store backed by the given jobs.json path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Load reads all jobs. A missing file yields an empty list.
func (s *Store) Load() ([]*Job, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cron store: %w", err)
	}
	var file storeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse cron store: %w", err)
	}
	return file.Jobs, nil
}

// Save writes all jobs atomically via a temp file rename.
func (s *Store) Save(jobs []*Job) error {
	if jobs == nil {
		jobs = []*Job{}
	}
	data, err := json.MarshalIndent(storeFile{Version: storeVersion, Jobs: jobs}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cron store: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cron dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".jobs-*")
	if err != nil {
		return fmt.Errorf("write cron store: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write cron store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write cron store: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write cron store: %w", err)
	}
	return nil
}
