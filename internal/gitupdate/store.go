package gitupdate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const storeVersion = 1

type storeFile struct {
	Version    int          `json:"version"`
	RepoStates []storedRepo `json:"repo_states"`
}

type storedRepo struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	RepoState
}

// Store persists per-repo update state as JSON.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns persisted states keyed by repository path. Repo IDs are
// regenerated each start, so the path is the stable key across restarts.
func (s *Store) Load() (map[string]RepoState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}
	var f storeFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	states := make(map[string]RepoState, len(f.RepoStates))
	for _, r := range f.RepoStates {
		states[r.Path] = r.RepoState
	}
	return states, nil
}

// Save writes all repo states atomically.
func (s *Store) Save(repos []*Repo) error {
	f := storeFile{Version: storeVersion}
	for _, r := range repos {
		f.RepoStates = append(f.RepoStates, storedRepo{ID: r.ID, Path: r.Path, RepoState: r.State})
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state file: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
