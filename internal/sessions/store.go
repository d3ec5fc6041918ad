package sessions

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Store loads and saves sessions under a single directory. Writes are atomic
// (temp file + rename) so a crash mid-save cannot tear a history file.
type Store struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]*Session
}

// NewStore creates a session store rooted at dir.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sessions dir: %w", err)
	}
	return &Store{
		dir:    dir,
		logger: logger.With("component", "sessions"),
		cache:  make(map[string]*Session),
	}, nil
}

// GetOrCreate returns the session for key, loading it from disk on first
// access and creating it when no file exists.
func (s *Store) GetOrCreate(key string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.cache[key]; ok {
		return sess, nil
	}

	path := s.path(key)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		sess := &Session{Key: key, CreatedAt: time.Now(), UpdatedAt: time.Now()}
		s.cache[key] = sess
		return sess, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", key, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		s.logger.Warn("corrupt session file, starting fresh", "key", key, "error", err)
		sess = Session{Key: key, CreatedAt: time.Now()}
	}
	sess.Key = key
	s.cache[key] = &sess
	return &sess, nil
}

// Save writes the session to disk atomically.
func (s *Store) Save(sess *Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", sess.Key, err)
	}

	path := s.path(sess.Key)
	tmp, err := os.CreateTemp(s.dir, ".session-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write session %s: %w", sess.Key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace session %s: %w", sess.Key, err)
	}
	return nil
}

// Keys lists the session keys present on disk.
func (s *Store) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	return keys, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, sanitizeKey(key)+".json")
}

// sanitizeKey maps a session key to a safe file name.
func sanitizeKey(key string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")
	out := replacer.Replace(key)
	if out == "" {
		out = "_"
	}
	return out
}
