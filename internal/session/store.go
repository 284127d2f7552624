// Package session persists chat transcripts as one JSON file per session.
package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/gofrs/flock"
)

// DefaultDir is where sessions are stored when none is configured.
const DefaultDir = "chat_sessions"

const ext = ".json"

// ErrInvalidSessionName is returned for names that are empty or would
// escape the store directory.
var ErrInvalidSessionName = errors.New("session: invalid name")

// Role is the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a transcript. RetrievedContext holds the fragments
// the assistant answer was grounded on.
type Turn struct {
	Role             Role     `json:"role"`
	Content          string   `json:"content"`
	RetrievedContext []string `json:"retrieved_context,omitempty"`
	// Incomplete marks an assistant answer cut short by a stream failure.
	Incomplete bool `json:"incomplete,omitempty"`
}

// Store reads and writes sessions under a directory. Writers are serialized
// by mu within a process and by a lock file across processes.
type Store struct {
	dir  string
	mu   sync.Mutex
	lock *flock.Flock
}

// NewStore creates dir if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("session: create dir: %w", err)
	}
	return &Store{dir: dir, lock: flock.New(filepath.Join(dir, ".lock"))}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// List returns session names sorted alphabetically.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ext))
	}
	slices.Sort(names)
	return names, nil
}

// Load returns the turns of a session. A session that does not exist yet
// has no turns.
func (s *Store) Load(name string) ([]Turn, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return []Turn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: load %s: %w", name, err)
	}
	var turns []Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("session: decode %s: %w", name, err)
	}
	if turns == nil {
		turns = []Turn{}
	}
	return turns, nil
}

// Save replaces the transcript of a session.
func (s *Store) Save(name string, turns []Turn) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	return s.locked(func() error { return writeFile(path, turns) })
}

// Append adds turns to the end of a session under the lock, so concurrent
// writers do not lose each other's turns.
func (s *Store) Append(name string, turns ...Turn) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	return s.locked(func() error {
		existing, err := s.Load(name)
		if err != nil {
			return err
		}
		return writeFile(path, append(existing, turns...))
	})
}

// locked runs fn holding both locks. A flock.Flock is not reentrant across
// goroutines: Lock returns at once when the handle is already held.
func (s *Store) locked(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("session: lock: %w", err)
	}
	defer s.lock.Unlock()
	return fn()
}

func (s *Store) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSessionName, name)
	}
	return filepath.Join(s.dir, name+ext), nil
}

// writeFile encodes turns with two-space indentation and without HTML
// escaping, then renames a temp file over path.
func writeFile(path string, turns []Turn) error {
	if turns == nil {
		turns = []Turn{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(turns); err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".session-*")
	if err != nil {
		return fmt.Errorf("session: temp file: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("session: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("session: write: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("session: rename: %w", err)
	}
	return nil
}
