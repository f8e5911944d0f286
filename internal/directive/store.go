package directive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/codemachine-ai/codemachine/internal/jsonutil"
	"github.com/codemachine-ai/codemachine/internal/logging"
)

// FileName is the directive file's name inside the memory directory.
const FileName = "directive.json"

// DefaultPath returns the directive file path for a working directory:
// <cwd>/.codemachine/memory/directive.json.
func DefaultPath(cwd string) string {
	return filepath.Join(cwd, ".codemachine", "memory", FileName)
}

// Store reads and resets the directive file. Agents are the writers;
// the orchestrator only reads, except for the advance-time reset. The
// file is last-writer-wins at the filesystem level, so every Read takes
// a single consistent snapshot.
type Store struct {
	path   string
	logger *log.Logger
}

// NewStore creates a Store for the given directive file path.
func NewStore(path string) *Store {
	return &Store{
		path:   path,
		logger: logging.New("directive"),
	}
}

// Path returns the directive file path.
func (s *Store) Path() string { return s.path }

// Read returns the current directive. A missing file means continue.
// A malformed file is logged and also means continue: agents sometimes
// truncate mid-write, and a bad directive must never take the workflow
// down. Agent output occasionally wraps the JSON in prose, so a failed
// direct parse falls back to extraction.
func (s *Store) Read() Directive {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("directive file unreadable", "path", s.path, "error", err)
		}
		return Continue
	}

	var d Directive
	if err := json.Unmarshal(data, &d); err != nil {
		if exErr := jsonutil.ExtractInto(string(data), &d); exErr != nil {
			s.logger.Warn("directive file malformed, treating as continue",
				"path", s.path, "error", err)
			return Continue
		}
	}

	if !d.Action.Known() {
		s.logger.Warn("directive has unknown action, treating as continue",
			"path", s.path, "action", d.Action)
		return Continue
	}
	return d
}

// Reset overwrites the file with the neutral continue directive. The
// runner calls this on every user-initiated advance so a stale
// directive cannot replay.
func (s *Store) Reset() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directive directory %q: %w", dir, err)
	}

	data, err := json.Marshal(Continue)
	if err != nil {
		return fmt.Errorf("encoding continue directive: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing temp directive file %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("renaming temp directive file to %q: %w", s.path, err)
	}
	return nil
}
