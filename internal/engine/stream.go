package engine

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"sync"
)

// maxLineBytes is the longest output line the pump can handle (1MB).
// Engine tool results can be very large single JSONL lines.
const maxLineBytes = 1 << 20

// pumpLines reads r line-by-line and hands each line to fn in arrival
// order. It returns nil at EOF. fn is never called concurrently with
// itself for the same stream, which is what keeps callbacks ordered.
func pumpLines(r io.Reader, fn func(line string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	return scanner.Err()
}

// sessionSniffer watches an engine's JSONL stdout for the session
// identifier. Engines emit the id in their init event (and usually repeat
// it on every event); the first sighting wins. Non-JSON lines and JSON
// without the field are skipped without fuss.
type sessionSniffer struct {
	field string

	mu sync.Mutex
	id string
}

// newSessionSniffer creates a sniffer for the given JSON field name.
// An empty field disables sniffing entirely.
func newSessionSniffer(field string) *sessionSniffer {
	return &sessionSniffer{field: field}
}

// Scan inspects one output line. Safe for concurrent use.
func (s *sessionSniffer) Scan(line string) {
	if s.field == "" {
		return
	}

	s.mu.Lock()
	found := s.id != ""
	s.mu.Unlock()
	if found {
		return
	}

	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		return
	}
	raw, ok := obj[s.field]
	if !ok {
		return
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil || id == "" {
		return
	}

	s.mu.Lock()
	if s.id == "" {
		s.id = id
	}
	s.mu.Unlock()
}

// SessionID returns the sniffed id, or "" when none was seen.
func (s *sessionSniffer) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}
