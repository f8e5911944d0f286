// Package prompt resolves a step's prompt references into the texts handed
// to the engine. Templates reference prompts by path or glob pattern;
// resolution happens once per step, before the session opens, so missing
// files surface as startup failures instead of mid-run surprises.
package prompt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrNoMatches is returned when a glob pattern matches no files. A template
// that names a pattern expects at least one prompt behind it.
var ErrNoMatches = errors.New("no files match prompt pattern")

// Prompt is one resolved prompt text.
type Prompt struct {
	// Name is the prompt's file name.
	Name string

	// Label is a display-friendly form of the name.
	Label string

	// Content is the prompt text, read verbatim. No templating: prompts
	// are authored exactly as the agent should receive them.
	Content string
}

// Source resolves prompt patterns into ordered prompt texts.
type Source interface {
	Resolve(patterns []string) ([]Prompt, error)
}

// FileSource resolves patterns against the filesystem, rooted at a base
// directory for relative patterns. Globs use doublestar syntax, so
// `prompts/**/*.md` picks up nested prompt packs.
type FileSource struct {
	root string
}

// NewFileSource creates a FileSource rooted at root. Relative patterns are
// resolved against it; absolute patterns are used as-is.
func NewFileSource(root string) *FileSource {
	return &FileSource{root: root}
}

// Resolve expands each pattern in order and reads every matched file
// verbatim. Glob matches are sorted so chained prompt packs replay in a
// stable order. Empty patterns are skipped; a literal path that does not
// exist or a glob with no matches is an error.
func (s *FileSource) Resolve(patterns []string) ([]Prompt, error) {
	var prompts []Prompt
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		paths, err := s.expand(pattern)
		if err != nil {
			return nil, err
		}
		for _, path := range paths {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("reading prompt %q: %w", path, err)
			}
			name := filepath.Base(path)
			prompts = append(prompts, Prompt{
				Name:    name,
				Label:   labelFor(name),
				Content: string(data),
			})
		}
	}
	return prompts, nil
}

// expand turns one pattern into the ordered list of file paths behind it.
func (s *FileSource) expand(pattern string) ([]string, error) {
	full := pattern
	if !filepath.IsAbs(full) {
		full = filepath.Join(s.root, pattern)
	}

	if !hasMeta(pattern) {
		if _, err := os.Stat(full); err != nil {
			return nil, fmt.Errorf("prompt file %q: %w", pattern, err)
		}
		return []string{full}, nil
	}

	matches, err := doublestar.FilepathGlob(full)
	if err != nil {
		return nil, fmt.Errorf("prompt pattern %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("prompt pattern %q: %w", pattern, ErrNoMatches)
	}
	sort.Strings(matches)
	return matches, nil
}

// hasMeta reports whether the pattern contains glob metacharacters.
func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

// labelFor derives a display label from a prompt file name:
// "01_plan-feature.md" becomes "01 plan feature".
func labelFor(name string) string {
	label := strings.TrimSuffix(name, filepath.Ext(name))
	label = strings.NewReplacer("_", " ", "-", " ").Replace(label)
	return strings.TrimSpace(label)
}

// Static is a Source serving fixed prompts, keyed by pattern. Tests and the
// autonomous replay path use it to feed sessions without touching disk.
type Static map[string]Prompt

// Resolve returns the prompt registered for each pattern, in order.
// Unknown patterns resolve to ErrNoMatches.
func (s Static) Resolve(patterns []string) ([]Prompt, error) {
	var prompts []Prompt
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		p, ok := s[pattern]
		if !ok {
			return nil, fmt.Errorf("prompt pattern %q: %w", pattern, ErrNoMatches)
		}
		prompts = append(prompts, p)
	}
	return prompts, nil
}
