package tracking

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/codemachine-ai/codemachine/internal/logging"
)

// Manager owns the tracking file. It reads, writes and queries step
// progress using an atomic write pattern (write to temp file then
// rename). A mutex serializes the read-modify-write cycles within the
// process; nothing else may touch the file.
type Manager struct {
	mu       sync.Mutex
	filePath string
	logger   *log.Logger
}

// NewManager creates a Manager for the given tracking file path.
func NewManager(filePath string) *Manager {
	return &Manager{
		filePath: filePath,
		logger:   logging.New("tracking"),
	}
}

// DefaultPath returns the tracking file path under a workflow root.
func DefaultPath(cmRoot string) string {
	return filepath.Join(cmRoot, FileName)
}

// Path returns the tracking file path.
func (m *Manager) Path() string { return m.filePath }

// Load reads the tracking file. A missing file returns (nil, nil). An
// unreadable or unparsable file is logged and also returns (nil, nil):
// corrupted tracking degrades to a fresh start rather than blocking
// the workflow.
func (m *Manager) Load() (*Tracking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(), nil
}

// load is the internal, mutex-free version of Load. Callers must hold
// m.mu.
func (m *Manager) load() *Tracking {
	data, err := os.ReadFile(m.filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("tracking file unreadable, starting fresh", "path", m.filePath, "error", err)
		}
		return nil
	}

	var t Tracking
	if err := json.Unmarshal(data, &t); err != nil {
		m.logger.Warn("tracking file corrupted, starting fresh", "path", m.filePath, "error", err)
		return nil
	}
	if t.CompletedSteps == nil {
		t.CompletedSteps = make(map[int]StepRecord)
	}
	return &t
}

// Initialize prepares tracking for a run of the named template. When
// the existing file belongs to a different template the old progress
// is discarded; otherwise records are preserved so the run can resume.
// The launch selection is stored so resumed runs filter the step list
// identically.
func (m *Manager) Initialize(activeTemplate, projectName, selectedTrack string, selectedConditions []string, autonomous bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.load()
	if t == nil || t.ActiveTemplate != activeTemplate {
		if t != nil {
			m.logger.Info("active template changed, resetting tracking",
				"previous", t.ActiveTemplate, "current", activeTemplate)
		}
		t = &Tracking{
			CompletedSteps:     make(map[int]StepRecord),
			ResumeFromLastStep: true,
		}
	}

	t.ActiveTemplate = activeTemplate
	t.ProjectName = projectName
	t.SelectedTrack = selectedTrack
	t.SelectedConditions = selectedConditions
	t.AutonomousMode = &autonomous

	return m.writeAtomic(t)
}

// IsStepCompleted reports whether the step at index carries a
// completion time.
func (m *Manager) IsStepCompleted(index int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.load()
	if t == nil {
		return false, nil
	}
	return t.CompletedSteps[index].Completed(), nil
}

// MarkStepStarted records that the step at index launched a session.
// Existing chain progress is kept so a chain resume that re-starts the
// step does not lose it. The index joins notCompletedSteps until the
// step completes.
func (m *Manager) MarkStepStarted(index int, sessionID string, monitoringID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.loadOrFresh()
	rec := t.CompletedSteps[index]
	rec.SessionID = sessionID
	rec.MonitoringID = monitoringID
	rec.CompletedAt = nil
	t.CompletedSteps[index] = rec

	t.NotCompletedSteps = addIndex(t.NotCompletedSteps, index)
	return m.writeAtomic(t)
}

// MarkChainCompleted records that the chained prompt at chainIndex
// finished for the step at index.
func (m *Manager) MarkChainCompleted(index, chainIndex int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.loadOrFresh()
	rec := t.CompletedSteps[index]
	rec.CompletedChains = addIndex(rec.CompletedChains, chainIndex)
	t.CompletedSteps[index] = rec
	return m.writeAtomic(t)
}

// MarkStepCompleted stamps the step at index as done. Chain progress is
// left in place but ignored from now on; the completion time is
// authoritative.
func (m *Manager) MarkStepCompleted(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.loadOrFresh()
	now := time.Now().UTC()
	rec := t.CompletedSteps[index]
	rec.CompletedAt = &now
	t.CompletedSteps[index] = rec

	t.NotCompletedSteps = removeIndex(t.NotCompletedSteps, index)
	return m.writeAtomic(t)
}

// ClearChains drops chain progress for every index in [from, to]. The
// runner calls this when a loop rewinds over partially completed steps
// so a later resume does not jump into a stale chain.
func (m *Manager) ClearChains(from, to int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.load()
	if t == nil {
		return nil
	}
	changed := false
	for idx := from; idx <= to; idx++ {
		rec, ok := t.CompletedSteps[idx]
		if !ok || len(rec.CompletedChains) == 0 {
			continue
		}
		rec.CompletedChains = nil
		t.CompletedSteps[idx] = rec
		changed = true
	}
	if !changed {
		return nil
	}
	return m.writeAtomic(t)
}

// ClearCompletion removes the completion stamp for every index in
// [from, to] so rewound steps run again. Execute-once steps are the
// caller's business; this clears indiscriminately.
func (m *Manager) ClearCompletion(from, to int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.load()
	if t == nil {
		return nil
	}
	changed := false
	for idx := from; idx <= to; idx++ {
		rec, ok := t.CompletedSteps[idx]
		if !ok || !rec.Completed() {
			continue
		}
		rec.CompletedAt = nil
		t.CompletedSteps[idx] = rec
		changed = true
	}
	if !changed {
		return nil
	}
	return m.writeAtomic(t)
}

// SetResumeFromLastStep flips the resume flag. With the flag false the
// next run starts fresh regardless of recorded progress.
func (m *Manager) SetResumeFromLastStep(v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.loadOrFresh()
	t.ResumeFromLastStep = v
	return m.writeAtomic(t)
}

// SetAutonomousMode persists the workflow-level autonomy toggle.
func (m *Manager) SetAutonomousMode(v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.loadOrFresh()
	t.AutonomousMode = &v
	return m.writeAtomic(t)
}

// SetControllerConfig records the controller agent's session identity.
func (m *Manager) SetControllerConfig(cc ControllerConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.loadOrFresh()
	t.ControllerConfig = &cc
	return m.writeAtomic(t)
}

// ClearControllerConfig forgets the controller session.
func (m *Manager) ClearControllerConfig() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.load()
	if t == nil || t.ControllerConfig == nil {
		return nil
	}
	t.ControllerConfig = nil
	return m.writeAtomic(t)
}

// ResumeInfo computes where the next run should pick up.
func (m *Manager) ResumeInfo() (Resume, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ComputeResume(m.load()), nil
}

// loadOrFresh returns the current tracking or a fresh value ready for
// its first write. Callers must hold m.mu.
func (m *Manager) loadOrFresh() *Tracking {
	if t := m.load(); t != nil {
		return t
	}
	return &Tracking{
		CompletedSteps:     make(map[int]StepRecord),
		ResumeFromLastStep: true,
	}
}

// writeAtomic marshals t to a temporary file in the same directory as
// m.filePath, then renames it atomically over the real file. Every
// write refreshes lastUpdated. File permissions are 0644.
func (m *Manager) writeAtomic(t *Tracking) error {
	t.LastUpdated = time.Now().UTC()

	dir := filepath.Dir(m.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating tracking directory %q: %w", dir, err)
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding tracking file: %w", err)
	}

	tmp := m.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing temp tracking file %q: %w", tmp, err)
	}

	if err := os.Rename(tmp, m.filePath); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("renaming temp tracking file to %q: %w", m.filePath, err)
	}

	return nil
}

// addIndex inserts idx into the sorted slice if absent.
func addIndex(xs []int, idx int) []int {
	for _, x := range xs {
		if x == idx {
			return xs
		}
	}
	xs = append(xs, idx)
	sort.Ints(xs)
	return xs
}

// removeIndex drops idx from the slice if present.
func removeIndex(xs []int, idx int) []int {
	for i, x := range xs {
		if x == idx {
			return append(xs[:i], xs[i+1:]...)
		}
	}
	return xs
}
