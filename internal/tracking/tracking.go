// Package tracking persists per-workflow step progress. The tracking
// file is the single source of truth for crash recovery, execute-once
// skipping and resumed controller sessions; every write goes through
// the Manager so the file only ever changes under one writer.
package tracking

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// FileName is the tracking file's name inside the workflow root.
const FileName = "template.json"

// StepRecord is one entry in the tracking file's completedSteps map.
// A record with a session id marks the step as started; a record with
// a completion time marks it done. CompletedChains lists the chained
// prompt sub-indices already finished for a partially completed step.
type StepRecord struct {
	SessionID       string     `json:"sessionId"`
	MonitoringID    int        `json:"monitoringId"`
	CompletedChains []int      `json:"completedChains,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// Started reports whether the step has a recorded session.
func (r StepRecord) Started() bool { return r.SessionID != "" }

// Completed reports whether the step finished. The completion time is
// authoritative: chain progress is ignored once it is set.
func (r StepRecord) Completed() bool { return r.CompletedAt != nil }

// ControllerConfig records the controller agent's session so delegated
// input survives a crash.
type ControllerConfig struct {
	AgentID      string `json:"agentId"`
	SessionID    string `json:"sessionId"`
	MonitoringID int    `json:"monitoringId"`
}

// Tracking is the full tracking file: progress records plus the launch
// selection that shaped the step list.
type Tracking struct {
	ActiveTemplate     string             `json:"activeTemplate"`
	LastUpdated        time.Time          `json:"lastUpdated"`
	CompletedSteps     map[int]StepRecord `json:"completedSteps"`
	NotCompletedSteps  []int              `json:"notCompletedSteps"`
	ResumeFromLastStep bool               `json:"resumeFromLastStep"`
	SelectedTrack      string             `json:"selectedTrack,omitempty"`
	SelectedConditions []string           `json:"selectedConditions,omitempty"`
	ProjectName        string             `json:"projectName,omitempty"`
	AutonomousMode     *bool              `json:"autonomousMode,omitempty"`
	ControllerConfig   *ControllerConfig  `json:"controllerConfig,omitempty"`
}

// UnmarshalJSON accepts both tracking formats. The current format keys
// completedSteps by step index; the legacy format is a bare list of
// completed indices, which is migrated to records completed "now" with
// no session identity.
func (t *Tracking) UnmarshalJSON(data []byte) error {
	type alias Tracking
	aux := struct {
		*alias
		CompletedSteps json.RawMessage `json:"completedSteps"`
	}{alias: (*alias)(t)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	t.CompletedSteps = make(map[int]StepRecord)
	if len(aux.CompletedSteps) == 0 || string(aux.CompletedSteps) == "null" {
		return nil
	}

	var records map[int]StepRecord
	if err := json.Unmarshal(aux.CompletedSteps, &records); err == nil {
		if records != nil {
			t.CompletedSteps = records
		}
		return nil
	}

	var legacy []int
	if err := json.Unmarshal(aux.CompletedSteps, &legacy); err != nil {
		return fmt.Errorf("completedSteps has an unrecognized shape")
	}
	now := time.Now().UTC()
	for _, idx := range legacy {
		t.CompletedSteps[idx] = StepRecord{CompletedAt: &now}
	}
	return nil
}

// ResumeKind names the four possible resume outcomes.
type ResumeKind string

const (
	// StartFresh means no usable tracking exists, or resuming was
	// explicitly disabled.
	StartFresh ResumeKind = "START_FRESH"

	// ResumeFromChain means a step finished some of its chained
	// prompts and should continue at the next one.
	ResumeFromChain ResumeKind = "RESUME_FROM_CHAIN"

	// ResumeFromCrash means the highest started step never finished
	// and its session should be resumed.
	ResumeFromCrash ResumeKind = "RESUME_FROM_CRASH"

	// ContinueAfterCompleted means every started step finished; the
	// run continues after the highest completed index.
	ContinueAfterCompleted ResumeKind = "CONTINUE_AFTER_COMPLETED"
)

// Resume tells the runner where to pick up a workflow.
type Resume struct {
	Kind      ResumeKind
	StepIndex int

	// NextChain is the next chained-prompt sub-index to run. Only set
	// for ResumeFromChain.
	NextChain int

	// SessionID and MonitoringID identify the engine session to
	// resume. Set for ResumeFromChain and ResumeFromCrash.
	SessionID    string
	MonitoringID int
}

// ComputeResume derives the resume point from a tracking snapshot.
// Passing nil means no tracking file existed.
//
// The rules apply in order:
//  1. missing tracking, or resumeFromLastStep false, starts fresh
//  2. the lowest step with chain progress and no completion time
//     resumes at its next chain
//  3. the highest started step without a completion time resumes its
//     crashed session
//  4. otherwise the run continues after the highest completed index
func ComputeResume(t *Tracking) Resume {
	if t == nil || !t.ResumeFromLastStep {
		return Resume{Kind: StartFresh}
	}

	indices := make([]int, 0, len(t.CompletedSteps))
	for idx := range t.CompletedSteps {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	for _, idx := range indices {
		rec := t.CompletedSteps[idx]
		if len(rec.CompletedChains) > 0 && !rec.Completed() {
			return Resume{
				Kind:         ResumeFromChain,
				StepIndex:    idx,
				NextChain:    maxInt(rec.CompletedChains) + 1,
				SessionID:    rec.SessionID,
				MonitoringID: rec.MonitoringID,
			}
		}
	}

	highestStarted := -1
	for _, idx := range indices {
		if t.CompletedSteps[idx].Started() {
			highestStarted = idx
		}
	}
	if highestStarted >= 0 {
		rec := t.CompletedSteps[highestStarted]
		if !rec.Completed() {
			return Resume{
				Kind:         ResumeFromCrash,
				StepIndex:    highestStarted,
				SessionID:    rec.SessionID,
				MonitoringID: rec.MonitoringID,
			}
		}
	}

	highestCompleted := -1
	for _, idx := range indices {
		if t.CompletedSteps[idx].Completed() && idx > highestCompleted {
			highestCompleted = idx
		}
	}
	return Resume{Kind: ContinueAfterCompleted, StepIndex: highestCompleted + 1}
}

func maxInt(xs []int) int {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}
