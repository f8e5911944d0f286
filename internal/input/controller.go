package input

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/codemachine-ai/codemachine/internal/engine"
	"github.com/codemachine-ai/codemachine/internal/jsonutil"
	"github.com/codemachine-ai/codemachine/internal/logging"
)

// ErrNoInstruction is returned when the controller's output carries no
// parseable reply. The runner degrades to manual input when it sees it.
var ErrNoInstruction = errors.New("controller reply carried no instruction")

// controllerTimeout bounds one controller round-trip. Deciding "what
// next" is a short exchange, not a work session.
const controllerTimeout = 5 * time.Minute

// maxOutputTail caps how much step output is forwarded to the
// controller. The tail is where agents put their conclusions.
const maxOutputTail = 4000

// ControllerSession identifies the controller agent's conversation so
// every delegation round resumes it instead of starting over.
type ControllerSession struct {
	AgentID      string
	SessionID    string
	MonitoringID int
}

// ControllerProvider answers input waits by delegating to the
// workflow's controller agent: it resumes the controller's session with
// a structured request and mines the reply for the next instruction.
type ControllerProvider struct {
	engine    engine.Engine
	workDir   string
	onSession func(ControllerSession)
	logger    *log.Logger

	mu      sync.Mutex
	gate    waitGate
	session ControllerSession
}

// NewControllerProvider returns a provider driving the controller agent
// through eng in workDir. sess carries the persisted controller session
// when one exists; a zero SessionID makes the first round bootstrap a
// fresh conversation. onSession, when non-nil, is invoked whenever the
// controller's session id changes so the caller can persist it.
func NewControllerProvider(eng engine.Engine, workDir string, sess ControllerSession, onSession func(ControllerSession)) *ControllerProvider {
	return &ControllerProvider{
		engine:    eng,
		workDir:   workDir,
		onSession: onSession,
		session:   sess,
		logger:    logging.New("input").With("provider", SourceController, "agent", sess.AgentID),
	}
}

// Activate marks the provider live.
func (p *ControllerProvider) Activate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gate.activate()
}

// Deactivate marks the provider dormant and interrupts an in-flight
// AwaitInput.
func (p *ControllerProvider) Deactivate() {
	p.mu.Lock()
	cancel := p.gate.deactivate()
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// AwaitInput asks the controller what to do with the awaiting step.
func (p *ControllerProvider) AwaitInput(ctx context.Context, sc StepContext) (Result, error) {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	p.gate.beginWait(cancel)
	sess := p.session
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.gate.endWait()
		p.mu.Unlock()
	}()

	var out strings.Builder
	opts := engine.RunOptions{
		WorkDir: p.workDir,
		Timeout: controllerTimeout,
		OnStdout: func(chunk string) {
			out.WriteString(chunk)
			out.WriteByte('\n')
		},
	}

	request := buildControllerRequest(sc)
	if sess.SessionID == "" {
		opts.Prompt = controllerBriefing + "\n\n" + request
	} else {
		opts.ResumeSessionID = sess.SessionID
		opts.ResumePrompt = request
	}

	p.logger.Debug("delegating input", "step", sc.StepIndex, "agent", sc.AgentID, "resume", sess.SessionID != "")

	res, err := p.engine.Run(waitCtx, opts)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if waitCtx.Err() != nil {
			return Result{}, ErrDeactivated
		}
		return Result{}, fmt.Errorf("controller run: %w", err)
	}
	if !res.Success() {
		return Result{}, fmt.Errorf("controller exited with code %d", res.ExitCode)
	}

	p.recordSession(res.SessionID)

	reply, err := parseControllerReply(out.String())
	if err != nil {
		return Result{}, err
	}
	return p.resultFromReply(reply, sc)
}

// recordSession keeps the freshest controller session id and notifies
// the persistence callback when it changed.
func (p *ControllerProvider) recordSession(id string) {
	if id == "" {
		return
	}
	p.mu.Lock()
	changed := p.session.SessionID != id
	p.session.SessionID = id
	sess := p.session
	p.mu.Unlock()

	if changed && p.onSession != nil {
		p.onSession(sess)
	}
}

func (p *ControllerProvider) resultFromReply(reply controllerReply, sc StepContext) (Result, error) {
	p.mu.Lock()
	monitoringID := p.session.MonitoringID
	p.mu.Unlock()

	res := Result{Source: SourceController, MonitoringID: monitoringID}
	switch reply.Action {
	case controllerActionContinue, "":
		// Advance with the next queued prompt.
	case controllerActionInstruct:
		res.Text = reply.Instruction
	case controllerActionManual:
		res.Mode = SwitchToManual
		p.logger.Info("controller handed control back", "reason", reply.Reason)
	default:
		return Result{}, fmt.Errorf("%w: unknown action %q", ErrNoInstruction, reply.Action)
	}

	p.logger.Debug("controller answered", "step", sc.StepIndex, "action", reply.Action)
	return res, nil
}

// Controller reply actions.
const (
	controllerActionContinue = "continue"
	controllerActionInstruct = "instruct"
	controllerActionManual   = "manual"
)

// controllerReply is the JSON document the controller must end its
// answer with.
type controllerReply struct {
	Action      string `json:"action"`
	Instruction string `json:"instruction,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// controllerRequest is the structured step snapshot sent with every
// delegation round.
type controllerRequest struct {
	AgentID    string `json:"agentId"`
	AgentName  string `json:"agentName,omitempty"`
	StepIndex  int    `json:"stepIndex"`
	NextPrompt string `json:"nextPrompt,omitempty"`
	Remaining  int    `json:"remainingPrompts"`
}

// controllerBriefing opens a fresh controller conversation. Subsequent
// rounds resume the session, so the contract is stated once.
const controllerBriefing = `You are the workflow controller. After each request, reply with exactly one JSON object as the last line of your answer:

{"action": "continue"} to run the next queued prompt unchanged
{"action": "instruct", "instruction": "<text>"} to send <text> to the agent instead
{"action": "manual", "reason": "<why>"} to hand control back to the user`

func buildControllerRequest(sc StepContext) string {
	payload, _ := json.MarshalIndent(controllerRequest{
		AgentID:    sc.AgentID,
		AgentName:  sc.AgentName,
		StepIndex:  sc.StepIndex,
		NextPrompt: sc.NextPrompt,
		Remaining:  sc.Remaining,
	}, "", "  ")

	var b strings.Builder
	b.WriteString("A step is waiting for direction.\n\n")
	b.Write(payload)
	if tail := outputTail(sc.Output); tail != "" {
		b.WriteString("\n\nRecent step output:\n")
		b.WriteString(tail)
	}
	return b.String()
}

// outputTail returns the last maxOutputTail bytes of output, cut at a
// line boundary when possible.
func outputTail(output string) string {
	if len(output) <= maxOutputTail {
		return output
	}
	tail := output[len(output)-maxOutputTail:]
	if nl := strings.IndexByte(tail, '\n'); nl >= 0 && nl < len(tail)-1 {
		tail = tail[nl+1:]
	}
	return tail
}

// parseControllerReply extracts the trailing JSON reply from the
// controller's freeform output.
func parseControllerReply(output string) (controllerReply, error) {
	raw, err := jsonutil.ExtractLast(output)
	if err != nil {
		return controllerReply{}, fmt.Errorf("%w: %v", ErrNoInstruction, err)
	}
	var reply controllerReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return controllerReply{}, fmt.Errorf("%w: %v", ErrNoInstruction, err)
	}
	return reply, nil
}
