// Package runner drives a workflow template from its first executable step
// to a terminal state: it opens a session per step, launches the step's
// engine through the selected mode handler, evaluates the directive the
// agent left behind, and moves the cursor accordingly. Pause, skip, stop,
// mode-change and error signals steer the loop from the outside.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/codemachine-ai/codemachine/internal/bus"
	"github.com/codemachine-ai/codemachine/internal/directive"
	"github.com/codemachine-ai/codemachine/internal/engine"
	"github.com/codemachine-ai/codemachine/internal/input"
	"github.com/codemachine-ai/codemachine/internal/logging"
	"github.com/codemachine-ai/codemachine/internal/prompt"
	"github.com/codemachine-ai/codemachine/internal/session"
	"github.com/codemachine-ai/codemachine/internal/tracking"
	"github.com/codemachine-ai/codemachine/internal/workflow"
)

// Failure codes carried on runner errors and workflow:error signals.
const (
	// CodeStartupFailure marks a workflow that never got off the ground:
	// missing prompt files or a missing engine binary.
	CodeStartupFailure = "CM-E101"

	// CodeRuntimeFailure marks every other workflow failure.
	CodeRuntimeFailure = "CM-E100"
)

// Config wires a Runner. Template, Tracker, Directives, Prompts, Engines,
// Signals and Emitter are required; everything else has a usable default.
type Config struct {
	Template  *workflow.Template
	Registry  *workflow.Registry
	Selection workflow.Selection

	// Autonomous starts the run with input delegated to the controller
	// agent. Ignored when the template does not allow delegation.
	Autonomous bool

	ProjectName string

	// WorkDir is the directory agent subprocesses run in. WorkflowDir is
	// the state root MCP configuration is written under; it defaults to
	// <WorkDir>/.codemachine.
	WorkDir     string
	WorkflowDir string

	// RunTimeout bounds a single engine invocation. Zero means the
	// engine default.
	RunTimeout time.Duration

	Tracker    *tracking.Manager
	Directives *directive.Store
	Prompts    prompt.Source
	Engines    *engine.Selector
	Signals    *bus.SignalBus
	Emitter    *bus.Emitter

	// UserInput and Controller override the providers built at startup.
	// Tests inject scripted ones here.
	UserInput  input.Provider
	Controller input.Provider
}

func (c Config) validate() error {
	switch {
	case c.Template == nil:
		return errors.New("runner: template is required")
	case c.Tracker == nil:
		return errors.New("runner: tracking manager is required")
	case c.Directives == nil:
		return errors.New("runner: directive store is required")
	case c.Prompts == nil:
		return errors.New("runner: prompt source is required")
	case c.Engines == nil:
		return errors.New("runner: engine selector is required")
	case c.Signals == nil:
		return errors.New("runner: signal bus is required")
	case c.Emitter == nil:
		return errors.New("runner: event emitter is required")
	}
	return nil
}

// loopState records an in-progress loop rewind. Steps whose agent id is in
// skip are passed over until the cursor reaches the looping step again.
type loopState struct {
	origin int
	skip   map[string]bool
}

// Runner executes one workflow run. It is single-use: construct, Run once,
// discard.
type Runner struct {
	cfg     Config
	steps   []workflow.Step
	machine *workflow.Machine
	mode    *input.Mode
	gate    *pauseGate
	logger  *log.Logger

	// Loop-goroutine state; only Run's goroutine touches these.
	iterations    map[int]int
	loop          *loopState
	triggers      []string
	pendingResume *tracking.Resume
	mcp           map[string]engine.Engine

	stopping atomic.Bool

	mu         sync.Mutex
	current    *session.Session
	failReason string
	lastStatus bus.WorkflowStatus
}

// New builds a Runner for one run of cfg.Template. The template is
// normalized against the registry and its steps filtered down to
// cfg.Selection before the first step executes.
func New(cfg Config) (*Runner, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Registry == nil {
		cfg.Registry = workflow.DefaultRegistry
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}
	if cfg.WorkflowDir == "" {
		cfg.WorkflowDir = filepath.Join(cfg.WorkDir, ".codemachine")
	}
	if err := cfg.Registry.Normalize(cfg.Template); err != nil {
		return nil, fmt.Errorf("normalizing template %q: %w", cfg.Template.Name, err)
	}

	return &Runner{
		cfg:        cfg,
		steps:      workflow.FilterSteps(cfg.Template.Steps, cfg.Selection),
		machine:    workflow.NewMachine(),
		gate:       newPauseGate(),
		logger:     logging.New("runner"),
		iterations: make(map[int]int),
		mcp:        make(map[string]engine.Engine),
	}, nil
}

// Run executes the workflow until it completes, is stopped, or fails.
// A nil return means the run ended cleanly: every step advanced past the
// end of the list, or the user (or an agent directive) stopped it.
func (r *Runner) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsubscribe := r.machine.Subscribe(r.emitWorkflowStatus)
	defer unsubscribe()

	sel := r.cfg.Selection
	if err := r.cfg.Tracker.Initialize(r.cfg.Template.Name, r.cfg.ProjectName, sel.Track, sel.Conditions, r.cfg.Autonomous); err != nil {
		return r.failEarly(fmt.Errorf("initializing tracking: %w", err))
	}

	r.fire(workflow.EventStart)

	if workflow.ExecutableCount(r.steps) == 0 {
		r.logger.Info("workflow has no executable steps", "template", r.cfg.Template.Name)
		r.fire(workflow.EventComplete)
		return nil
	}

	r.buildMode(runCtx)
	defer r.mode.Close()

	start := r.applyResume()
	r.announcePlan(start)

	r.logger.Info("workflow starting",
		"template", r.cfg.Template.Name,
		"steps", workflow.ExecutableCount(r.steps),
		"start", start,
		"autonomous", r.mode.AutoMode(),
	)

	stopDispatch := r.dispatchSignals(runCtx)
	out := r.runLoop(runCtx, start)
	stopDispatch()

	r.cleanupMCP()

	switch {
	case out.err != nil:
		failure := classify(out.err)
		r.logger.Error("workflow failed", "error", failure)
		r.fire(workflow.EventFail)
		r.cfg.Signals.Emit(bus.Signal{Name: bus.SignalError, Reason: failure.Error()})
		return failure
	case out.stopped:
		r.logger.Info("workflow stopped")
		r.fire(workflow.EventStop)
		return nil
	default:
		r.logger.Info("workflow complete", "template", r.cfg.Template.Name)
		r.fire(workflow.EventComplete)
		return nil
	}
}

// ------- main loop -------

// loopOutcome is how the step loop ended.
type loopOutcome struct {
	err     error
	stopped bool
}

func (r *Runner) runLoop(ctx context.Context, start int) loopOutcome {
	i := start
	for i < len(r.steps) || len(r.triggers) > 0 {
		if err := r.gate.wait(ctx); err != nil {
			return r.interrupted(err)
		}
		if r.stopping.Load() {
			return loopOutcome{stopped: true}
		}
		if reason := r.externalFailure(); reason != "" {
			return loopOutcome{err: errors.New(reason)}
		}
		if err := ctx.Err(); err != nil {
			return r.interrupted(err)
		}

		index, triggered, ok := r.nextWork(&i)
		if !ok {
			continue
		}

		out, err := r.executeStep(ctx, index)
		if err != nil {
			return loopOutcome{err: err}
		}
		if out.stopped {
			return loopOutcome{stopped: true}
		}
		if out.skipped {
			if !triggered {
				i++
			}
			continue
		}

		if done, final := r.applyDecision(&i, index, triggered, out.decision); done {
			return final
		}
	}
	return loopOutcome{}
}

// nextWork picks the next execution: a queued trigger target when one is
// pending, otherwise the step under the cursor. Skip rules consume cursor
// positions without executing; ok=false means re-loop.
func (r *Runner) nextWork(i *int) (index int, triggered, ok bool) {
	if len(r.triggers) > 0 {
		target := r.triggers[0]
		r.triggers = r.triggers[1:]
		idx, found := r.stepIndexForAgent(target, *i)
		if !found {
			r.logger.Warn("trigger target has no step in this workflow", "agent", target)
			return 0, false, false
		}
		r.logger.Info("running triggered agent", "agent", target, "step", idx)
		return idx, true, true
	}

	idx := *i
	step := r.steps[idx]

	// A rewind is over once the cursor is back at the step that asked
	// for it.
	if r.loop != nil && idx >= r.loop.origin {
		r.loop = nil
	}

	if step.Separator {
		*i++
		return 0, false, false
	}
	if r.loop != nil && r.loop.skip[step.AgentID] {
		r.logger.Info("skipping step during loop replay", "step", step.UID(idx))
		r.cfg.Emitter.AgentStatusEvent(step.UID(idx), bus.AgentSkipped)
		*i++
		return 0, false, false
	}
	if step.ExecuteOnce {
		done, err := r.cfg.Tracker.IsStepCompleted(idx)
		if err == nil && done {
			r.logger.Info("skipping execute-once step", "step", step.UID(idx))
			r.cfg.Emitter.AgentStatusEvent(step.UID(idx), bus.AgentCompleted)
			*i++
			return 0, false, false
		}
	}
	return idx, false, true
}

// stepOutcome is what one step execution asks the loop to do next.
type stepOutcome struct {
	decision directive.Decision
	skipped  bool // the user skipped the step mid-flight
	stopped  bool // a stop arrived while the step ran
}

// executeStep runs the step at index through its scenario's mode handler
// and returns the evaluated directive decision.
func (r *Runner) executeStep(ctx context.Context, index int) (stepOutcome, error) {
	step := r.steps[index]

	sess := session.Open(ctx, step, index)
	defer sess.Close()
	r.setCurrent(sess)
	defer r.setCurrent(nil)

	uid := sess.UID()

	if err := sess.LoadPrompts(r.cfg.Prompts); err != nil {
		r.cfg.Emitter.AgentStatusEvent(uid, bus.AgentFailed)
		return stepOutcome{}, fmt.Errorf("loading prompts for %s: %w", uid, err)
	}

	if res := r.takeResume(index); res != nil {
		sess.AdoptIdentity(res.SessionID, res.MonitoringID)
		if res.Kind == tracking.ResumeFromChain {
			sess.SkipToChain(res.NextChain)
		}
		r.logger.Info("resuming step",
			"step", uid,
			"kind", res.Kind,
			"session", res.SessionID,
			"chain", sess.QueueIndex(),
		)
	}

	if err := r.cfg.Tracker.MarkStepStarted(index, sess.EngineSessionID(), sess.MonitoringID()); err != nil {
		return stepOutcome{}, fmt.Errorf("marking step %d started: %w", index, err)
	}

	eng, err := r.cfg.Engines.Select(ctx, step.Engine)
	if err != nil {
		r.cfg.Emitter.AgentStatusEvent(uid, bus.AgentFailed)
		return stepOutcome{}, fmt.Errorf("selecting engine for %s: %w", uid, err)
	}
	r.ensureMCP(eng)

	sc := workflow.ResolveScenario(step.Interactive, r.mode.AutoMode(), sess.HasChainedPrompts())
	if sc.WasForced {
		r.logger.Warn("step requested no interaction outside autonomous mode, waiting for input anyway",
			"step", uid, "scenario", sc.Number)
	}

	r.iterations[index]++
	r.cfg.Emitter.AgentStatusEvent(uid, bus.AgentRunning)
	r.logger.Info("executing step",
		"step", uid,
		"engine", eng.ID(),
		"scenario", sc.Number,
		"mode", sc.Mode(),
		"iteration", r.iterations[index],
	)

	var runErr error
	switch sc.Mode() {
	case workflow.ModeAutonomous:
		runErr = r.runAutonomous(sess, eng)
	case workflow.ModeContinuous:
		runErr = r.runContinuous(sess, eng)
	default:
		runErr = r.runInteractive(sess, eng)
	}

	if runErr != nil {
		switch {
		case r.externalFailure() != "":
			r.cfg.Emitter.AgentStatusEvent(uid, bus.AgentFailed)
			return stepOutcome{}, errors.New(r.externalFailure())
		case sess.Skipped():
			r.logger.Info("step skipped by user", "step", uid)
			r.cfg.Emitter.AgentStatusEvent(uid, bus.AgentSkipped)
			return stepOutcome{skipped: true}, nil
		case r.stopping.Load() || errors.Is(runErr, input.ErrAborted):
			r.logger.Info("step interrupted by stop", "step", uid)
			r.cfg.Emitter.AgentStatusEvent(uid, bus.AgentSkipped)
			return stepOutcome{stopped: true}, nil
		case ctx.Err() != nil:
			// Parent context cancelled without an explicit stop:
			// same clean teardown.
			return stepOutcome{stopped: true}, nil
		default:
			r.cfg.Emitter.AgentStatusEvent(uid, bus.AgentFailed)
			return stepOutcome{}, fmt.Errorf("step %s: %w", uid, runErr)
		}
	}

	d := r.cfg.Directives.Read()
	dec := directive.Evaluate(step.BehaviorSpec(), d, r.evalContext(index))
	if d.Action != directive.ActionContinue {
		// Directives are single-shot: once read and acted on, the file
		// goes back to continue so stale actions cannot re-fire on a
		// later step.
		if err := r.cfg.Directives.Reset(); err != nil {
			r.logger.Warn("resetting directive file", "error", err)
		}
		r.logger.Info("directive evaluated",
			"step", uid,
			"action", d.Action,
			"decision", dec.Kind,
			"reason", dec.Reason,
		)
	}
	return stepOutcome{decision: dec}, nil
}

// applyDecision moves the cursor according to the winning decision.
// done=true ends the loop with the returned outcome. Triggered executions
// never move the cursor: their originating step already advanced it.
func (r *Runner) applyDecision(i *int, index int, triggered bool, dec directive.Decision) (bool, loopOutcome) {
	step := r.steps[index]
	uid := step.UID(index)

	switch dec.Kind {
	case directive.DecisionLoop:
		target := index - dec.StepsBack
		if target < 0 {
			target = 0
		}
		r.beginRewind(index, target)
		r.cfg.Emitter.AgentStatusEvent(uid, bus.AgentRetrying)
		r.logger.Info("looping back",
			"step", uid,
			"target", target,
			"iteration", r.iterations[index],
			"reason", dec.Reason,
		)
		*i = target

	case directive.DecisionTrigger:
		r.completeStep(index, uid)
		r.triggers = append(r.triggers, dec.TriggerAgentID)
		r.logger.Info("trigger queued", "step", uid, "agent", dec.TriggerAgentID)
		if !triggered {
			*i = index + 1
		}

	case directive.DecisionPause:
		r.completeStep(index, uid)
		r.pause(reasonOr(dec.Reason, "agent requested pause"))
		if !triggered {
			*i = index + 1
		}

	case directive.DecisionCheckpoint:
		r.completeStep(index, uid)
		r.cfg.Emitter.CheckpointEvent(uid, dec.Reason)
		r.pause(reasonOr(dec.Reason, "checkpoint reached"))
		if !triggered {
			*i = index + 1
		}

	case directive.DecisionStop:
		r.completeStep(index, uid)
		r.logger.Info("stop requested by agent", "step", uid, "reason", dec.Reason)
		return true, loopOutcome{stopped: true}

	case directive.DecisionError:
		r.cfg.Emitter.AgentStatusEvent(uid, bus.AgentFailed)
		return true, loopOutcome{err: fmt.Errorf("agent reported failure at %s: %s", uid, reasonOr(dec.Reason, "no reason given"))}

	default: // advance
		r.completeStep(index, uid)
		if dec.Reason != "" {
			r.logger.Info("advancing", "step", uid, "reason", dec.Reason)
		}
		if !triggered {
			*i = index + 1
		}
	}
	return false, loopOutcome{}
}

// ------- decision plumbing -------

// beginRewind clears progress for the rewound range and arms the loop's
// skip list. Steps that will not replay keep their progress: separators
// have none, execute-once steps stay skipped, and skip-listed agents are
// passed over.
func (r *Runner) beginRewind(from, target int) {
	skip := make(map[string]bool)
	if b := r.steps[from].BehaviorSpec(); b != nil {
		for _, id := range b.Skip {
			skip[id] = true
		}
	}

	for idx := target; idx <= from; idx++ {
		step := r.steps[idx]
		if step.Separator || step.ExecuteOnce || skip[step.AgentID] {
			continue
		}
		if err := r.cfg.Tracker.ClearChains(idx, idx); err != nil {
			r.logger.Warn("clearing chain progress", "step", idx, "error", err)
		}
		if err := r.cfg.Tracker.ClearCompletion(idx, idx); err != nil {
			r.logger.Warn("clearing completion", "step", idx, "error", err)
		}
	}

	r.loop = &loopState{origin: from, skip: skip}
}

// stepIndexForAgent resolves the step a triggered agent runs as: the
// nearest step with that agent id before the cursor, else the first one
// after it.
func (r *Runner) stepIndexForAgent(agentID string, cursor int) (int, bool) {
	for idx := min(cursor-1, len(r.steps)-1); idx >= 0; idx-- {
		if !r.steps[idx].Separator && r.steps[idx].AgentID == agentID {
			return idx, true
		}
	}
	for idx := cursor; idx < len(r.steps); idx++ {
		if !r.steps[idx].Separator && r.steps[idx].AgentID == agentID {
			return idx, true
		}
	}
	return 0, false
}

func (r *Runner) completeStep(index int, uid string) {
	if err := r.cfg.Tracker.MarkStepCompleted(index); err != nil {
		r.logger.Warn("marking step completed", "step", uid, "error", err)
	}
	r.cfg.Emitter.AgentStatusEvent(uid, bus.AgentCompleted)
}

func (r *Runner) evalContext(index int) directive.EvalContext {
	return directive.EvalContext{
		StepIndex:  index,
		Iterations: r.iterations[index],
		KnownAgent: r.cfg.Registry.HasAgent,
	}
}

// takeResume hands the one-shot resume identity to the step that owns it.
func (r *Runner) takeResume(index int) *tracking.Resume {
	if r.pendingResume == nil || r.pendingResume.StepIndex != index {
		return nil
	}
	res := r.pendingResume
	r.pendingResume = nil
	return res
}

// failEarly handles failures before the step loop starts: same terminal
// ceremony as a loop failure, minus the teardown the loop never set up.
func (r *Runner) failEarly(err error) error {
	failure := classify(err)
	r.logger.Error("workflow failed to start", "error", failure)
	r.fire(workflow.EventFail)
	r.cfg.Signals.Emit(bus.Signal{Name: bus.SignalError, Reason: failure.Error()})
	return failure
}

// interrupted maps a context cancellation to the loop outcome it stands
// for: an external error if one was signalled, a clean stop otherwise.
func (r *Runner) interrupted(err error) loopOutcome {
	if reason := r.externalFailure(); reason != "" {
		return loopOutcome{err: errors.New(reason)}
	}
	r.logger.Info("workflow interrupted", "error", err)
	return loopOutcome{stopped: true}
}

// ------- startup -------

// buildMode assembles the input layer: the user provider, and when the
// template allows delegation, a controller provider resumed from any
// persisted controller session.
func (r *Runner) buildMode(ctx context.Context) {
	user := r.cfg.UserInput
	if user == nil {
		user = input.NewUserProvider()
	}

	controller := r.cfg.Controller
	if controller == nil && r.cfg.Template.DelegationAllowed() {
		controller = r.buildController(ctx)
	}

	auto := r.cfg.Autonomous && r.cfg.Template.DelegationAllowed()
	r.mode = input.NewMode(user, controller, r.cfg.Emitter, auto)
}

func (r *Runner) buildController(ctx context.Context) input.Provider {
	eng, err := r.cfg.Engines.Select(ctx, "")
	if err != nil {
		r.logger.Warn("no engine available for the controller agent, delegation disabled", "error", err)
		return nil
	}

	agentID := r.cfg.Template.Controller
	cs := input.ControllerSession{
		AgentID:      agentID,
		MonitoringID: session.MonitoringID(agentID),
	}
	if t, err := r.cfg.Tracker.Load(); err == nil && t != nil && t.ControllerConfig != nil {
		cs.SessionID = t.ControllerConfig.SessionID
		if t.ControllerConfig.MonitoringID != 0 {
			cs.MonitoringID = t.ControllerConfig.MonitoringID
		}
	}

	return input.NewControllerProvider(eng, r.cfg.WorkDir, cs, func(updated input.ControllerSession) {
		cc := tracking.ControllerConfig{
			AgentID:      updated.AgentID,
			SessionID:    updated.SessionID,
			MonitoringID: updated.MonitoringID,
		}
		if err := r.cfg.Tracker.SetControllerConfig(cc); err != nil {
			r.logger.Warn("persisting controller session", "error", err)
		}
	})
}

// applyResume reads the persisted run state and positions the cursor.
// Crash and chain resumes also stash the session identity for the step
// that owns it.
func (r *Runner) applyResume() int {
	res, err := r.cfg.Tracker.ResumeInfo()
	if err != nil {
		r.logger.Warn("reading resume state, starting fresh", "error", err)
		return 0
	}
	switch res.Kind {
	case tracking.ResumeFromCrash, tracking.ResumeFromChain:
		r.pendingResume = &res
		r.logger.Info("resuming workflow",
			"kind", res.Kind,
			"step", res.StepIndex,
			"session", res.SessionID,
		)
		return res.StepIndex
	case tracking.ContinueAfterCompleted:
		if res.StepIndex > 0 {
			r.logger.Info("continuing after completed steps", "step", res.StepIndex)
		}
		return res.StepIndex
	default:
		return 0
	}
}

// announcePlan emits the pending roster so a UI can draw the board before
// the first step runs.
func (r *Runner) announcePlan(from int) {
	for idx := from; idx < len(r.steps); idx++ {
		if r.steps[idx].Separator {
			continue
		}
		r.cfg.Emitter.AgentStatusEvent(r.steps[idx].UID(idx), bus.AgentPending)
	}
}

// ------- signal handling -------

// dispatchSignals subscribes to the workflow's control signals and
// translates them to state transitions and cancellations. The returned
// function tears the listener down; the runner calls it the moment the
// loop reaches a terminal state.
func (r *Runner) dispatchSignals(ctx context.Context) func() {
	ch, cancelSub := r.cfg.Signals.Subscribe(
		bus.SignalPause,
		bus.SignalSkip,
		bus.SignalStop,
		bus.SignalModeChange,
		bus.SignalError,
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-ch:
				if !ok {
					return
				}
				r.handleSignal(sig)
			}
		}
	}()

	return func() {
		cancelSub()
		<-done
	}
}

func (r *Runner) handleSignal(sig bus.Signal) {
	switch sig.Name {
	case bus.SignalPause:
		// A single signal toggles: pausing a paused workflow resumes it.
		if r.machine.Paused() {
			r.resume()
		} else {
			r.pause(reasonOr(sig.Reason, "paused by user"))
		}
	case bus.SignalSkip:
		r.skipCurrent()
	case bus.SignalStop:
		r.requestStop()
	case bus.SignalModeChange:
		r.setAutoMode(sig.AutonomousMode)
	case bus.SignalError:
		r.failExternally(sig.Reason)
	}
}

// pause blocks the loop's gate and parks the state machine. The matching
// resume arrives through the signal dispatcher.
func (r *Runner) pause(reason string) {
	r.fire(workflow.EventPause)
	if r.mode != nil {
		r.mode.Pause(reason)
	}
	r.gate.pause()
	r.logger.Info("workflow paused", "reason", reason)
}

func (r *Runner) resume() {
	r.fire(workflow.EventResume)
	if r.mode != nil {
		r.mode.Resume()
	}
	r.gate.resume()
	r.logger.Info("workflow resumed")
}

// setAutoMode flips delegated input and persists the choice so the next
// run starts in the same mode.
func (r *Runner) setAutoMode(auto bool) {
	if auto && !r.cfg.Template.DelegationAllowed() {
		r.logger.Warn("template does not allow delegated mode", "template", r.cfg.Template.Name)
		return
	}
	if r.mode == nil || !r.mode.SetAutoMode(auto) {
		return
	}
	if err := r.cfg.Tracker.SetAutonomousMode(auto); err != nil {
		r.logger.Warn("persisting autonomous mode", "error", err)
	}
}

// skipCurrent cancels the running step's session. The step unwinds as
// skipped and the loop advances past it.
func (r *Runner) skipCurrent() {
	r.mu.Lock()
	sess := r.current
	r.mu.Unlock()
	if sess == nil {
		r.logger.Debug("skip signal with no step running")
		return
	}
	r.logger.Info("skip requested", "step", sess.UID())
	sess.Skip()
}

// requestStop flags the run as stopping and cancels whatever is in
// flight, including a pause the loop may be parked in.
func (r *Runner) requestStop() {
	if !r.stopping.CompareAndSwap(false, true) {
		return
	}
	r.logger.Info("stop requested")
	r.gate.resume()
	r.mu.Lock()
	sess := r.current
	r.mu.Unlock()
	if sess != nil {
		sess.Close()
	}
}

// failExternally records an error delivered over the signal bus and
// unwinds the run.
func (r *Runner) failExternally(reason string) {
	if reason == "" {
		reason = "error signal received"
	}
	r.mu.Lock()
	if r.failReason == "" {
		r.failReason = reason
	}
	sess := r.current
	r.mu.Unlock()
	r.gate.resume()
	if sess != nil {
		sess.Close()
	}
}

func (r *Runner) externalFailure() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failReason
}

func (r *Runner) setCurrent(sess *session.Session) {
	r.mu.Lock()
	r.current = sess
	r.mu.Unlock()
}

// ------- state machine plumbing -------

// fire applies a bookkeeping state machine event. Cross-cutting signals
// can land at any moment, so an event the current state no longer accepts
// is logged and dropped rather than treated as a fault.
func (r *Runner) fire(ev workflow.Event) {
	if err := r.machine.Fire(ev); err != nil {
		r.logger.Debug("state machine rejected event", "event", ev, "error", err)
	}
}

// emitWorkflowStatus forwards machine transitions to the event plane,
// deduping the live states that all render as running.
func (r *Runner) emitWorkflowStatus(tr workflow.Transition) {
	status := workflowStatusFor(tr.To)
	r.mu.Lock()
	if status == r.lastStatus {
		r.mu.Unlock()
		return
	}
	r.lastStatus = status
	r.mu.Unlock()
	r.cfg.Emitter.WorkflowStatusEvent(status)
}

func workflowStatusFor(s workflow.Status) bus.WorkflowStatus {
	switch s {
	case workflow.StatusIdle:
		return bus.WorkflowIdle
	case workflow.StatusPaused:
		return bus.WorkflowPaused
	case workflow.StatusFinal:
		return bus.WorkflowCompleted
	case workflow.StatusError:
		return bus.WorkflowError
	default:
		return bus.WorkflowRunning
	}
}

// ------- MCP lifecycle -------

// ensureMCP writes the engine's directive-channel configuration once per
// engine per run. Failures degrade the agent's steering but not the run.
func (r *Runner) ensureMCP(eng engine.Engine) {
	if _, done := r.mcp[eng.ID()]; done {
		return
	}
	if err := eng.ConfigureMCP(r.cfg.WorkflowDir); err != nil {
		r.logger.Warn("configuring MCP", "engine", eng.ID(), "error", err)
		return
	}
	r.mcp[eng.ID()] = eng
}

func (r *Runner) cleanupMCP() {
	for id, eng := range r.mcp {
		if err := eng.CleanupMCP(r.cfg.WorkflowDir); err != nil {
			r.logger.Warn("cleaning up MCP", "engine", id, "error", err)
		}
	}
}

// ------- helpers -------

// classify wraps err with its failure code: missing files and missing
// binaries are startup failures, everything else is a runtime failure.
func classify(err error) error {
	code := CodeRuntimeFailure
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, exec.ErrNotFound) || errors.Is(err, prompt.ErrNoMatches) {
		code = CodeStartupFailure
	}
	return fmt.Errorf("[%s] %w", code, err)
}

func reasonOr(reason, fallback string) string {
	if reason != "" {
		return reason
	}
	return fallback
}

// pauseGate blocks the runner's suspension points while the workflow is
// paused.
type pauseGate struct {
	mu sync.Mutex
	ch chan struct{} // non-nil while paused; closed on resume
}

func newPauseGate() *pauseGate {
	return &pauseGate{}
}

func (g *pauseGate) pause() {
	g.mu.Lock()
	if g.ch == nil {
		g.ch = make(chan struct{})
	}
	g.mu.Unlock()
}

func (g *pauseGate) resume() {
	g.mu.Lock()
	if g.ch != nil {
		close(g.ch)
		g.ch = nil
	}
	g.mu.Unlock()
}

// wait blocks until the gate is open or ctx fires.
func (g *pauseGate) wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.ch
	g.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
