package runner

import (
	"errors"
	"fmt"

	"github.com/codemachine-ai/codemachine/internal/directive"
	"github.com/codemachine-ai/codemachine/internal/engine"
	"github.com/codemachine-ai/codemachine/internal/input"
	"github.com/codemachine-ai/codemachine/internal/session"
	"github.com/codemachine-ai/codemachine/internal/workflow"
)

// The three mode handlers below run the subprocess side of a single step.
// Which one a step gets is decided by its resolved scenario: interactive
// steps wait on the active input provider between engine runs, autonomous
// steps replay their whole prompt queue unattended, and continuous steps
// launch once and advance. Directive evaluation happens after the handler
// returns; the autonomous handler additionally peeks at directives between
// prompts so an agent can cut the replay short.

// runInteractive launches the next queued prompt, then loops on the active
// input provider: free text feeds back into the engine session, an empty
// submit advances the queue, and advancing past the end finishes the step.
func (r *Runner) runInteractive(sess *session.Session, eng engine.Engine) error {
	ctx := sess.Context()

	// The first queued prompt launches without waiting; input is
	// gathered between runs.
	if p, chain, ok := sess.NextPrompt(); ok {
		if err := r.launch(sess, eng, p.Content); err != nil {
			return err
		}
		if err := r.cfg.Tracker.MarkChainCompleted(sess.Index(), chain); err != nil {
			return fmt.Errorf("recording chain %d: %w", chain, err)
		}
	}

	for {
		if err := r.gate.wait(ctx); err != nil {
			return err
		}

		delegated := r.mode.AutoMode() && !r.mode.Paused()
		enter, exit := workflow.EventWaitForInput, workflow.EventInputReceived
		if delegated {
			enter, exit = workflow.EventEnterAuto, workflow.EventExitAuto
		}

		r.cfg.Emitter.InputStateEvent(sess.UID(), sess.InputState(true))
		r.fire(enter)
		res, err := r.mode.Active().AwaitInput(ctx, r.stepContext(sess))
		r.fire(exit)

		if errors.Is(err, input.ErrDeactivated) {
			// The other provider took over mid-wait; ask it instead.
			continue
		}
		r.cfg.Emitter.InputStateEvent(sess.UID(), sess.InputState(false))
		if err != nil {
			return err
		}

		if res.ModeSwitch() {
			r.setAutoMode(res.Mode == input.SwitchToAuto)
			continue
		}

		if res.Text == "" {
			if res.Source == input.SourceUser {
				// The user moved the workflow forward by hand;
				// whatever the agent asked for is overridden.
				if err := r.cfg.Directives.Reset(); err != nil {
					r.logger.Warn("resetting directive on advance", "error", err)
				}
			}
			p, chain, ok := sess.NextPrompt()
			if !ok {
				return nil
			}
			if err := r.launch(sess, eng, p.Content); err != nil {
				return err
			}
			if err := r.cfg.Tracker.MarkChainCompleted(sess.Index(), chain); err != nil {
				return fmt.Errorf("recording chain %d: %w", chain, err)
			}
			continue
		}

		// Free-text instruction: feed it into the session without
		// consuming the queue.
		if err := r.launch(sess, eng, res.Text); err != nil {
			return err
		}
	}
}

// runAutonomous replays the session's prompt queue back-to-back under one
// engine session. Directives are checked between prompts so a loop, stop
// or error written mid-chain ends the replay early; the runner re-reads
// the same file afterwards and acts on it.
func (r *Runner) runAutonomous(sess *session.Session, eng engine.Engine) error {
	ctx := sess.Context()
	for {
		if err := r.gate.wait(ctx); err != nil {
			return err
		}
		p, chain, ok := sess.NextPrompt()
		if !ok {
			return nil
		}
		if err := r.launch(sess, eng, p.Content); err != nil {
			return err
		}
		if err := r.cfg.Tracker.MarkChainCompleted(sess.Index(), chain); err != nil {
			return fmt.Errorf("recording chain %d: %w", chain, err)
		}
		if sess.Remaining() == 0 {
			return nil
		}

		d := r.cfg.Directives.Read()
		dec := directive.Evaluate(sess.Step().BehaviorSpec(), d, r.evalContext(sess.Index()))
		if dec.Kind != directive.DecisionAdvance {
			r.logger.Info("directive interrupts autonomous replay",
				"step", sess.UID(),
				"action", d.Action,
				"remaining", sess.Remaining(),
			)
			return nil
		}
	}
}

// runContinuous launches the single queued prompt and advances
// immediately. Steps with nothing queued complete vacuously.
func (r *Runner) runContinuous(sess *session.Session, eng engine.Engine) error {
	p, chain, ok := sess.NextPrompt()
	if !ok {
		r.logger.Debug("continuous step has no prompts", "step", sess.UID())
		return nil
	}
	if err := r.launch(sess, eng, p.Content); err != nil {
		return err
	}
	if err := r.cfg.Tracker.MarkChainCompleted(sess.Index(), chain); err != nil {
		return fmt.Errorf("recording chain %d: %w", chain, err)
	}
	return nil
}

// ------- helpers -------

// launch runs one engine invocation inside the step's session, streaming
// output to the session buffer and the log plane. Once a session id is
// known the invocation resumes the existing conversation instead of
// opening a new one, and tracking is updated with the identity so a crash
// can pick the conversation back up.
func (r *Runner) launch(sess *session.Session, eng engine.Engine, text string) error {
	step := sess.Step()
	uid := sess.UID()

	opts := engine.RunOptions{
		WorkDir:         r.cfg.WorkDir,
		Model:           step.Model,
		ReasoningEffort: step.ModelReasoningEffort,
		Timeout:         r.cfg.RunTimeout,
		OnStdout: func(chunk string) {
			sess.AppendOutput(chunk)
			r.cfg.Emitter.AgentLogEvent(uid, chunk)
		},
		OnStderr: func(chunk string) {
			r.cfg.Emitter.AgentLogEvent(uid, chunk)
		},
	}
	if resume := sess.EngineSessionID(); resume != "" {
		opts.ResumeSessionID = resume
		opts.ResumePrompt = text
	} else {
		opts.Prompt = text
	}

	res, err := eng.Run(sess.Context(), opts)
	if err != nil {
		return fmt.Errorf("engine %s: %w", eng.ID(), err)
	}

	sess.SetEngineSession(res.SessionID)
	if err := r.cfg.Tracker.MarkStepStarted(sess.Index(), sess.EngineSessionID(), sess.MonitoringID()); err != nil {
		return fmt.Errorf("recording session for step %d: %w", sess.Index(), err)
	}
	if !res.Success() {
		return fmt.Errorf("engine %s exited with code %d", eng.ID(), res.ExitCode)
	}
	return nil
}

// stepContext packages what a provider needs to prompt for input on this
// step.
func (r *Runner) stepContext(sess *session.Session) input.StepContext {
	step := sess.Step()
	sc := input.StepContext{
		AgentID:      step.AgentID,
		AgentName:    step.AgentName,
		StepIndex:    sess.Index(),
		MonitoringID: sess.MonitoringID(),
		Remaining:    sess.Remaining(),
		Output:       sess.Output(),
	}
	if q, idx := sess.Queue(), sess.QueueIndex(); idx < len(q) {
		sc.NextPrompt = q[idx].Label
	}
	return sc
}
