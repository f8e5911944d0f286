package input

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/codemachine-ai/codemachine/internal/logging"
)

// Slash commands the user can type instead of an instruction.
const (
	cmdAuto   = "/auto"
	cmdManual = "/manual"
)

var (
	promptHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	promptHintStyle   = lipgloss.NewStyle().Faint(true)
)

// UserProvider asks the user for the next instruction through an inline
// bubbletea prompt on the controlling terminal.
type UserProvider struct {
	logger *log.Logger

	mu   sync.Mutex
	gate waitGate

	// teaOptions lets tests redirect the program's input and output
	// away from the real terminal.
	teaOptions []tea.ProgramOption
}

// NewUserProvider returns an inactive user provider.
func NewUserProvider() *UserProvider {
	return &UserProvider{logger: logging.New("input").With("provider", SourceUser)}
}

// Activate marks the provider live.
func (p *UserProvider) Activate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gate.activate()
}

// Deactivate marks the provider dormant and interrupts an in-flight
// AwaitInput.
func (p *UserProvider) Deactivate() {
	p.mu.Lock()
	cancel := p.gate.deactivate()
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// AwaitInput renders the prompt and blocks until the user answers,
// aborts, or the wait is cancelled.
func (p *UserProvider) AwaitInput(ctx context.Context, sc StepContext) (Result, error) {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	p.gate.beginWait(cancel)
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.gate.endWait()
		p.mu.Unlock()
	}()

	opts := append([]tea.ProgramOption{tea.WithContext(waitCtx)}, p.teaOptions...)
	prog := tea.NewProgram(newUserModel(sc), opts...)

	final, err := prog.Run()
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if waitCtx.Err() != nil {
			return Result{}, ErrDeactivated
		}
		return Result{}, fmt.Errorf("input prompt: %w", err)
	}

	m, ok := final.(userModel)
	if !ok || m.aborted {
		return Result{}, ErrAborted
	}

	res := resultFromText(strings.TrimSpace(m.input.Value()), sc.MonitoringID)
	p.logger.Debug("input received", "agent", sc.AgentID, "mode", res.Mode, "empty", res.Text == "")
	return res, nil
}

// resultFromText maps the submitted text onto a Result: slash commands
// become mode switches, everything else is an instruction (or, when
// empty, an advance).
func resultFromText(text string, monitoringID int) Result {
	res := Result{Source: SourceUser, MonitoringID: monitoringID}
	switch text {
	case cmdAuto:
		res.Mode = SwitchToAuto
	case cmdManual:
		res.Mode = SwitchToManual
	default:
		res.Text = text
	}
	return res
}

// userModel is the bubbletea model behind the inline prompt.
type userModel struct {
	input   textinput.Model
	header  string
	hint    string
	done    bool
	aborted bool
}

func newUserModel(sc StepContext) userModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "instruction, or enter to continue"
	ti.Focus()

	name := sc.AgentName
	if name == "" {
		name = sc.AgentID
	}
	header := fmt.Sprintf("%s is waiting for input", name)
	if sc.NextPrompt != "" {
		header += fmt.Sprintf(" (next: %s, %d queued)", sc.NextPrompt, sc.Remaining)
	}

	return userModel{
		input:  ti,
		header: header,
		hint:   "enter continue · /auto delegate · /manual take over · esc abort",
	}
}

func (m userModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m userModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			m.done = true
			return m, tea.Quit
		case tea.KeyCtrlC, tea.KeyEsc:
			m.aborted = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m userModel) View() string {
	if m.done || m.aborted {
		return ""
	}
	return promptHeaderStyle.Render(m.header) + "\n" +
		m.input.View() + "\n" +
		promptHintStyle.Render(m.hint) + "\n"
}
