package engine

import (
	"context"
	"sync"
)

// Compile-time check that Mock implements Engine.
var _ Engine = (*Mock)(nil)

// Mock is a configurable Engine implementation for testing. It records all
// Run calls and supports customizable behavior via builder methods and
// function fields. Safe for concurrent use: auth-cache and selection tests
// hit it from multiple goroutines.
type Mock struct {
	// EngineID is the value returned by ID().
	EngineID string

	// EngineName is the value returned by Name(). Defaults to EngineID.
	EngineName string

	// RunFunc is an optional custom function called by Run. If nil, Run
	// returns a default success result with session id "mock-session".
	RunFunc func(ctx context.Context, opts RunOptions) (*RunResult, error)

	// AuthFunc is an optional custom function called by IsAuthenticated.
	// If nil, Authenticated is returned.
	AuthFunc func(ctx context.Context) bool

	// Authenticated is the value returned by IsAuthenticated when AuthFunc
	// is nil.
	Authenticated bool

	mu        sync.Mutex
	calls     []RunOptions
	authCalls int
	mcpDirs   map[string]bool
}

// NewMock creates a Mock with the given id that is authenticated and
// succeeds on every Run.
func NewMock(id string) *Mock {
	return &Mock{
		EngineID:      id,
		Authenticated: true,
		mcpDirs:       make(map[string]bool),
	}
}

// ID returns the engine identifier.
func (m *Mock) ID() string { return m.EngineID }

// Name returns the display name, falling back to the id.
func (m *Mock) Name() string {
	if m.EngineName != "" {
		return m.EngineName
	}
	return m.EngineID
}

// Run records the call and delegates to RunFunc if set, otherwise returns a
// default success result.
func (m *Mock) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, opts)
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx, opts)
	}
	return &RunResult{ExitCode: 0, SessionID: "mock-session"}, nil
}

// IsAuthenticated counts the probe and delegates to AuthFunc if set,
// otherwise returns Authenticated.
func (m *Mock) IsAuthenticated(ctx context.Context) bool {
	m.mu.Lock()
	m.authCalls++
	m.mu.Unlock()

	if m.AuthFunc != nil {
		return m.AuthFunc(ctx)
	}
	return m.Authenticated
}

// ConfigureMCP records that workflowDir has been configured.
func (m *Mock) ConfigureMCP(workflowDir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mcpDirs == nil {
		m.mcpDirs = make(map[string]bool)
	}
	m.mcpDirs[workflowDir] = true
	return nil
}

// CleanupMCP forgets the configuration for workflowDir.
func (m *Mock) CleanupMCP(workflowDir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.mcpDirs, workflowDir)
	return nil
}

// IsMCPConfigured reports whether ConfigureMCP was called for workflowDir
// without a later CleanupMCP.
func (m *Mock) IsMCPConfigured(workflowDir string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mcpDirs[workflowDir]
}

// Calls returns a snapshot of every RunOptions passed to Run, in order.
func (m *Mock) Calls() []RunOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RunOptions(nil), m.calls...)
}

// AuthCalls returns how many times IsAuthenticated has been invoked.
func (m *Mock) AuthCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authCalls
}

// WithRunFunc sets a custom Run function and returns the receiver for
// method chaining.
func (m *Mock) WithRunFunc(fn func(ctx context.Context, opts RunOptions) (*RunResult, error)) *Mock {
	m.RunFunc = fn
	return m
}

// WithAuth sets the authenticated state and returns the receiver for
// method chaining.
func (m *Mock) WithAuth(authenticated bool) *Mock {
	m.Authenticated = authenticated
	return m
}
