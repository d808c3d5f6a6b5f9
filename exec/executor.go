// Package exec runs short-lived helper commands (pgrep, ps, kill) behind an
// interface so process discovery can be tested without a real process table.
package exec

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"slices"
	"strings"
	"sync"
)

// CommandExecutor runs a command to completion.
type CommandExecutor interface {
	// Output returns stdout. A non-zero exit is reported as an error that
	// carries the command's stderr.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)

	// Run discards output and reports only the exit status.
	Run(ctx context.Context, name string, args ...string) error
}

// RealExecutor runs commands with os/exec.
type RealExecutor struct{}

// NewRealExecutor returns a RealExecutor.
func NewRealExecutor() *RealExecutor {
	return &RealExecutor{}
}

// Output runs name with args and returns its stdout.
func (e *RealExecutor) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Run runs name with args and waits for it to exit.
func (e *RealExecutor) Run(ctx context.Context, name string, args ...string) error {
	_, err := e.Output(ctx, name, args...)
	return err
}

// MockResponse is the canned result of a mocked command.
type MockResponse struct {
	Stdout []byte
	Err    error
}

// CommandMatcher reports whether a rule applies to a command.
type CommandMatcher func(name string, args []string) bool

type mockRule struct {
	match    CommandMatcher
	response MockResponse
}

// MockCall records one invocation.
type MockCall struct {
	Name string
	Args []string
}

// String renders the call the way a shell would show it.
func (c MockCall) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// MockExecutor answers commands from registered rules, first match wins.
// Unmatched commands go to the fallback, or fail when there is none.
type MockExecutor struct {
	mu       sync.Mutex
	rules    []mockRule
	calls    []MockCall
	fallback CommandExecutor
}

// NewMockExecutor returns a MockExecutor. fallback may be nil.
func NewMockExecutor(fallback CommandExecutor) *MockExecutor {
	return &MockExecutor{fallback: fallback}
}

// AddRule registers a response for commands accepted by match.
func (e *MockExecutor) AddRule(match CommandMatcher, response MockResponse) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, mockRule{match: match, response: response})
}

// AddExactMatch registers a response for name with exactly args.
func (e *MockExecutor) AddExactMatch(name string, args []string, response MockResponse) {
	e.AddRule(func(n string, a []string) bool {
		return n == name && slices.Equal(a, args)
	}, response)
}

// AddPrefixMatch registers a response for name whose args start with prefix.
func (e *MockExecutor) AddPrefixMatch(name string, prefix []string, response MockResponse) {
	e.AddRule(func(n string, a []string) bool {
		return n == name && len(a) >= len(prefix) && slices.Equal(a[:len(prefix)], prefix)
	}, response)
}

// Calls returns a copy of the recorded invocations.
func (e *MockExecutor) Calls() []MockCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.calls)
}

// ClearCalls forgets recorded invocations.
func (e *MockExecutor) ClearCalls() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = nil
}

// lookup records the call and returns the first matching response.
func (e *MockExecutor) lookup(name string, args []string) (MockResponse, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, MockCall{Name: name, Args: slices.Clone(args)})
	for _, r := range e.rules {
		if r.match(name, args) {
			return r.response, true
		}
	}
	return MockResponse{}, false
}

// Output returns the matched response.
func (e *MockExecutor) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if resp, ok := e.lookup(name, args); ok {
		return resp.Stdout, resp.Err
	}
	if e.fallback != nil {
		return e.fallback.Output(ctx, name, args...)
	}
	return nil, fmt.Errorf("mock executor: no rule for %q", MockCall{Name: name, Args: args})
}

// Run returns the matched response's error.
func (e *MockExecutor) Run(ctx context.Context, name string, args ...string) error {
	_, err := e.Output(ctx, name, args...)
	return err
}

var (
	_ CommandExecutor = (*RealExecutor)(nil)
	_ CommandExecutor = (*MockExecutor)(nil)
)

var (
	defaultExecutorMu sync.RWMutex
	defaultExecutor   CommandExecutor = NewRealExecutor()
)

// GetDefaultExecutor returns the package-wide executor.
func GetDefaultExecutor() CommandExecutor {
	defaultExecutorMu.RLock()
	defer defaultExecutorMu.RUnlock()
	return defaultExecutor
}

// SetDefaultExecutor swaps the package-wide executor and returns the previous
// one so tests can restore it.
func SetDefaultExecutor(e CommandExecutor) CommandExecutor {
	defaultExecutorMu.Lock()
	defer defaultExecutorMu.Unlock()
	prev := defaultExecutor
	defaultExecutor = e
	return prev
}
