// Package scanning provides domain types and interfaces for managing scan runs.
package scanning

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExecutionRequest describes one delegated execution handed to the backend.
// The backend decides which low-level commands to run; this request only
// carries the task framing, the target, and the caller's parameter bag.
type ExecutionRequest struct {
	RunID   uuid.UUID
	Task    string
	Target  string
	Params  json.RawMessage
	Timeout time.Duration
}

// SubInvocation records one low-level command the backend executed while
// servicing a request.
type SubInvocation struct {
	Name     string
	Params   json.RawMessage
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// RawOutput returns the combined stdout and stderr of the sub-invocation.
func (s SubInvocation) RawOutput() string {
	if s.Stderr == "" {
		return s.Stdout
	}
	if s.Stdout == "" {
		return s.Stderr
	}
	return s.Stdout + "\n" + s.Stderr
}

// ExecutionResult is the backend's response for a finished execution.
type ExecutionResult struct {
	Analysis       string
	SubInvocations []SubInvocation
	TokensUsed     int
}

// ExitCode derives the run's exit code from the sub-invocation records:
// zero unless any sub-invocation reported a nonzero exit.
func (r *ExecutionResult) ExitCode() int {
	for _, sub := range r.SubInvocations {
		if sub.ExitCode != 0 {
			return 1
		}
	}
	return 0
}

// CombinedStderr concatenates the stderr of every sub-invocation, one block
// per command, for the run's stderr artifact.
func (r *ExecutionResult) CombinedStderr() string {
	var sb strings.Builder
	for _, sub := range r.SubInvocations {
		if sub.Stderr == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(sub.Stderr)
	}
	return sb.String()
}

// ExecutionHooks carries the callbacks the backend fires while executing.
// Every hook is optional; nil hooks are skipped.
type ExecutionHooks struct {
	// OnOutput receives raw output chunks as the backend produces them.
	OnOutput func(chunk []byte)

	// OnToolStart fires when the backend begins a sub-invocation.
	OnToolStart func(name string, params json.RawMessage)

	// OnToolComplete fires when a sub-invocation finishes.
	OnToolComplete func(name string, exitCode int, duration time.Duration)

	// OnProgress relays free-form progress messages from the backend.
	OnProgress func(message string)
}

// ExecutionBackend is the external AI-assisted capability that selects and
// runs the low-level commands for a scan and returns analysis text. The
// backend is a stateful singleton shared across runs; calls must never
// interleave, which is why exactly one worker drives it.
type ExecutionBackend interface {
	// Execute performs one delegated execution, firing hooks as it goes.
	// It blocks until the backend finishes or ctx expires.
	Execute(ctx context.Context, req ExecutionRequest, hooks ExecutionHooks) (*ExecutionResult, error)

	// Reset clears the backend's session state so the next run starts clean.
	Reset(ctx context.Context) error
}
