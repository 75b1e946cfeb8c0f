package aibridge

import (
	"encoding/json"
	"time"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/scanning"
)

// executeRequest is the body of POST /v1/execute.
type executeRequest struct {
	RunID          string          `json:"run_id"`
	Task           string          `json:"task"`
	Target         string          `json:"target"`
	Params         json.RawMessage `json:"params,omitempty"`
	TimeoutSeconds int             `json:"timeout_seconds,omitempty"`
}

// Frame types of the newline-delimited JSON execute stream. The stream is a
// sequence of progress frames terminated by exactly one result or error
// frame.
const (
	frameOutput       = "output"
	frameToolStart    = "tool_start"
	frameToolComplete = "tool_complete"
	frameProgress     = "progress"
	frameResult       = "result"
	frameError        = "error"
)

// streamFrame is one decoded stream line. Fields are populated per frame
// type; unrelated fields stay zero.
type streamFrame struct {
	Type string `json:"type"`

	// output
	Data string `json:"data,omitempty"`

	// tool_start / tool_complete
	Name       string          `json:"name,omitempty"`
	Params     json.RawMessage `json:"params,omitempty"`
	ExitCode   int             `json:"exit_code,omitempty"`
	DurationMS int64           `json:"duration_ms,omitempty"`

	// progress / error
	Message string `json:"message,omitempty"`

	// result
	Result *resultWire `json:"result,omitempty"`
}

// resultWire is the terminal frame payload.
type resultWire struct {
	Analysis    string           `json:"analysis"`
	Invocations []invocationWire `json:"invocations"`
	TokensUsed  int              `json:"tokens_used"`
}

// invocationWire records one command the backend ran for this execution.
type invocationWire struct {
	Name       string          `json:"name"`
	Params     json.RawMessage `json:"params,omitempty"`
	Stdout     string          `json:"stdout"`
	Stderr     string          `json:"stderr"`
	ExitCode   int             `json:"exit_code"`
	DurationMS int64           `json:"duration_ms"`
}

func (r *resultWire) toDomain() *scanning.ExecutionResult {
	subs := make([]scanning.SubInvocation, 0, len(r.Invocations))
	for _, inv := range r.Invocations {
		subs = append(subs, scanning.SubInvocation{
			Name:     inv.Name,
			Params:   inv.Params,
			Stdout:   inv.Stdout,
			Stderr:   inv.Stderr,
			ExitCode: inv.ExitCode,
			Duration: time.Duration(inv.DurationMS) * time.Millisecond,
		})
	}
	return &scanning.ExecutionResult{
		Analysis:       r.Analysis,
		SubInvocations: subs,
		TokensUsed:     r.TokensUsed,
	}
}
