// Package dtos defines the wire payloads carried inside stream events. Run
// execution and workflow phases publish the same event shapes, so the
// payload structs live here rather than in either application package.
package dtos

import "encoding/json"

// StreamInit announces a freshly created run to subscribers, carrying enough
// context to render the stream header without a separate detail fetch.
type StreamInit struct {
	Status string `json:"status"`
	Tool   string `json:"tool"`
	Target string `json:"target"`
}

// StreamOutput carries one flushed chunk of execution output. Chunks are
// deltas; subscribers reassemble the full transcript by concatenation.
type StreamOutput struct {
	Chunk string `json:"chunk"`
}

// StreamToolStart announces a sub-invocation the backend is about to run.
type StreamToolStart struct {
	Name   string          `json:"name"`
	Params json.RawMessage `json:"params,omitempty"`
}

// StreamToolComplete reports a finished sub-invocation.
type StreamToolComplete struct {
	Name       string `json:"name"`
	ExitCode   int    `json:"exit_code"`
	DurationMS int64  `json:"duration_ms"`
}

// StreamProgress carries a free-text progress message from the backend.
type StreamProgress struct {
	Message string `json:"message"`
}

// StreamStatus reports a run's terminal settlement on the completed and
// failed event types.
type StreamStatus struct {
	Status   string `json:"status"`
	ExitCode *int   `json:"exit_code,omitempty"`
	Error    string `json:"error,omitempty"`
}
