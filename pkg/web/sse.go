package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// SSEWriter streams server-sent events over the request's underlying response
// writer. Handlers that stream must return NewNoResponse once the stream
// ends so Respond leaves the connection alone.
type SSEWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

// NewSSEWriter upgrades the request's response writer to a server-sent event
// stream and flushes the response headers to the client.
func NewSSEWriter(ctx context.Context) (*SSEWriter, error) {
	w := GetWriter(ctx)
	if w == nil {
		return nil, errors.New("response writer missing from context")
	}

	f, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming unsupported by the underlying connection")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	f.Flush()

	return &SSEWriter{w: w, f: f}, nil
}

// Send writes a single named event with a JSON payload and flushes it to
// the client.
func (s *SSEWriter) Send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("sse: marshal event %q: %w", event, err)
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return fmt.Errorf("sse: write event %q: %w", event, err)
	}
	s.f.Flush()

	return nil
}

// Comment writes an SSE comment line. Used as a keep-alive signal that
// clients ignore.
func (s *SSEWriter) Comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return fmt.Errorf("sse: write comment: %w", err)
	}
	s.f.Flush()

	return nil
}
