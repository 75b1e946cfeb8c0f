// Package aibridge is the HTTP client for the external AI tool-orchestration
// capability. The remote service owns the actual command selection and
// execution; this client submits one delegated task at a time, relays the
// streamed progress frames into ExecutionHooks, and returns the final
// analysis. The backend multiplexes a single stateful session, so callers
// must serialize Execute calls; the worker's concurrency of one guarantees
// that.
package aibridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/scanning"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/common"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/common/logger"
)

const (
	executePath = "/v1/execute"
	resetPath   = "/v1/reset"

	// Unconfigured clients stay polite toward the backend's single session.
	defaultRPS   = 2.0
	defaultBurst = 4
)

// Config holds the connection settings for the backend service.
type Config struct {
	// BaseURL is the root of the backend API, e.g. "http://aibridge:8620".
	BaseURL string

	// APIKey, when set, is sent as a bearer token on every request.
	APIKey string

	// RequestsPerSecond and Burst bound the request rate against the
	// backend. Zero values fall back to the package defaults.
	RequestsPerSecond float64
	Burst             int
}

var _ scanning.ExecutionBackend = (*Client)(nil)

// Client talks to the backend over HTTP. Execute consumes a stream of
// newline-delimited JSON frames so hooks fire while commands are still
// running; Reset clears the backend's session between runs.
type Client struct {
	baseURL string
	apiKey  string

	httpClient *http.Client
	limiter    *common.RateLimiter
	logger     *logger.Logger
	tracer     trace.Tracer
}

// NewClient validates the configuration and builds a Client.
func NewClient(cfg Config, log *logger.Logger, tracer trace.Tracer) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("aibridge: base URL is required")
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRPS
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}

	return &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			// No client-level timeout: executions stream for as long as
			// the request context allows.
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: common.NewRateLimiter(rps, burst),
		logger:  log.With("component", "aibridge_client"),
		tracer:  tracer,
	}, nil
}

// Execute submits one delegated execution and blocks until the backend sends
// its result frame, the stream errors, or ctx expires. Hook callbacks fire in
// stream order on the calling goroutine. When req.Timeout is set it bounds
// the whole exchange, so a backend overrun surfaces as
// context.DeadlineExceeded.
func (c *Client) Execute(
	ctx context.Context,
	req scanning.ExecutionRequest,
	hooks scanning.ExecutionHooks,
) (*scanning.ExecutionResult, error) {
	ctx, span := c.tracer.Start(ctx, "aibridge.execute",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("run_id", req.RunID.String()),
			attribute.String("target", req.Target),
		))
	defer span.End()

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rate limiter wait failed")
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	body, err := json.Marshal(executeRequest{
		RunID:          req.RunID.String(),
		Task:           req.Task,
		Target:         req.Target,
		Params:         req.Params,
		TimeoutSeconds: int(req.Timeout / time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling execute request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+executePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating execute request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "execute request failed")
		return nil, fmt.Errorf("executing backend request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := c.statusError(resp)
		span.RecordError(err)
		span.SetStatus(codes.Error, "backend rejected execution")
		return nil, err
	}

	result, err := c.consumeStream(ctx, resp.Body, hooks)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "backend stream failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("invocation_count", len(result.SubInvocations)),
		attribute.Int("tokens_used", result.TokensUsed),
	)
	return result, nil
}

// consumeStream relays frames into hooks until the terminal result or error
// frame arrives. Unknown frame types are skipped so newer backends can add
// frames without breaking older cores.
func (c *Client) consumeStream(
	ctx context.Context,
	body io.Reader,
	hooks scanning.ExecutionHooks,
) (*scanning.ExecutionResult, error) {
	dec := json.NewDecoder(body)
	for {
		var frame streamFrame
		if err := dec.Decode(&frame); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("backend stream interrupted: %w", ctxErr)
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, errors.New("backend stream ended without a result")
			}
			return nil, fmt.Errorf("decoding backend frame: %w", err)
		}

		switch frame.Type {
		case frameOutput:
			if hooks.OnOutput != nil && frame.Data != "" {
				hooks.OnOutput([]byte(frame.Data))
			}
		case frameToolStart:
			if hooks.OnToolStart != nil {
				hooks.OnToolStart(frame.Name, frame.Params)
			}
		case frameToolComplete:
			if hooks.OnToolComplete != nil {
				hooks.OnToolComplete(frame.Name, frame.ExitCode, time.Duration(frame.DurationMS)*time.Millisecond)
			}
		case frameProgress:
			if hooks.OnProgress != nil {
				hooks.OnProgress(frame.Message)
			}
		case frameResult:
			if frame.Result == nil {
				return nil, errors.New("backend result frame missing payload")
			}
			return frame.Result.toDomain(), nil
		case frameError:
			return nil, fmt.Errorf("backend execution failed: %s", frame.Message)
		default:
			c.logger.Debug(ctx, "skipping unknown backend frame", "frame_type", frame.Type)
		}
	}
}

// Reset clears the backend session so the next run starts from a clean slate.
func (c *Client) Reset(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "aibridge.reset", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+resetPath, http.NoBody)
	if err != nil {
		return fmt.Errorf("creating reset request: %w", err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reset request failed")
		return fmt.Errorf("resetting backend session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := c.statusError(resp)
		span.RecordError(err)
		span.SetStatus(codes.Error, "backend rejected reset")
		return err
	}
	return nil
}

// statusError extracts the backend's JSON error body, falling back to the
// bare status code when the body has some other shape.
func (c *Client) statusError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload); err == nil && payload.Error != "" {
		return fmt.Errorf("backend returned status %d: %s", resp.StatusCode, payload.Error)
	}
	return fmt.Errorf("backend returned status %d", resp.StatusCode)
}
