package runs

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/api/errs"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/api/mid"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/app/scanning/dtos"
	domain "github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/scanning"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/web"
)

// statusPollInterval is how often the persisted run status is polled while
// streaming. The poll is a redundant liveness path: if the hub's terminal
// event was dropped or the subscriber attached after channel teardown, the
// poll still ends the stream.
const statusPollInterval = 2 * time.Second

// connectedPayload acknowledges a new subscriber before any events flow.
type connectedPayload struct {
	RunID  uuid.UUID `json:"run_id"`
	Status string    `json:"status"`
}

// stream relays a run's live events over SSE. The subscriber first receives a
// connected acknowledgement, then the hub's replay backlog, then live events.
// The stream ends when the hub closes the channel, the polled status turns
// terminal, or the client disconnects.
func stream(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		user, err := mid.GetUser(ctx)
		if err != nil {
			return errs.New(errs.Unauthenticated, err)
		}

		runID, err := parseID(r)
		if err != nil {
			return errs.New(errs.InvalidArgument, err)
		}

		// Resolve the run before upgrading the connection so missing runs and
		// ownership violations still produce a regular error response.
		status, err := cfg.Service.GetRunStatus(ctx, user, runID)
		if err != nil {
			return errResponse(err)
		}

		events, unsubscribe, err := cfg.Broker.Subscribe(ctx, runID)
		if err != nil {
			return errs.New(errs.Internal, err)
		}
		defer unsubscribe()

		sse, err := web.NewSSEWriter(ctx)
		if err != nil {
			return errs.New(errs.Internal, err)
		}

		if err := sse.Send("connected", connectedPayload{RunID: runID, Status: status.String()}); err != nil {
			return web.NewNoResponse()
		}

		ticker := time.NewTicker(statusPollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return web.NewNoResponse()

			case evt, ok := <-events:
				if !ok {
					return web.NewNoResponse()
				}
				if err := sse.Send(evt.Type.String(), evt); err != nil {
					return web.NewNoResponse()
				}

			case <-ticker.C:
				status, err := cfg.Service.GetRunStatus(ctx, user, runID)
				if err != nil {
					if errors.Is(err, domain.ErrRunNotFound) {
						return web.NewNoResponse()
					}
					cfg.Log.Error(ctx, "Failed to poll run status", "run_id", runID, "error", err)
					continue
				}
				if status.IsTerminal() {
					if err := sse.Send("status", dtos.StreamStatus{Status: status.String()}); err != nil {
						return web.NewNoResponse()
					}
					return web.NewNoResponse()
				}
				if err := sse.Comment("keep-alive"); err != nil {
					return web.NewNoResponse()
				}
			}
		}
	}
}
