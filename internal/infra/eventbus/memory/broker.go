// Package memory provides the in-process stream broker that fans run output
// events out to live subscribers. Streams are created lazily per run, retain
// a bounded replay window so late subscribers catch up, and tear down a grace
// period after the run's terminal event.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/scanning"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/common/logger"
)

const (
	// replayDepth is the number of recent events retained per run. A late
	// subscriber receives at most this many buffered events before going live.
	replayDepth = 100

	// teardownGrace is how long a stream lingers after its terminal event so
	// in-flight subscribers can drain the tail of the output.
	teardownGrace = 60 * time.Second

	// subscriberBuffer is the per-subscriber channel headroom beyond the
	// replay window. Publishes never block; a subscriber that falls this far
	// behind starts losing events.
	subscriberBuffer = 64
)

// eventRing is a fixed-capacity ring buffer of stream events. When full, each
// push overwrites the oldest entry.
type eventRing struct {
	buf   []scanning.StreamEvent
	start int
	count int
}

func newEventRing(capacity int) *eventRing {
	return &eventRing{buf: make([]scanning.StreamEvent, capacity)}
}

func (r *eventRing) push(evt scanning.StreamEvent) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = evt
		r.count++
		return
	}
	r.buf[r.start] = evt
	r.start = (r.start + 1) % len(r.buf)
}

// snapshot returns the retained events oldest first.
func (r *eventRing) snapshot() []scanning.StreamEvent {
	out := make([]scanning.StreamEvent, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// runStream holds the replay buffer and live subscribers for a single run.
type runStream struct {
	mu       sync.Mutex
	ring     *eventRing
	subs     map[int]chan scanning.StreamEvent
	nextID   int
	teardown *time.Timer
}

var _ scanning.StreamBroker = (*StreamHub)(nil)

// StreamHub implements the StreamBroker port for a single-process deployment.
// Publishers and subscribers rendezvous on the run ID; no stream state exists
// for a run until the first publish or subscribe touches it.
type StreamHub struct {
	mu      sync.Mutex
	streams map[uuid.UUID]*runStream

	grace  time.Duration
	logger *logger.Logger
}

// StreamHubOption configures a StreamHub.
type StreamHubOption func(*StreamHub)

// WithTeardownGrace overrides how long a stream outlives its terminal event.
func WithTeardownGrace(d time.Duration) StreamHubOption {
	return func(h *StreamHub) { h.grace = d }
}

// NewStreamHub creates an empty hub.
func NewStreamHub(log *logger.Logger, opts ...StreamHubOption) *StreamHub {
	h := &StreamHub{
		streams: make(map[uuid.UUID]*runStream),
		grace:   teardownGrace,
		logger:  log.With("component", "stream_hub"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// stream returns the stream for a run, creating it on first touch.
func (h *StreamHub) stream(runID uuid.UUID) *runStream {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.streams[runID]
	if !ok {
		s = &runStream{
			ring: newEventRing(replayDepth),
			subs: make(map[int]chan scanning.StreamEvent),
		}
		h.streams[runID] = s
	}
	return s
}

// Publish records an event in the run's replay buffer and delivers it to all
// live subscribers. A terminal event arms the teardown timer; publishing
// never blocks on slow subscribers.
func (h *StreamHub) Publish(ctx context.Context, evt scanning.StreamEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s := h.stream(evt.RunID)

	s.mu.Lock()
	s.ring.push(evt)
	for id, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			h.logger.Debug(ctx, "Dropped stream event for slow subscriber",
				"run_id", evt.RunID,
				"subscriber_id", id,
				"event_type", evt.Type,
			)
		}
	}
	if evt.Type.Terminal() {
		if s.teardown != nil {
			s.teardown.Stop()
		}
		s.teardown = time.AfterFunc(h.grace, func() { h.remove(evt.RunID) })
	}
	s.mu.Unlock()

	return nil
}

// Subscribe attaches a new subscriber to a run's stream. The returned channel
// first yields the retained backlog oldest-to-newest, then live events. The
// cancel function detaches the subscriber and closes the channel; it is safe
// to call more than once. The channel is also closed when the stream is torn
// down after the run's terminal grace period.
func (h *StreamHub) Subscribe(ctx context.Context, runID uuid.UUID) (<-chan scanning.StreamEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	s := h.stream(runID)

	s.mu.Lock()
	// Capacity covers the full backlog so the loads below cannot block, plus
	// headroom for live events arriving before the consumer catches up.
	ch := make(chan scanning.StreamEvent, replayDepth+subscriberBuffer)
	for _, evt := range s.ring.snapshot() {
		ch <- evt
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}

	go func() {
		<-ctx.Done()
		cancel()
	}()

	return ch, cancel, nil
}

// remove drops a run's stream and closes any remaining subscriber channels.
func (h *StreamHub) remove(runID uuid.UUID) {
	h.mu.Lock()
	s, ok := h.streams[runID]
	if ok {
		delete(h.streams, runID)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	h.logger.Debug(context.Background(), "Tore down run stream", "run_id", runID)
}
