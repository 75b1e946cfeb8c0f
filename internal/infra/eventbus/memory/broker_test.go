package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/scanning"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/common/logger"
)

func outputEvent(runID uuid.UUID, seq int) scanning.StreamEvent {
	return scanning.StreamEvent{
		RunID:     runID,
		Type:      scanning.StreamEventTypeOutput,
		Payload:   json.RawMessage(fmt.Sprintf(`{"seq":%d}`, seq)),
		Timestamp: time.Now(),
	}
}

func eventSeq(t *testing.T, evt scanning.StreamEvent) int {
	t.Helper()
	var payload struct {
		Seq int `json:"seq"`
	}
	require.NoError(t, json.Unmarshal(evt.Payload, &payload))
	return payload.Seq
}

func TestStreamHub_LiveDelivery(t *testing.T) {
	t.Parallel()

	hub := NewStreamHub(logger.Noop())
	ctx := context.Background()
	runID := uuid.New()

	ch, cancel, err := hub.Subscribe(ctx, runID)
	require.NoError(t, err)
	defer cancel()

	for i := 0; i < 3; i++ {
		require.NoError(t, hub.Publish(ctx, outputEvent(runID, i)))
	}

	for i := 0; i < 3; i++ {
		select {
		case evt := <-ch:
			assert.Equal(t, i, eventSeq(t, evt))
			assert.Equal(t, runID, evt.RunID)
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for event %d", i)
		}
	}
}

func TestStreamHub_LateSubscriberGetsReplayWindow(t *testing.T) {
	t.Parallel()

	hub := NewStreamHub(logger.Noop())
	ctx := context.Background()
	runID := uuid.New()

	// Publish past the replay window so the oldest events are evicted.
	const published = 150
	for i := 0; i < published; i++ {
		require.NoError(t, hub.Publish(ctx, outputEvent(runID, i)))
	}

	ch, cancel, err := hub.Subscribe(ctx, runID)
	require.NoError(t, err)
	defer cancel()

	// Exactly the last 100 events, oldest first.
	for want := published - replayDepth; want < published; want++ {
		select {
		case evt := <-ch:
			assert.Equal(t, want, eventSeq(t, evt))
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for replayed event %d", want)
		}
	}

	select {
	case evt := <-ch:
		t.Fatalf("unexpected extra event with seq %d", eventSeq(t, evt))
	default:
	}
}

func TestStreamHub_BacklogThenLive(t *testing.T) {
	t.Parallel()

	hub := NewStreamHub(logger.Noop())
	ctx := context.Background()
	runID := uuid.New()

	require.NoError(t, hub.Publish(ctx, outputEvent(runID, 0)))
	require.NoError(t, hub.Publish(ctx, outputEvent(runID, 1)))

	ch, cancel, err := hub.Subscribe(ctx, runID)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, outputEvent(runID, 2)))

	for i := 0; i < 3; i++ {
		select {
		case evt := <-ch:
			assert.Equal(t, i, eventSeq(t, evt))
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for event %d", i)
		}
	}
}

func TestStreamHub_RunsAreIsolated(t *testing.T) {
	t.Parallel()

	hub := NewStreamHub(logger.Noop())
	ctx := context.Background()
	runA := uuid.New()
	runB := uuid.New()

	chA, cancelA, err := hub.Subscribe(ctx, runA)
	require.NoError(t, err)
	defer cancelA()

	require.NoError(t, hub.Publish(ctx, outputEvent(runB, 0)))

	select {
	case evt := <-chA:
		t.Fatalf("subscriber for run %s received event for run %s", runA, evt.RunID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStreamHub_TerminalEventTearsDownAfterGrace(t *testing.T) {
	t.Parallel()

	hub := NewStreamHub(logger.Noop(), WithTeardownGrace(20*time.Millisecond))
	ctx := context.Background()
	runID := uuid.New()

	ch, cancel, err := hub.Subscribe(ctx, runID)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, scanning.StreamEvent{
		RunID:     runID,
		Type:      scanning.StreamEventTypeCompleted,
		Timestamp: time.Now(),
	}))

	// The terminal event is still delivered before teardown.
	select {
	case evt, ok := <-ch:
		require.True(t, ok)
		assert.Equal(t, scanning.StreamEventTypeCompleted, evt.Type)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for terminal event")
	}

	// After the grace period the channel closes.
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after teardown")
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for teardown close")
	}

	// A new subscriber sees no backlog once the stream is gone.
	ch2, cancel2, err := hub.Subscribe(ctx, runID)
	require.NoError(t, err)
	defer cancel2()

	select {
	case evt := <-ch2:
		t.Fatalf("unexpected replayed event of type %s after teardown", evt.Type)
	default:
	}
}

func TestStreamHub_SubscriberStaysAttachedDuringGrace(t *testing.T) {
	t.Parallel()

	hub := NewStreamHub(logger.Noop(), WithTeardownGrace(500*time.Millisecond))
	ctx := context.Background()
	runID := uuid.New()

	require.NoError(t, hub.Publish(ctx, scanning.StreamEvent{
		RunID:     runID,
		Type:      scanning.StreamEventTypeCompleted,
		Timestamp: time.Now(),
	}))

	// A subscriber attaching inside the grace window still gets the backlog.
	ch, cancel, err := hub.Subscribe(ctx, runID)
	require.NoError(t, err)
	defer cancel()

	select {
	case evt := <-ch:
		assert.Equal(t, scanning.StreamEventTypeCompleted, evt.Type)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for replayed terminal event")
	}
}

func TestStreamHub_CancelIsIdempotent(t *testing.T) {
	t.Parallel()

	hub := NewStreamHub(logger.Noop())
	ctx := context.Background()
	runID := uuid.New()

	ch, cancel, err := hub.Subscribe(ctx, runID)
	require.NoError(t, err)

	cancel()
	cancel() // Second call must not panic.

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after cancel")

	// Publishing after a subscriber detaches is still fine.
	require.NoError(t, hub.Publish(ctx, outputEvent(runID, 0)))
}

func TestStreamHub_ContextCancellationDetaches(t *testing.T) {
	t.Parallel()

	hub := NewStreamHub(logger.Noop())
	runID := uuid.New()

	subCtx, subCancel := context.WithCancel(context.Background())
	ch, _, err := hub.Subscribe(subCtx, runID)
	require.NoError(t, err)

	subCancel()

	// The watcher goroutine closes the channel shortly after cancellation.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("timeout waiting for context cancellation to close channel")
		}
	}
}

func TestStreamHub_CancelledContextRejected(t *testing.T) {
	t.Parallel()

	hub := NewStreamHub(logger.Noop())
	runID := uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := hub.Publish(ctx, outputEvent(runID, 0))
	assert.ErrorIs(t, err, context.Canceled)

	_, _, err = hub.Subscribe(ctx, runID)
	assert.ErrorIs(t, err, context.Canceled)
}
