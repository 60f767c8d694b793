package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "enroll/pkg/platform/audit"
	"enroll/pkg/platform/audit/store/memory"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	event := audit.Event{
		FlowID: "flow-1",
		Action: string(audit.EventLinkSent),
	}

	err := pub.Emit(context.Background(), event)
	require.NoError(t, err)

	events, err := pub.List(context.Background(), "flow-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventLinkSent), events[0].Action)
	assert.Equal(t, audit.CategoryOperations, events[0].Category)
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		FlowID: "flow-1",
		Action: string(audit.EventAccountCreated),
	})
	require.NoError(t, err)

	// Wait for async processing
	time.Sleep(100 * time.Millisecond)

	events, err := pub.List(context.Background(), "flow-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		err := pub.Emit(context.Background(), audit.Event{
			FlowID: "flow-1",
			Action: string(audit.EventChallengeSent),
		})
		require.NoError(t, err)
	}

	// Close should drain all events
	pub.Close()

	events, err := store.ListByFlow(context.Background(), "flow-1")
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_BufferFull_DropsEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pub.Emit(context.Background(), audit.Event{
				FlowID: "flow-1",
				Action: string(audit.EventLinkSent),
			})
		}()
	}
	wg.Wait()
	// Some events may be dropped (buffer size 1); the publisher must not
	// block or panic and must stay usable.
	require.NoError(t, pub.Emit(context.Background(), audit.Event{FlowID: "flow-1", Action: "x"}))
}

func TestPublisher_EmitAfterCloseDropsEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))
	pub.Close()

	// Shutdown ordering is not the emitter's problem: a late event is
	// dropped, never a panic.
	err := pub.Emit(context.Background(), audit.Event{
		FlowID: "flow-1",
		Action: string(audit.EventLinkSent),
	})
	require.NoError(t, err)

	events, err := store.ListByFlow(context.Background(), "flow-1")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestPublisher_SetsTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		FlowID: "flow-1",
		Action: string(audit.EventLinkVerified),
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), "flow-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestFromAttrs(t *testing.T) {
	event := audit.FromAttrs(audit.EventDuplicateBlocked, []any{
		"flow_id", "flow-1",
		"email", "jane@ex.com",
		"request_id", "req-1",
		"count", 3, // non-string values are skipped
	})
	assert.Equal(t, "flow-1", event.FlowID)
	assert.Equal(t, "jane@ex.com", event.Email)
	assert.Equal(t, "req-1", event.RequestID)
	assert.Equal(t, audit.CategorySecurity, event.Category)
}
