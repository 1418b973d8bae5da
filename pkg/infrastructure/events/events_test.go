package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []Event
}

func (h *recordingHandler) Handle(event Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return nil
}

func (h *recordingHandler) CanHandle(eventType string) bool {
	return eventType == ProgressEventType
}

func TestInMemoryEventStore_VersionsPerStream(t *testing.T) {
	store := NewInMemoryEventStore(nil)
	at := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.AppendEvent("run-a", NewEvent("x", "run-a", 1, at)))
	require.NoError(t, store.AppendEvent("run-b", NewEvent("x", "run-b", 2, at)))
	require.NoError(t, store.AppendEvent("run-a", NewEvent("x", "run-a", 3, at)))

	a, err := store.ReadEvents("run-a", 1)
	require.NoError(t, err)
	require.Len(t, a, 2)
	assert.Equal(t, 1, a[0].Version())
	assert.Equal(t, 2, a[1].Version())
	assert.Equal(t, 3, a[1].Data())

	tail, err := store.ReadEvents("run-a", 2)
	require.NoError(t, err)
	assert.Len(t, tail, 1)

	all, err := store.ReadAllEvents(1)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.Error(t, store.AppendEvent("", NewEvent("x", "", nil, at)))
}

func TestStorePublisher_DeliversToSubscribers(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := NewInMemoryEventStore(nil)
	handler := &recordingHandler{}
	require.NoError(t, store.Subscribe([]string{ProgressEventType}, handler))

	publisher := NewStorePublisher(store)
	steps := []ProgressEvent{
		{RunID: "run-1", StepName: "forecast", Status: ProgressRunning, ProgressPct: 0},
		{RunID: "run-1", StepName: "forecast", Status: ProgressCompleted, ProgressPct: 50},
	}
	for _, ev := range steps {
		require.NoError(t, publisher.Publish(ev))
	}
	store.Wait()

	progress, err := ProgressEvents(store, "run-1")
	require.NoError(t, err)
	assert.Equal(t, steps, progress)

	handler.mu.Lock()
	assert.Len(t, handler.events, 2)
	handler.mu.Unlock()

	require.NoError(t, store.Unsubscribe(handler))
	require.NoError(t, publisher.Publish(ProgressEvent{RunID: "run-1", StepName: "allocate"}))
	store.Wait()
	handler.mu.Lock()
	assert.Len(t, handler.events, 2)
	handler.mu.Unlock()

	assert.Error(t, publisher.Publish(ProgressEvent{StepName: "orphan"}))
}
