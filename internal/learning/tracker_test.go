package learning

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/khanglvm/tool-optimizer-mcp/internal/model"
	"github.com/khanglvm/tool-optimizer-mcp/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mu      sync.Mutex
	initErr error
	failFor string
	block   chan struct{}
	events  []model.ExecutionEvent
}

func (m *mockStore) Init() error { return m.initErr }

func (m *mockStore) RecordExecution(_ context.Context, ev model.ExecutionEvent) error {
	if m.block != nil {
		<-m.block
	}
	if ev.Tool == m.failFor {
		return errors.New("constraint failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *mockStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func event(tool string) model.ExecutionEvent {
	return model.ExecutionEvent{Tool: tool, Server: "srv", Success: true, ResponseTimeMs: 10, Timestamp: time.Now()}
}

func TestNewTracker(t *testing.T) {
	tracker := NewTracker(&mockStore{})
	defer tracker.Stop()
	assert.True(t, tracker.IsEnabled())
}

func TestTrackerDisabledWhenInitFails(t *testing.T) {
	store := &mockStore{initErr: errors.New("read-only filesystem")}
	tracker := NewTracker(store)

	assert.False(t, tracker.IsEnabled())
	tracker.Track(event("run_tests"))
	tracker.Stop()
	assert.Zero(t, store.count())
}

func TestTrackerWithoutStorage(t *testing.T) {
	tracker := NewTracker(nil)
	assert.False(t, tracker.IsEnabled())
	tracker.Track(event("run_tests"))
	tracker.Stop()
}

func TestTrackFlushesInBackground(t *testing.T) {
	store := &mockStore{}
	tracker := NewTracker(store)
	defer tracker.Stop()

	for i := 0; i < 25; i++ {
		tracker.Track(event("run_tests"))
	}
	assert.Eventually(t, func() bool { return store.count() == 25 }, 2*time.Second, 10*time.Millisecond)

	recorded, dropped, failed := tracker.Stats()
	assert.Equal(t, int64(25), recorded)
	assert.Zero(t, dropped)
	assert.Zero(t, failed)
}

func TestTrackAfterStopIsIgnored(t *testing.T) {
	store := &mockStore{}
	tracker := NewTracker(store)

	tracker.Track(event("kept"))
	tracker.Stop()
	assert.False(t, tracker.IsEnabled())

	tracker.Track(event("ignored"))
	tracker.Stop()
	require.Equal(t, 1, store.count())
	assert.Equal(t, "kept", store.events[0].Tool)
	assert.Zero(t, tracker.QueueSize())
}

func TestStopDrainsQueue(t *testing.T) {
	store := &mockStore{}
	tracker := NewTracker(store)

	for i := 0; i < 57; i++ {
		tracker.Track(event("docker_build"))
	}
	tracker.Stop()
	tracker.Stop()

	assert.Equal(t, 57, store.count())
	assert.Zero(t, tracker.QueueSize())
}

func TestFullQueueDropsEvents(t *testing.T) {
	store := &mockStore{block: make(chan struct{})}
	tracker := NewTracker(store)

	// the writer holds one batch while blocked, the rest fills the queue
	for i := 0; i < eventQueueSize+batchFlushSize+50; i++ {
		tracker.Track(event("web_fetch"))
	}
	_, dropped, _ := tracker.Stats()
	assert.Greater(t, dropped, int64(0))

	close(store.block)
	tracker.Stop()

	recorded, dropped, _ := tracker.Stats()
	assert.Equal(t, int64(eventQueueSize+batchFlushSize+50), recorded+dropped)
}

func TestStorageFailuresAreCounted(t *testing.T) {
	store := &mockStore{failFor: "bad"}
	tracker := NewTracker(store)

	tracker.Track(event("bad"))
	tracker.Track(event("good"))
	tracker.Stop()

	recorded, _, failed := tracker.Stats()
	assert.Equal(t, int64(1), recorded)
	assert.Equal(t, int64(1), failed)
}

func TestTrackerWithSQLite(t *testing.T) {
	db := storage.NewStorage(filepath.Join(t.TempDir(), "history.db"))
	tracker := NewTracker(db)
	defer db.Close()

	since := time.Now().Add(-time.Minute)
	for i := 0; i < 12; i++ {
		tracker.Track(event("read_memory"))
	}
	tracker.Stop()

	history, err := db.GetExecutionHistory(context.Background(), since, 0)
	require.NoError(t, err)
	assert.Len(t, history, 12)
}
