/*
Package learning persists execution outcomes in the background.

The Tracker accepts events without blocking the caller, batches them and
writes them to storage from a single goroutine. When the queue is full
events are dropped; the in-memory metrics of the monitor are unaffected.
*/
package learning

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/effective-security/xlog"
	"github.com/khanglvm/tool-optimizer-mcp/internal/metricskey"
	"github.com/khanglvm/tool-optimizer-mcp/internal/model"
)

var logger = xlog.NewPackageLogger("github.com/khanglvm/tool-optimizer-mcp", "learning")

const (
	// eventQueueSize is the buffer size for the event queue.
	// If full, events are dropped (non-blocking).
	eventQueueSize = 1000

	// batchFlushSize is the number of events that triggers an immediate flush.
	batchFlushSize = 10

	// flushInterval is how often pending events are flushed.
	flushInterval = 50 * time.Millisecond

	writeTimeout = 5 * time.Second
)

// ExecutionStore is the storage the tracker writes to.
type ExecutionStore interface {
	Init() error
	RecordExecution(ctx context.Context, ev model.ExecutionEvent) error
}

// Tracker records execution events in the background with non-blocking writes.
type Tracker struct {
	storage    ExecutionStore
	eventQueue chan model.ExecutionEvent
	stopChan   chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	enabled    bool
	mu         sync.RWMutex

	recorded atomic.Int64
	dropped  atomic.Int64
	failed   atomic.Int64
}

// NewTracker creates a tracker and starts its background writer.
// If the storage cannot be initialized the tracker starts disabled.
func NewTracker(s ExecutionStore) *Tracker {
	t := &Tracker{
		storage:    s,
		eventQueue: make(chan model.ExecutionEvent, eventQueueSize),
		stopChan:   make(chan struct{}),
		enabled:    s != nil,
	}

	if s != nil {
		if err := s.Init(); err != nil {
			logger.KV(xlog.WARNING, "reason", "storage_init", "err", err.Error())
			t.enabled = false
		}
	}

	t.wg.Add(1)
	go t.processEvents()

	return t
}

// Track queues an execution event. It never blocks: if the queue is full
// the event is dropped and a warning is logged.
func (t *Tracker) Track(ev model.ExecutionEvent) {
	if !t.IsEnabled() {
		return
	}

	select {
	case t.eventQueue <- ev:
	default:
		t.dropped.Add(1)
		metricskey.StatsTrackerEventsDropped.IncrCounter(1, ev.Tool)
		logger.KV(xlog.WARNING, "reason", "queue_full", "tool", ev.Tool, "server", ev.Server)
	}
}

// Stop shuts down the tracker, flushing queued events. Events tracked
// after Stop are ignored.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		t.enabled = false
		t.mu.Unlock()

		close(t.stopChan)
		t.wg.Wait()
	})
}

// IsEnabled returns whether tracking is enabled.
func (t *Tracker) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// Stats returns how many events were written, dropped on a full queue
// and rejected by storage.
func (t *Tracker) Stats() (recorded, dropped, failed int64) {
	return t.recorded.Load(), t.dropped.Load(), t.failed.Load()
}

// QueueSize returns the current number of queued events.
func (t *Tracker) QueueSize() int {
	return len(t.eventQueue)
}

// processEvents runs in the background, batching and flushing events.
func (t *Tracker) processEvents() {
	defer t.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]model.ExecutionEvent, 0, batchFlushSize)

	for {
		select {
		case ev := <-t.eventQueue:
			batch = append(batch, ev)
			if len(batch) >= batchFlushSize {
				t.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				t.flush(batch)
				batch = batch[:0]
			}

		case <-t.stopChan:
			// drain what is queued, then exit
			for {
				select {
				case ev := <-t.eventQueue:
					batch = append(batch, ev)
					if len(batch) >= batchFlushSize {
						t.flush(batch)
						batch = batch[:0]
					}
				default:
					t.flush(batch)
					return
				}
			}
		}
	}
}

// flush writes a batch of events to storage.
func (t *Tracker) flush(events []model.ExecutionEvent) {
	if len(events) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	for _, ev := range events {
		if err := t.storage.RecordExecution(ctx, ev); err != nil {
			t.failed.Add(1)
			logger.KV(xlog.WARNING, "reason", "record_execution", "tool", ev.Tool, "err", err.Error())
			continue
		}
		t.recorded.Add(1)
	}
}
