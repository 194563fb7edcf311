package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/khanglvm/tool-optimizer-mcp/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s := NewStorage(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, s.Init())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewStorageDefaultPath(t *testing.T) {
	s := NewStorage("")
	require.NotNil(t, s)
	if s.Path() != "" {
		assert.Equal(t, "history.db", filepath.Base(s.Path()))
		assert.Equal(t, DefaultDirName, filepath.Base(filepath.Dir(s.Path())))
	}
}

func TestInitCreatesDatabase(t *testing.T) {
	s := newTestStorage(t)

	_, err := os.Stat(s.Path())
	assert.NoError(t, err)
	assert.True(t, s.Enabled())
	// second Init is a no-op
	assert.NoError(t, s.Init())
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	first := NewStorage(path)
	require.NoError(t, first.Init())
	require.NoError(t, first.RecordExecution(ctx, model.ExecutionEvent{
		Tool: "read_memory", Server: "memory", Success: true, ResponseTimeMs: 12, Timestamp: time.Now(),
	}))
	require.NoError(t, first.Close())

	second := NewStorage(path)
	require.NoError(t, second.Init())
	defer second.Close()

	history, err := second.GetExecutionHistory(ctx, time.Now().Add(-time.Hour), 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	var version int
	require.NoError(t, second.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version))
	assert.Equal(t, 2, version)
}

func TestExecutionHistory(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.RecordExecution(ctx, model.ExecutionEvent{
			Tool:           "run_tests",
			Server:         "test-runner",
			Success:        i%2 == 0,
			ResponseTimeMs: float64(100 * (i + 1)),
			Context:        map[string]any{"task": "run suite"},
			Timestamp:      base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := s.GetExecutionHistory(ctx, base, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, 100.0, all[0].ResponseTimeMs)
	assert.True(t, all[0].Success)
	assert.False(t, all[1].Success)
	assert.Equal(t, base, all[0].Timestamp)
	assert.Nil(t, all[0].Context)

	recent, err := s.GetExecutionHistory(ctx, base, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 400.0, recent[0].ResponseTimeMs)
	assert.Equal(t, 500.0, recent[1].ResponseTimeMs)

	since, err := s.GetExecutionHistory(ctx, base.Add(3*time.Minute), 0)
	require.NoError(t, err)
	assert.Len(t, since, 2)
}

func TestSnapshotsAndReports(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveSnapshot(ctx, model.PerformanceSnapshot{
		Timestamp:   base,
		TotalCalls:  3,
		SuccessRate: 0.9,
		ErrorRate:   0.1,
		ToolUsage:   map[string]int64{"read_memory": 3},
	}))
	n, err := s.SnapshotCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for i, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, s.SaveReport(ctx, model.OptimizationReport{
			ID:              id,
			Timestamp:       base.Add(time.Duration(i) * time.Minute),
			OverallScore:    float64(70 + i),
			Recommendations: []string{"all tools are within response time and success rate thresholds"},
		}))
	}
	// replace keeps one row per ID
	require.NoError(t, s.SaveReport(ctx, model.OptimizationReport{ID: "r1", Timestamp: base, OverallScore: 50}))

	reports, err := s.RecentReports(ctx, 2)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "r3", reports[0].ID)
	assert.Equal(t, "r2", reports[1].ID)
	assert.Equal(t, 72.0, reports[0].OverallScore)
	assert.Len(t, reports[0].Recommendations, 1)

	all, err := s.RecentReports(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 50.0, all[2].OverallScore)

	assert.Error(t, s.SaveReport(ctx, model.OptimizationReport{}))
}

func TestRecordSearchAndCleanup(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)

	require.NoError(t, s.RecordSearch(ctx, NewSearchRecord("browser screenshot", 4, time.Now())))
	require.NoError(t, s.RecordSearch(ctx, NewSearchRecord("kubernetes", 2, old)))
	require.NoError(t, s.RecordExecution(ctx, model.ExecutionEvent{Tool: "a", Server: "b", Timestamp: old}))
	require.NoError(t, s.RecordExecution(ctx, model.ExecutionEvent{Tool: "a", Server: "b", Timestamp: time.Now()}))

	n, err := s.SearchCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.Cleanup(ctx, 24*time.Hour))

	n, err = s.SearchCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	history, err := s.GetExecutionHistory(ctx, old.Add(-time.Hour), 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestHashContext(t *testing.T) {
	h := HashContext("test query for hashing")
	assert.Equal(t, h, HashContext("test query for hashing"))
	assert.Len(t, h, 64)
	assert.Empty(t, HashContext(""))

	a := ContextHash(map[string]any{"task": "x", "agent": "qa"})
	b := ContextHash(map[string]any{"agent": "qa", "task": "x"})
	assert.Equal(t, a, b)
	assert.Empty(t, ContextHash(nil))
}

func TestGracefulDegradation(t *testing.T) {
	// a regular file cannot hold a directory, even for root
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))

	s := NewStorage(filepath.Join(blocker, "sub", "test.db"))
	assert.Error(t, s.Init())
	assert.False(t, s.Enabled())

	ctx := context.Background()
	assert.NoError(t, s.RecordExecution(ctx, model.ExecutionEvent{Tool: "t", Server: "s"}))
	assert.NoError(t, s.SaveSnapshot(ctx, model.PerformanceSnapshot{}))
	assert.NoError(t, s.SaveReport(ctx, model.OptimizationReport{ID: "r"}))
	assert.NoError(t, s.RecordSearch(ctx, NewSearchRecord("q", 1, time.Now())))
	assert.NoError(t, s.Cleanup(ctx, time.Hour))

	history, err := s.GetExecutionHistory(ctx, time.Time{}, 0)
	assert.NoError(t, err)
	assert.Empty(t, history)

	reports, err := s.RecentReports(ctx, 5)
	assert.NoError(t, err)
	assert.Empty(t, reports)
	assert.NoError(t, s.Close())
}
