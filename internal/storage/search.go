package storage

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
)

// RecordSearch records a tool search for analytics.
func (s *SQLiteStorage) RecordSearch(ctx context.Context, search SearchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.db == nil {
		return nil
	}

	query := `
		INSERT INTO search_history (search_id, query_hash, timestamp, results_count)
		VALUES (?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		search.SearchID,
		search.QueryHash,
		formatTime(search.Timestamp),
		search.ResultsCount,
	)
	return errors.Wrapf(err, "failed to record search %s", search.SearchID)
}

// SearchCount returns the number of recorded searches.
func (s *SQLiteStorage) SearchCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.db == nil {
		return 0, nil
	}
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM search_history").Scan(&n)
	return n, errors.Wrap(err, "failed to count searches")
}

// Cleanup removes records older than the retention period.
func (s *SQLiteStorage) Cleanup(ctx context.Context, retention time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.db == nil {
		return nil
	}

	cutoff := formatTime(time.Now().Add(-retention))
	for _, table := range []string{"execution_events", "search_history", "performance_snapshots", "optimization_reports"} {
		res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE timestamp < ?", cutoff)
		if err != nil {
			logger.KV(xlog.WARNING, "reason", "cleanup", "table", table, "err", err.Error())
			continue
		}
		if n, _ := res.RowsAffected(); n > 0 {
			logger.KV(xlog.DEBUG, "status", "cleaned", "table", table, "rows", n)
		}
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		logger.KV(xlog.WARNING, "reason", "vacuum", "err", err.Error())
	}
	return nil
}
