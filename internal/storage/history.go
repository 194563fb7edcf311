package storage

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/khanglvm/tool-optimizer-mcp/internal/model"
)

// SaveSnapshot stores a monitoring snapshot.
func (s *SQLiteStorage) SaveSnapshot(ctx context.Context, snap model.PerformanceSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "failed to encode snapshot")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.db == nil {
		return nil
	}

	query := `
		INSERT INTO performance_snapshots (timestamp, total_calls, success_rate, average_response_time_ms, payload)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		formatTime(snap.Timestamp),
		snap.TotalCalls,
		snap.SuccessRate,
		snap.AverageResponseTimeMs,
		string(payload),
	)
	return errors.Wrap(err, "failed to save snapshot")
}

// SaveReport stores an optimization report. Saving a report with an
// existing ID replaces it.
func (s *SQLiteStorage) SaveReport(ctx context.Context, rep model.OptimizationReport) error {
	if rep.ID == "" {
		return errors.New("report ID is required")
	}
	payload, err := json.Marshal(rep)
	if err != nil {
		return errors.Wrap(err, "failed to encode report")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.db == nil {
		return nil
	}

	query := `
		INSERT OR REPLACE INTO optimization_reports (id, timestamp, overall_score, payload)
		VALUES (?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		rep.ID,
		formatTime(rep.Timestamp),
		rep.OverallScore,
		string(payload),
	)
	return errors.Wrapf(err, "failed to save report %s", rep.ID)
}

// RecentReports returns up to limit reports, newest first.
func (s *SQLiteStorage) RecentReports(ctx context.Context, limit int) ([]model.OptimizationReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.db == nil {
		return []model.OptimizationReport{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM optimization_reports ORDER BY timestamp DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query reports")
	}
	defer rows.Close()

	reports := []model.OptimizationReport{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			logger.KV(xlog.WARNING, "reason", "scan_report", "err", err.Error())
			continue
		}
		var rep model.OptimizationReport
		if err := json.Unmarshal([]byte(payload), &rep); err != nil {
			logger.KV(xlog.WARNING, "reason", "decode_report", "err", err.Error())
			continue
		}
		reports = append(reports, rep)
	}
	return reports, errors.Wrap(rows.Err(), "failed to read reports")
}

// SnapshotCount returns the number of stored snapshots.
func (s *SQLiteStorage) SnapshotCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.db == nil {
		return 0, nil
	}
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM performance_snapshots").Scan(&n)
	return n, errors.Wrap(err, "failed to count snapshots")
}
