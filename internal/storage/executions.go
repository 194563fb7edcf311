package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/khanglvm/tool-optimizer-mcp/internal/model"
)

// ContextHash hashes an execution context map. Keys are serialized in
// sorted order, so equal maps hash equally.
func ContextHash(c map[string]any) string {
	if len(c) == 0 {
		return ""
	}
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return HashContext(string(data))
}

// RecordExecution stores one execution outcome.
func (s *SQLiteStorage) RecordExecution(ctx context.Context, ev model.ExecutionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.db == nil {
		return nil
	}

	success := 0
	if ev.Success {
		success = 1
	}

	query := `
		INSERT INTO execution_events (tool_name, server_name, success, response_time_ms, context_hash, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		ev.Tool,
		ev.Server,
		success,
		ev.ResponseTimeMs,
		ContextHash(ev.Context),
		formatTime(ev.Timestamp),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to record execution of %s", ev.Tool)
	}
	return nil
}

// GetExecutionHistory returns events since a given time, oldest first.
// With a positive limit only the most recent limit events are returned.
// Contexts are not stored, so returned events carry none.
func (s *SQLiteStorage) GetExecutionHistory(ctx context.Context, since time.Time, limit int) ([]model.ExecutionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.db == nil {
		return []model.ExecutionEvent{}, nil
	}

	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT tool_name, server_name, success, response_time_ms, timestamp FROM (
			SELECT id, tool_name, server_name, success, response_time_ms, timestamp
			FROM execution_events
			WHERE timestamp >= ?
			ORDER BY timestamp DESC, id DESC
			LIMIT ?
		) ORDER BY timestamp ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, formatTime(since), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query execution history")
	}
	defer rows.Close()

	events := []model.ExecutionEvent{}
	for rows.Next() {
		var (
			ev      model.ExecutionEvent
			success int
			ts      string
		)
		if err := rows.Scan(&ev.Tool, &ev.Server, &success, &ev.ResponseTimeMs, &ts); err != nil {
			logger.KV(xlog.WARNING, "reason", "scan_execution", "err", err.Error())
			continue
		}
		ev.Success = success == 1
		if ev.Timestamp, err = parseTime(ts); err != nil {
			logger.KV(xlog.WARNING, "reason", "parse_timestamp", "value", ts, "err", err.Error())
			continue
		}
		events = append(events, ev)
	}
	return events, errors.Wrap(rows.Err(), "failed to read execution history")
}
