package storage

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
)

// runMigrations executes database schema migrations. Callers hold mu.
func (s *SQLiteStorage) runMigrations() error {
	if !s.enabled || s.db == nil {
		return nil
	}

	if err := s.createMigrationsTable(); err != nil {
		return err
	}

	version, err := s.getCurrentMigrationVersion()
	if err != nil {
		return err
	}

	migrations := []migration{
		{version: 1, name: "execution_history", up: s.migration001ExecutionHistory},
		{version: 2, name: "monitoring_history", up: s.migration002MonitoringHistory},
	}

	for _, m := range migrations {
		if version < m.version {
			logger.KV(xlog.INFO, "status", "migrating", "version", m.version, "name", m.name)
			if err := m.up(); err != nil {
				return errors.Wrapf(err, "migration %d failed", m.version)
			}
			if err := s.setMigrationVersion(m.version, m.name); err != nil {
				return err
			}
		}
	}

	return nil
}

// migration represents a single database migration.
type migration struct {
	version int
	name    string
	up      func() error
}

func (s *SQLiteStorage) createMigrationsTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`
	_, err := s.db.Exec(query)
	return errors.Wrap(err, "failed to create schema_migrations table")
}

// getCurrentMigrationVersion returns the highest applied migration version.
func (s *SQLiteStorage) getCurrentMigrationVersion() (int, error) {
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")

	var version int
	if err := row.Scan(&version); err != nil {
		return 0, errors.Wrap(err, "failed to read migration version")
	}
	return version, nil
}

func (s *SQLiteStorage) setMigrationVersion(version int, name string) error {
	_, err := s.db.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", version, name)
	return errors.Wrapf(err, "failed to record migration %d", version)
}

func (s *SQLiteStorage) execAll(stmts ...string) error {
	for i, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrapf(err, "statement %d", i+1)
		}
	}
	return nil
}

// migration001ExecutionHistory creates execution and search history.
func (s *SQLiteStorage) migration001ExecutionHistory() error {
	return s.execAll(`
		CREATE TABLE IF NOT EXISTS execution_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tool_name TEXT NOT NULL,
			server_name TEXT NOT NULL,
			success INTEGER NOT NULL,
			response_time_ms REAL NOT NULL,
			context_hash TEXT NOT NULL DEFAULT '',
			timestamp TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_execution_events_pair
		ON execution_events(tool_name, server_name)`,
		`CREATE INDEX IF NOT EXISTS idx_execution_events_timestamp
		ON execution_events(timestamp)`,
		`CREATE TABLE IF NOT EXISTS search_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			search_id TEXT NOT NULL UNIQUE,
			query_hash TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			results_count INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_search_history_timestamp
		ON search_history(timestamp)`,
	)
}

// migration002MonitoringHistory creates snapshot and report tables. The
// full records are kept as JSON next to the columns used for queries.
func (s *SQLiteStorage) migration002MonitoringHistory() error {
	return s.execAll(`
		CREATE TABLE IF NOT EXISTS performance_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			total_calls INTEGER NOT NULL,
			success_rate REAL NOT NULL,
			average_response_time_ms REAL NOT NULL,
			payload TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_performance_snapshots_timestamp
		ON performance_snapshots(timestamp)`,
		`CREATE TABLE IF NOT EXISTS optimization_reports (
			id TEXT PRIMARY KEY,
			timestamp TEXT NOT NULL,
			overall_score REAL NOT NULL,
			payload TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_optimization_reports_timestamp
		ON optimization_reports(timestamp)`,
	)
}
