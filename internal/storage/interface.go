/*
Package storage implements the persistent history of the optimizer.

Execution outcomes, monitoring snapshots, optimization reports and tool
searches are kept in SQLite so that metrics can be warmed up after a restart.
Storage degrades gracefully: when the database cannot be opened every
operation becomes a no-op and the optimizer keeps running in memory.

The database is stored at ~/.tool-optimizer/history.db by default and uses
modernc.org/sqlite (a pure Go, CGo-free implementation).
*/
package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/khanglvm/tool-optimizer-mcp/internal/model"

	_ "modernc.org/sqlite"
)

var logger = xlog.NewPackageLogger("github.com/khanglvm/tool-optimizer-mcp", "storage")

// DefaultDirName is the directory under the user's home holding the database.
const DefaultDirName = ".tool-optimizer"

// Storage defines the persistent history operations.
type Storage interface {
	// Init opens the database and runs migrations.
	Init() error

	// RecordExecution stores one execution outcome.
	RecordExecution(ctx context.Context, ev model.ExecutionEvent) error

	// GetExecutionHistory returns events since a given time, oldest first.
	// A positive limit keeps only the most recent events.
	GetExecutionHistory(ctx context.Context, since time.Time, limit int) ([]model.ExecutionEvent, error)

	// SaveSnapshot stores a monitoring snapshot.
	SaveSnapshot(ctx context.Context, snap model.PerformanceSnapshot) error

	// SaveReport stores an optimization report.
	SaveReport(ctx context.Context, rep model.OptimizationReport) error

	// RecentReports returns up to limit reports, newest first.
	RecentReports(ctx context.Context, limit int) ([]model.OptimizationReport, error)

	// RecordSearch records a tool search for analytics.
	RecordSearch(ctx context.Context, search SearchRecord) error

	// Cleanup removes records older than the retention period.
	Cleanup(ctx context.Context, retention time.Duration) error

	// Close closes the database connection.
	Close() error
}

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db       *sql.DB
	dbPath   string
	enabled  bool
	mu       sync.Mutex
	initOnce sync.Once
}

// DefaultPath returns ~/.tool-optimizer/history.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, DefaultDirName, "history.db"), nil
}

// NewStorage creates a storage instance for dbPath, or for the default
// path when dbPath is empty. The database is not opened until Init.
// If no path can be resolved the storage is disabled but operations do
// not fail.
func NewStorage(dbPath string) *SQLiteStorage {
	if dbPath == "" {
		p, err := DefaultPath()
		if err != nil {
			logger.KV(xlog.WARNING, "reason", "default_path", "err", err.Error())
			return &SQLiteStorage{enabled: false}
		}
		dbPath = p
	}
	return &SQLiteStorage{
		dbPath:  dbPath,
		enabled: true,
	}
}

// Path returns the database path.
func (s *SQLiteStorage) Path() string {
	return s.dbPath
}

// Enabled reports whether the database is usable.
func (s *SQLiteStorage) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled && s.db != nil
}

// Init opens the database and runs migrations.
//
// If initialization fails, storage is disabled and subsequent operations
// become no-ops.
func (s *SQLiteStorage) Init() error {
	if !s.enabled {
		return nil
	}

	var initErr error
	s.initOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		fail := func(err error, msg string) {
			initErr = errors.Wrap(err, msg)
			s.enabled = false
			if s.db != nil {
				_ = s.db.Close()
				s.db = nil
			}
			logger.KV(xlog.WARNING, "reason", "init", "path", s.dbPath, "err", initErr.Error())
		}

		if err := os.MkdirAll(filepath.Dir(s.dbPath), 0755); err != nil {
			fail(err, "failed to create db directory")
			return
		}

		db, err := sql.Open("sqlite", s.dbPath)
		if err != nil {
			fail(err, "failed to open database")
			return
		}
		// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY
		db.SetMaxOpenConns(1)
		s.db = db

		if err := db.Ping(); err != nil {
			fail(err, "failed to ping database")
			return
		}

		if err := s.runMigrations(); err != nil {
			fail(err, "failed to run migrations")
			return
		}
		logger.KV(xlog.DEBUG, "status", "opened", "path", s.dbPath)
	})

	return initErr
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "failed to close database")
	}
	s.db = nil
	return nil
}

// HashContext creates a SHA256 hash of task context text, so history keeps
// no task descriptions.
func HashContext(text string) string {
	if text == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:])
}

// timeLayout is fixed-width so text timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
