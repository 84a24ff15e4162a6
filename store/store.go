package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/amonks/issues/internal/logging"
	"github.com/amonks/issues/issue"
	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - fresh file
// 1 - sequence row seeded
const currentSchemaVersion = 1

const timeLayout = time.RFC3339Nano

var (
	// ErrIssueNotFound is returned when no issue has the given ID.
	ErrIssueNotFound = issue.ErrIssueNotFound

	// ErrPermissionDenied is returned for writes without an acting identity.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store closed")
)

// Options configures Open.
type Options struct {
	Logger *log.Logger
	// Now overrides the store clock, for tests.
	Now func() time.Time
}

// Store is the issue store.
type Store struct {
	db     *sql.DB
	hub    *Hub
	logger *log.Logger
	now    func() time.Time

	// mu serializes writes so snapshots are published in commit order.
	mu     sync.Mutex
	closed bool
}

// Open creates or opens the database at path, creating parent directories
// as needed. Use ":memory:" for a throwaway store.
func Open(path string, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps :memory:
	// databases alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := applySchema(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Debug("opened store", "path", path)
	return &Store{db: db, hub: NewHub(), logger: logger, now: now}, nil
}

// Close stops all subscriptions and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.hub.Close()
	return s.db.Close()
}

// DB returns the underlying database so other packages can keep their
// tables alongside the issues.
func (s *Store) DB() *sql.DB {
	return s.db
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	return nil
}

func applySchema(db *sql.DB, logger *log.Logger) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return runMigrations(db, logger)
}

// runMigrations applies incremental migrations based on user_version.
func runMigrations(db *sql.DB, logger *log.Logger) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version >= currentSchemaVersion {
		return nil
	}

	if version < 1 {
		if _, err := db.Exec("INSERT OR IGNORE INTO sequence (id, value) VALUES (1, 0)"); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	logger.Info("migrated database", "from", version, "to", currentSchemaVersion)
	return nil
}

// write runs fn in a transaction, bumps the sequence number, and publishes
// the resulting snapshot. Callers must hold s.mu.
func (s *Store) write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE sequence SET value = value + 1 WHERE id = 1"); err != nil {
		return fmt.Errorf("bump sequence: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	snapshot, err := s.snapshot(ctx)
	if err != nil {
		// The write is committed; subscribers catch up on the next one.
		s.logger.Error("load snapshot after write", "err", err)
		return nil
	}
	s.hub.Publish(snapshot)
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) snapshot(ctx context.Context) (issue.Snapshot, error) {
	return loadSnapshot(ctx, s.db)
}

func loadSnapshot(ctx context.Context, q querier) (issue.Snapshot, error) {
	var seq int64
	if err := q.QueryRowContext(ctx, "SELECT value FROM sequence WHERE id = 1").Scan(&seq); err != nil {
		return issue.Snapshot{}, fmt.Errorf("read sequence: %w", err)
	}

	rows, err := q.QueryContext(ctx, "SELECT "+issueColumns+" FROM issues ORDER BY position")
	if err != nil {
		return issue.Snapshot{}, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()

	items := make([]issue.Issue, 0)
	for rows.Next() {
		item, err := scanIssue(rows)
		if err != nil {
			return issue.Snapshot{}, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return issue.Snapshot{}, fmt.Errorf("list issues: %w", err)
	}

	return issue.Snapshot{Seq: uint64(seq), Issues: items}, nil
}

const issueColumns = "id, title, description, priority, status, assigned_to, created_by, created_at, updated_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanIssue(row scanner) (issue.Issue, error) {
	var (
		item      issue.Issue
		priority  string
		status    string
		createdAt sql.NullString
		updatedAt string
	)
	if err := row.Scan(&item.ID, &item.Title, &item.Description, &priority, &status, &item.AssignedTo, &item.CreatedBy, &createdAt, &updatedAt); err != nil {
		return issue.Issue{}, fmt.Errorf("scan issue: %w", err)
	}
	item.Priority = issue.Priority(priority)
	item.Status = issue.Status(status)

	if createdAt.Valid && createdAt.String != "" {
		t, err := time.Parse(timeLayout, createdAt.String)
		if err != nil {
			return issue.Issue{}, fmt.Errorf("issue %s: parse created_at: %w", item.ID, err)
		}
		item.CreatedAt = &t
	}
	t, err := time.Parse(timeLayout, updatedAt)
	if err != nil {
		return issue.Issue{}, fmt.Errorf("issue %s: parse updated_at: %w", item.ID, err)
	}
	item.UpdatedAt = t

	return item, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
