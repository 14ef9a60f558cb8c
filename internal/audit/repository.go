package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/doorgate/internal/infrastructure/database"
	"github.com/nerrad567/doorgate/internal/watch"
)

// Page size bounds for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// timeLayout is fixed-width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const createTable = `CREATE TABLE IF NOT EXISTS publish_log (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	topic      TEXT NOT NULL,
	path       TEXT NOT NULL,
	result     TEXT NOT NULL,
	bytes      INTEGER NOT NULL DEFAULT 0,
	error      TEXT,
	created_at TEXT NOT NULL
)`

const createIndex = `CREATE INDEX IF NOT EXISTS idx_publish_log_created ON publish_log (created_at)`

// Entry is one publish attempt.
type Entry struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Topic     string    `json:"topic"`
	Path      string    `json:"path"`
	Result    string    `json:"result"`
	Bytes     int       `json:"bytes"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter controls which entries List returns.
type Filter struct {
	Kind   string // optional: commands, database, firmware, logs
	Result string // optional: ok, publish_error, missing_file, dropped
	Limit  int    // default 50, max 200
	Offset int
}

// ListResult is one page of entries.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository defines the journal operations.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// Store is the subset of *database.DB the journal needs.
type Store interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	WriteTx(ctx context.Context, fn database.TxFn) error
}

// SQLiteRepository stores the journal in SQLite.
type SQLiteRepository struct {
	store Store
	now   func() time.Time
}

// NewSQLiteRepository creates the publish_log table if absent.
func NewSQLiteRepository(ctx context.Context, store Store) (*SQLiteRepository, error) {
	for _, stmt := range []string{createTable, createIndex} {
		if _, err := store.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("creating publish journal: %w", err)
		}
	}
	return &SQLiteRepository{store: store, now: time.Now}, nil
}

// Create inserts e. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = "pub-" + uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}

	err := r.store.WriteTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO publish_log (id, kind, topic, path, result, bytes, error, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Kind, e.Topic, e.Path, e.Result, e.Bytes,
			nullableString(e.Error),
			e.CreatedAt.UTC().Format(timeLayout),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("inserting publish entry: %w", err)
	}
	return nil
}

// RecordPublish journals one bridge outcome. It lets the repository serve
// as a watch.Journal.
func (r *SQLiteRepository) RecordPublish(ctx context.Context, t watch.Task, result string, bytes int, cause error) error {
	e := &Entry{
		Kind:   string(t.Kind),
		Topic:  t.Topic,
		Path:   t.Path,
		Result: result,
		Bytes:  bytes,
	}
	if cause != nil {
		e.Error = cause.Error()
	}
	return r.Create(ctx, e)
}

// nullableString returns nil for empty strings so the column stays NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns entries matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.Result != "" {
		conditions = append(conditions, "result = ?")
		args = append(args, filter.Result)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM publish_log " + where
	var total int
	if err := r.store.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting publish entries: %w", err)
	}

	query := "SELECT id, kind, topic, path, result, bytes, error, created_at FROM publish_log " +
		where + " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.store.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying publish entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var cause sql.NullString
		var createdAt string

		if err := rows.Scan(&e.ID, &e.Kind, &e.Topic, &e.Path, &e.Result, &e.Bytes, &cause, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning publish entry: %w", err)
		}
		if cause.Valid {
			e.Error = cause.String
		}

		t, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing publish entry timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating publish entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
