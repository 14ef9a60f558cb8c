package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/nerrad567/doorgate/internal/infrastructure/database"
	"github.com/nerrad567/doorgate/internal/record"
)

// Store is the subset of *database.DB the gateway needs.
type Store interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	WriteTx(ctx context.Context, fn database.TxFn) error
}

// Logger is the logging interface used by the gateway.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

// Outcome is the result of a successful Insert call.
type Outcome int

const (
	// Inserted means a new row was written.
	Inserted Outcome = iota + 1
	// DuplicateSkipped means the row already existed. It is not a failure.
	DuplicateSkipped
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case DuplicateSkipped:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Gateway writes routed records and serves read queries over them.
type Gateway struct {
	store  Store
	logger Logger
}

// New creates the tables if they are absent and returns a ready Gateway.
// A nil logger discards output.
func New(ctx context.Context, store Store, logger Logger) (*Gateway, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	for _, stmt := range schemaStatements {
		if _, err := store.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	logger.Info("event tables ready", "tables", []string{tableAccess, tableSystem})

	return &Gateway{store: store, logger: logger}, nil
}

// Insert stores r in the table for its schema. A uniqueness violation is
// reported as DuplicateSkipped with a nil error. Other failures are
// *StoreWriteError. Nothing is retried.
func (g *Gateway) Insert(ctx context.Context, r record.Routed) (Outcome, error) {
	query, args, err := insertFor(r)
	if err != nil {
		return 0, err
	}

	err = g.store.WriteTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	})
	switch {
	case err == nil:
		return Inserted, nil
	case isUniqueViolation(err):
		g.logger.Debug("duplicate record skipped", "schema", r.Schema, "door_id", r.DoorID())
		return DuplicateSkipped, nil
	default:
		return 0, &StoreWriteError{Schema: r.Schema, Err: err}
	}
}

func insertFor(r record.Routed) (string, []interface{}, error) {
	switch {
	case r.Schema == record.SchemaAccess && r.Access != nil:
		a := r.Access
		return insertAccess, []interface{}{a.BootCount, a.Timestamp, a.DoorID, a.ReaderID, a.Authorized, a.CardID}, nil
	case r.Schema == record.SchemaSystem && r.System != nil:
		s := r.System
		return insertSystem, []interface{}{s.BootCount, s.Timestamp, s.DoorID, s.Message}, nil
	default:
		return "", nil, fmt.Errorf("%w: schema %q", ErrInvalidRecord, r.Schema)
	}
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
