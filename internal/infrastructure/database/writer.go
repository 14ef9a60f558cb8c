package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by WriteTx once the database has been closed.
var ErrClosed = errors.New("database: closed")

// TxFn is a unit of work executed inside one write transaction.
// Returning an error rolls the transaction back.
type TxFn func(ctx context.Context, tx *sql.Tx) error

type writeJob struct {
	ctx    context.Context
	fn     TxFn
	result chan error
}

// writer runs every write transaction on a single goroutine so callers
// never race each other between a uniqueness check and the insert.
type writer struct {
	db   *sql.DB
	jobs chan writeJob
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

func newWriter(db *sql.DB, queue int) *writer {
	w := &writer{
		db:   db,
		jobs: make(chan writeJob, queue),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go w.loop()
	return w
}

// WriteTx runs fn in its own transaction on the writer goroutine and waits
// for the commit. The transaction is committed when fn returns nil.
//
// If ctx ends while the job is waiting, WriteTx returns ctx.Err(); a job that
// already started still runs to completion.
func (db *DB) WriteTx(ctx context.Context, fn TxFn) error {
	if db.writer == nil {
		return ErrClosed
	}
	return db.writer.do(ctx, fn)
}

func (w *writer) do(ctx context.Context, fn TxFn) error {
	j := writeJob{ctx: ctx, fn: fn, result: make(chan error, 1)}

	select {
	case w.jobs <- j:
	case <-w.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-j.result:
		return err
	case <-w.done:
		// The loop sends before it exits, so a finished job is visible here.
		select {
		case err := <-j.result:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *writer) loop() {
	defer close(w.done)

	for {
		select {
		case j := <-w.jobs:
			j.result <- w.run(j)
		case <-w.quit:
			// Finish what is already queued.
			for {
				select {
				case j := <-w.jobs:
					j.result <- w.run(j)
				default:
					return
				}
			}
		}
	}
}

func (w *writer) run(j writeJob) (err error) {
	if err := j.ctx.Err(); err != nil {
		return err
	}

	tx, err := w.db.BeginTx(j.ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback() //nolint:errcheck // Already failing
			err = fmt.Errorf("write transaction panicked: %v", r)
		}
	}()

	if err := j.fn(j.ctx, tx); err != nil {
		_ = tx.Rollback() //nolint:errcheck // Original error is more useful
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// close stops accepting jobs and waits for queued ones to finish.
func (w *writer) close() {
	w.once.Do(func() {
		close(w.quit)
	})
	<-w.done
}
