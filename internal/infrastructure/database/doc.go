// Package database provides SQLite connectivity for doorgate.
//
// This package manages:
//   - Database connection with WAL mode for concurrent reads
//   - A single writer goroutine that runs one transaction per write job
//   - Connection lifecycle and health checks
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	err = db.WriteTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
//	    _, err := tx.ExecContext(ctx, "INSERT INTO t (v) VALUES (?)", v)
//	    return err
//	})
//
// Schema is owned by the packages that store data; this package runs no
// migrations.
package database
