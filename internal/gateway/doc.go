// Package gateway persists routed log records into SQLite.
//
// Each schema has its own table with a UNIQUE constraint over the record's
// identity. A redelivered line hits the constraint and is reported as
// DuplicateSkipped; that constraint is the only deduplication mechanism.
//
// All inserts run through the database writer, one transaction per record.
// Table names come from a closed set of constants and every value is bound
// as a parameter.
package gateway
