// Package audit keeps a durable journal of outbound file publishes.
//
// Every file the watch bridge handles (published, failed, vanished or
// dropped on a full queue) becomes one row in the publish_log table next to
// the event tables. The admin API lists the journal newest first.
//
// Writes go through the database writer goroutine, so journal rows never
// contend with log ingestion for the SQLite write lock.
package audit
