// Package ingest turns log payloads received from the bus into stored records.
//
// A payload may hold many lines separated by '\n' or NUL. Each line is
// decoded, routed and inserted on its own, so one bad line never stops the
// rest of its batch.
package ingest
