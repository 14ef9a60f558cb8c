// Package logline encodes and decodes controller log lines.
//
// Wire format v1, one event per line:
//
//	TIMESTAMP (KIND[/BOOT#N]): DOORID FIELD...
//
// KIND is ACCESS or anything else, which is treated as SYSTEM. An ACCESS line
// carries three fields after the door id (reader, authorization, card) in the
// order fixed by the Codec's FieldOrder. A SYSTEM line carries free text.
//
//	2024-01-01T00:00:00 (ACCESS/BOOT#3): 5 2 authorized 99
//	2024-01-01T00:00:05 (SYSTEM): 5 door held open
//
// The timestamp is opaque and never reparsed.
package logline
