// Package decoder turns one CSV line from an upstream feed into a typed,
// schema-shaped Record.
//
// Decoding is positional: token i of the line is stored under field i of the
// schema. Values are coerced using the schema package's type hints, with a
// silent fallback to the raw string when a numeric parse fails. Some message
// types omit columns on the wire; a per-schema realignment Policy re-inserts
// empty placeholders before mapping so the remaining tokens land on the right
// fields.
//
// When a schema carries both Date and Time columns and both are populated,
// they are merged into a single ISO-8601 "timestamp" field.
package decoder
