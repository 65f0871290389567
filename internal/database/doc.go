// Package database provides PostgreSQL connection pool management.
//
// The gateway keeps no market data; the pool serves the feed event journal.
package database
