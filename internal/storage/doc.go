// Package storage is the persistence layer for recipients and their logged
// activities (runs, meals, sleep, notes).
//
// Two backends are available:
//   - "sqlite": a single database file (modernc.org/sqlite, no cgo)
//   - "postgres": a pgx connection pool
//
// Both create their tables on open. Timestamps are stored in UTC with
// microsecond precision.
package storage
