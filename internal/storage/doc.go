// Package storage persists everything newsbot owns: schedules, the global
// settings row, the working article set, newsletters, social posts and the
// append-only activity log.
//
// Drivers:
//   - "sqlite": SQLite database file (modernc.org/sqlite, pure Go)
//   - "memory": process-local maps, used by tests and dry runs
package storage
