// Package storage persists the key-value snapshot between restarts.
//
// A Sink only moves opaque bytes; encoding belongs to the caller (internal/kv).
// Drivers:
//   - "file": atomic tmp+rename of a single snapshot file
//   - "sqlite": single-row snapshot table in a SQLite database (modernc, no cgo)
//   - "memory": process-local, for tests and dry runs
package storage
