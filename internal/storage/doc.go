// Package storage is the key-value persistence layer.
//
// Drivers:
//   - memory: process-local map (tests, ephemeral runs)
//   - file:   snapshot + append-only journal, compacted periodically
//   - sqlite: single kv table in a SQLite database (WAL)
//
// Values are opaque bytes at the driver level. Load and Save encode typed
// records with deterministic CBOR and compress large values with zstd.
// There are no transactions and no compare-and-swap: callers do
// read-modify-write and accept the race window.
package storage
