// Package store provides the run ledger for the assistant bridge using SQLite.
//
// # Overview
//
// Every run the bridge starts against the remote assistants service leaves one
// RunRecord: who asked, on which thread, what kind of request it was, how it
// ended, how many polls it took and how long it ran. The ledger is what the
// status API reads to report recent activity and outcome counts.
//
// The ledger never stores message text. Conversation history lives only in
// process memory and disappears on restart.
//
// # Interfaces
//
//   - RunLedger: SaveRun, GetRun, ListRecentRuns, GetRunStats, Close
//
// SQLiteStore is the only implementation.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// Database file locations:
//
//   - Default: ~/.local/share/coven/assistant.db
//   - Testing: a file under t.TempDir(), or :memory:
//
// Timestamps are stored as fixed-width UTC text so that ORDER BY created_at
// is chronological.
//
// # Error Handling
//
//   - ErrNotFound: GetRun found no record with that id
//
// Other errors are wrapped with the failing operation:
//
//	return fmt.Errorf("inserting run: %w", err)
package store
