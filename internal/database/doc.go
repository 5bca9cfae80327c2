// Package database provides the SQLite run index of redflow.
//
// The index records every run (target, playbook, status, error count), the
// step events reported while it executed, and the digest of every
// checkpoint written for it. Checkpoint files on disk remain the source of
// truth for resuming; the index adds history for `redflow runs` and lets
// resume verify a checkpoint before trusting it.
//
// The database is a single file opened through modernc.org/sqlite, a
// CGO-free driver, with one connection and WAL journaling.
package database
