// Package storage persists tasks, reminders, the remind log and the delay
// queue in SQLite (modernc.org/sqlite, no cgo).
//
// *SQLite satisfies reminder.Store and reminder.Queue. Multi-row changes
// (task deletion, task creation with its reminder) run through InTx.
package storage
