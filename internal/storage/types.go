package storage

import (
	"time"
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file at Path
//   - "memory": private in-memory database (tests, dry runs)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// TaskQuery filters SearchTasks. Zero fields do not filter.
type TaskQuery struct {
	Brief    string // substring of brief
	Detail   string // substring of detail
	State    string
	Context  string // reminder context
	RemindID int64
	Limit    int
}
