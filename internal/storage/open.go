package storage

import (
	"errors"
	"strings"

	logx "cuckoo/pkg/logx"
)

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (*SQLite, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return openDSN(":memory:", cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// OpenMemory opens an empty in-memory database.
func OpenMemory() (*SQLite, error) {
	return Open(Config{Driver: "memory"}, logx.Nop())
}
