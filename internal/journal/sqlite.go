package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const defaultSQLitePath = "data/kubepilot.sqlite3"

func openSQLite(path string) (Store, error) {
	if strings.TrimSpace(path) == "" {
		path = defaultSQLitePath
	}

	dsn := path
	if path != ":memory:" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve journal path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
		dsn = abs
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite journal: %w", err)
	}

	// SQLite single-writer: cap pool
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := migrate(db, "sqlite3"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqlStore{db: db, driver: driverSQLite}, nil
}
