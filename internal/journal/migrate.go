package journal

import (
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"kubepilot/internal/journal/migrations"
)

// migrate runs all pending goose migrations against db.
func migrate(db *sql.DB, dialect string) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
