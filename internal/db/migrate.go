package db

import (
	"database/sql"

	"github.com/pressly/goose/v3"

	"github.com/Spok95/achievement-service/internal/db/migrations"
)

// Migrate накатывает встроенные миграции goose.
func Migrate(database *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(database, ".")
}
