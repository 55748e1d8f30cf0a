package persist

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// VersionTable is the goose bookkeeping table. It is prefixed so the light
// history can live in a database shared with other services.
const VersionTable = "perception_db_version"

func withGoose(pool *pgxpool.Pool, fn func(db *sql.DB) error) error {
	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrations)
	goose.SetTableName(VersionTable)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	return fn(db)
}

// RunMigrations applies the embedded migrations and returns the resulting
// schema version.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	var version int64
	err := withGoose(pool, func(db *sql.DB) error {
		if err := goose.UpContext(ctx, db, "migrations"); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		v, err := goose.GetDBVersionContext(ctx, db)
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		version = v
		return nil
	})
	return version, err
}
