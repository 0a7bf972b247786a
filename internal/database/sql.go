package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // driver: sqlite
)

// SQLDriver selects the database/sql driver for the snapshot store.
type SQLDriver string

const (
	SQLDriverSQLite   SQLDriver = "sqlite"
	SQLDriverPostgres SQLDriver = "postgres"
)

// OpenSnapshotDB opens a database/sql handle for the SQL snapshot store and
// ensures its table exists.
func OpenSnapshotDB(ctx context.Context, driver SQLDriver, dsn string, log zerolog.Logger) (*sql.DB, error) {
	var drvName, schema string
	switch driver {
	case SQLDriverSQLite:
		drvName = "sqlite"
		schema = snapshotSchemaSQLite
	case SQLDriverPostgres:
		drvName = "pgx"
		schema = snapshotSchemaPostgres
	default:
		return nil, fmt.Errorf("unsupported snapshot driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == SQLDriverSQLite {
		// One writer keeps sqlite from returning SQLITE_BUSY under concurrent saves.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure snapshot schema: %w", err)
	}

	log.Info().Str("driver", string(driver)).Msg("Snapshot database ready")
	return db, nil
}

const snapshotSchemaSQLite = `
CREATE TABLE IF NOT EXISTS progress_snapshots (
  key TEXT PRIMARY KEY,
  data TEXT NOT NULL,
  saved_at INTEGER NOT NULL
);
`

const snapshotSchemaPostgres = `
CREATE TABLE IF NOT EXISTS progress_snapshots (
  key TEXT PRIMARY KEY,
  data TEXT NOT NULL,
  saved_at BIGINT NOT NULL
);
`
