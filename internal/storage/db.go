// Package storage opens the local SQLite database shared by every component
// and applies migrations. The store, sync queue, audit log and Merkle engine
// all live in the same file but in disjoint tables; no table is written by
// more than one component.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/advocatech/lexsync/internal/common"
	"github.com/advocatech/lexsync/internal/filex"
	"github.com/advocatech/lexsync/internal/storage/migrations"

	_ "modernc.org/sqlite"
)

// RunMigrations applies all embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens (creating if needed) the SQLite database at dsn and
// brings the schema up to date.
func InitDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	if err := filex.EnsureParentDir(dsn); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}

	// Single writer; the core is logically serialized anyway and this keeps
	// SQLITE_BUSY out of the picture.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}

	return db, nil
}
