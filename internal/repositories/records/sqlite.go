package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/advocatech/lexsync/internal/common"
	"github.com/advocatech/lexsync/internal/dbx"
	"github.com/advocatech/lexsync/internal/models"
	"github.com/advocatech/lexsync/internal/storage"
)

// SQLiteRepository stores records of every collection in one generic table
// plus a side table of secondary index rows, maintained transactionally with
// each write.
type SQLiteRepository struct {
	db     *sql.DB
	schema storage.Schema
}

func NewSQLiteRepository(db *sql.DB, schema storage.Schema) *SQLiteRepository {
	return &SQLiteRepository{db: db, schema: schema}
}

// indexValue extracts the indexed field from the payload. Absent or
// non-scalar fields produce no index row.
func indexValue(data map[string]any, field string) (string, bool) {
	v, ok := data[field]
	if !ok || v == nil {
		return "", false
	}
	switch value := v.(type) {
	case string:
		return value, true
	case float64:
		return fmt.Sprintf("%v", value), true
	case bool:
		return fmt.Sprintf("%v", value), true
	default:
		return "", false
	}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, collection string, rec *models.Record) error {
	spec, ok := r.schema[collection]
	if !ok {
		return fmt.Errorf("%w: %s", common.ErrUnknownCollection, collection)
	}

	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	err = dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, idx := range spec.Indexes {
			if !idx.Unique {
				continue
			}
			value, has := indexValue(rec.Data, idx.Field)
			if !has {
				continue
			}
			var other string
			err := tx.QueryRowContext(ctx,
				`SELECT record_id FROM record_index WHERE collection=? AND idx=? AND value=? AND record_id<>?`,
				collection, idx.Name, value, rec.ID).Scan(&other)
			if err == nil {
				return fmt.Errorf("%w: %s=%q held by %s", common.ErrDuplicate, idx.Field, value, other)
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO records (collection, id, data, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
		`, collection, rec.ID, string(data), rec.UpdatedAt.UnixNano())
		if err != nil {
			return err
		}

		// Rewrite index rows from scratch; cheaper than diffing and immune to
		// stale entries after field changes.
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM record_index WHERE collection=? AND record_id=?`, collection, rec.ID); err != nil {
			return err
		}
		for _, idx := range spec.Indexes {
			value, has := indexValue(rec.Data, idx.Field)
			if !has {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO record_index (collection, idx, value, record_id) VALUES (?, ?, ?, ?)`,
				collection, idx.Name, value, rec.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrDuplicate) {
			return err
		}
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, collection, id string) (*models.Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, data, updated_at FROM records WHERE collection=? AND id=?`, collection, id)

	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context, collection string, limit int) ([]models.Record, error) {
	query := `SELECT id, data, updated_at FROM records WHERE collection=? ORDER BY updated_at DESC`
	args := []any{collection}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []models.Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, collection, id string) error {
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM records WHERE collection=? AND id=?`, collection, id)
		if err != nil {
			return err
		}
		ra, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if ra == 0 {
			return common.ErrNotFound
		}
		_, err = tx.ExecContext(ctx,
			`DELETE FROM record_index WHERE collection=? AND record_id=?`, collection, id)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) FindByIndex(ctx context.Context, collection, index, value string) ([]models.Record, error) {
	if _, ok := r.schema.Index(collection, index); !ok {
		return nil, fmt.Errorf("%w: %s.%s", common.ErrInvalidIndex, collection, index)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT r.id, r.data, r.updated_at
		FROM record_index i
		JOIN records r ON r.collection = i.collection AND r.id = i.record_id
		WHERE i.collection=? AND i.idx=? AND i.value=?
		ORDER BY r.updated_at DESC
	`, collection, index, value)
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}
	defer rows.Close()

	var result []models.Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanRecord(scan func(dest ...any) error) (*models.Record, error) {
	var (
		rec  models.Record
		data string
		ts   int64
	)
	if err := scan(&rec.ID, &data, &ts); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
		return nil, fmt.Errorf("failed to decode record data: %w", err)
	}
	rec.UpdatedAt = time.Unix(0, ts)
	return &rec, nil
}
