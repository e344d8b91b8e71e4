package merkletrees

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
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, tree *models.MerkleTree) error {
	eventIDs, err := json.Marshal(tree.EventIDs)
	if err != nil {
		return fmt.Errorf("failed to encode event ids: %w", err)
	}

	var proof any
	if tree.Proof != nil {
		encoded, err := json.Marshal(tree.Proof)
		if err != nil {
			return fmt.Errorf("failed to encode proof: %w", err)
		}
		proof = string(encoded)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO merkle_trees (id, created_at, root_hash, height, event_ids, first_event_at, last_event_at, proof)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, tree.ID, tree.CreatedAt.UnixNano(), tree.RootHash, tree.Height, string(eventIDs),
		tree.FirstEventAt.UnixNano(), tree.LastEventAt.UnixNano(), proof)
	if err != nil {
		return fmt.Errorf("failed to insert merkle tree: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.MerkleTree, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, created_at, root_hash, height, event_ids, first_event_at, last_event_at, proof
		FROM merkle_trees WHERE id=?
	`, id)

	tree, err := scanTree(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get merkle tree: %w", err)
	}
	return tree, nil
}

func (r *SQLiteRepository) SetProof(ctx context.Context, id string, proof *models.TimestampProof) error {
	encoded, err := json.Marshal(proof)
	if err != nil {
		return fmt.Errorf("failed to encode proof: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE merkle_trees SET proof=? WHERE id=?`, string(encoded), id)
	if err != nil {
		return fmt.Errorf("failed to set proof: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("wrong rows affected count: %d", ra)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]*models.MerkleTree, error) {
	query := `
		SELECT id, created_at, root_hash, height, event_ids, first_event_at, last_event_at, proof
		FROM merkle_trees ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list merkle trees: %w", err)
	}
	defer rows.Close()

	var result []*models.MerkleTree
	for rows.Next() {
		tree, err := scanTree(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, tree)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanTree(scan func(dest ...any) error) (*models.MerkleTree, error) {
	var (
		tree     models.MerkleTree
		created  int64
		eventIDs string
		first    int64
		last     int64
		proof    sql.NullString
	)
	if err := scan(&tree.ID, &created, &tree.RootHash, &tree.Height, &eventIDs, &first, &last, &proof); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(eventIDs), &tree.EventIDs); err != nil {
		return nil, fmt.Errorf("failed to decode event ids: %w", err)
	}
	if proof.Valid {
		tree.Proof = &models.TimestampProof{}
		if err := json.Unmarshal([]byte(proof.String), tree.Proof); err != nil {
			return nil, fmt.Errorf("failed to decode proof: %w", err)
		}
	}
	tree.CreatedAt = time.Unix(0, created)
	tree.FirstEventAt = time.Unix(0, first)
	tree.LastEventAt = time.Unix(0, last)
	return &tree, nil
}
