package syncqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/advocatech/lexsync/internal/dbx"
	"github.com/advocatech/lexsync/internal/models"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Enqueue(ctx context.Context, collection string, recordID string, op models.Operation, payload map[string]any) (*models.QueueEntry, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	now := time.Now()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_queue (collection, record_id, op, payload, status, attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)
	`, collection, recordID, string(op), string(data), string(models.StatusPending), now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get sequence id: %w", err)
	}

	return &models.QueueEntry{
		Seq:        seq,
		Collection: collection,
		RecordID:   recordID,
		Op:         op,
		Payload:    payload,
		Status:     models.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (r *SQLiteRepository) Pending(ctx context.Context) ([]*models.QueueEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT seq, collection, record_id, op, payload, status, attempts, last_error, created_at, updated_at
		FROM sync_queue WHERE status=? ORDER BY seq
	`, string(models.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("failed to select pending entries: %w", err)
	}
	defer rows.Close()

	var result []*models.QueueEntry
	for rows.Next() {
		var (
			e        models.QueueEntry
			op       string
			status   string
			payload  string
			created  int64
			updated  int64
		)
		if err := rows.Scan(&e.Seq, &e.Collection, &e.RecordID, &op, &payload, &status,
			&e.Attempts, &e.LastError, &created, &updated); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload: %w", err)
		}
		e.Op = models.Operation(op)
		e.Status = models.EntryStatus(status)
		e.CreatedAt = time.Unix(0, created)
		e.UpdatedAt = time.Unix(0, updated)
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) MarkCompleted(ctx context.Context, seq int64) error {
	return r.setStatus(ctx, seq, models.StatusCompleted, "")
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, seq int64, lastError string) error {
	return r.setStatus(ctx, seq, models.StatusFailed, lastError)
}

func (r *SQLiteRepository) setStatus(ctx context.Context, seq int64, status models.EntryStatus, lastError string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_queue SET status=?, last_error=?, updated_at=? WHERE seq=?
	`, string(status), lastError, time.Now().UnixNano(), seq)
	if err != nil {
		return fmt.Errorf("failed to update entry %d: %w", seq, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("wrong rows affected count for entry %d: %d", seq, ra)
	}
	return nil
}

func (r *SQLiteRepository) MarkRetry(ctx context.Context, seq int64, lastError string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_queue SET attempts=attempts+1, last_error=?, updated_at=? WHERE seq=? AND status=?
	`, lastError, time.Now().UnixNano(), seq, string(models.StatusPending))
	if err != nil {
		return fmt.Errorf("failed to bump attempts for entry %d: %w", seq, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("wrong rows affected count for entry %d: %d", seq, ra)
	}
	return nil
}

func (r *SQLiteRepository) Counts(ctx context.Context) (models.QueueCounts, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, count(*) FROM sync_queue GROUP BY status`)
	if err != nil {
		return models.QueueCounts{}, fmt.Errorf("failed to count entries: %w", err)
	}
	defer rows.Close()

	var counts models.QueueCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return models.QueueCounts{}, err
		}
		switch models.EntryStatus(status) {
		case models.StatusPending:
			counts.Pending = n
		case models.StatusCompleted:
			counts.Completed = n
		case models.StatusFailed:
			counts.Failed = n
		}
	}
	if err := rows.Err(); err != nil {
		return models.QueueCounts{}, err
	}
	return counts, nil
}

func (r *SQLiteRepository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM sync_queue WHERE status=? AND updated_at < ?
	`, string(models.StatusCompleted), cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to purge completed entries: %w", err)
	}
	return res.RowsAffected()
}
