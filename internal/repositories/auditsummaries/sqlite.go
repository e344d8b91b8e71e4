package auditsummaries

import (
	"context"
	"fmt"

	"github.com/advocatech/lexsync/internal/dbx"
	"github.com/advocatech/lexsync/internal/models"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) UpsertRollup(ctx context.Context, summaries []models.AuditSummary) error {
	for _, s := range summaries {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO audit_summaries (day, entity, event_type, count) VALUES (?, ?, ?, ?)
			ON CONFLICT(day, entity, event_type) DO UPDATE SET count = count + excluded.count
		`, s.Day, string(s.Entity), string(s.EventType), s.Count)
		if err != nil {
			return fmt.Errorf("failed to upsert summary %s/%s/%s: %w", s.Day, s.Entity, s.EventType, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, fromDay, toDay string) ([]models.AuditSummary, error) {
	query := `SELECT day, entity, event_type, count FROM audit_summaries`
	var (
		where []string
		args  []any
	)
	if fromDay != "" {
		where = append(where, "day >= ?")
		args = append(args, fromDay)
	}
	if toDay != "" {
		where = append(where, "day <= ?")
		args = append(args, toDay)
	}
	for i, cond := range where {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += ` ORDER BY day, entity, event_type`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	defer rows.Close()

	var result []models.AuditSummary
	for rows.Next() {
		var s models.AuditSummary
		var entity, eventType string
		if err := rows.Scan(&s.Day, &entity, &eventType, &s.Count); err != nil {
			return nil, err
		}
		s.Entity = models.Entity(entity)
		s.EventType = models.EventType(eventType)
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
