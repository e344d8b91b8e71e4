package auditevents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
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

const eventColumns = `id, ts, event_type, entity, entity_id, user_id, user_ip, user_agent, data, hash, merkle_tree_id`

func (r *SQLiteRepository) Insert(ctx context.Context, event *models.AuditEvent) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to encode event data: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, ts, event_type, entity, entity_id, user_id, user_ip, user_agent, data, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.Timestamp.UnixNano(), string(event.EventType), string(event.Entity),
		event.EntityID, event.UserID, event.UserIP, event.UserAgent, string(data), event.Hash)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.AuditEvent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM audit_events WHERE id=?`, id)

	event, err := scanEvent(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit event: %w", err)
	}
	return event, nil
}

func (r *SQLiteRepository) GetByIDs(ctx context.Context, ids []string) ([]*models.AuditEvent, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM audit_events WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select audit events: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*models.AuditEvent, len(ids))
	for rows.Next() {
		event, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		byID[event.ID] = event
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Preserve the requested order; silently deleted events just drop out,
	// the verifier catches that via the count check.
	result := make([]*models.AuditEvent, 0, len(byID))
	for _, id := range ids {
		if event, ok := byID[id]; ok {
			result = append(result, event)
		}
	}
	return result, nil
}

func (r *SQLiteRepository) Unconsolidated(ctx context.Context, limit int) ([]*models.AuditEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM audit_events
		WHERE merkle_tree_id IS NULL ORDER BY ts ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select unconsolidated events: %w", err)
	}
	defer rows.Close()

	var result []*models.AuditEvent
	for rows.Next() {
		event, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) CountUnconsolidated(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM audit_events WHERE merkle_tree_id IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unconsolidated events: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) SetMerkleTree(ctx context.Context, treeID string, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(eventIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(eventIDs)+1)
	args = append(args, treeID)
	for _, id := range eventIDs {
		args = append(args, id)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE audit_events SET merkle_tree_id=? WHERE id IN (`+placeholders+`) AND merkle_tree_id IS NULL`,
		args...)
	if err != nil {
		return fmt.Errorf("failed to back-fill merkle tree id: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != int64(len(eventIDs)) {
		return fmt.Errorf("wrong rows affected count: %d, want %d", ra, len(eventIDs))
	}
	return nil
}

func (r *SQLiteRepository) Search(ctx context.Context, filter models.AuditFilter, opts models.SearchOptions) ([]*models.AuditEvent, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.From.After(filter.To) {
		return nil, fmt.Errorf("%w: from is after to", common.ErrInvalidFilter)
	}

	var (
		where []string
		args  []any
	)

	if filter.EventType != "" {
		where = append(where, "event_type=?")
		args = append(args, string(filter.EventType))
	}
	if filter.Entity != "" {
		where = append(where, "entity=?")
		args = append(args, string(filter.Entity))
	}
	if filter.EntityID != "" {
		where = append(where, "entity_id=?")
		args = append(args, filter.EntityID)
	}
	if filter.UserID != "" {
		where = append(where, "user_id=?")
		args = append(args, filter.UserID)
	}
	if !filter.From.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, filter.From.UnixNano())
	}
	if !filter.To.IsZero() {
		where = append(where, "ts <= ?")
		args = append(args, filter.To.UnixNano())
	}
	if filter.Text != "" {
		where = append(where, `(data LIKE ? ESCAPE '\' OR entity_id LIKE ? ESCAPE '\' OR user_id LIKE ? ESCAPE '\')`)
		pattern := "%" + escapeLike(filter.Text) + "%"
		args = append(args, pattern, pattern, pattern)
	}

	query := `SELECT ` + eventColumns + ` FROM audit_events`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	if opts.Ascending {
		query += ` ORDER BY ts ASC`
	} else {
		query += ` ORDER BY ts DESC`
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer rows.Close()

	var result []*models.AuditEvent
	for rows.Next() {
		event, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) SummarizeBefore(ctx context.Context, cutoff time.Time) ([]models.AuditSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date(ts / 1000000000, 'unixepoch') AS day, entity, event_type, count(*)
		FROM audit_events
		WHERE ts < ? AND merkle_tree_id IS NOT NULL
		GROUP BY day, entity, event_type
		ORDER BY day
	`, cutoff.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to summarize audit events: %w", err)
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

func (r *SQLiteRepository) DeleteConsolidatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM audit_events WHERE ts < ? AND merkle_tree_id IS NOT NULL
	`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit events: %w", err)
	}
	return res.RowsAffected()
}

// escapeLike neutralizes LIKE metacharacters so a literal '%' or '_' in the
// search text matches itself instead of acting as a wildcard.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

func scanEvent(scan func(dest ...any) error) (*models.AuditEvent, error) {
	var (
		e         models.AuditEvent
		ts        int64
		eventType string
		entity    string
		data      string
		treeID    sql.NullString
	)
	if err := scan(&e.ID, &ts, &eventType, &entity, &e.EntityID, &e.UserID,
		&e.UserIP, &e.UserAgent, &data, &e.Hash, &treeID); err != nil {
		return nil, err
	}
	// UseNumber keeps numeric payload values textually exact; a float64
	// round-trip would shift integers beyond 2^53 and break hash recomputation.
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&e.Data); err != nil {
		return nil, fmt.Errorf("failed to decode event data: %w", err)
	}
	e.Timestamp = time.Unix(0, ts)
	e.EventType = models.EventType(eventType)
	e.Entity = models.Entity(entity)
	e.MerkleTreeID = treeID.String
	return &e, nil
}
