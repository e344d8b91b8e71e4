package auditevents

import (
	"context"
	"time"

	"github.com/advocatech/lexsync/internal/models"
)

// Repository persists audit events. Events are immutable after insert except
// for the one-time MerkleTreeID back-fill, which only the Merkle
// consolidation engine performs.
type Repository interface {
	Insert(ctx context.Context, event *models.AuditEvent) error

	GetByID(ctx context.Context, id string) (*models.AuditEvent, error)

	// GetByIDs returns the events that still exist among ids, in the order
	// given. Missing ids are simply absent from the result.
	GetByIDs(ctx context.Context, ids []string) ([]*models.AuditEvent, error)

	// Unconsolidated returns events without a MerkleTreeID, oldest first,
	// capped at limit.
	Unconsolidated(ctx context.Context, limit int) ([]*models.AuditEvent, error)

	// CountUnconsolidated returns how many events still lack a tree.
	CountUnconsolidated(ctx context.Context) (int, error)

	// SetMerkleTree back-fills MerkleTreeID on the given events.
	SetMerkleTree(ctx context.Context, treeID string, eventIDs []string) error

	// Search applies filter and options. Results are ordered by timestamp,
	// descending unless opts.Ascending.
	Search(ctx context.Context, filter models.AuditFilter, opts models.SearchOptions) ([]*models.AuditEvent, error)

	// SummarizeBefore aggregates consolidated events older than cutoff into
	// day+entity+eventType buckets.
	SummarizeBefore(ctx context.Context, cutoff time.Time) ([]models.AuditSummary, error)

	// DeleteConsolidatedBefore prunes detailed events older than cutoff that
	// already belong to a Merkle tree. Unconsolidated events are kept.
	DeleteConsolidatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
