package syncqueue

import (
	"context"
	"time"

	"github.com/advocatech/lexsync/internal/models"
)

// Repository persists the append-only log of pending local mutations. Entries
// are owned by the sync engine from enqueue until they reach a terminal
// state; failed entries are never touched automatically.
type Repository interface {
	// Enqueue appends a pending entry and returns it with Seq assigned.
	Enqueue(ctx context.Context, collection string, recordID string, op models.Operation, payload map[string]any) (*models.QueueEntry, error)

	// Pending returns all pending entries in creation (Seq) order.
	Pending(ctx context.Context) ([]*models.QueueEntry, error)

	// MarkCompleted transitions an entry to completed.
	MarkCompleted(ctx context.Context, seq int64) error

	// MarkRetry increments the attempt counter, keeping the entry pending.
	MarkRetry(ctx context.Context, seq int64, lastError string) error

	// MarkFailed transitions an entry to the terminal failed state.
	MarkFailed(ctx context.Context, seq int64, lastError string) error

	// Counts returns the per-status totals.
	Counts(ctx context.Context) (models.QueueCounts, error)

	// DeleteCompletedBefore purges completed entries whose updated_at
	// predates the cutoff. Pending and failed entries are never removed.
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
