package auditsummaries

import (
	"context"

	"github.com/advocatech/lexsync/internal/models"
)

// Repository persists the day+entity+eventType rollup rows that survive after
// detailed audit events are pruned.
type Repository interface {
	// UpsertRollup adds counts into the matching bucket, creating it if
	// absent. Running consolidation twice over the same events must not be
	// possible at the service layer; the repository just accumulates.
	UpsertRollup(ctx context.Context, summaries []models.AuditSummary) error

	List(ctx context.Context, fromDay, toDay string) ([]models.AuditSummary, error)
}
