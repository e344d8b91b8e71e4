// Package audit records tamper-evident audit events for security-relevant
// actions. Events are sanitized, hashed over a canonical serialization and
// persisted; the Merkle consolidation engine later anchors them into trees.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/advocatech/lexsync/internal/cryptox"
	"github.com/advocatech/lexsync/internal/logging"
	"github.com/advocatech/lexsync/internal/models"
	"github.com/advocatech/lexsync/internal/repositories/auditevents"
	"github.com/advocatech/lexsync/internal/repositories/auditsummaries"
	"github.com/advocatech/lexsync/internal/repositories/merkletrees"
)

// Actor identifies who is performing the audited actions. It is installed
// explicitly at login instead of being read from ambient globals.
type Actor struct {
	UserID    string
	UserIP    string
	UserAgent string
}

type Service struct {
	events    auditevents.Repository
	trees     merkletrees.Repository
	summaries auditsummaries.Repository
	sanitizer *Sanitizer
	fallback  *FallbackBuffer
	log       logging.Logger

	retentionDays int

	mu    sync.RWMutex
	actor Actor

	now func() time.Time
}

func NewService(
	events auditevents.Repository,
	trees merkletrees.Repository,
	summaries auditsummaries.Repository,
	sanitizer *Sanitizer,
	fallback *FallbackBuffer,
	retentionDays int,
	log logging.Logger,
) *Service {
	return &Service{
		events:        events,
		trees:         trees,
		summaries:     summaries,
		sanitizer:     sanitizer,
		fallback:      fallback,
		retentionDays: retentionDays,
		log:           log,
		now:           time.Now,
	}
}

// SetActor installs the identity attached to subsequently recorded events.
func (s *Service) SetActor(actor Actor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actor = actor
}

func (s *Service) currentActor() Actor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.actor
}

// Record sanitizes data, builds the event, hashes and persists it. Unknown
// event types and entities are logged but accepted, so new action kinds do
// not lose their audit trail while the enumeration catches up. On persistence
// failure the event lands in the fallback buffer and the error is returned.
func (s *Service) Record(ctx context.Context, eventType models.EventType, entity models.Entity, entityID string, data map[string]any) (*models.AuditEvent, error) {
	if _, ok := models.KnownEventTypes[eventType]; !ok {
		s.log.Warn(ctx, "unknown audit event type", "event_type", eventType)
	}
	if _, ok := models.KnownEntities[entity]; !ok {
		s.log.Warn(ctx, "unknown audit entity", "entity", entity)
	}

	actor := s.currentActor()
	event := &models.AuditEvent{
		ID:        uuid.NewString(),
		Timestamp: s.now(),
		EventType: eventType,
		Entity:    entity,
		EntityID:  entityID,
		UserID:    actor.UserID,
		UserIP:    actor.UserIP,
		UserAgent: actor.UserAgent,
		Data:      s.sanitizer.Sanitize(data),
	}

	hash, err := cryptox.HashEvent(event)
	if err != nil {
		return nil, err
	}
	event.Hash = hash

	if err := s.events.Insert(ctx, event); err != nil {
		s.fallback.Add(event)
		s.log.Error(ctx, "audit event persistence failed, buffered",
			"event_id", event.ID, "buffered", s.fallback.Len(), "error", err)
		return event, err
	}
	return event, nil
}

// FlushFallback retries persistence of buffered events. Events that fail
// again go back into the buffer.
func (s *Service) FlushFallback(ctx context.Context) int {
	buffered := s.fallback.Drain()
	flushed := 0
	for _, event := range buffered {
		if err := s.events.Insert(ctx, event); err != nil {
			s.fallback.Add(event)
			continue
		}
		flushed++
	}
	if flushed > 0 {
		s.log.Info(ctx, "flushed buffered audit events", "count", flushed)
	}
	return flushed
}

// VerifyIntegrity recomputes the event's hash and, when the event is anchored
// in a Merkle tree, checks that the tree actually references it. Mismatches
// are reported in the result, never raised as errors.
func (s *Service) VerifyIntegrity(ctx context.Context, eventID string) (*models.IntegrityResult, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	hash, err := cryptox.HashEvent(event)
	if err != nil {
		return nil, err
	}

	result := &models.IntegrityResult{
		HashValid: hash == event.Hash,
		// Vacuously true until the event is consolidated.
		MerkleProofValid: true,
	}

	if event.MerkleTreeID != "" {
		tree, err := s.trees.GetByID(ctx, event.MerkleTreeID)
		if err != nil {
			return nil, fmt.Errorf("failed to load tree %s: %w", event.MerkleTreeID, err)
		}
		result.MerkleProofValid = false
		for _, id := range tree.EventIDs {
			if id == event.ID {
				result.MerkleProofValid = true
				break
			}
		}
	}

	result.OverallValid = result.HashValid && result.MerkleProofValid
	return result, nil
}

// Search returns events matching filter, paginated per opts.
func (s *Service) Search(ctx context.Context, filter models.AuditFilter, opts models.SearchOptions) ([]*models.AuditEvent, error) {
	return s.events.Search(ctx, filter, opts)
}

// Consolidate rolls detailed events older than the retention window into
// day+entity+eventType summary rows, then prunes them. Only events already
// anchored in a Merkle tree are eligible; unconsolidated events always stay.
func (s *Service) Consolidate(ctx context.Context) (int64, error) {
	cutoff := s.now().AddDate(0, 0, -s.retentionDays)

	rollup, err := s.events.SummarizeBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(rollup) == 0 {
		return 0, nil
	}

	if err := s.summaries.UpsertRollup(ctx, rollup); err != nil {
		return 0, err
	}

	pruned, err := s.events.DeleteConsolidatedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("rollup written but prune failed: %w", err)
	}

	s.log.Info(ctx, "audit log consolidated",
		"buckets", len(rollup), "pruned", pruned, "cutoff", cutoff.Format("2006-01-02"))
	return pruned, nil
}

// Summaries lists rollup rows between the given days (inclusive, YYYY-MM-DD,
// empty means unbounded).
func (s *Service) Summaries(ctx context.Context, fromDay, toDay string) ([]models.AuditSummary, error) {
	return s.summaries.List(ctx, fromDay, toDay)
}
