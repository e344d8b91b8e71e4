// Package syncx drains the sync queue against the remote backend. The engine
// runs one drain at a time, applies entries in enqueue order, retries
// transient failures up to a ceiling and resolves concurrent-edit conflicts
// by last-write-wins on updated_at.
package syncx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/advocatech/lexsync/internal/backend"
	"github.com/advocatech/lexsync/internal/common"
	"github.com/advocatech/lexsync/internal/logging"
	"github.com/advocatech/lexsync/internal/models"
	"github.com/advocatech/lexsync/internal/quota"
	"github.com/advocatech/lexsync/internal/repositories/syncqueue"
	"github.com/advocatech/lexsync/internal/store"
)

// State is what the engine is doing right now.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
)

// Result summarizes how the last drain ended.
type Result string

const (
	// ResultComplete means every pending entry reached a terminal state.
	ResultComplete Result = "complete"
	// ResultPartial means the drain ran but entries remain pending.
	ResultPartial Result = "partial"
	// ResultError means the drain itself aborted, e.g. the backend was
	// unreachable. The engine returns to idle and retries on the next trigger.
	ResultError Result = "error"
)

// Status is a snapshot for status indicators.
type Status struct {
	State      State
	Online     bool
	LastResult Result
	LastSyncAt time.Time
	LastError  string
	Counts     models.QueueCounts
}

type Engine struct {
	queue   syncqueue.Repository
	store   *store.Store
	backend backend.Client
	log     logging.Logger

	maxAttempts      int
	cleanupAfterDays int
	interval         time.Duration

	// usage, when set, tallies remote round-trips per day.
	usage *quota.DailyCounter

	kick chan struct{}

	mu         sync.Mutex
	state      State
	online     bool
	lastResult Result
	lastSyncAt time.Time
	lastError  string

	now func() time.Time
}

func NewEngine(
	queue syncqueue.Repository,
	st *store.Store,
	client backend.Client,
	maxAttempts int,
	cleanupAfterDays int,
	interval time.Duration,
	log logging.Logger,
) *Engine {
	return &Engine{
		queue:            queue,
		store:            st,
		backend:          client,
		log:              log,
		maxAttempts:      maxAttempts,
		cleanupAfterDays: cleanupAfterDays,
		interval:         interval,
		kick:             make(chan struct{}, 1),
		state:            StateIdle,
		now:              time.Now,
	}
}

// SetUsageCounter installs a daily tally of remote round-trips.
func (e *Engine) SetUsageCounter(counter *quota.DailyCounter) {
	e.usage = counter
}

// SetOnline records the connectivity state. The offline->online transition
// triggers a drain; while offline drains are deferred, never attempted.
func (e *Engine) SetOnline(online bool) {
	e.mu.Lock()
	wasOnline := e.online
	e.online = online
	e.mu.Unlock()

	if online && !wasOnline {
		e.TriggerSync()
	}
}

// TriggerSync requests a drain on the run loop. Never blocks; a drain already
// requested absorbs further triggers.
func (e *Engine) TriggerSync() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Status reports the engine and queue state.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	counts, err := e.queue.Counts(ctx)
	if err != nil {
		return Status{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		State:      e.state,
		Online:     e.online,
		LastResult: e.lastResult,
		LastSyncAt: e.lastSyncAt,
		LastError:  e.lastError,
		Counts:     counts,
	}, nil
}

// Run drains on the configured interval and on explicit triggers until ctx is
// cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-e.kick:
		}
		e.Sync(ctx)
	}
}

// Sync runs one drain pass if the engine is online and not already syncing.
func (e *Engine) Sync(ctx context.Context) {
	e.mu.Lock()
	if !e.online || e.state == StateSyncing {
		e.mu.Unlock()
		return
	}
	e.state = StateSyncing
	e.mu.Unlock()

	result, err := e.drain(ctx)

	e.mu.Lock()
	e.state = StateIdle
	e.lastResult = result
	e.lastSyncAt = e.now()
	if err != nil {
		e.lastError = err.Error()
	} else {
		e.lastError = ""
	}
	e.mu.Unlock()

	if err != nil {
		e.log.Warn(ctx, "sync pass aborted", "error", err)
	}
}

// drain applies pending entries in Seq order. An unreachable backend aborts
// the pass without consuming the current entry's attempts; entry-specific
// failures are retried up to the ceiling and then parked as failed.
func (e *Engine) drain(ctx context.Context) (Result, error) {
	pending, err := e.queue.Pending(ctx)
	if err != nil {
		return ResultError, err
	}
	if len(pending) == 0 {
		return ResultComplete, nil
	}

	var completed, failed int
	for _, entry := range pending {
		err := e.apply(ctx, entry)
		if e.usage != nil {
			if _, cerr := e.usage.Add(ctx, 1); cerr != nil {
				e.log.Warn(ctx, "usage counter update failed", "error", cerr)
			}
		}
		switch {
		case err == nil:
			if err := e.queue.MarkCompleted(ctx, entry.Seq); err != nil {
				return ResultError, err
			}
			completed++

		case errors.Is(err, common.ErrUnavailable):
			// Not the entry's fault; defer the rest of the pass.
			e.log.Info(ctx, "backend unreachable, deferring sync",
				"seq", entry.Seq, "remaining", len(pending)-completed-failed)
			return ResultError, err

		default:
			if entry.Attempts+1 >= e.maxAttempts {
				if err := e.queue.MarkFailed(ctx, entry.Seq, err.Error()); err != nil {
					return ResultError, err
				}
				failed++
				e.log.Error(ctx, "queue entry failed permanently",
					"seq", entry.Seq, "collection", entry.Collection, "record_id", entry.RecordID, "error", err)
			} else {
				if err := e.queue.MarkRetry(ctx, entry.Seq, err.Error()); err != nil {
					return ResultError, err
				}
			}
		}
	}

	e.log.Info(ctx, "queue drained",
		"processed", len(pending), "completed", completed, "failed", failed)

	if completed+failed < len(pending) {
		return ResultPartial, nil
	}
	return ResultComplete, nil
}

func (e *Engine) apply(ctx context.Context, entry *models.QueueEntry) error {
	switch entry.Op {
	case models.OpDelete:
		return e.backend.Delete(ctx, entry.Collection, entry.RecordID)

	case models.OpInsert, models.OpUpdate:
		rec := e.currentRecord(ctx, entry)
		err := e.backend.Upsert(ctx, entry.Collection, rec)
		if errors.Is(err, common.ErrConflict) {
			return e.resolveConflict(ctx, entry, rec)
		}
		return err

	default:
		return fmt.Errorf("unknown queue operation %q", entry.Op)
	}
}

// currentRecord prefers the live local record so the drain pushes the latest
// state; if the record was deleted after enqueue, the captured payload is
// pushed as written.
func (e *Engine) currentRecord(ctx context.Context, entry *models.QueueEntry) *models.Record {
	rec, err := e.store.Get(ctx, entry.Collection, entry.RecordID)
	if err == nil {
		return rec
	}
	return &models.Record{ID: entry.RecordID, Data: entry.Payload, UpdatedAt: entry.CreatedAt}
}

// resolveConflict applies last-write-wins by updated_at. A newer local copy
// is forced onto the server; a newer remote copy is written back locally
// without re-enqueueing.
func (e *Engine) resolveConflict(ctx context.Context, entry *models.QueueEntry, local *models.Record) error {
	remote, err := e.backend.Fetch(ctx, entry.Collection, entry.RecordID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// Conflict with a record the server no longer has; push ours.
			return e.backend.ForceUpsert(ctx, entry.Collection, local)
		}
		return err
	}

	if local.UpdatedAt.After(remote.UpdatedAt) {
		e.log.Info(ctx, "conflict resolved, local copy wins",
			"collection", entry.Collection, "record_id", entry.RecordID)
		return e.backend.ForceUpsert(ctx, entry.Collection, local)
	}

	e.log.Info(ctx, "conflict resolved, remote copy wins",
		"collection", entry.Collection, "record_id", entry.RecordID)
	return e.store.ApplyRemote(ctx, entry.Collection, remote)
}

// Cleanup purges completed entries older than the configured grace period.
// Pending and failed entries are never touched.
func (e *Engine) Cleanup(ctx context.Context) (int64, error) {
	cutoff := e.now().AddDate(0, 0, -e.cleanupAfterDays)
	purged, err := e.queue.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		e.log.Info(ctx, "queue cleanup", "purged", purged)
	}
	return purged, nil
}
