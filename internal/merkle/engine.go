package merkle

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/advocatech/lexsync/internal/cryptox"
	"github.com/advocatech/lexsync/internal/logging"
	"github.com/advocatech/lexsync/internal/models"
	"github.com/advocatech/lexsync/internal/repositories/auditevents"
	"github.com/advocatech/lexsync/internal/repositories/merkletrees"
	"github.com/advocatech/lexsync/internal/repositories/metadata"
)

// metaLastConsolidation stores the UnixNano of the last successful
// consolidation, so the time trigger survives restarts.
const metaLastConsolidation = "merkle_last_consolidation_at"

// pollInterval is how often the run loop re-evaluates its triggers between
// explicit notifications.
const pollInterval = time.Minute

// Engine periodically batches unconsolidated audit events into Merkle trees.
// A batch is cut when either the unconsolidated count reaches batchSize or
// interval has elapsed since the last consolidation with events waiting.
type Engine struct {
	events auditevents.Repository
	trees  merkletrees.Repository
	meta   metadata.Repository
	ts     Timestamper
	log    logging.Logger

	batchSize int
	interval  time.Duration

	kick chan struct{}
	now  func() time.Time
}

func NewEngine(
	events auditevents.Repository,
	trees merkletrees.Repository,
	meta metadata.Repository,
	ts Timestamper,
	batchSize int,
	interval time.Duration,
	log logging.Logger,
) *Engine {
	if ts == nil {
		ts = LocalTimestamper{}
	}
	return &Engine{
		events:    events,
		trees:     trees,
		meta:      meta,
		ts:        ts,
		log:       log,
		batchSize: batchSize,
		interval:  interval,
		kick:      make(chan struct{}, 1),
		now:       time.Now,
	}
}

// Notify pokes the run loop, typically after a burst of recorded events.
// Never blocks.
func (e *Engine) Notify() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Run evaluates the consolidation triggers until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-e.kick:
		}

		if err := e.consolidateIfDue(ctx); err != nil {
			e.log.Error(ctx, "merkle consolidation failed", "error", err)
		}
	}
}

func (e *Engine) consolidateIfDue(ctx context.Context) error {
	count, err := e.events.CountUnconsolidated(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}

	if count < e.batchSize {
		last, err := e.lastConsolidation(ctx)
		if err != nil {
			return err
		}
		if e.now().Sub(last) < e.interval {
			return nil
		}
		_, err = e.ConsolidateOnce(ctx)
		return err
	}

	// A burst larger than one batch is drained in full batchSize chunks.
	// A below-threshold remainder stays unconsolidated until the next
	// trigger fires.
	for count >= e.batchSize {
		tree, err := e.ConsolidateOnce(ctx)
		if err != nil || tree == nil {
			return err
		}
		count -= len(tree.EventIDs)
	}
	return nil
}

// ConsolidateOnce cuts a single batch: it collects the oldest events lacking
// a tree (capped at batchSize), builds the tree over their stored hashes,
// persists it, back-fills the events and attaches a timestamp proof. Returns
// nil when nothing is pending.
func (e *Engine) ConsolidateOnce(ctx context.Context) (*models.MerkleTree, error) {
	events, err := e.events.Unconsolidated(ctx, e.batchSize)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	leaves := make([]string, len(events))
	ids := make([]string, len(events))
	for i, event := range events {
		leaves[i] = event.Hash
		ids[i] = event.ID
	}
	root, height := BuildRoot(leaves)

	tree := &models.MerkleTree{
		ID:           uuid.NewString(),
		CreatedAt:    e.now(),
		RootHash:     root,
		Height:       height,
		EventIDs:     ids,
		FirstEventAt: events[0].Timestamp,
		LastEventAt:  events[len(events)-1].Timestamp,
	}

	if err := e.trees.Insert(ctx, tree); err != nil {
		return nil, err
	}
	if err := e.events.SetMerkleTree(ctx, tree.ID, ids); err != nil {
		return nil, err
	}

	tree.Proof = e.obtainProof(ctx, root)
	if err := e.trees.SetProof(ctx, tree.ID, tree.Proof); err != nil {
		e.log.Error(ctx, "failed to store timestamp proof", "tree_id", tree.ID, "error", err)
	}

	stamp := strconv.FormatInt(e.now().UnixNano(), 10)
	if err := e.meta.Set(ctx, metaLastConsolidation, []byte(stamp)); err != nil {
		e.log.Error(ctx, "failed to store consolidation timestamp", "error", err)
	}

	e.log.Info(ctx, "audit events consolidated",
		"tree_id", tree.ID, "events", len(ids), "height", height, "proof_source", tree.Proof.Source)
	return tree, nil
}

// obtainProof asks the configured authority and falls back to a local proof
// so an unreachable authority never blocks consolidation.
func (e *Engine) obtainProof(ctx context.Context, root string) *models.TimestampProof {
	proof, err := e.ts.Timestamp(ctx, root)
	if err == nil {
		return proof
	}
	e.log.Warn(ctx, "timestamp authority unavailable, using local proof", "error", err)
	proof, _ = LocalTimestamper{}.Timestamp(ctx, root)
	return proof
}

func (e *Engine) lastConsolidation(ctx context.Context) (time.Time, error) {
	raw, err := e.meta.Get(ctx, metaLastConsolidation)
	if err != nil {
		return time.Time{}, err
	}
	if raw == nil {
		return time.Time{}, nil
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, nil
	}
	return time.Unix(0, n), nil
}

// ListTrees returns the most recent trees, newest first.
func (e *Engine) ListTrees(ctx context.Context, limit int) ([]*models.MerkleTree, error) {
	return e.trees.List(ctx, limit)
}

// VerifyTreeIntegrity reloads the referenced events and checks that all still
// exist and that their stored hashes still reduce to the recorded root. The
// proof, when present, must cover the recorded root. Mismatches are reported
// in the result, never raised as errors.
func (e *Engine) VerifyTreeIntegrity(ctx context.Context, treeID string) (*models.TreeIntegrityResult, error) {
	tree, err := e.trees.GetByID(ctx, treeID)
	if err != nil {
		return nil, err
	}

	events, err := e.events.GetByIDs(ctx, tree.EventIDs)
	if err != nil {
		return nil, err
	}

	result := &models.TreeIntegrityResult{
		EventCount: len(events),
		CountValid: len(events) == len(tree.EventIDs),
		ProofValid: tree.Proof == nil || tree.Proof.RootHash == tree.RootHash,
	}

	if !result.CountValid {
		present := make(map[string]struct{}, len(events))
		for _, event := range events {
			present[event.ID] = struct{}{}
		}
		for _, id := range tree.EventIDs {
			if _, ok := present[id]; !ok {
				result.MissingIDs = append(result.MissingIDs, id)
			}
		}
	}

	// The root is recomputed from the events' CURRENT content, so an altered
	// event breaks RootValid even though its stored hash column still matches
	// the original tree.
	leaves := make([]string, len(events))
	for i, event := range events {
		hash, err := cryptox.HashEvent(event)
		if err != nil {
			return nil, err
		}
		leaves[i] = hash
	}
	root, _ := BuildRoot(leaves)
	result.RootValid = result.CountValid && root == tree.RootHash

	result.OverallValid = result.CountValid && result.RootValid && result.ProofValid
	return result, nil
}
