package merkle

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advocatech/lexsync/internal/cryptox"
	"github.com/advocatech/lexsync/internal/logging"
	"github.com/advocatech/lexsync/internal/models"
	"github.com/advocatech/lexsync/internal/repositories/auditevents"
	"github.com/advocatech/lexsync/internal/repositories/merkletrees"
	"github.com/advocatech/lexsync/internal/repositories/metadata"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE audit_events (
  id TEXT PRIMARY KEY,
  ts INTEGER NOT NULL,
  event_type TEXT NOT NULL,
  entity TEXT NOT NULL,
  entity_id TEXT NOT NULL DEFAULT '',
  user_id TEXT NOT NULL DEFAULT '',
  user_ip TEXT NOT NULL DEFAULT '',
  user_agent TEXT NOT NULL DEFAULT '',
  data TEXT NOT NULL DEFAULT '{}',
  hash TEXT NOT NULL,
  merkle_tree_id TEXT
);
CREATE TABLE merkle_trees (
  id TEXT PRIMARY KEY,
  created_at INTEGER NOT NULL,
  root_hash TEXT NOT NULL,
  height INTEGER NOT NULL,
  event_ids TEXT NOT NULL,
  first_event_at INTEGER NOT NULL,
  last_event_at INTEGER NOT NULL,
  proof TEXT
);
CREATE TABLE metadata (key TEXT PRIMARY KEY, value BLOB NOT NULL);
`)
	require.NoError(t, err)
	return db
}

func newEngine(t *testing.T, db *sql.DB, ts Timestamper, batchSize int, interval time.Duration) *Engine {
	t.Helper()
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return NewEngine(
		auditevents.NewSQLiteRepository(db),
		merkletrees.NewSQLiteRepository(db),
		metadata.NewSQLiteRepository(db),
		ts,
		batchSize,
		interval,
		log,
	)
}

func insertEvents(t *testing.T, db *sql.DB, n int, base time.Time) []string {
	t.Helper()
	events := auditevents.NewSQLiteRepository(db)
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		event := &models.AuditEvent{
			ID:        fmt.Sprintf("e%04d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
			EventType: models.EventCreate,
			Entity:    models.EntityCliente,
			EntityID:  fmt.Sprintf("c%d", i),
		}
		hash, err := cryptox.HashEvent(event)
		require.NoError(t, err)
		event.Hash = hash
		require.NoError(t, events.Insert(context.Background(), event))
		ids[i] = event.ID
	}
	return ids
}

func TestConsolidateOnce_NothingPending(t *testing.T) {
	db := setupDB(t)
	e := newEngine(t, db, nil, 500, 6*time.Hour)

	tree, err := e.ConsolidateOnce(context.Background())
	require.NoError(t, err)
	assert.Nil(t, tree)
}

func TestConsolidateOnce_BatchCap(t *testing.T) {
	db := setupDB(t)
	e := newEngine(t, db, nil, 500, 6*time.Hour)
	ctx := context.Background()

	insertEvents(t, db, 501, time.Now().Add(-time.Hour))

	tree, err := e.ConsolidateOnce(ctx)
	require.NoError(t, err)
	require.NotNil(t, tree)

	// Exactly the oldest 500, chronologically, end up in the tree.
	assert.Len(t, tree.EventIDs, 500)
	assert.Equal(t, "e0000", tree.EventIDs[0])
	assert.Equal(t, "e0499", tree.EventIDs[499])

	left, err := auditevents.NewSQLiteRepository(db).CountUnconsolidated(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, left)

	// The back-fill is visible on a covered event.
	covered, err := auditevents.NewSQLiteRepository(db).GetByID(ctx, "e0123")
	require.NoError(t, err)
	assert.Equal(t, tree.ID, covered.MerkleTreeID)
}

func TestConsolidateOnce_LocalProofByDefault(t *testing.T) {
	db := setupDB(t)
	e := newEngine(t, db, nil, 500, 6*time.Hour)
	ctx := context.Background()

	insertEvents(t, db, 3, time.Now())

	tree, err := e.ConsolidateOnce(ctx)
	require.NoError(t, err)
	require.NotNil(t, tree.Proof)
	assert.Equal(t, models.ProofSourceLocal, tree.Proof.Source)
	assert.Equal(t, tree.RootHash, tree.Proof.RootHash)
	assert.Equal(t, 2, tree.Height)

	stored, err := merkletrees.NewSQLiteRepository(db).GetByID(ctx, tree.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Proof)
	assert.Equal(t, models.ProofSourceLocal, stored.Proof.Source)
}

func TestConsolidateOnce_AuthorityProof(t *testing.T) {
	authority := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"tsa-token-1","issued_at":"2026-06-01T12:00:00Z"}`))
	}))
	defer authority.Close()

	db := setupDB(t)
	e := newEngine(t, db, NewHTTPTimestamper(authority.URL), 500, 6*time.Hour)

	insertEvents(t, db, 2, time.Now())

	tree, err := e.ConsolidateOnce(context.Background())
	require.NoError(t, err)
	require.NotNil(t, tree.Proof)
	assert.Equal(t, models.ProofSourceAuthority, tree.Proof.Source)
	assert.Equal(t, "tsa-token-1", tree.Proof.Token)
}

// failingTimestamper simulates a permanently unreachable authority.
type failingTimestamper struct{}

func (failingTimestamper) Timestamp(context.Context, string) (*models.TimestampProof, error) {
	return nil, fmt.Errorf("authority unreachable")
}

func TestConsolidateOnce_FallsBackToLocalProof(t *testing.T) {
	db := setupDB(t)
	e := newEngine(t, db, failingTimestamper{}, 500, 6*time.Hour)

	insertEvents(t, db, 2, time.Now())

	tree, err := e.ConsolidateOnce(context.Background())
	require.NoError(t, err)
	require.NotNil(t, tree.Proof)
	assert.Equal(t, models.ProofSourceLocal, tree.Proof.Source)
}

func TestVerifyTreeIntegrity_RoundTrip(t *testing.T) {
	db := setupDB(t)
	e := newEngine(t, db, nil, 500, 6*time.Hour)
	ctx := context.Background()

	insertEvents(t, db, 5, time.Now())
	tree, err := e.ConsolidateOnce(ctx)
	require.NoError(t, err)

	res, err := e.VerifyTreeIntegrity(ctx, tree.ID)
	require.NoError(t, err)
	assert.True(t, res.CountValid)
	assert.True(t, res.RootValid)
	assert.True(t, res.ProofValid)
	assert.True(t, res.OverallValid)
	assert.Equal(t, 5, res.EventCount)
}

func TestVerifyTreeIntegrity_DetectsTamperedEvent(t *testing.T) {
	db := setupDB(t)
	e := newEngine(t, db, nil, 500, 6*time.Hour)
	ctx := context.Background()

	insertEvents(t, db, 4, time.Now())
	tree, err := e.ConsolidateOnce(ctx)
	require.NoError(t, err)

	_, err = db.Exec(`UPDATE audit_events SET entity_id = 'tampered' WHERE id = 'e0002'`)
	require.NoError(t, err)

	res, err := e.VerifyTreeIntegrity(ctx, tree.ID)
	require.NoError(t, err)
	assert.True(t, res.CountValid)
	assert.False(t, res.RootValid)
	assert.False(t, res.OverallValid)
}

func TestVerifyTreeIntegrity_DetectsRemovedEvent(t *testing.T) {
	db := setupDB(t)
	e := newEngine(t, db, nil, 500, 6*time.Hour)
	ctx := context.Background()

	insertEvents(t, db, 4, time.Now())
	tree, err := e.ConsolidateOnce(ctx)
	require.NoError(t, err)

	_, err = db.Exec(`DELETE FROM audit_events WHERE id = 'e0001'`)
	require.NoError(t, err)

	res, err := e.VerifyTreeIntegrity(ctx, tree.ID)
	require.NoError(t, err)
	assert.False(t, res.CountValid)
	assert.Equal(t, []string{"e0001"}, res.MissingIDs)
	assert.Equal(t, 3, res.EventCount)
	assert.False(t, res.OverallValid)
}

func TestConsolidateIfDue_TimeTrigger(t *testing.T) {
	db := setupDB(t)
	e := newEngine(t, db, nil, 500, 6*time.Hour)
	ctx := context.Background()

	insertEvents(t, db, 10, time.Now().Add(-time.Hour))

	// Below the batch threshold and no prior consolidation on record: the
	// zero last-consolidation time means the interval has long elapsed.
	require.NoError(t, e.consolidateIfDue(ctx))

	left, err := auditevents.NewSQLiteRepository(db).CountUnconsolidated(ctx)
	require.NoError(t, err)
	assert.Zero(t, left)

	// Immediately afterwards nothing is due: no events, fresh timestamp.
	require.NoError(t, e.consolidateIfDue(ctx))

	trees, err := merkletrees.NewSQLiteRepository(db).List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, trees, 1)
}

func TestConsolidateIfDue_BelowThresholdAndRecent(t *testing.T) {
	db := setupDB(t)
	e := newEngine(t, db, nil, 500, 6*time.Hour)
	ctx := context.Background()

	now := time.Now()
	e.now = func() time.Time { return now }

	// Simulate a consolidation moments ago.
	require.NoError(t, metadata.NewSQLiteRepository(db).Set(ctx, metaLastConsolidation,
		[]byte(fmt.Sprintf("%d", now.Add(-time.Minute).UnixNano()))))

	insertEvents(t, db, 10, now.Add(-time.Hour))
	require.NoError(t, e.consolidateIfDue(ctx))

	left, err := auditevents.NewSQLiteRepository(db).CountUnconsolidated(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, left, "neither trigger fired")
}

func TestConsolidateIfDue_DrainsBurstInFullChunks(t *testing.T) {
	db := setupDB(t)
	e := newEngine(t, db, nil, 4, 6*time.Hour)
	ctx := context.Background()

	insertEvents(t, db, 9, time.Now().Add(-time.Hour))
	require.NoError(t, e.consolidateIfDue(ctx))

	// Two full batches are cut; the 9th event waits for the next trigger.
	left, err := auditevents.NewSQLiteRepository(db).CountUnconsolidated(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, left)

	trees, err := merkletrees.NewSQLiteRepository(db).List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, trees, 2)
}

func TestConsolidateIfDue_RemainderWaitsForNextTrigger(t *testing.T) {
	db := setupDB(t)
	e := newEngine(t, db, nil, 4, 6*time.Hour)
	ctx := context.Background()

	now := time.Now()
	e.now = func() time.Time { return now }

	insertEvents(t, db, 5, now.Add(-time.Hour))
	require.NoError(t, e.consolidateIfDue(ctx))

	trees, err := merkletrees.NewSQLiteRepository(db).List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, trees, 1)
	assert.Len(t, trees[0].EventIDs, 4)

	left, err := auditevents.NewSQLiteRepository(db).CountUnconsolidated(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, left)

	// The consolidation just stamped the clock, so a re-run leaves the
	// remainder alone until the interval elapses.
	require.NoError(t, e.consolidateIfDue(ctx))
	left, err = auditevents.NewSQLiteRepository(db).CountUnconsolidated(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, left)

	// Once it does, the time trigger picks the remainder up.
	e.now = func() time.Time { return now.Add(7 * time.Hour) }
	require.NoError(t, e.consolidateIfDue(ctx))
	left, err = auditevents.NewSQLiteRepository(db).CountUnconsolidated(ctx)
	require.NoError(t, err)
	assert.Zero(t, left)
}
