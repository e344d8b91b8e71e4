package store

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advocatech/lexsync/internal/common"
	"github.com/advocatech/lexsync/internal/logging"
	"github.com/advocatech/lexsync/internal/models"
	"github.com/advocatech/lexsync/internal/repositories/records"
	"github.com/advocatech/lexsync/internal/repositories/syncqueue"
	"github.com/advocatech/lexsync/internal/storage"

	_ "modernc.org/sqlite"
)

func setupStore(t *testing.T) (*Store, syncqueue.Repository) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE records (
  collection TEXT NOT NULL,
  id TEXT NOT NULL,
  data TEXT NOT NULL,
  updated_at INTEGER NOT NULL,
  PRIMARY KEY (collection, id)
);
CREATE TABLE record_index (
  collection TEXT NOT NULL,
  idx TEXT NOT NULL,
  value TEXT NOT NULL,
  record_id TEXT NOT NULL,
  PRIMARY KEY (collection, idx, value, record_id)
);
CREATE TABLE sync_queue (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  collection TEXT NOT NULL,
  record_id TEXT NOT NULL,
  op TEXT NOT NULL,
  payload TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  attempts INTEGER NOT NULL DEFAULT 0,
  last_error TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);
`)
	require.NoError(t, err)

	schema := storage.DefaultSchema()
	queue := syncqueue.NewSQLiteRepository(db)
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return NewStore(records.NewSQLiteRepository(db, schema), queue, schema, log), queue
}

func TestSave_GeneratesIDAndEnqueues(t *testing.T) {
	s, queue := setupStore(t)
	ctx := context.Background()

	rec, err := s.Save(ctx, "clientes", map[string]any{"nome": "Ana"}, models.DurabilityLocalAndQueue)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, rec.ID, rec.Data["id"])

	pending, err := queue.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.OpInsert, pending[0].Op)
	assert.Equal(t, rec.ID, pending[0].RecordID)
	assert.Equal(t, "clientes", pending[0].Collection)
}

func TestSave_UpsertIdempotent(t *testing.T) {
	s, queue := setupStore(t)
	ctx := context.Background()

	data := map[string]any{"id": "c1", "nome": "João"}
	first, err := s.Save(ctx, "clientes", data, models.DurabilityLocalAndQueue)
	require.NoError(t, err)
	second, err := s.Save(ctx, "clientes", data, models.DurabilityLocalAndQueue)
	require.NoError(t, err)

	all, err := s.GetAll(ctx, "clientes", 0)
	require.NoError(t, err)
	require.Len(t, all, 1, "same id twice must not duplicate the record")

	assert.True(t, second.UpdatedAt.After(first.UpdatedAt), "updated_at must strictly increase")

	pending, err := queue.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, models.OpInsert, pending[0].Op)
	assert.Equal(t, models.OpUpdate, pending[1].Op)
}

func TestSave_LocalOnlySkipsQueue(t *testing.T) {
	s, queue := setupStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, "clientes", map[string]any{"id": "c1", "nome": "Ana"}, models.DurabilityLocalOnly)
	require.NoError(t, err)

	pending, err := queue.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSave_UnknownCollection(t *testing.T) {
	s, _ := setupStore(t)

	_, err := s.Save(context.Background(), "nope", map[string]any{"id": "x"}, models.DurabilityLocalOnly)
	require.ErrorIs(t, err, common.ErrUnknownCollection)
}

func TestSave_DuplicateUniqueIndexEnqueuesNothing(t *testing.T) {
	s, queue := setupStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, "clientes", map[string]any{"id": "c1", "cpf": "111"}, models.DurabilityLocalAndQueue)
	require.NoError(t, err)

	_, err = s.Save(ctx, "clientes", map[string]any{"id": "c2", "cpf": "111"}, models.DurabilityLocalAndQueue)
	require.ErrorIs(t, err, common.ErrDuplicate)

	pending, err := queue.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "the rejected save must not enqueue")
}

func TestDelete(t *testing.T) {
	s, queue := setupStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, "clientes", map[string]any{"id": "c1"}, models.DurabilityLocalOnly)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "clientes", "c1", models.DurabilityLocalAndQueue))

	_, err = s.Get(ctx, "clientes", "c1")
	require.ErrorIs(t, err, common.ErrNotFound)

	pending, err := queue.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.OpDelete, pending[0].Op)
}

func TestDelete_MissingEnqueuesNothing(t *testing.T) {
	s, queue := setupStore(t)
	ctx := context.Background()

	err := s.Delete(ctx, "clientes", "ghost", models.DurabilityLocalAndQueue)
	require.ErrorIs(t, err, common.ErrNotFound)

	pending, err := queue.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestQueryByIndex(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, "processos", map[string]any{"id": "p1", "numero": "0001", "status": "ativo"}, models.DurabilityLocalOnly)
	require.NoError(t, err)
	_, err = s.Save(ctx, "processos", map[string]any{"id": "p2", "numero": "0002", "status": "ativo"}, models.DurabilityLocalOnly)
	require.NoError(t, err)
	_, err = s.Save(ctx, "processos", map[string]any{"id": "p3", "numero": "0003", "status": "arquivado"}, models.DurabilityLocalOnly)
	require.NoError(t, err)

	got, err := s.QueryByIndex(ctx, "processos", "por_status", "ativo")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = s.QueryByIndex(ctx, "processos", "por_juiz", "x")
	require.ErrorIs(t, err, common.ErrInvalidIndex)
}

func TestApplyRemote_SkipsQueue(t *testing.T) {
	s, queue := setupStore(t)
	ctx := context.Background()

	remote := &models.Record{ID: "c1", Data: map[string]any{"id": "c1", "nome": "Remota"}}
	require.NoError(t, s.ApplyRemote(ctx, "clientes", remote))

	got, err := s.Get(ctx, "clientes", "c1")
	require.NoError(t, err)
	assert.Equal(t, "Remota", got.Data["nome"])

	pending, err := queue.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
