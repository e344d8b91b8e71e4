// Package store implements the offline-first local entity store: a durable
// SQLite mirror of server entities, partitioned into collections with
// declared secondary indexes. Writes optionally enqueue a sync queue entry so
// the mutation reaches the remote backend once connectivity allows.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/advocatech/lexsync/internal/common"
	"github.com/advocatech/lexsync/internal/logging"
	"github.com/advocatech/lexsync/internal/models"
	"github.com/advocatech/lexsync/internal/repositories/records"
	"github.com/advocatech/lexsync/internal/repositories/syncqueue"
	"github.com/advocatech/lexsync/internal/storage"
)

type Store struct {
	records records.Repository
	queue   syncqueue.Repository
	schema  storage.Schema
	log     logging.Logger

	now func() time.Time
}

func NewStore(recs records.Repository, queue syncqueue.Repository, schema storage.Schema, log logging.Logger) *Store {
	return &Store{
		records: recs,
		queue:   queue,
		schema:  schema,
		log:     log,
		now:     time.Now,
	}
}

// Save upserts a record into the collection. A missing or empty "id" field
// gets a generated one; UpdatedAt is refreshed on every write and always
// strictly increases for the same id. In DurabilityLocalAndQueue mode the
// matching queue entry is appended in the same call, exactly once; the local
// write and the enqueue are one documented contract, not a hidden side
// effect.
func (s *Store) Save(ctx context.Context, collection string, data map[string]any, mode models.DurabilityMode) (*models.Record, error) {
	if _, ok := s.schema[collection]; !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrUnknownCollection, collection)
	}

	fields := make(map[string]any, len(data)+1)
	for k, v := range data {
		fields[k] = v
	}

	id, _ := fields["id"].(string)
	if id == "" {
		id = uuid.NewString()
		fields["id"] = id
	}

	existing, err := s.records.GetByID(ctx, collection, id)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	updatedAt := s.now()
	if existing != nil && !updatedAt.After(existing.UpdatedAt) {
		// Same-tick rewrite; still advance so writes stay ordered.
		updatedAt = existing.UpdatedAt.Add(time.Nanosecond)
	}

	rec := &models.Record{ID: id, Data: fields, UpdatedAt: updatedAt}
	if err := s.records.Upsert(ctx, collection, rec); err != nil {
		return nil, err
	}

	if mode == models.DurabilityLocalAndQueue {
		op := models.OpInsert
		if existing != nil {
			op = models.OpUpdate
		}
		if _, err := s.queue.Enqueue(ctx, collection, id, op, fields); err != nil {
			return nil, fmt.Errorf("record saved but enqueue failed: %w", err)
		}
	}

	return rec, nil
}

// Get returns a record or common.ErrNotFound.
func (s *Store) Get(ctx context.Context, collection, id string) (*models.Record, error) {
	if _, ok := s.schema[collection]; !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrUnknownCollection, collection)
	}
	return s.records.GetByID(ctx, collection, id)
}

// GetAll returns the collection's records, most recently updated first.
// limit <= 0 means no bound.
func (s *Store) GetAll(ctx context.Context, collection string, limit int) ([]models.Record, error) {
	if _, ok := s.schema[collection]; !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrUnknownCollection, collection)
	}
	return s.records.GetAll(ctx, collection, limit)
}

// Delete removes the record locally and, in DurabilityLocalAndQueue mode,
// enqueues the remote deletion. Deleting a missing id returns
// common.ErrNotFound and enqueues nothing.
func (s *Store) Delete(ctx context.Context, collection, id string, mode models.DurabilityMode) error {
	if _, ok := s.schema[collection]; !ok {
		return fmt.Errorf("%w: %s", common.ErrUnknownCollection, collection)
	}

	if err := s.records.Delete(ctx, collection, id); err != nil {
		return err
	}

	if mode == models.DurabilityLocalAndQueue {
		if _, err := s.queue.Enqueue(ctx, collection, id, models.OpDelete, nil); err != nil {
			return fmt.Errorf("record deleted but enqueue failed: %w", err)
		}
	}
	return nil
}

// QueryByIndex returns records whose indexed field equals value. The index
// must be declared in the schema.
func (s *Store) QueryByIndex(ctx context.Context, collection, index, value string) ([]models.Record, error) {
	if _, ok := s.schema[collection]; !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrUnknownCollection, collection)
	}
	if _, ok := s.schema.Index(collection, index); !ok {
		return nil, fmt.Errorf("%w: %s.%s", common.ErrInvalidIndex, collection, index)
	}
	return s.records.FindByIndex(ctx, collection, index, value)
}

// ApplyRemote writes a record that arrived from the backend without touching
// the sync queue. Used by conflict resolution when the remote copy wins.
func (s *Store) ApplyRemote(ctx context.Context, collection string, rec *models.Record) error {
	if _, ok := s.schema[collection]; !ok {
		return fmt.Errorf("%w: %s", common.ErrUnknownCollection, collection)
	}
	return s.records.Upsert(ctx, collection, rec)
}
