package records

import (
	"context"

	"github.com/advocatech/lexsync/internal/models"
)

// Repository describes CRUD and query operations over collection-partitioned
// entity records. Implementations are backed by the local SQLite database and
// must keep secondary index rows consistent with every stored record.
type Repository interface {
	// Upsert inserts or replaces a record by id, rewriting its index rows.
	// The caller is responsible for setting UpdatedAt.
	Upsert(ctx context.Context, collection string, rec *models.Record) error

	// GetByID returns a record or common.ErrNotFound.
	GetByID(ctx context.Context, collection, id string) (*models.Record, error)

	// GetAll returns records most-recently-updated first. limit <= 0 means
	// no bound.
	GetAll(ctx context.Context, collection string, limit int) ([]models.Record, error)

	// Delete removes the record and its index rows. Deleting a missing id
	// returns common.ErrNotFound.
	Delete(ctx context.Context, collection, id string) error

	// FindByIndex returns records whose indexed field equals value exactly.
	FindByIndex(ctx context.Context, collection, index, value string) ([]models.Record, error)
}
