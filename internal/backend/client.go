// Package backend defines the seam to the remote server. The sync engine and
// connectivity monitor only see the Client interface; tests inject
// deterministic fakes and production wires the HTTP implementation.
package backend

import (
	"context"

	"github.com/advocatech/lexsync/internal/models"
)

// Client is the capability surface the core needs from the remote backend.
// Errors are mapped onto the sentinels in internal/common: ErrUnavailable for
// transient failures, ErrConflict when the server holds a newer version,
// ErrRejected for permanent refusals, ErrNotFound and ErrUnauthorized as
// usual.
type Client interface {
	// Ping probes reachability; used by the connectivity monitor.
	Ping(ctx context.Context) error

	// Fetch returns the server's current version of a record.
	Fetch(ctx context.Context, collection, id string) (*models.Record, error)

	// Upsert applies a local insert/update remotely.
	Upsert(ctx context.Context, collection string, rec *models.Record) error

	// ForceUpsert applies the record even if the server holds a newer
	// version. Used by conflict resolution when the local copy wins.
	ForceUpsert(ctx context.Context, collection string, rec *models.Record) error

	// Delete removes a record remotely. Deleting an unknown id is not an
	// error; the intent is already satisfied.
	Delete(ctx context.Context, collection, id string) error

	Close() error
}
