package merkletrees

import (
	"context"

	"github.com/advocatech/lexsync/internal/models"
)

// Repository persists Merkle tree records. Trees are written once by the
// consolidation engine; only the timestamp proof may be attached later.
type Repository interface {
	Insert(ctx context.Context, tree *models.MerkleTree) error
	GetByID(ctx context.Context, id string) (*models.MerkleTree, error)
	SetProof(ctx context.Context, id string, proof *models.TimestampProof) error
	List(ctx context.Context, limit int) ([]*models.MerkleTree, error)
}
