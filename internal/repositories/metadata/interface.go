package metadata

import (
	"context"
)

// Repository is a small key-value table used for consolidation bookkeeping
// (last-consolidation and last-tree-generation timestamps) and explicit
// counter state such as the daily API usage counter with its last-reset
// timestamp.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
