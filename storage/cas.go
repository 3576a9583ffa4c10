package storage

import (
	"context"

	"github.com/ipfs/go-cid"
)

// CAS is a content-addressed block store.
//
// Contract:
//   - Put MUST be idempotent: storing the same block twice is not an error.
//   - Stored blocks MUST be immutable.
//   - The caller derives id from data; adapters MUST verify the pair and return
//     ErrCIDMismatch when data does not hash to id.
//   - Get MUST return ErrNotFound when the CID is absent.
//   - Every call observes ctx; cancellation errors are returned unwrapped or
//     wrapped so errors.Is(err, context.Canceled) holds.
type CAS interface {
	Put(ctx context.Context, id cid.Cid, data []byte) error
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
	Has(ctx context.Context, id cid.Cid) (bool, error)
}
