// Package memory is an in-process CAS. Blocks live for the lifetime of the
// process; it backs tests and ephemeral daemons.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/dagstore/cidutil"
	"xdao.co/dagstore/storage"
)

// CAS keeps blocks in a map keyed by CID. It is safe for concurrent use.
type CAS struct {
	mu     sync.RWMutex
	blocks map[string][]byte
}

var _ storage.CAS = (*CAS)(nil)

// New returns an empty CAS.
func New() *CAS {
	return &CAS{blocks: map[string][]byte{}}
}

// Put stores a copy of data after verifying it against id. Re-putting the
// same bytes is a no-op.
func (c *CAS) Put(ctx context.Context, id cid.Cid, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !id.Defined() {
		return storage.ErrInvalidCID
	}
	if err := cidutil.Verify(id, data); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrCIDMismatch, err)
	}

	key := id.KeyString()
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.blocks[key]; ok {
		if !bytes.Equal(existing, data) {
			return storage.ErrImmutable
		}
		return nil
	}
	c.blocks[key] = append([]byte(nil), data...)
	return nil
}

// Get returns a copy of the block, or storage.ErrNotFound.
func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	c.mu.RLock()
	b, ok := c.blocks[id.KeyString()]
	c.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

// Has reports whether id is stored. An undefined CID is never present.
func (c *CAS) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !id.Defined() {
		return false, nil
	}
	c.mu.RLock()
	_, ok := c.blocks[id.KeyString()]
	c.mu.RUnlock()
	return ok, nil
}

// Len reports the number of stored blocks.
func (c *CAS) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}
