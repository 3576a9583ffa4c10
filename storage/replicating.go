package storage

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"

	"xdao.co/dagstore/cidutil"
)

// NamedCAS associates a CAS with a stable backend name.
type NamedCAS struct {
	Name string
	CAS  CAS
}

// ReplicatingCAS writes to all configured backends.
//
// Reads fall back in order. A write succeeds only when every backend accepted
// the block.
type ReplicatingCAS struct {
	Backends []NamedCAS
}

var _ CAS = ReplicatingCAS{}

// PutAll writes the block to every backend in order and reports which backends
// accepted it. It stops at the first failure.
func (r ReplicatingCAS) PutAll(ctx context.Context, id cid.Cid, data []byte) ([]string, error) {
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	if err := cidutil.Verify(id, data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCIDMismatch, err)
	}
	if len(r.Backends) == 0 {
		return nil, fmt.Errorf("storage: ReplicatingCAS has no backends")
	}

	written := make([]string, 0, len(r.Backends))
	for _, b := range r.Backends {
		if b.CAS == nil {
			return written, fmt.Errorf("storage: nil CAS for backend %q", b.Name)
		}
		if err := b.CAS.Put(ctx, id, data); err != nil {
			return written, fmt.Errorf("storage: backend %q: %w", b.Name, err)
		}
		written = append(written, b.Name)
	}
	return written, nil
}

func (r ReplicatingCAS) Put(ctx context.Context, id cid.Cid, data []byte) error {
	_, err := r.PutAll(ctx, id, data)
	return err
}

func (r ReplicatingCAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	for _, b := range r.Backends {
		if b.CAS == nil {
			continue
		}
		out, err := b.CAS.Get(ctx, id)
		if err == nil {
			return out, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (r ReplicatingCAS) Has(ctx context.Context, id cid.Cid) (bool, error) {
	for _, b := range r.Backends {
		if b.CAS == nil {
			continue
		}
		ok, err := b.CAS.Has(ctx, id)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
