// Package testkit holds the behavioural suite every storage.CAS adapter must pass.
package testkit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/dagstore/cidutil"
	"xdao.co/dagstore/storage"
)

// NewCAS constructs a fresh, empty CAS instance for a test.
// The returned CAS MUST be isolated from other tests.
type NewCAS func(t *testing.T) storage.CAS

func blockID(t *testing.T, data []byte, codec uint64, hashAlg string) cid.Cid {
	t.Helper()
	id, err := cidutil.Compute(data, codec, hashAlg)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	return id
}

func RunCASConformance(t *testing.T, newCAS NewCAS) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		cas := newCAS(t)
		want := []byte("hello, dagstore storage")
		id := blockID(t, want, cid.Raw, "sha2-256")

		if err := cas.Put(ctx, id, want); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := cas.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch")
		}
		if err := cidutil.Verify(id, got); err != nil {
			t.Fatalf("Get returned bytes not matching requested CID: %v", err)
		}
	})

	t.Run("AnyCodecAndHash", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte{0xa1, 0x61, 'a', 0x01}
		for _, alg := range []string{"sha2-256", "sha3-512", "blake2b-256"} {
			id := blockID(t, b, cid.DagCBOR, alg)
			if err := cas.Put(ctx, id, b); err != nil {
				t.Fatalf("Put(%s) failed: %v", alg, err)
			}
			got, err := cas.Get(ctx, id)
			if err != nil {
				t.Fatalf("Get(%s) failed: %v", alg, err)
			}
			if !bytes.Equal(got, b) {
				t.Fatalf("Get(%s) bytes mismatch", alg)
			}
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("same bytes")
		id := blockID(t, b, cid.Raw, "sha2-256")

		if err := cas.Put(ctx, id, b); err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		if err := cas.Put(ctx, id, b); err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
	})

	t.Run("PutRejectsMismatch", func(t *testing.T) {
		cas := newCAS(t)
		id := blockID(t, []byte("claimed"), cid.Raw, "sha2-256")
		err := cas.Put(ctx, id, []byte("actual"))
		if !errors.Is(err, storage.ErrCIDMismatch) {
			t.Fatalf("Put mismatch: got %v want ErrCIDMismatch", err)
		}
		if ok, _ := cas.Has(ctx, id); ok {
			t.Fatalf("mismatched block was stored")
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("missing")
		id := blockID(t, b, cid.Raw, "sha2-256")

		ok, err := cas.Has(ctx, id)
		if err != nil {
			t.Fatalf("Has failed: %v", err)
		}
		if ok {
			t.Fatalf("Has returned true for missing CID")
		}
		if _, err := cas.Get(ctx, id); !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}

		if err := cas.Put(ctx, id, b); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if ok, err := cas.Has(ctx, id); err != nil || !ok {
			t.Fatalf("Has after Put: %v %v", ok, err)
		}
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		cas := newCAS(t)
		var undef cid.Cid
		if ok, _ := cas.Has(ctx, undef); ok {
			t.Fatalf("Has should be false for undefined CID")
		}
		if _, err := cas.Get(ctx, undef); err == nil {
			t.Fatalf("Get should fail for undefined CID")
		}
		if err := cas.Put(ctx, undef, []byte("x")); err == nil {
			t.Fatalf("Put should fail for undefined CID")
		}
	})
}

// RunConcurrentConformance checks that racing Puts of one block all succeed and
// that a racing Get sees either nothing or the complete block. Adapters backed
// by a single-writer resource skip it.
func RunConcurrentConformance(t *testing.T, newCAS NewCAS) {
	t.Helper()
	ctx := context.Background()
	cas := newCAS(t)
	b := bytes.Repeat([]byte("concurrent block "), 1<<12)
	id := blockID(t, b, cid.Raw, "sha2-256")

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := cas.Put(ctx, id, b); err != nil {
				errs <- fmt.Errorf("Put: %w", err)
			}
		}()
		go func() {
			defer wg.Done()
			got, err := cas.Get(ctx, id)
			switch {
			case storage.IsNotFound(err):
			case err != nil:
				errs <- fmt.Errorf("Get: %w", err)
			case !bytes.Equal(got, b):
				errs <- errors.New("Get returned partial bytes")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	got, err := cas.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get after concurrent Put failed: %v", err)
	}
	if !bytes.Equal(got, b) {
		t.Fatalf("Get bytes mismatch")
	}
}
