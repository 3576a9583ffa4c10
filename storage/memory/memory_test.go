package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/dagstore/cidutil"
	"xdao.co/dagstore/storage"
	"xdao.co/dagstore/storage/testkit"
)

func TestMemory_Conformance(t *testing.T) {
	newCAS := func(t *testing.T) storage.CAS {
		return New()
	}
	testkit.RunCASConformance(t, newCAS)
	testkit.RunConcurrentConformance(t, newCAS)
}

func TestMemory_CopiesBlocks(t *testing.T) {
	ctx := context.Background()
	cas := New()
	data := []byte("block")
	id, err := cidutil.Compute(data, cid.Raw, "sha2-256")
	if err != nil {
		t.Fatal(err)
	}
	if err := cas.Put(ctx, id, data); err != nil {
		t.Fatal(err)
	}
	data[0] = 'X'

	got, err := cas.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "block" {
		t.Fatalf("stored block aliased caller buffer: %q", got)
	}
	got[0] = 'Y'
	again, _ := cas.Get(ctx, id)
	if string(again) != "block" {
		t.Fatalf("returned block aliases store: %q", again)
	}
	if cas.Len() != 1 {
		t.Fatalf("Len = %d", cas.Len())
	}
}

func TestMemory_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	id, _ := cidutil.Compute([]byte("x"), cid.Raw, "sha2-256")
	if _, err := New().Get(ctx, id); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v want context.Canceled", err)
	}
}
