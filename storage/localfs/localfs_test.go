package localfs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/dagstore/cidutil"
	"xdao.co/dagstore/storage"
	"xdao.co/dagstore/storage/testkit"
)

func TestLocalFS_Conformance(t *testing.T) {
	newCAS := func(t *testing.T) storage.CAS {
		t.Helper()
		cas, err := New(t.TempDir())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		return cas
	}
	testkit.RunCASConformance(t, newCAS)
	testkit.RunConcurrentConformance(t, newCAS)
}

func TestLocalFS_CompressedConformance(t *testing.T) {
	newCAS := func(t *testing.T) storage.CAS {
		t.Helper()
		cas, err := NewWithOptions(t.TempDir(), Options{Compress: true})
		if err != nil {
			t.Fatalf("NewWithOptions failed: %v", err)
		}
		return cas
	}
	testkit.RunCASConformance(t, newCAS)
	testkit.RunConcurrentConformance(t, newCAS)
}

func TestLocalFS_ReadsEitherForm(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	data := []byte("written compressed, read plain")
	id, err := cidutil.Compute(data, cid.Raw, "sha2-256")
	if err != nil {
		t.Fatal(err)
	}

	zc, err := NewWithOptions(dir, Options{Compress: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := zc.Put(ctx, id, data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := os.Stat(zc.pathFor(id, true)); err != nil {
		t.Fatalf("compressed file missing: %v", err)
	}

	plain, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	got, err := plain.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("Get = %q", got)
	}
	// Re-putting through the plain view must not create a second copy.
	if err := plain.Put(ctx, id, data); err != nil {
		t.Fatalf("Put(plain) failed: %v", err)
	}
	if _, err := os.Stat(plain.pathFor(id, false)); !os.IsNotExist(err) {
		t.Fatalf("unexpected plain copy: %v", err)
	}
}

func TestLocalFS_RejectMutationByOverwrite(t *testing.T) {
	ctx := context.Background()
	cas, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	orig := []byte("original")
	id, err := cidutil.Compute(orig, cid.Raw, "sha2-256")
	if err != nil {
		t.Fatal(err)
	}
	if err := cas.Put(ctx, id, orig); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Corrupt the stored object out-of-band.
	path := cas.pathFor(id, false)
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("corrupted"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	// Get must detect hash mismatch.
	if _, err := cas.Get(ctx, id); err != storage.ErrCIDMismatch {
		t.Fatalf("Get mismatch: got %v want %v", err, storage.ErrCIDMismatch)
	}

	// Put must not "repair" or overwrite the corrupted object.
	if err := cas.Put(ctx, id, orig); err != storage.ErrImmutable {
		t.Fatalf("Put after corruption: got %v want %v", err, storage.ErrImmutable)
	}
}

func TestLocalFS_PutLeavesOnlyCompleteBlock(t *testing.T) {
	for _, compress := range []bool{false, true} {
		ctx := context.Background()
		cas, err := NewWithOptions(t.TempDir(), Options{Compress: compress})
		if err != nil {
			t.Fatal(err)
		}
		data := []byte(strings.Repeat("block contents ", 4096))
		id, err := cidutil.Compute(data, cid.Raw, "sha2-256")
		if err != nil {
			t.Fatal(err)
		}

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- cas.Put(ctx, id, data)
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("compress=%v: concurrent Put failed: %v", compress, err)
			}
		}

		path := cas.pathFor(id, compress)
		entries, err := os.ReadDir(filepath.Dir(path))
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 1 || entries[0].Name() != filepath.Base(path) {
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				names = append(names, e.Name())
			}
			t.Fatalf("compress=%v: shard holds %v, want only %s", compress, names, filepath.Base(path))
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm()&0o222 != 0 {
			t.Fatalf("compress=%v: block file is writable: %v", compress, info.Mode())
		}
		got, err := cas.Get(ctx, id)
		if err != nil || string(got) != string(data) {
			t.Fatalf("compress=%v: Get = %d bytes, %v", compress, len(got), err)
		}
	}
}
