package bundle_test

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/dagstore/cidutil"
	"xdao.co/dagstore/storage"
	"xdao.co/dagstore/storage/bundle"
	"xdao.co/dagstore/storage/localfs"
	"xdao.co/dagstore/storage/memory"
)

func put(t *testing.T, cas storage.CAS, data []byte, codec uint64, hashAlg string) cid.Cid {
	t.Helper()
	id, err := cidutil.Compute(data, codec, hashAlg)
	if err != nil {
		t.Fatal(err)
	}
	if err := cas.Put(context.Background(), id, data); err != nil {
		t.Fatal(err)
	}
	return id
}

func TestBundle_ExportIsDeterministic(t *testing.T) {
	ctx := context.Background()
	cas, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	id1 := put(t, cas, []byte("hello"), cid.Raw, "sha2-256")
	id2 := put(t, cas, []byte("world"), cid.DagCBOR, "sha3-512")

	var outA bytes.Buffer
	if err := bundle.Export(ctx, &outA, cas, []cid.Cid{id2, id1}, bundle.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatal(err)
	}
	var outB bytes.Buffer
	if err := bundle.Export(ctx, &outB, cas, []cid.Cid{id1, id2, id1}, bundle.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(outA.Bytes(), outB.Bytes()) {
		t.Fatalf("expected deterministic bundle bytes")
	}
}

func TestBundle_IndexRecordsCodecAndHash(t *testing.T) {
	ctx := context.Background()
	cas := memory.New()
	id := put(t, cas, []byte{0xa0}, cid.DagCBOR, "sha3-512")

	var out bytes.Buffer
	opts := bundle.ExportOptions{IncludeIndex: true, Labels: map[string]cid.Cid{"root": id}}
	if err := bundle.Export(ctx, &out, cas, []cid.Cid{id}, opts); err != nil {
		t.Fatal(err)
	}

	tr := tar.NewReader(bytes.NewReader(out.Bytes()))
	var index string
	for {
		h, err := tr.Next()
		if err != nil {
			break
		}
		if h.Name == "index.json" {
			var sb bytes.Buffer
			if _, err := sb.ReadFrom(tr); err != nil {
				t.Fatal(err)
			}
			index = sb.String()
		}
	}
	for _, want := range []string{`"codec":"dag-cbor"`, `"multihash":"sha3-512"`, `"name":"root"`} {
		if !strings.Contains(index, want) {
			t.Fatalf("index.json missing %s: %s", want, index)
		}
	}
}

func TestBundle_ImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	payload := []byte("payload")
	id := put(t, src, payload, cid.Raw, "sha2-256")

	var buf bytes.Buffer
	opts := bundle.ExportOptions{IncludeIndex: true, Labels: map[string]cid.Cid{"root": id}}
	if err := bundle.Export(ctx, &buf, src, []cid.Cid{id}, opts); err != nil {
		t.Fatal(err)
	}

	dst, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	sum, err := bundle.Import(ctx, bytes.NewReader(buf.Bytes()), dst)
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Blocks) != 1 || !sum.Blocks[0].Equals(id) {
		t.Fatalf("Blocks = %v", sum.Blocks)
	}
	if root, ok := sum.Labels["root"]; !ok || !root.Equals(id) {
		t.Fatalf("Labels = %v", sum.Labels)
	}

	got, err := dst.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestBundle_ExportMissingBlock(t *testing.T) {
	id, _ := cidutil.Compute([]byte("absent"), cid.Raw, "sha2-256")
	var buf bytes.Buffer
	err := bundle.Export(context.Background(), &buf, memory.New(), []cid.Cid{id}, bundle.ExportOptions{})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("got %v want ErrNotFound", err)
	}
}

func TestBundle_ImportRejectsCIDMismatch(t *testing.T) {
	good := []byte("good")
	otherCID, err := cidutil.Compute([]byte("other"), cid.Raw, "sha2-256")
	if err != nil {
		t.Fatal(err)
	}

	// Name says "otherCID" but bytes are "good" => computed CID mismatch.
	bundleBytes := makeDeterministicTar(t, "blocks/"+otherCID.String(), good)

	dst := memory.New()
	if _, err := bundle.Import(context.Background(), bytes.NewReader(bundleBytes), dst); err != storage.ErrCIDMismatch {
		t.Fatalf("expected ErrCIDMismatch, got %v", err)
	}
	if dst.Len() != 0 {
		t.Fatalf("mismatched block was stored")
	}
}

func TestBundle_ImportUnknownEntry(t *testing.T) {
	b := makeDeterministicTar(t, "notes.txt", []byte("hi"))
	ctx := context.Background()
	if _, err := bundle.Import(ctx, bytes.NewReader(b), memory.New()); err == nil {
		t.Fatalf("expected fail-closed error for unknown entry")
	}
	if _, err := bundle.ImportWithOptions(ctx, bytes.NewReader(b), memory.New(), bundle.ImportOptions{IgnoreUnknown: true}); err != nil {
		t.Fatalf("IgnoreUnknown: %v", err)
	}
}

func makeDeterministicTar(t *testing.T, name string, content []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	h := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  time.Unix(0, 0).UTC(),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(h); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
