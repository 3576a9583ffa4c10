package ipfs

import (
	"context"
	"os/exec"
	"reflect"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/dagstore/cidutil"
	"xdao.co/dagstore/storage"
	"xdao.co/dagstore/storage/testkit"
)

func TestPutArgs_ReproducePrefix(t *testing.T) {
	id, err := cidutil.Compute([]byte("x"), cid.DagCBOR, "sha3-512")
	if err != nil {
		t.Fatal(err)
	}
	got, err := putArgs(id)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"block", "put", "--quiet",
		"--cid-codec=dag-cbor",
		"--mhtype=sha3-512",
		"--mhlen=64",
		"/dev/stdin",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("putArgs = %v want %v", got, want)
	}
}

func TestPut_VerifiesBeforeShellingOut(t *testing.T) {
	cas := New(Options{Bin: "/nonexistent/ipfs"})
	id, _ := cidutil.Compute([]byte("claimed"), cid.Raw, "sha2-256")
	if err := cas.Put(context.Background(), id, []byte("actual")); err == nil {
		t.Fatalf("expected mismatch error")
	}
}

// The ipfs CLI takes an exclusive repo lock per offline command, so racing
// Puts are not part of this suite.
func TestIPFS_Conformance(t *testing.T) {
	bin, err := exec.LookPath("ipfs")
	if err != nil {
		t.Skip("ipfs binary not installed")
	}
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		dir := t.TempDir()
		cas := New(Options{Bin: bin, Env: []string{"IPFS_PATH=" + dir}})
		initCmd := exec.Command(bin, "init", "--empty-repo", "--profile=test")
		initCmd.Env = cas.env
		if out, err := initCmd.CombinedOutput(); err != nil {
			t.Skipf("ipfs init failed: %v: %s", err, out)
		}
		return cas
	})
}
