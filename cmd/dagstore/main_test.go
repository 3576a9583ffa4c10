package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/dagstore/cidutil"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

// runOK runs the CLI and fails the test on a non-zero exit.
func runOK(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	var out, errOut bytes.Buffer
	if code := run(args, strings.NewReader(stdin), &out, &errOut); code != 0 {
		t.Fatalf("run %v: exit %d: %s", args, code, errOut.String())
	}
	return out.String()
}

func TestCLI_PutGetAcrossFormats(t *testing.T) {
	work := t.TempDir()
	store := t.TempDir()
	common := []string{"--backend", "localfs", "--localfs-dir", store}

	pbFile := writeFile(t, work, "pb.jsonc", `{
		// dag-pb view; Data may be given as a string
		"Data": "I am inside a Protobuf",
		"Links": [],
	}`)
	pbID := strings.TrimSpace(runOK(t, "", append([]string{"put", "--format", "dag-pb", "--hash", "sha2-256", pbFile}, common...)...))

	cborDoc := `{"someData": "I am inside a Cbor object", "pb": {"/": "` + pbID + `"}}`
	cborID := strings.TrimSpace(runOK(t, cborDoc, append([]string{"put", "--format", "dag-cbor", "--hash", "sha3-512", "-"}, common...)...))

	got := runOK(t, "", append([]string{"get", "--cid", cborID, "--path", "pb/data", "--bytes"}, common...)...)
	if got != "I am inside a Protobuf" {
		t.Fatalf("pb/data = %q", got)
	}

	got = runOK(t, "", append([]string{"get", "--cid", cborID, "--path", "someData"}, common...)...)
	if strings.TrimSpace(got) != `"I am inside a Cbor object"` {
		t.Fatalf("someData = %q", got)
	}

	var out, errOut bytes.Buffer
	args := append([]string{"get", "--cid", cborID, "--path", "pb/data", "--local"}, common...)
	if code := run(args, nil, &out, &errOut); code != 0 {
		t.Fatalf("get --local: %s", errOut.String())
	}
	if !strings.Contains(out.String(), pbID) || !strings.Contains(errOut.String(), "Remainder: data") {
		t.Fatalf("get --local: out=%q err=%q", out.String(), errOut.String())
	}

	links := runOK(t, "", append([]string{"links", "--cid", cborID}, common...)...)
	if links != "pb\t"+pbID+"\n" {
		t.Fatalf("links = %q", links)
	}
	tree := runOK(t, "", append([]string{"tree", "--cid", cborID}, common...)...)
	if tree != "pb\nsomeData\n" {
		t.Fatalf("tree = %q", tree)
	}
}

func TestCLI_PutRaw(t *testing.T) {
	store := t.TempDir()
	common := []string{"--localfs-dir", store}
	id := strings.TrimSpace(runOK(t, "opaque bytes", append([]string{"put", "--format", "raw", "-"}, common...)...))
	got := runOK(t, "", append([]string{"get", "--cid", id, "--bytes"}, common...)...)
	if got != "opaque bytes" {
		t.Fatalf("raw = %q", got)
	}
}

func TestCLI_PutDagPBRejectsOtherShapes(t *testing.T) {
	work := t.TempDir()
	store := t.TempDir()
	doc := writeFile(t, work, "node.json", `{"a": 1}`)

	var out, errOut bytes.Buffer
	code := run([]string{"put", "--format", "dag-pb", "--localfs-dir", store, doc}, nil, &out, &errOut)
	if code != 1 {
		t.Fatalf("exit %d, want 1", code)
	}
	if !strings.Contains(errOut.String(), "not representable") {
		t.Fatalf("stderr = %q", errOut.String())
	}
}

func TestCLI_Errors(t *testing.T) {
	store := t.TempDir()
	absent, err := cidutil.Compute([]byte("never stored"), cid.Raw, "sha2-256")
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		args []string
		code int
		want string
	}{
		{"no args", nil, 2, "Usage"},
		{"unknown command", []string{"frobnicate"}, 2, "unknown command"},
		{"missing cid", []string{"get", "--localfs-dir", store}, 2, "missing --cid"},
		{"bad cid", []string{"get", "--cid", "nope", "--localfs-dir", store}, 2, "invalid cid"},
		{"unknown backend", []string{"get", "--cid", "bafkqaaa", "--backend", "nope"}, 1, "unknown backend"},
		{"unknown format", []string{"put", "--format", "dag-yaml", "--localfs-dir", store, "-"}, 1, "UnsupportedFormat"},
		{"unknown hash", []string{"put", "--hash", "md5", "--localfs-dir", store, "-"}, 1, "UnsupportedHashAlgorithm"},
		{"not found", []string{"get", "--cid", absent.String(), "--localfs-dir", store}, 1, "NotFound"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, errOut bytes.Buffer
			code := run(tt.args, strings.NewReader(`{"a": 1}`), &out, &errOut)
			if code != tt.code {
				t.Fatalf("exit %d want %d (stderr %q)", code, tt.code, errOut.String())
			}
			if !strings.Contains(errOut.String(), tt.want) {
				t.Fatalf("stderr %q missing %q", errOut.String(), tt.want)
			}
		})
	}
}

func TestCLI_ExportImport(t *testing.T) {
	work := t.TempDir()
	src := t.TempDir()
	dst := t.TempDir()

	leafID := strings.TrimSpace(runOK(t, "leaf", "put", "--format", "raw", "--localfs-dir", src, "-"))
	rootDoc := `{"leaf": {"/": "` + leafID + `"}, "n": 1}`
	rootID := strings.TrimSpace(runOK(t, rootDoc, "put", "--format", "dag-json", "--localfs-dir", src, "-"))

	bundlePath := filepath.Join(work, "dag.tar")
	runOK(t, "", "export", "--root", rootID, "--out", bundlePath, "--localfs-dir", src)

	imported := runOK(t, "", "import", "--localfs-dir", dst, bundlePath)
	if !strings.Contains(imported, rootID) || !strings.Contains(imported, leafID) {
		t.Fatalf("imported = %q", imported)
	}

	got := runOK(t, "", "get", "--cid", rootID, "--path", "leaf", "--bytes", "--localfs-dir", dst)
	if got != "leaf" {
		t.Fatalf("leaf = %q", got)
	}
}

func TestCLI_ConfigFile(t *testing.T) {
	work := t.TempDir()
	store := t.TempDir()
	cfg := writeFile(t, work, "stores.yaml", "backends:\n  - name: localfs\n    config:\n      localfs-dir: "+store+"\n      localfs-compress: \"true\"\n")

	id := strings.TrimSpace(runOK(t, `{"a": [1, 2]}`, "put", "--config", cfg, "-"))
	got := runOK(t, "", "get", "--config", cfg, "--cid", id, "--path", "a/1")
	if strings.TrimSpace(got) != "2" {
		t.Fatalf("a/1 = %q", got)
	}
}

func TestCLI_Backends(t *testing.T) {
	got := runOK(t, "", "backends")
	for _, name := range []string{"gcs", "grpc", "ipfs", "localfs"} {
		if !strings.Contains(got, name) {
			t.Fatalf("backends %q missing %s", got, name)
		}
	}
	if strings.Contains(got, "memory") {
		t.Fatalf("memory backend is daemon-only")
	}
}
