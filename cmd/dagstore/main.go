package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-merkledag"
	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"xdao.co/dagstore/codec"
	_ "xdao.co/dagstore/codec/all"
	"xdao.co/dagstore/codec/dagjson"
	"xdao.co/dagstore/codec/dagpb"
	"xdao.co/dagstore/compliance"
	"xdao.co/dagstore/dag"
	"xdao.co/dagstore/storage"
	"xdao.co/dagstore/storage/bundle"
	"xdao.co/dagstore/storage/casconfig"
	"xdao.co/dagstore/storage/casregistry"

	_ "xdao.co/dagstore/storage/gcs"
	_ "xdao.co/dagstore/storage/grpccas"
	_ "xdao.co/dagstore/storage/ipfs"
	_ "xdao.co/dagstore/storage/localfs"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, in io.Reader, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "put":
		return cmdPut(args[1:], in, out, errOut)
	case "get":
		return cmdGet(args[1:], out, errOut)
	case "links":
		return cmdLinks(args[1:], out, errOut)
	case "tree":
		return cmdTree(args[1:], out, errOut)
	case "export":
		return cmdExport(args[1:], out, errOut)
	case "import":
		return cmdImport(args[1:], out, errOut)
	case "backends":
		printBackends(out)
		return 0
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "dagstore: content-addressed DAG store")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  dagstore put   [common flags] --format <codec> --hash <alg> [--strict] <file|->")
	fmt.Fprintln(w, "  dagstore get   [common flags] --cid <cid> [--path <path>] [--local] [--bytes]")
	fmt.Fprintln(w, "  dagstore links [common flags] --cid <cid>")
	fmt.Fprintln(w, "  dagstore tree  [common flags] --cid <cid> [--path <path>]")
	fmt.Fprintln(w, "  dagstore export [common flags] --root <cid> [--root ...] --out <file>")
	fmt.Fprintln(w, "  dagstore import [common flags] <bundle>")
	fmt.Fprintln(w, "  dagstore backends")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Common flags:")
	fmt.Fprintln(w, "  --backend <name>   CAS backend (default localfs); see 'dagstore backends'")
	fmt.Fprintln(w, "  --config <file>    YAML backend config (overrides --backend unless --backend is also set)")
	fmt.Fprintln(w, "  --verbose          Log block fetches and link crossings to stderr")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - put reads JSON with comments; links are {\"/\": \"<cid>\"}, bytes are {\"/\": {\"bytes\": \"<base64>\"}}")
	fmt.Fprintln(w, "  - dag-pb input is {\"Data\": ..., \"Links\": [{\"Name\", \"Hash\", \"Tsize\"}]}")
	fmt.Fprintln(w, "  - raw input is stored as the file bytes")
	fmt.Fprintln(w, "  - get prints the value as dag-json; --bytes writes a bytes value unencoded")
}

func printBackends(w io.Writer) {
	for _, b := range casregistry.List(casregistry.UsageCLI) {
		if b.Description == "" {
			_, _ = fmt.Fprintf(w, "%s\n", b.Name)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", b.Name, b.Description)
	}
}

type commonFlags struct {
	fs      *pflag.FlagSet
	backend string
	config  string
	verbose bool
}

func newFlagSet(name string, errOut io.Writer) (*pflag.FlagSet, *commonFlags) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(errOut)
	c := &commonFlags{fs: fs}
	fs.StringVar(&c.backend, "backend", "localfs", "CAS backend name")
	fs.StringVar(&c.config, "config", "", "YAML backend config file")
	fs.BoolVar(&c.verbose, "verbose", false, "Debug logging to stderr")
	casregistry.RegisterFlags(fs, casregistry.UsageCLI)
	return fs, c
}

func (c *commonFlags) openCAS() (storage.CAS, func() error, error) {
	if c.config == "" {
		return casregistry.Open(c.backend, casregistry.UsageCLI)
	}
	cfg, err := casconfig.LoadFile(c.config)
	if err != nil {
		return nil, nil, err
	}
	preferred := ""
	if c.fs.Changed("backend") {
		preferred = c.backend
	}
	return cfg.Open(casregistry.UsageCLI, preferred)
}

// openResolver opens the configured store and wraps it in a resolver. The
// returned close function is never nil.
func (c *commonFlags) openResolver(errOut io.Writer, mode compliance.ComplianceMode) (*dag.Resolver, storage.CAS, func(), error) {
	cas, closeFn, err := c.openCAS()
	if err != nil {
		return nil, nil, nil, err
	}
	logger := slog.New(slog.DiscardHandler)
	if c.verbose {
		logger = slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	r := dag.New(cas, dag.Options{Logger: logger, Mode: mode})
	done := func() {
		if closeFn != nil {
			_ = closeFn()
		}
	}
	return r, cas, done, nil
}

func cmdPut(args []string, in io.Reader, out io.Writer, errOut io.Writer) int {
	fs, common := newFlagSet("put", errOut)
	var format, hashAlg string
	var strict bool
	fs.StringVar(&format, "format", "dag-cbor", "Codec: "+fmt.Sprint(codec.Default().Names()))
	fs.StringVar(&hashAlg, "hash", "sha2-256", "Multihash function name")
	fs.BoolVar(&strict, "strict", false, "Reject nodes the codec cannot encode natively")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: dagstore put [common flags] --format <codec> --hash <alg> [--strict] <file|->")
		return 2
	}

	var b []byte
	var err error
	if p := fs.Arg(0); p == "-" {
		b, err = io.ReadAll(in)
	} else {
		b, err = os.ReadFile(p)
		if err != nil {
			err = fmt.Errorf("read %s: %w", filepath.Base(p), err)
		}
	}
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	node, err := parseNode(format, b)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	mode := compliance.Permissive
	if strict {
		mode = compliance.Strict
	}
	r, _, done, err := common.openResolver(errOut, mode)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer done()

	id, err := r.Put(context.Background(), node, dag.PutOptions{Format: format, HashAlg: hashAlg})
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	_, _ = fmt.Fprintln(out, id.String())
	return 0
}

// parseNode turns an input document into the node Put encodes.
func parseNode(format string, b []byte) (any, error) {
	if format == "raw" {
		return b, nil
	}
	v, err := dagjson.Codec{}.Decode(jsonc.ToJSON(b))
	if err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}
	if format == "dag-pb" {
		return dagpb.FromGeneric(v)
	}
	return v, nil
}

func cmdGet(args []string, out io.Writer, errOut io.Writer) int {
	fs, common := newFlagSet("get", errOut)
	var cidStr, path string
	var local, rawBytes bool
	fs.StringVar(&cidStr, "cid", "", "Root CID")
	fs.StringVar(&path, "path", "", "Slash-delimited path below the root")
	fs.BoolVar(&local, "local", false, "Stop at the first link instead of following it")
	fs.BoolVar(&rawBytes, "bytes", false, "Write a bytes value unencoded")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	id, ok := requireCID(cidStr, fs, errOut)
	if !ok {
		return 2
	}

	r, _, done, err := common.openResolver(errOut, compliance.Permissive)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer done()

	var opts []dag.GetOption
	if local {
		opts = append(opts, dag.WithLocalResolve())
	}
	res, err := r.Get(context.Background(), id, path, opts...)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	if b, ok := res.Value.([]byte); ok && rawBytes {
		_, _ = out.Write(b)
	} else {
		enc, err := render(res.Value)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		_, _ = out.Write(enc)
		_, _ = fmt.Fprintln(out)
	}
	_, _ = fmt.Fprintf(errOut, "CID: %s\n", res.Cid)
	if res.RemainderPath != "" {
		_, _ = fmt.Fprintf(errOut, "Remainder: %s\n", res.RemainderPath)
	}
	return 0
}

// render prints a resolved value as dag-json.
func render(v any) ([]byte, error) {
	if n, ok := v.(*merkledag.ProtoNode); ok {
		v = dagpb.ToGeneric(n)
	}
	return dagjson.Display(v)
}

func cmdLinks(args []string, out io.Writer, errOut io.Writer) int {
	fs, common := newFlagSet("links", errOut)
	var cidStr string
	fs.StringVar(&cidStr, "cid", "", "Node CID")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	id, ok := requireCID(cidStr, fs, errOut)
	if !ok {
		return 2
	}

	r, _, done, err := common.openResolver(errOut, compliance.Permissive)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer done()

	links, err := r.Links(context.Background(), id)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	for _, l := range links {
		_, _ = fmt.Fprintf(out, "%s\t%s\n", l.Path, l.Cid)
	}
	return 0
}

func cmdTree(args []string, out io.Writer, errOut io.Writer) int {
	fs, common := newFlagSet("tree", errOut)
	var cidStr, path string
	fs.StringVar(&cidStr, "cid", "", "Root CID")
	fs.StringVar(&path, "path", "", "Slash-delimited path below the root")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	id, ok := requireCID(cidStr, fs, errOut)
	if !ok {
		return 2
	}

	r, _, done, err := common.openResolver(errOut, compliance.Permissive)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer done()

	paths, err := r.Tree(context.Background(), id, path)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	for _, p := range paths {
		_, _ = fmt.Fprintln(out, p)
	}
	return 0
}

func cmdExport(args []string, out io.Writer, errOut io.Writer) int {
	fs, common := newFlagSet("export", errOut)
	var roots []string
	var outPath string
	fs.StringArrayVar(&roots, "root", nil, "Root CID (repeatable)")
	fs.StringVarP(&outPath, "out", "o", "", "Bundle file to write")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if len(roots) == 0 || outPath == "" || fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: dagstore export [common flags] --root <cid> [--root ...] --out <file>")
		return 2
	}
	ids := make([]cid.Cid, 0, len(roots))
	labels := make(map[string]cid.Cid, len(roots))
	for i, s := range roots {
		id, err := cid.Decode(s)
		if err != nil {
			fmt.Fprintln(errOut, storage.ErrInvalidCID)
			return 2
		}
		ids = append(ids, id)
		labels[fmt.Sprintf("root-%d", i)] = id
	}

	r, cas, done, err := common.openResolver(errOut, compliance.Permissive)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer done()

	ctx := context.Background()
	closure, err := r.Closure(ctx, ids...)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	f, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		fmt.Fprintf(errOut, "create %s: %v\n", outPath, err)
		return 1
	}
	if err := bundle.Export(ctx, f, cas, closure, bundle.ExportOptions{Labels: labels, IncludeIndex: true}); err != nil {
		_ = f.Close()
		fmt.Fprintln(errOut, err)
		return 1
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(errOut, "write %s: %v\n", outPath, err)
		return 1
	}
	_, _ = fmt.Fprintf(errOut, "exported %d blocks\n", len(closure))
	return 0
}

func cmdImport(args []string, out io.Writer, errOut io.Writer) int {
	fs, common := newFlagSet("import", errOut)
	var ignoreUnknown bool
	fs.BoolVar(&ignoreUnknown, "ignore-unknown", false, "Skip unknown bundle entries instead of failing")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: dagstore import [common flags] <bundle>")
		return 2
	}

	cas, closeFn, err := common.openCAS()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer f.Close()

	sum, err := bundle.ImportWithOptions(context.Background(), f, cas, bundle.ImportOptions{IgnoreUnknown: ignoreUnknown})
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	for _, id := range sum.Blocks {
		_, _ = fmt.Fprintln(out, id.String())
	}
	names := make([]string, 0, len(sum.Labels))
	for name := range sum.Labels {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, _ = fmt.Fprintf(errOut, "label %s: %s\n", name, sum.Labels[name])
	}
	_, _ = fmt.Fprintf(errOut, "imported %d blocks\n", len(sum.Blocks))
	return 0
}

func requireCID(s string, fs *pflag.FlagSet, errOut io.Writer) (cid.Cid, bool) {
	if s == "" {
		fmt.Fprintln(errOut, "missing --cid")
		return cid.Undef, false
	}
	if fs.NArg() != 0 {
		fmt.Fprintf(errOut, "unexpected arguments: %v\n", fs.Args())
		return cid.Undef, false
	}
	id, err := cid.Decode(s)
	if err != nil {
		fmt.Fprintln(errOut, storage.ErrInvalidCID)
		return cid.Undef, false
	}
	return id, true
}
