// Package dag stores typed nodes in a content-addressed block store and
// resolves slash-delimited paths through them, following links across nodes of
// different encodings.
//
// A Resolver is safe for concurrent use. It holds no mutable state of its own;
// every suspension point is a call on the underlying storage.CAS.
package dag

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ipfs/go-cid"

	"xdao.co/dagstore/cidutil"
	"xdao.co/dagstore/codec"
	"xdao.co/dagstore/compliance"
	"xdao.co/dagstore/storage"
)

// Options configures a Resolver. The zero value is usable.
type Options struct {
	// Registry supplies the codecs. If nil, codec.Default() is used, which
	// holds whatever codec packages the binary imports.
	Registry *codec.Registry

	// Logger receives debug records for block fetches, link crossings and
	// puts. If nil, a no-op logger is used.
	Logger *slog.Logger

	// Mode controls whether Put may encode a node through another codec's
	// generic projection. See compliance.ComplianceMode.
	Mode compliance.ComplianceMode
}

// Resolver puts and gets nodes against a block store.
type Resolver struct {
	store  storage.CAS
	reg    *codec.Registry
	logger *slog.Logger
	mode   compliance.ComplianceMode
}

func New(store storage.CAS, opts Options) *Resolver {
	reg := opts.Registry
	if reg == nil {
		reg = codec.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{store: store, reg: reg, logger: logger, mode: opts.Mode}
}

// PutOptions names the encoding and hash function for Put. Both are required.
type PutOptions struct {
	// Format is a multicodec name, e.g. "dag-cbor" or "dag-pb".
	Format string
	// HashAlg is a multihash name, e.g. "sha2-256" or "sha3-512".
	HashAlg string
}

// Put encodes node, hashes the bytes and stores them under the resulting CID.
// Nothing reaches the store unless encoding and hashing both succeed.
func (r *Resolver) Put(ctx context.Context, node any, opts PutOptions) (cid.Cid, error) {
	const op = "put"

	c, err := r.reg.Lookup(opts.Format)
	if err != nil {
		return cid.Undef, wrapError(KindUnsupportedFormat, op, cid.Undef, err)
	}
	if _, err := cidutil.HashCode(opts.HashAlg); err != nil {
		return cid.Undef, wrapError(KindUnsupportedHashAlgorithm, op, cid.Undef, err)
	}

	data, err := r.encode(c, node)
	if err != nil {
		return cid.Undef, wrapError(KindEncode, op, cid.Undef, err)
	}
	id, err := cidutil.Compute(data, uint64(c.Code()), opts.HashAlg)
	if err != nil {
		return cid.Undef, wrapError(KindUnsupportedHashAlgorithm, op, cid.Undef, err)
	}

	if err := r.store.Put(ctx, id, data); err != nil {
		return cid.Undef, wrapError(KindIO, op, id, err)
	}
	r.logger.DebugContext(ctx, "stored node",
		"cid", id.String(),
		"format", opts.Format,
		"hash", opts.HashAlg,
		"bytes", len(data),
	)
	return id, nil
}

// encode encodes node with c. In permissive mode a node c cannot represent is
// retried through the generic view of any codec that can project it.
func (r *Resolver) encode(c codec.Codec, node any) ([]byte, error) {
	data, err := c.Encode(node)
	if err == nil || r.mode == compliance.Strict || !errors.Is(err, codec.ErrUnsupportedShape) {
		return data, err
	}
	for _, p := range r.reg.Projectors() {
		if pc, ok := p.(codec.Codec); ok && pc.Code() == c.Code() {
			continue
		}
		view, ok := p.Project(node)
		if !ok {
			continue
		}
		if projected, perr := c.Encode(view); perr == nil {
			return projected, nil
		}
	}
	return nil, err
}

// Result is the outcome of Get.
type Result struct {
	// Value is the resolved node, sub-value or bytes. With WithLocalResolve it
	// may be a link marker.
	Value any
	// RemainderPath is the part of the path not consumed. It is empty unless
	// the walk stopped at a link because of WithLocalResolve.
	RemainderPath string
	// Cid is the block Value was found in.
	Cid cid.Cid
}

// GetOption adjusts a single Get.
type GetOption func(*getConfig)

type getConfig struct {
	localResolve bool
}

// WithLocalResolve stops the walk at the first link instead of fetching it.
// The link marker is returned as the value and the unconsumed segments as
// RemainderPath.
func WithLocalResolve() GetOption {
	return func(c *getConfig) { c.localResolve = true }
}

// Get fetches id and resolves path against it. "" and "/" return the whole
// node. Any failure aborts the call; there are no partial results.
func (r *Resolver) Get(ctx context.Context, id cid.Cid, path string, opts ...GetOption) (*Result, error) {
	var cfg getConfig
	for _, o := range opts {
		o(&cfg)
	}
	w, err := r.walk(ctx, "get", id, SplitPath(path), cfg)
	if err != nil {
		return nil, err
	}
	return &w.Result, nil
}

// Links lists the direct links of the node id.
func (r *Resolver) Links(ctx context.Context, id cid.Cid) ([]codec.Link, error) {
	const op = "links"
	c, node, err := r.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	links, err := c.Links(node)
	if err != nil {
		return nil, wrapError(KindDecode, op, id, err)
	}
	return links, nil
}

// Tree lists every path inside the value path resolves to, without crossing
// into linked nodes.
func (r *Resolver) Tree(ctx context.Context, id cid.Cid, path string) ([]string, error) {
	const op = "tree"
	w, err := r.walk(ctx, op, id, SplitPath(path), getConfig{})
	if err != nil {
		return nil, err
	}
	if w.whole {
		return w.codec.Tree(w.Value), nil
	}
	return codec.GenericTree(w.Value), nil
}

// Closure returns every CID reachable from roots, roots included, in
// breadth-first link order without duplicates.
func (r *Resolver) Closure(ctx context.Context, roots ...cid.Cid) ([]cid.Cid, error) {
	const op = "closure"
	seen := make(map[string]struct{})
	var out []cid.Cid
	queue := make([]cid.Cid, 0, len(roots))
	for _, id := range roots {
		if _, ok := seen[id.KeyString()]; ok {
			continue
		}
		seen[id.KeyString()] = struct{}{}
		queue = append(queue, id)
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		out = append(out, id)

		c, node, err := r.load(ctx, op, id)
		if err != nil {
			return nil, err
		}
		links, err := c.Links(node)
		if err != nil {
			return nil, wrapError(KindDecode, op, id, err)
		}
		for _, l := range links {
			if _, ok := seen[l.Cid.KeyString()]; ok {
				continue
			}
			seen[l.Cid.KeyString()] = struct{}{}
			queue = append(queue, l.Cid)
		}
	}
	return out, nil
}
