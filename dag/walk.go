package dag

import (
	"context"
	"errors"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/dagstore/codec"
	"xdao.co/dagstore/storage"
)

// SplitPath splits a slash-delimited path into segments, dropping empty ones:
// "", "/" and "//" all yield no segments and "/a//b/" yields [a b].
func SplitPath(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// walked is a walk's result plus what Tree needs to list paths.
type walked struct {
	Result
	codec codec.Codec
	// whole is set when Value is the decoded node itself rather than a part of it.
	whole bool
}

// walk resolves segs starting at root. It holds one decoded node at a time:
// each iteration loads the current block, resolves as much of the remaining
// path as that node can, and either returns or moves on to the linked block
// with the unconsumed rest.
func (r *Resolver) walk(ctx context.Context, op string, root cid.Cid, segs []string, cfg getConfig) (*walked, error) {
	cur, rest := root, segs
	consumed := 0

	for {
		c, node, err := r.load(ctx, op, cur)
		if err != nil {
			return nil, withPath(err, segs[:consumed])
		}
		if len(rest) == 0 {
			return &walked{Result: Result{Value: node, Cid: cur}, codec: c, whole: true}, nil
		}

		res, err := c.Resolve(node, rest)
		if err != nil {
			kind := KindInvalidPath
			if !errors.Is(err, codec.ErrNoSegment) && !errors.Is(err, codec.ErrLeaf) {
				kind = KindDecode
			}
			e := wrapError(kind, op, cur, err)
			e.Path = strings.Join(segs[:consumed], "/")
			return nil, e
		}
		if !res.IsLink() {
			return &walked{Result: Result{Value: res.Value, Cid: cur}, codec: c}, nil
		}

		consumed += len(rest) - len(res.Rest)
		if cfg.localResolve {
			return &walked{
				Result: Result{
					Value:         codec.LinkMarker(res.Link),
					RemainderPath: strings.Join(res.Rest, "/"),
					Cid:           cur,
				},
				codec: c,
			}, nil
		}

		r.logger.DebugContext(ctx, "crossing link",
			"from", cur.String(),
			"to", res.Link.String(),
			"remaining", strings.Join(res.Rest, "/"),
		)
		cur, rest = res.Link, res.Rest
	}
}

// load fetches id and decodes it with the codec its CID names.
func (r *Resolver) load(ctx context.Context, op string, id cid.Cid) (codec.Codec, any, error) {
	if !id.Defined() {
		return nil, nil, wrapError(KindNotFound, op, id, storage.ErrInvalidCID)
	}
	c, err := r.reg.ByCode(id.Prefix().Codec)
	if err != nil {
		return nil, nil, wrapError(KindUnsupportedFormat, op, id, err)
	}

	data, err := r.store.Get(ctx, id)
	if err != nil {
		kind := KindIO
		if storage.IsNotFound(err) {
			kind = KindNotFound
		}
		return nil, nil, wrapError(kind, op, id, err)
	}
	r.logger.DebugContext(ctx, "fetched block",
		"cid", id.String(),
		"codec", codec.Name(c),
		"bytes", len(data),
	)

	node, err := c.Decode(data)
	if err != nil {
		return nil, nil, wrapError(KindDecode, op, id, err)
	}
	return c, node, nil
}

func withPath(err error, consumed []string) error {
	var e *Error
	if errors.As(err, &e) && e.Path == "" {
		e.Path = strings.Join(consumed, "/")
	}
	return err
}
