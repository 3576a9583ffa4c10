// Package codec defines the contract every node encoding satisfies and the
// process-wide registry codecs add themselves to.
//
// Codecs are build-time plugins: a codec package registers itself in init(),
// and a binary enables it by importing the package (often as a blank import,
// or via codec/all).
package codec

import (
	"errors"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multicodec"

	"xdao.co/dagstore/cidutil"
)

var (
	ErrUnknownFormat    = errors.New("codec: unknown format")
	ErrUnsupportedShape = errors.New("codec: node not representable")
	ErrMalformed        = errors.New("codec: malformed encoding")
	ErrNoSegment        = errors.New("segment not found")
	ErrLeaf             = errors.New("cannot descend into a leaf")
)

// Codec is a node encoding.
//
// Encode must be deterministic: logically equal nodes yield identical bytes.
// Decode must reject bytes it cannot parse instead of guessing.
type Codec interface {
	Code() multicodec.Code
	Encode(node any) ([]byte, error)
	Decode(data []byte) (any, error)

	// Resolve walks path inside node without leaving it. It stops early,
	// returning the link and the unconsumed segments, when it reaches a link.
	Resolve(node any, path []string) (Resolution, error)

	// Links lists the node's outgoing links in a stable order.
	Links(node any) ([]Link, error)

	// Tree lists every path that Resolve accepts within node.
	Tree(node any) []string
}

// Projector is implemented by codecs whose native node type also has a view in
// the generic data model (maps, lists, scalars and link markers).
type Projector interface {
	Project(node any) (any, bool)
}

// Resolution is the outcome of walking a path inside one node. Exactly one of
// Value or Link is meaningful: IsLink reports which.
type Resolution struct {
	Value any
	Link  cid.Cid
	Rest  []string
}

func (r Resolution) IsLink() bool { return r.Link.Defined() }

// Link is an outgoing edge. Path is the position of the link inside the node
// ("" for unnamed dag-pb links).
type Link struct {
	Path string
	Cid  cid.Cid
}

// Name returns the multicodec table name of c.
func Name(c Codec) string { return c.Code().String() }

// CidOf encodes node with c and hashes the bytes with hashAlg.
func CidOf(c Codec, node any, hashAlg string) (cid.Cid, error) {
	b, err := c.Encode(node)
	if err != nil {
		return cid.Undef, err
	}
	return cidutil.Compute(b, uint64(c.Code()), hashAlg)
}
