// Package dagpb is the dag-pb codec: protobuf nodes carrying opaque data and
// an ordered list of named links, as produced by go-merkledag.
package dagpb

import (
	"fmt"

	format "github.com/ipfs/go-ipld-format"
	"github.com/ipfs/go-merkledag"
	"github.com/multiformats/go-multicodec"

	"xdao.co/dagstore/codec"
)

func init() {
	codec.MustRegister(Codec{})
}

// Codec implements codec.Codec for *merkledag.ProtoNode values.
type Codec struct{}

var (
	_ codec.Codec     = Codec{}
	_ codec.Projector = Codec{}
)

func (Codec) Code() multicodec.Code { return multicodec.DagPb }

func (Codec) Encode(node any) ([]byte, error) {
	n, err := asProtoNode(node)
	if err != nil {
		return nil, err
	}
	b, err := n.EncodeProtobuf(false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", codec.ErrUnsupportedShape, err)
	}
	return append([]byte(nil), b...), nil
}

func (Codec) Decode(data []byte) (any, error) {
	n, err := merkledag.DecodeProtobuf(data)
	if err != nil {
		return nil, fmt.Errorf("%w: dag-pb: %v", codec.ErrMalformed, err)
	}
	return n, nil
}

// Resolve understands three kinds of first segment: "Data" (or "data") for the
// payload bytes, "Links" (or "links") for the generic view of the link list,
// and otherwise the name of a link.
func (Codec) Resolve(node any, path []string) (codec.Resolution, error) {
	n, err := asProtoNode(node)
	if err != nil {
		return codec.Resolution{}, err
	}
	if len(path) == 0 {
		return codec.Resolution{Value: n}, nil
	}
	switch path[0] {
	case "Data", "data":
		if len(path) > 1 {
			return codec.Resolution{}, fmt.Errorf("%w: %q", codec.ErrLeaf, path[0])
		}
		return codec.Resolution{Value: n.Data()}, nil
	case "Links", "links":
		return codec.WalkGeneric(linksView(n), path[1:])
	}
	l, err := n.GetNodeLink(path[0])
	if err != nil {
		return codec.Resolution{}, fmt.Errorf("%w: %q", codec.ErrNoSegment, path[0])
	}
	return codec.Resolution{Link: l.Cid, Rest: path[1:]}, nil
}

func (Codec) Links(node any) ([]codec.Link, error) {
	n, err := asProtoNode(node)
	if err != nil {
		return nil, err
	}
	links := n.Links()
	out := make([]codec.Link, 0, len(links))
	for _, l := range links {
		out = append(out, codec.Link{Path: l.Name, Cid: l.Cid})
	}
	return out, nil
}

func (Codec) Tree(node any) []string {
	n, err := asProtoNode(node)
	if err != nil {
		return nil
	}
	out := []string{"Data", "Links"}
	for _, p := range codec.GenericTree(linksView(n)) {
		out = append(out, "Links/"+p)
	}
	for _, l := range n.Links() {
		if l.Name != "" {
			out = append(out, l.Name)
		}
	}
	return out
}

// Project returns the generic view of a dag-pb node.
func (Codec) Project(node any) (any, bool) {
	n, err := asProtoNode(node)
	if err != nil {
		return nil, false
	}
	return ToGeneric(n), true
}

func asProtoNode(node any) (*merkledag.ProtoNode, error) {
	switch n := node.(type) {
	case *merkledag.ProtoNode:
		if n == nil {
			return nil, fmt.Errorf("%w: nil dag-pb node", codec.ErrUnsupportedShape)
		}
		return n, nil
	case format.Node:
		return nil, fmt.Errorf("%w: %T is not a dag-pb node", codec.ErrUnsupportedShape, n)
	default:
		return nil, fmt.Errorf("%w: dag-pb requires *merkledag.ProtoNode, got %T", codec.ErrUnsupportedShape, node)
	}
}
