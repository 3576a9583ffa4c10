// Package raw is the identity codec: a node is its own bytes.
package raw

import (
	"fmt"

	"github.com/multiformats/go-multicodec"

	"xdao.co/dagstore/codec"
)

func init() {
	codec.MustRegister(Codec{})
}

// Codec implements codec.Codec for []byte nodes.
type Codec struct{}

var _ codec.Codec = Codec{}

func (Codec) Code() multicodec.Code { return multicodec.Raw }

func (Codec) Encode(node any) ([]byte, error) {
	b, ok := node.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: raw requires []byte, got %T", codec.ErrUnsupportedShape, node)
	}
	return append([]byte(nil), b...), nil
}

func (Codec) Decode(data []byte) (any, error) {
	return append([]byte(nil), data...), nil
}

func (Codec) Resolve(node any, path []string) (codec.Resolution, error) {
	if len(path) > 0 {
		return codec.Resolution{}, fmt.Errorf("%w: %q", codec.ErrLeaf, "")
	}
	return codec.Resolution{Value: node}, nil
}

func (Codec) Links(any) ([]codec.Link, error) { return nil, nil }

func (Codec) Tree(any) []string { return nil }
