// Package dagjson is the dag-json codec, built on go-ipld-prime's dagjson
// encoder and basicnode data model.
package dagjson

import (
	"bytes"
	"fmt"
	"math"
	"sort"

	ipldjson "github.com/ipld/go-ipld-prime/codec/dagjson"
	"github.com/ipld/go-ipld-prime/datamodel"
	cidlink "github.com/ipld/go-ipld-prime/linking/cid"
	"github.com/ipld/go-ipld-prime/node/basicnode"
	"github.com/multiformats/go-multicodec"

	"xdao.co/dagstore/codec"
)

func init() {
	codec.MustRegister(Codec{})
}

// Codec implements codec.Codec for generic data-model values.
type Codec struct{}

var _ codec.Codec = Codec{}

func (Codec) Code() multicodec.Code { return multicodec.DagJson }

func (Codec) Encode(node any) ([]byte, error) {
	return encode(node, assembler{})
}

// Display renders node as dag-json text for people. Unlike Encode it accepts
// whole-valued floats, which print as integers, so its output is not always a
// valid block for node.
func Display(node any) ([]byte, error) {
	return encode(node, assembler{lossyFloats: true})
}

func encode(node any, a assembler) ([]byte, error) {
	v, err := codec.Normalize(node)
	if err != nil {
		return nil, err
	}
	nb := basicnode.Prototype.Any.NewBuilder()
	if err := a.assemble(nb, v); err != nil {
		return nil, err
	}
	n := nb.Build()
	var buf bytes.Buffer
	if err := ipldjson.Encode(n, &buf); err != nil {
		return nil, fmt.Errorf("%w: dag-json: %v", codec.ErrUnsupportedShape, err)
	}
	return buf.Bytes(), nil
}

func (Codec) Decode(data []byte) (any, error) {
	nb := basicnode.Prototype.Any.NewBuilder()
	if err := ipldjson.Decode(nb, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w: dag-json: %v", codec.ErrMalformed, err)
	}
	v, err := FromNode(nb.Build())
	if err != nil {
		return nil, fmt.Errorf("%w: dag-json: %v", codec.ErrMalformed, err)
	}
	return v, nil
}

func (Codec) Resolve(node any, path []string) (codec.Resolution, error) {
	return codec.WalkGeneric(node, path)
}

func (Codec) Links(node any) ([]codec.Link, error) {
	return codec.GenericLinks(node), nil
}

func (Codec) Tree(node any) []string {
	return codec.GenericTree(node)
}

// assembler builds an IPLD data-model node from a normalized generic value.
type assembler struct {
	lossyFloats bool
}

func (a assembler) assemble(na datamodel.NodeAssembler, v any) error {
	switch x := v.(type) {
	case nil:
		return na.AssignNull()
	case bool:
		return na.AssignBool(x)
	case int64:
		return na.AssignInt(x)
	case float64:
		// The encoder prints whole floats without a fraction, which decode
		// back as integers.
		if !a.lossyFloats && x == math.Trunc(x) {
			return fmt.Errorf("%w: dag-json cannot keep float %v distinct from an integer", codec.ErrUnsupportedShape, x)
		}
		return na.AssignFloat(x)
	case string:
		return na.AssignString(x)
	case []byte:
		return na.AssignBytes(x)
	case map[string]any:
		if c, ok := codec.AsLink(x); ok {
			return na.AssignLink(cidlink.Link{Cid: c})
		}
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ma, err := na.BeginMap(int64(len(x)))
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := ma.AssembleKey().AssignString(k); err != nil {
				return err
			}
			if err := a.assemble(ma.AssembleValue(), x[k]); err != nil {
				return err
			}
		}
		return ma.Finish()
	case []any:
		la, err := na.BeginList(int64(len(x)))
		if err != nil {
			return err
		}
		for _, e := range x {
			if err := a.assemble(la.AssembleValue(), e); err != nil {
				return err
			}
		}
		return la.Finish()
	default:
		return fmt.Errorf("%w: %T", codec.ErrUnsupportedShape, v)
	}
}

// FromNode converts an IPLD data-model node to the generic data model.
func FromNode(n datamodel.Node) (any, error) {
	switch n.Kind() {
	case datamodel.Kind_Null:
		return nil, nil
	case datamodel.Kind_Bool:
		return n.AsBool()
	case datamodel.Kind_Int:
		return n.AsInt()
	case datamodel.Kind_Float:
		return n.AsFloat()
	case datamodel.Kind_String:
		return n.AsString()
	case datamodel.Kind_Bytes:
		return n.AsBytes()
	case datamodel.Kind_Link:
		l, err := n.AsLink()
		if err != nil {
			return nil, err
		}
		cl, ok := l.(cidlink.Link)
		if !ok || !cl.Cid.Defined() {
			return nil, fmt.Errorf("unsupported link %v", l)
		}
		return codec.LinkMarker(cl.Cid), nil
	case datamodel.Kind_Map:
		out := make(map[string]any, n.Length())
		it := n.MapIterator()
		for !it.Done() {
			k, v, err := it.Next()
			if err != nil {
				return nil, err
			}
			ks, err := k.AsString()
			if err != nil {
				return nil, err
			}
			gv, err := FromNode(v)
			if err != nil {
				return nil, err
			}
			out[ks] = gv
		}
		return out, nil
	case datamodel.Kind_List:
		out := make([]any, 0, n.Length())
		it := n.ListIterator()
		for !it.Done() {
			_, v, err := it.Next()
			if err != nil {
				return nil, err
			}
			gv, err := FromNode(v)
			if err != nil {
				return nil, err
			}
			out = append(out, gv)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported kind %s", n.Kind())
	}
}
