// Package dagcbor is the dag-cbor codec: generic data-model values encoded as
// deterministic CBOR, with links carried as CBOR tag 42.
package dagcbor

import (
	"fmt"
	"math"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multicodec"

	"xdao.co/dagstore/codec"
)

// linkTag is the CBOR tag number reserved for CIDs.
const linkTag = 42

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2) with floats always
// written at 64-bit width, so equal values produce identical bytes.
var encMode cbor.EncMode

// decMode rejects anything a deterministic encoder would not have produced
// ambiguously: duplicate keys, indefinite lengths and non-string map keys.
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.ShortestFloat = cbor.ShortestFloatNone
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("dagcbor: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		IndefLength:     cbor.IndefLengthForbidden,
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		MaxNestedLevels: 256,
	}.DecMode()
	if err != nil {
		panic("dagcbor: CBOR decoder initialization failed: " + err.Error())
	}

	codec.MustRegister(Codec{})
}

// Codec implements codec.Codec for generic data-model values.
type Codec struct{}

var _ codec.Codec = Codec{}

func (Codec) Code() multicodec.Code { return multicodec.DagCbor }

func (Codec) Encode(node any) ([]byte, error) {
	v, err := codec.Normalize(node)
	if err != nil {
		return nil, err
	}
	b, err := encMode.Marshal(toCBOR(v))
	if err != nil {
		return nil, fmt.Errorf("%w: dag-cbor: %v", codec.ErrUnsupportedShape, err)
	}
	return b, nil
}

func (Codec) Decode(data []byte) (any, error) {
	var raw any
	if err := decMode.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: dag-cbor: %v", codec.ErrMalformed, err)
	}
	v, err := fromCBOR(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: dag-cbor: %v", codec.ErrMalformed, err)
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

// toCBOR rewrites link markers of a normalized value into tag 42 items.
func toCBOR(v any) any {
	switch x := v.(type) {
	case map[string]any:
		if c, ok := codec.AsLink(x); ok {
			return cbor.Tag{Number: linkTag, Content: append([]byte{0}, c.Bytes()...)}
		}
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = toCBOR(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = toCBOR(e)
		}
		return out
	default:
		return v
	}
}

// fromCBOR maps decoded CBOR back onto the generic data model.
func fromCBOR(v any) (any, error) {
	switch x := v.(type) {
	case cbor.Tag:
		if x.Number != linkTag {
			return nil, fmt.Errorf("unsupported tag %d", x.Number)
		}
		b, ok := x.Content.([]byte)
		if !ok || len(b) < 2 || b[0] != 0 {
			return nil, fmt.Errorf("malformed link")
		}
		c, err := cid.Cast(b[1:])
		if err != nil {
			return nil, fmt.Errorf("malformed link: %v", err)
		}
		return codec.LinkMarker(c), nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			n, err := fromCBOR(e)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			n, err := fromCBOR(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", x)
		}
		return int64(x), nil
	case []byte:
		if x == nil {
			return []byte{}, nil
		}
		return x, nil
	case nil, string, bool, int64, float64:
		return x, nil
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}
}
