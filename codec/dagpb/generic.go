package dagpb

import (
	"fmt"

	format "github.com/ipfs/go-ipld-format"
	"github.com/ipfs/go-merkledag"

	"xdao.co/dagstore/codec"
)

// ToGeneric returns the data-model view of n:
//
//	{"Data": <bytes>, "Links": [{"Name": ..., "Hash": {"/": ...}, "Tsize": ...}]}
func ToGeneric(n *merkledag.ProtoNode) map[string]any {
	return map[string]any{
		"Data":  append([]byte{}, n.Data()...),
		"Links": linksView(n),
	}
}

func linksView(n *merkledag.ProtoNode) []any {
	links := n.Links()
	out := make([]any, 0, len(links))
	for _, l := range links {
		out = append(out, map[string]any{
			"Name":  l.Name,
			"Hash":  codec.LinkMarker(l.Cid),
			"Tsize": int64(l.Size),
		})
	}
	return out
}

// FromGeneric builds a node from its data-model view (see ToGeneric). Data may
// be bytes or a string; Name and Tsize are optional on links.
func FromGeneric(v any) (*merkledag.ProtoNode, error) {
	nv, err := codec.Normalize(v)
	if err != nil {
		return nil, err
	}
	m, ok := nv.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: dag-pb view must be a map, got %T", codec.ErrUnsupportedShape, nv)
	}
	for k := range m {
		if k != "Data" && k != "Links" {
			return nil, fmt.Errorf("%w: unexpected dag-pb field %q", codec.ErrUnsupportedShape, k)
		}
	}

	var data []byte
	switch d := m["Data"].(type) {
	case nil:
	case []byte:
		data = d
	case string:
		data = []byte(d)
	default:
		return nil, fmt.Errorf("%w: Data must be bytes, got %T", codec.ErrUnsupportedShape, d)
	}
	n := merkledag.NodeWithData(data)

	var links []any
	switch l := m["Links"].(type) {
	case nil:
	case []any:
		links = l
	default:
		return nil, fmt.Errorf("%w: Links must be a list, got %T", codec.ErrUnsupportedShape, l)
	}
	for i, raw := range links {
		lm, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: Links/%d must be a map", codec.ErrUnsupportedShape, i)
		}
		target, ok := codec.AsLink(lm["Hash"])
		if !ok {
			return nil, fmt.Errorf("%w: Links/%d/Hash must be a link", codec.ErrUnsupportedShape, i)
		}
		name, _ := lm["Name"].(string)
		var size uint64
		if ts, ok := lm["Tsize"].(int64); ok && ts > 0 {
			size = uint64(ts)
		}
		if err := n.AddRawLink(name, &format.Link{Name: name, Size: size, Cid: target}); err != nil {
			return nil, fmt.Errorf("%w: Links/%d: %v", codec.ErrUnsupportedShape, i, err)
		}
	}
	return n, nil
}
