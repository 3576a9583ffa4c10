package codec

import (
	"github.com/ipfs/go-cid"
)

// LinkKey is the reserved key of a link marker.
const LinkKey = "/"

// LinkMarker returns the generic data-model form of a link: a map with the
// single key "/" holding the CID string.
func LinkMarker(c cid.Cid) map[string]any {
	return map[string]any{LinkKey: c.String()}
}

// AsLink reports whether v is a link marker and returns its CID.
func AsLink(v any) (cid.Cid, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return cid.Undef, false
	}
	s, ok := m[LinkKey].(string)
	if !ok {
		return cid.Undef, false
	}
	c, err := cid.Decode(s)
	if err != nil || !c.Defined() {
		return cid.Undef, false
	}
	return c, true
}
