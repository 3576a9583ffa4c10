package codec

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ipfs/go-cid"
)

// Normalize converts a Go value into the generic data model shared by the
// structured codecs:
//
//	map[string]any, []any, string, []byte, bool, nil, int64, float64
//
// Link markers are validated and rewritten to their canonical CID string;
// cid.Cid values become markers. Anything else fails with ErrUnsupportedShape.
func Normalize(v any) (any, error) {
	return normalize(v, "")
}

func normalize(v any, at string) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return x, nil
	case string:
		return checkString(x, at)
	case []byte:
		if x == nil {
			return []byte{}, nil
		}
		return x, nil
	case int64:
		return x, nil
	case float64:
		return checkFloat(x, at)
	case cid.Cid:
		if !x.Defined() {
			return nil, shapeErr(at, "undefined cid")
		}
		return LinkMarker(x), nil
	case *cid.Cid:
		if x == nil {
			return nil, nil
		}
		return normalize(*x, at)
	case map[string]any:
		if s, ok := x[LinkKey].(string); ok && len(x) == 1 {
			c, err := cid.Decode(s)
			if err != nil || !c.Defined() {
				return nil, shapeErr(at, fmt.Sprintf("malformed link %q", s))
			}
			return LinkMarker(c), nil
		}
		out := make(map[string]any, len(x))
		for k, e := range x {
			if !utf8.ValidString(k) {
				return nil, shapeErr(at, fmt.Sprintf("map key %q is not valid UTF-8", k))
			}
			n, err := normalize(e, join(at, k))
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			n, err := normalize(e, join(at, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}
	return normalizeValue(reflect.ValueOf(v), at)
}

func normalizeValue(rv reflect.Value, at string) (any, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return normalize(rv.Elem().Interface(), at)
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return checkString(rv.String(), at)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, shapeErr(at, fmt.Sprintf("integer %d overflows int64", u))
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return checkFloat(rv.Float(), at)
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return b, nil
		}
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil, nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			n, err := normalize(rv.Index(i).Interface(), join(at, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, shapeErr(at, "map keys must be strings")
		}
		if rv.IsNil() {
			return nil, nil
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return normalize(m, at)
	}
	return nil, shapeErr(at, fmt.Sprintf("unsupported type %s", rv.Type()))
}

func checkString(s, at string) (any, error) {
	if !utf8.ValidString(s) {
		return nil, shapeErr(at, fmt.Sprintf("string %q is not valid UTF-8", s))
	}
	return s, nil
}

func checkFloat(f float64, at string) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, shapeErr(at, "NaN and infinities are not representable")
	}
	return f, nil
}

func shapeErr(at, msg string) error {
	if at == "" {
		return fmt.Errorf("%w: %s", ErrUnsupportedShape, msg)
	}
	return fmt.Errorf("%w: at %q: %s", ErrUnsupportedShape, at, msg)
}

func join(prefix, seg string) string {
	if prefix == "" {
		return seg
	}
	return prefix + "/" + seg
}

// WalkGeneric resolves path against a generic data-model value, stopping at
// the first link marker it lands on.
func WalkGeneric(v any, path []string) (Resolution, error) {
	cur := v
	for i, seg := range path {
		if c, ok := AsLink(cur); ok {
			return Resolution{Link: c, Rest: path[i:]}, nil
		}
		switch n := cur.(type) {
		case map[string]any:
			next, ok := n[seg]
			if !ok {
				return Resolution{}, fmt.Errorf("%w: %q", ErrNoSegment, seg)
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(n) {
				return Resolution{}, fmt.Errorf("%w: %q", ErrNoSegment, seg)
			}
			cur = n[idx]
		default:
			return Resolution{}, fmt.Errorf("%w: %q", ErrLeaf, strings.Join(path[:i], "/"))
		}
	}
	if c, ok := AsLink(cur); ok {
		return Resolution{Link: c}, nil
	}
	return Resolution{Value: cur}, nil
}

// GenericLinks lists the link markers inside v depth-first, visiting map keys
// in sorted order.
func GenericLinks(v any) []Link {
	var out []Link
	visitGeneric(v, "", func(at string, x any) bool {
		if c, ok := AsLink(x); ok {
			out = append(out, Link{Path: at, Cid: c})
			return false
		}
		return true
	})
	return out
}

// GenericTree lists every path inside v, without descending into links.
func GenericTree(v any) []string {
	var out []string
	visitGeneric(v, "", func(at string, x any) bool {
		if at != "" {
			out = append(out, at)
		}
		_, isLink := AsLink(x)
		return !isLink
	})
	return out
}

func visitGeneric(v any, at string, fn func(at string, v any) bool) {
	if !fn(at, v) {
		return
	}
	switch n := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(n))
		for k := range n {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			visitGeneric(n[k], join(at, k), fn)
		}
	case []any:
		for i, e := range n {
			visitGeneric(e, join(at, strconv.Itoa(i)), fn)
		}
	}
}
