// Package bundle moves blocks between stores as a deterministic TAR archive.
//
// Layout:
//
//	blocks/<cid>   raw block bytes, one entry per block, sorted by CID string
//	index.json     optional, non-authoritative: per-block codec, hash and size,
//	               plus named roots
//
// Every block is verified against its CID on export and again on import.
package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multicodec"

	"xdao.co/dagstore/cidutil"
	"xdao.co/dagstore/storage"
)

// FormatVersion is the current bundle index schema version.
const FormatVersion = 2

const indexName = "index.json"

var epoch0 = time.Unix(0, 0).UTC()

// ExportOptions controls bundle export behavior.
type ExportOptions struct {
	// Labels is optional, non-authoritative metadata mapping names to CIDs,
	// typically the roots of the exported DAGs.
	Labels map[string]cid.Cid
	// IncludeIndex controls whether index.json is included.
	IncludeIndex bool
}

// Export writes a deterministic TAR bundle containing the blocks for the given CIDs.
//
// The bundle bytes are deterministic: entry order is lexicographic and TAR headers are normalized.
// All exported bytes are validated against their CIDs.
func Export(ctx context.Context, w io.Writer, cas storage.CAS, ids []cid.Cid, opts ExportOptions) error {
	if cas == nil {
		return fmt.Errorf("bundle: nil CAS")
	}

	uniq := make(map[string]cid.Cid, len(ids))
	for _, id := range ids {
		if !id.Defined() {
			return storage.ErrInvalidCID
		}
		uniq[id.String()] = id
	}

	cidStrings := make([]string, 0, len(uniq))
	for s := range uniq {
		cidStrings = append(cidStrings, s)
	}
	sort.Strings(cidStrings)

	tw := tar.NewWriter(w)
	fail := func(err error) error {
		_ = tw.Close()
		return err
	}

	blocks := make([]indexBlock, 0, len(cidStrings))
	for _, s := range cidStrings {
		id := uniq[s]
		b, err := cas.Get(ctx, id)
		if err != nil {
			return fail(fmt.Errorf("bundle: %s: %w", s, err))
		}
		if err := cidutil.Verify(id, b); err != nil {
			return fail(storage.ErrCIDMismatch)
		}
		if err := writeFile(tw, "blocks/"+s, b); err != nil {
			return fail(err)
		}
		p := id.Prefix()
		blocks = append(blocks, indexBlock{
			CID:       s,
			Codec:     multicodec.Code(p.Codec).String(),
			Multihash: cidutil.HashName(p.MhType),
			Size:      len(b),
		})
	}

	if opts.IncludeIndex {
		idx := indexJSON{Version: FormatVersion, Blocks: blocks}

		labels, err := sortedLabels(opts.Labels)
		if err != nil {
			return fail(err)
		}
		idx.Labels = labels

		b, err := marshalCanonicalIndexJSON(idx)
		if err != nil {
			return fail(err)
		}
		if err := writeFile(tw, indexName, b); err != nil {
			return fail(err)
		}
	}

	return tw.Close()
}

func sortedLabels(m map[string]cid.Cid) ([]indexLabel, error) {
	if len(m) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	labels := make([]indexLabel, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			return nil, fmt.Errorf("bundle: empty label key")
		}
		v := m[k]
		if !v.Defined() {
			return nil, storage.ErrInvalidCID
		}
		labels = append(labels, indexLabel{Name: k, CID: v.String()})
	}
	return labels, nil
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown controls whether unknown TAR entries are ignored.
	//
	// Default (false) is fail-closed: unknown entries cause Import to return an error.
	IgnoreUnknown bool
}

// Summary describes what an import wrote.
type Summary struct {
	// Blocks lists imported CIDs in archive order.
	Blocks []cid.Cid
	// Labels are the index labels, if the bundle carried an index. They are
	// informational and not verified beyond CID syntax.
	Labels map[string]cid.Cid
}

// Import reads a bundle from r and imports all blocks into cas, failing closed
// on unknown entries.
func Import(ctx context.Context, r io.Reader, cas storage.CAS) (Summary, error) {
	return ImportWithOptions(ctx, r, cas, ImportOptions{})
}

// ImportWithOptions reads a bundle from r and imports all blocks into cas.
//
// It validates that each block's bytes hash to the CID named by its entry.
func ImportWithOptions(ctx context.Context, r io.Reader, cas storage.CAS, opts ImportOptions) (Summary, error) {
	var sum Summary
	if cas == nil {
		return sum, fmt.Errorf("bundle: nil CAS")
	}

	tr := tar.NewReader(r)
	seen := map[string]struct{}{}

	for {
		h, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return sum, nil
		}
		if err != nil {
			return sum, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return sum, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}

		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return sum, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		if name == indexName {
			labels, err := readLabels(tr)
			if err != nil {
				return sum, err
			}
			sum.Labels = labels
			continue
		}

		if !strings.HasPrefix(name, "blocks/") {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return sum, fmt.Errorf("bundle: unknown entry: %s", name)
		}

		id, derr := cid.Decode(strings.TrimPrefix(name, "blocks/"))
		if derr != nil || !id.Defined() {
			return sum, storage.ErrInvalidCID
		}

		payload, rerr := io.ReadAll(tr)
		if rerr != nil {
			return sum, rerr
		}
		if err := cidutil.Verify(id, payload); err != nil {
			return sum, storage.ErrCIDMismatch
		}

		key := id.String()
		if _, ok := seen[key]; ok {
			return sum, fmt.Errorf("bundle: duplicate block entry: %s", key)
		}
		seen[key] = struct{}{}

		if err := cas.Put(ctx, id, payload); err != nil {
			return sum, err
		}
		sum.Blocks = append(sum.Blocks, id)
	}
}

func readLabels(r io.Reader) (map[string]cid.Cid, error) {
	var idx indexJSON
	if err := json.NewDecoder(r).Decode(&idx); err != nil {
		return nil, fmt.Errorf("bundle: %s: %w", indexName, err)
	}
	if len(idx.Labels) == 0 {
		return nil, nil
	}
	out := make(map[string]cid.Cid, len(idx.Labels))
	for _, l := range idx.Labels {
		id, err := cid.Decode(l.CID)
		if err != nil {
			return nil, fmt.Errorf("bundle: label %q: %w", l.Name, storage.ErrInvalidCID)
		}
		out[l.Name] = id
	}
	return out, nil
}

type indexJSON struct {
	Version int          `json:"version"`
	Blocks  []indexBlock `json:"blocks"`
	Labels  []indexLabel `json:"labels,omitempty"`
}

type indexBlock struct {
	CID       string `json:"cid"`
	Codec     string `json:"codec"`
	Multihash string `json:"multihash"`
	Size      int    `json:"size"`
}

type indexLabel struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
}

func marshalCanonicalIndexJSON(idx indexJSON) ([]byte, error) {
	// indexJSON is composed only of structs + slices; encoding/json will be deterministic.
	b, err := json.Marshal(idx)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}

	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return strings.Join(parts, "/")
}
