package localfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"
	"github.com/klauspost/compress/zstd"

	"xdao.co/dagstore/cidutil"
	"xdao.co/dagstore/storage"
)

const (
	// zstdSuffix marks blocks stored compressed.
	zstdSuffix = ".zst"

	// tmpPattern names in-flight writes; it never collides with a CID.
	tmpPattern = ".put-*"
)

// zstd.Encoder and zstd.Decoder are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("localfs: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("localfs: zstd decoder initialization failed: " + err.Error())
	}
}

// Options tunes a filesystem CAS.
type Options struct {
	// Compress stores new blocks zstd-compressed. Reads accept both forms
	// regardless, so a directory can switch modes without migration.
	Compress bool
}

// CAS is a local filesystem-backed content-addressable store.
//
// Blocks are stored immutably and keyed strictly by CID. This implementation
// is offline and deterministic: it never uses the network and never depends
// on wall-clock time.
type CAS struct {
	root string
	opts Options
}

var _ storage.CAS = (*CAS)(nil)

// New constructs a filesystem CAS rooted at root. The directory will be created if needed.
func New(root string) (*CAS, error) {
	return NewWithOptions(root, Options{})
}

func NewWithOptions(root string, opts Options) (*CAS, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &CAS{root: root, opts: opts}, nil
}

func (c *CAS) Put(ctx context.Context, id cid.Cid, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !id.Defined() {
		return storage.ErrInvalidCID
	}
	if err := cidutil.Verify(id, data); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrCIDMismatch, err)
	}

	if ok, _ := c.Has(ctx, id); ok {
		return c.checkExisting(ctx, id, data)
	}

	path := c.pathFor(id, c.opts.Compress)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	payload := data
	if c.opts.Compress {
		payload = zstdEncoder.EncodeAll(data, nil)
	}

	// The block is written under a temporary name and linked into place
	// complete, so readers never observe a partial file.
	tmp, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o444); err != nil {
		return err
	}

	if err := os.Link(tmpName, path); err != nil {
		if os.IsExist(err) {
			return c.checkExisting(ctx, id, data)
		}
		return err
	}
	return nil
}

// checkExisting enforces immutability when a block file is already present.
// An unreadable or corrupted file is never repaired.
func (c *CAS) checkExisting(ctx context.Context, id cid.Cid, data []byte) error {
	existing, err := c.Get(ctx, id)
	if err != nil {
		return storage.ErrImmutable
	}
	if !bytes.Equal(existing, data) {
		return storage.ErrImmutable
	}
	return nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}

	b, compressed, err := c.read(id)
	if err != nil {
		return nil, err
	}
	if compressed {
		b, err = zstdDecoder.DecodeAll(b, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", storage.ErrCIDMismatch, err)
		}
	}
	if err := cidutil.Verify(id, b); err != nil {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

// read returns the stored file for id, trying the configured form first.
func (c *CAS) read(id cid.Cid) ([]byte, bool, error) {
	for _, compressed := range []bool{c.opts.Compress, !c.opts.Compress} {
		b, err := os.ReadFile(c.pathFor(id, compressed))
		if err == nil {
			return b, compressed, nil
		}
		if !os.IsNotExist(err) {
			return nil, false, err
		}
	}
	return nil, false, storage.ErrNotFound
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !id.Defined() {
		return false, nil
	}
	for _, compressed := range []bool{false, true} {
		if _, err := os.Stat(c.pathFor(id, compressed)); err == nil {
			return true, nil
		}
	}
	return false, nil
}

func (c *CAS) pathFor(id cid.Cid, compressed bool) string {
	s := id.String()
	if compressed {
		s += zstdSuffix
	}
	if len(s) < 2 {
		return filepath.Join(c.root, s)
	}
	return filepath.Join(c.root, s[:2], s)
}
