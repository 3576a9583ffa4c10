package ipfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multicodec"

	"xdao.co/dagstore/cidutil"
	"xdao.co/dagstore/storage"
)

// CAS is a block store backed by the local Kubo "ipfs" CLI.
//
// Properties:
//   - Offline: operates on the local IPFS repo; does not require an IPFS daemon.
//   - Any codec and hash: block put is told the CID's codec, hash function and
//     digest length, so the block lands under exactly the requested CID.
//   - Best-effort: relies on an external "ipfs" binary (configurable).
//
// This adapter is not authoritative. Transport/reachability is not validity;
// CID verification is.
type CAS struct {
	bin string
	env []string
}

var _ storage.CAS = (*CAS)(nil)

type Options struct {
	// Bin is the path to the ipfs binary. If empty, "ipfs" is used.
	Bin string
	// Env optionally overrides the command environment (e.g. to set IPFS_PATH).
	// If nil, the process environment is used.
	Env []string
}

func New(opts Options) *CAS {
	bin := opts.Bin
	if bin == "" {
		bin = "ipfs"
	}
	return &CAS{bin: bin, env: opts.Env}
}

func (c *CAS) Put(ctx context.Context, id cid.Cid, data []byte) error {
	if !id.Defined() {
		return storage.ErrInvalidCID
	}
	if err := cidutil.Verify(id, data); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrCIDMismatch, err)
	}

	args, err := putArgs(id)
	if err != nil {
		return err
	}
	out, err := c.run(ctx, data, args...)
	if err != nil {
		return err
	}

	got, err := cid.Decode(strings.TrimSpace(string(out)))
	if err != nil {
		return fmt.Errorf("ipfs: unexpected block put output: %w", err)
	}
	if !got.Equals(id) {
		return storage.ErrCIDMismatch
	}
	return nil
}

// putArgs builds the block put invocation reproducing id's prefix.
func putArgs(id cid.Cid) ([]string, error) {
	p := id.Prefix()
	mh := cidutil.HashName(p.MhType)
	if mh == "" {
		return nil, fmt.Errorf("ipfs: %w: %#x", cidutil.ErrUnsupportedHash, p.MhType)
	}
	return []string{
		"block", "put",
		"--quiet",
		"--cid-codec=" + multicodec.Code(p.Codec).String(),
		"--mhtype=" + mh,
		"--mhlen=" + strconv.Itoa(p.MhLength),
		"/dev/stdin",
	}, nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}

	out, err := c.run(ctx, nil, "block", "get", id.String())
	if err != nil {
		if isLikelyNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if err := cidutil.Verify(id, out); err != nil {
		return nil, storage.ErrCIDMismatch
	}
	return out, nil
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if !id.Defined() {
		return false, nil
	}
	_, err := c.run(ctx, nil, "block", "stat", "--offline", id.String())
	if err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return false, nil
}

func (c *CAS) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.bin, args...)
	if c.env != nil {
		cmd.Env = c.env
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		s := strings.TrimSpace(string(ee.Stderr))
		if s == "" {
			return nil, fmt.Errorf("ipfs: %v", err)
		}
		return nil, fmt.Errorf("ipfs: %s", s)
	}
	return nil, err
}

func isLikelyNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "block not found")
}
