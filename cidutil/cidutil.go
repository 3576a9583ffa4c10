// Package cidutil computes and parses the content identifiers used as node
// identity and storage keys.
package cidutil

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multicodec"
	"github.com/multiformats/go-multihash"
)

var (
	ErrUnsupportedHash = errors.New("cidutil: unsupported hash algorithm")
	ErrUnknownCodec    = errors.New("cidutil: unknown codec")
	ErrDigestMismatch  = errors.New("cidutil: digest does not match cid")
)

// hashAlgs lists the multihash functions accepted for new CIDs, keyed by their
// multicodec table name.
var hashAlgs = map[string]uint64{
	"sha2-256":    multihash.SHA2_256,
	"sha2-512":    multihash.SHA2_512,
	"sha3-256":    multihash.SHA3_256,
	"sha3-512":    multihash.SHA3_512,
	"blake2b-256": multihash.BLAKE2B_MIN + 31,
	"blake3":      multihash.BLAKE3,
}

// HashCode returns the multihash code for a supported algorithm name.
func HashCode(name string) (uint64, error) {
	code, ok := hashAlgs[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedHash, name)
	}
	return code, nil
}

// HashName returns the multihash table name for code, or "" if unknown.
func HashName(code uint64) string {
	return multihash.Codes[code]
}

// HashAlgs returns the supported algorithm names, sorted.
func HashAlgs() []string {
	out := make([]string, 0, len(hashAlgs))
	for name := range hashAlgs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// CodecName returns the multicodec table name for code (e.g. "dag-pb").
func CodecName(code uint64) string {
	return multicodec.Code(code).String()
}

// CodecCode parses a multicodec table name.
func CodecCode(name string) (uint64, error) {
	var c multicodec.Code
	if err := c.Set(name); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
	return uint64(c), nil
}

// Compute returns the CIDv1 of data under codec, hashed with hashAlg.
//
// The result depends only on the three inputs.
func Compute(data []byte, codec uint64, hashAlg string) (cid.Cid, error) {
	code, err := HashCode(hashAlg)
	if err != nil {
		return cid.Undef, err
	}
	sum, err := multihash.Sum(data, code, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("cidutil: hashing with %s: %w", hashAlg, err)
	}
	return cid.NewCidV1(codec, sum), nil
}

// Verify recomputes the digest of data using id's own prefix and reports
// ErrDigestMismatch when they differ.
func Verify(id cid.Cid, data []byte) error {
	if !id.Defined() {
		return fmt.Errorf("cidutil: undefined cid")
	}
	got, err := id.Prefix().Sum(data)
	if err != nil {
		return err
	}
	if !got.Equals(id) {
		return ErrDigestMismatch
	}
	return nil
}

// Parse decodes any multibase string form of a CID.
func Parse(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, err
	}
	if !id.Defined() {
		return cid.Undef, fmt.Errorf("cidutil: undefined cid %q", s)
	}
	return id, nil
}

// Format encodes id with the named multibase (e.g. "base32", "base58btc").
// An empty base yields the canonical id.String() form.
func Format(id cid.Cid, base string) (string, error) {
	if base == "" {
		return id.String(), nil
	}
	enc, err := multibase.EncoderByName(base)
	if err != nil {
		return "", err
	}
	if id.Version() == 0 {
		id = cid.NewCidV1(id.Type(), id.Hash())
	}
	return id.Encode(enc), nil
}
