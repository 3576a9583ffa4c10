package dag

import (
	"errors"
	"strings"

	"github.com/ipfs/go-cid"
)

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind rather than matching error strings. Use
// errors.As to extract *Error, or IsKind / KindOf.
type Kind string

const (
	KindUnsupportedFormat        Kind = "UnsupportedFormat"
	KindUnsupportedHashAlgorithm Kind = "UnsupportedHashAlgorithm"
	KindEncode                   Kind = "EncodeError"
	KindDecode                   Kind = "DecodeError"
	KindNotFound                 Kind = "NotFound"
	KindInvalidPath              Kind = "InvalidPath"
	KindIO                       Kind = "IOError"
)

// Error is the resolver's structured error type.
//
// Op is the resolver operation ("put", "get", "links", "tree", "closure").
// Cid is the block being processed when the failure happened, which for a
// get crossing links is not necessarily the root. Path is the part of the
// requested path consumed before the failure.
//
// Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	Op      string
	Cid     cid.Cid
	Path    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString("dag: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(" ")
	}
	if e.Cid.Defined() {
		b.WriteString(e.Cid.String())
		if e.Path != "" {
			b.WriteString("/")
			b.WriteString(e.Path)
		}
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func wrapError(kind Kind, op string, id cid.Cid, cause error) *Error {
	e := &Error{Kind: kind, Op: op, Cid: id, Cause: cause}
	if cause != nil {
		e.Message = cause.Error()
	}
	return e
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// KindOf returns the Kind of a structured error, or "" if err is not one.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}
