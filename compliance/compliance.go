// Package compliance selects how strictly the resolver treats nodes whose
// shape does not match the requested encoding.
package compliance

import "fmt"

// ComplianceMode selects how aggressively the resolver rejects ambiguity.
//
// Permissive (the zero value) accepts a node of another encoding's native type
// when that encoding can project it into the generic data model, e.g. a dag-pb
// node put as dag-cbor. Strict fails such a put with an encode error.
type ComplianceMode int

const (
	Permissive ComplianceMode = iota
	Strict
)

func (m ComplianceMode) String() string {
	switch m {
	case Permissive:
		return "permissive"
	case Strict:
		return "strict"
	default:
		return fmt.Sprintf("ComplianceMode(%d)", int(m))
	}
}

// Parse maps "permissive" or "strict" to a mode.
func Parse(s string) (ComplianceMode, error) {
	switch s {
	case "", "permissive":
		return Permissive, nil
	case "strict":
		return Strict, nil
	default:
		return Permissive, fmt.Errorf("compliance: unknown mode %q", s)
	}
}
