package codec

import (
	"fmt"
	"sort"
	"sync"

	"github.com/multiformats/go-multicodec"
)

// Registry maps multicodec codes and names to codecs.
type Registry struct {
	mu     sync.RWMutex
	byCode map[multicodec.Code]Codec
}

// NewRegistry returns a registry holding codecs. It panics on duplicates.
func NewRegistry(codecs ...Codec) *Registry {
	r := &Registry{byCode: map[multicodec.Code]Codec{}}
	for _, c := range codecs {
		r.MustRegister(c)
	}
	return r
}

// Register adds c. A code may only be registered once.
func (r *Registry) Register(c Codec) error {
	if c == nil {
		return fmt.Errorf("codec: nil codec")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byCode == nil {
		r.byCode = map[multicodec.Code]Codec{}
	}
	if _, exists := r.byCode[c.Code()]; exists {
		return fmt.Errorf("codec: %s already registered", c.Code())
	}
	r.byCode[c.Code()] = c
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(c Codec) {
	if err := r.Register(c); err != nil {
		panic(err)
	}
}

// Lookup finds a codec by multicodec name, e.g. "dag-cbor".
func (r *Registry) Lookup(name string) (Codec, error) {
	var code multicodec.Code
	if err := code.Set(name); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
	c, err := r.ByCode(uint64(code))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
	return c, nil
}

// ByCode finds a codec by multicodec code, typically a CID's codec.
func (r *Registry) ByCode(code uint64) (Codec, error) {
	r.mu.RLock()
	c, ok := r.byCode[multicodec.Code(code)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, multicodec.Code(code))
	}
	return c, nil
}

// Names returns the registered codec names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byCode))
	for code := range r.byCode {
		out = append(out, code.String())
	}
	sort.Strings(out)
	return out
}

// Projectors returns the registered codecs implementing Projector, ordered by code.
func (r *Registry) Projectors() []Projector {
	r.mu.RLock()
	codes := make([]multicodec.Code, 0, len(r.byCode))
	for code := range r.byCode {
		codes = append(codes, code)
	}
	r.mu.RUnlock()
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })

	var out []Projector
	for _, code := range codes {
		c, _ := r.ByCode(uint64(code))
		if p, ok := c.(Projector); ok {
			out = append(out, p)
		}
	}
	return out
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry populated by codec plugins.
func Default() *Registry { return defaultRegistry }

// Register adds c to the default registry.
func Register(c Codec) error { return defaultRegistry.Register(c) }

// MustRegister adds c to the default registry and panics on error.
func MustRegister(c Codec) { defaultRegistry.MustRegister(c) }

// Lookup finds a codec in the default registry by name.
func Lookup(name string) (Codec, error) { return defaultRegistry.Lookup(name) }

// ByCode finds a codec in the default registry by code.
func ByCode(code uint64) (Codec, error) { return defaultRegistry.ByCode(code) }
