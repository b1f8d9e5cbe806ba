package tools

import (
	"sort"
	"sync"

	"github.com/aigent/aigent/internal/memory"
)

// Registry holds tools by name under first-match-wins resolution: WASM
// guest tools are discovered and registered first at startup, then native
// implementations are registered only for names not already taken (spec
// §4.9: "a guest thus shadows the native baseline by filename; absence
// leaves the native active").
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// RegisterWASM registers a guest tool discovered under the extensions
// directory. Always wins over a later RegisterNative call for the same
// name.
func (r *Registry) RegisterWASM(spec memory.ToolSpec, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[spec.Name] = entry{spec: spec, handler: handler, source: SourceWASM}
}

// RegisterNative registers a baseline Go tool implementation. No-op if a
// WASM guest already claimed this name.
func (r *Registry) RegisterNative(spec memory.ToolSpec, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.entries[spec.Name]; taken {
		return
	}
	r.entries[spec.Name] = entry{spec: spec, handler: handler, source: SourceNative}
}

// lookup returns the entry registered for name, if any.
func (r *Registry) lookup(name string) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Specs returns the LLM-facing tool specs, sorted by name for deterministic
// prompt construction and `aigent tool list` output.
func (r *Registry) Specs() []memory.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]memory.ToolSpec, 0, len(r.entries))
	for _, e := range r.entries {
		specs = append(specs, e.spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Source reports whether name resolved to a native or WASM guest
// implementation, for diagnostics.
func (r *Registry) Source(name string) (Source, bool) {
	e, ok := r.lookup(name)
	if !ok {
		return "", false
	}
	return e.source, true
}
