package capability

import (
	"sort"
	"sync"

	"github.com/corentra/agentloop/core"
)

// Registry resolves capability names to executable capabilities. Registration
// happens at configuration time; during turns the registry is read-only and
// safely shared across many independent conversations.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[string]Capability
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{capabilities: make(map[string]Capability)}
}

// Register adds a capability, replacing any previous entry with the same name.
func (r *Registry) Register(c Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capabilities[c.Name()] = c
}

// RegisterAll adds multiple capabilities at once.
func (r *Registry) RegisterAll(caps ...Capability) {
	for _, c := range caps {
		r.Register(c)
	}
}

// Resolve returns the capability registered under name, or false when unknown.
func (r *Registry) Resolve(name string) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.capabilities[name]
	return c, ok
}

// Names returns the sorted list of registered capability names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.capabilities))
	for name := range r.capabilities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns descriptors for the named capabilities, preserving the
// requested order. Nil selects every registered capability in sorted name
// order. Unknown names are skipped: descriptor assembly is a configuration
// concern, resolution misses surface at dispatch time.
func (r *Registry) Descriptors(names []string) []core.Descriptor {
	if names == nil {
		names = r.Names()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	descriptors := make([]core.Descriptor, 0, len(names))
	for _, name := range names {
		if c, ok := r.capabilities[name]; ok {
			descriptors = append(descriptors, Describe(c))
		}
	}
	return descriptors
}
