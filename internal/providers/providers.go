// Package providers holds the adapter registry and the wire helpers
// shared by the OpenAI-compatible upstreams.
package providers

import (
	"fmt"
	"sort"
	"sync"

	"modelgate/internal/core"
)

// Registry maps provider tags to adapter instances. Adapters are
// constructed once at startup; credentials travel per-request.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]core.Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]core.Provider)}
}

// Register adds an adapter under tag, replacing any previous one.
func (r *Registry) Register(tag string, p core.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[tag] = p
}

// Get returns the adapter for tag.
func (r *Registry) Get(tag string) (core.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.adapters[tag]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %q", tag)
	}
	return p, nil
}

// Vision returns the adapter for tag when it supports vision extraction.
func (r *Registry) Vision(tag string) (core.VisionProvider, error) {
	p, err := r.Get(tag)
	if err != nil {
		return nil, err
	}
	vp, ok := p.(core.VisionProvider)
	if !ok {
		return nil, fmt.Errorf("provider %q does not support vision extraction", tag)
	}
	return vp, nil
}

// Tags returns the registered provider tags, sorted.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.adapters))
	for t := range r.adapters {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
