package engine

import (
	"fmt"
	"sort"
)

// Router maps engine names to backends with a configurable fallback.
// It is read-only after construction and safe for concurrent use.
type Router[T any] struct {
	backends map[string]T
	fallback string
}

// NewRouter creates a router with the given backends. Requests for an unknown
// name resolve to fallback.
func NewRouter[T any](backends map[string]T, fallback string) *Router[T] {
	return &Router[T]{backends: backends, fallback: fallback}
}

// Route returns the backend for name and the name actually resolved,
// falling back to the default when name is empty or unknown.
func (r *Router[T]) Route(name string) (T, string, error) {
	if backend, ok := r.backends[name]; ok {
		return backend, name, nil
	}
	if backend, ok := r.backends[r.fallback]; ok {
		return backend, r.fallback, nil
	}
	var zero T
	return zero, "", fmt.Errorf("no backend for engine %q", name)
}

// Has reports whether the router has a backend registered under name.
func (r *Router[T]) Has(name string) bool {
	_, ok := r.backends[name]
	return ok
}

// Default returns the fallback engine name.
func (r *Router[T]) Default() string {
	return r.fallback
}

// Engines returns the registered names in lexical order.
func (r *Router[T]) Engines() []string {
	names := make([]string, 0, len(r.backends))
	for k := range r.backends {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
