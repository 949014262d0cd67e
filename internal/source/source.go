// Package source defines the interface and implementations for public
// drug-data providers.
package source

import (
	"context"
	"sync"

	"github.com/clerasense/drugfacts-cli/internal/model"
)

// Source is one external drug-data provider. Implementations self-rate-limit,
// hold no per-call mutable state, and are safe to invoke concurrently.
//
// FetchDrugData returns (nil, nil) when the provider simply has nothing for
// the name; that is a normal outcome, not an error. Errors are reserved for
// transport and decoding failures.
type Source interface {
	// Name returns the human-readable provider name.
	Name() string
	// Authority returns the agency backing the data (e.g. "FDA", "NIH/NLM").
	Authority() string
	// Search returns generic names matching a query, best effort.
	Search(ctx context.Context, query string, limit int) ([]string, error)
	// FetchDrugData returns the provider's normalized view of a drug.
	FetchDrugData(ctx context.Context, genericName string) (*model.DrugData, error)
	// FetchInteractions returns drug-drug interactions. Providers without
	// interaction data return an empty list, not an error.
	FetchInteractions(ctx context.Context, genericName string) ([]model.Interaction, error)
}

// Registry manages the available sources.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
	order   []string
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]Source),
	}
}

// Register adds a source to the registry, preserving registration order.
func (r *Registry) Register(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sources[s.Name()]; !ok {
		r.order = append(r.order, s.Name())
	}
	r.sources[s.Name()] = s
}

// Get returns a source by name, or nil if not registered.
func (r *Registry) Get(name string) Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[name]
}

// All returns the registered sources in registration order.
func (r *Registry) All() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Source, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.sources[name])
	}
	return out
}
