package source

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/esg-research/internal/config"
)

// Registry maps source names to their implementations.
type Registry struct {
	sources map[string]Source
	order   []string // insertion order for deterministic iteration
}

// NewRegistry creates a registry with every built-in source, configured from cfg.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{sources: make(map[string]Source)}

	r.Register(&GHGRP{cfg: cfg.Sources[NameGHGRP]})
	r.Register(&CDP{cfg: cfg.Sources[NameCDP]})
	r.Register(&ESGRatings{cfg: cfg.Sources[NameESGRatings]})
	r.Register(&Financials{cfg: cfg.Sources[NameFinancials]})
	r.Register(&EDGARAI{cfg: cfg.EDGAR})
	r.Register(&Manual{cfg: cfg.Sources[NameManual]})

	return r
}

// Register adds a source to the registry. A later source with the same name
// replaces the earlier one but keeps its position.
func (r *Registry) Register(s Source) {
	name := s.Name()
	if _, ok := r.sources[name]; !ok {
		r.order = append(r.order, name)
	}
	r.sources[name] = s
}

// Get returns a source by name.
func (r *Registry) Get(name string) (Source, error) {
	s, ok := r.sources[name]
	if !ok {
		return nil, eris.Errorf("source: unknown source %q (valid: %v)", name, r.order)
	}
	return s, nil
}

// Select returns the named sources in the order given, or all sources in
// registration order when names is empty.
func (r *Registry) Select(names []string) ([]Source, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	result := make([]Source, 0, len(names))
	for _, name := range names {
		s, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, nil
}

// All returns all sources in registration order.
func (r *Registry) All() []Source {
	result := make([]Source, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.sources[name])
	}
	return result
}

// AllNames returns all registered source names in registration order.
func (r *Registry) AllNames() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
