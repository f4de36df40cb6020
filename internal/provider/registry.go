package provider

import (
	"fmt"
	"sync"
)

type Factory func() (Provider, error)

// Registry builds providers on first use and hands out the same instance afterwards.
type Registry struct {
	mu        sync.Mutex
	factories map[Kind]Factory
	instances map[Kind]Provider
}

func NewRegistry(factories map[Kind]Factory) *Registry {
	copied := make(map[Kind]Factory, len(factories))
	for kind, factory := range factories {
		if factory != nil {
			copied[kind] = factory
		}
	}

	return &Registry{
		factories: copied,
		instances: make(map[Kind]Provider),
	}
}

func (r *Registry) Get(kind Kind) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.instances[kind]; ok {
		return p, nil
	}

	factory, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}

	p, err := factory()
	if err != nil {
		return nil, fmt.Errorf("build %s provider: %w", kind, err)
	}
	r.instances[kind] = p
	return p, nil
}

// Clear drops every cached instance; the next Get rebuilds from the factory.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.instances)
}
