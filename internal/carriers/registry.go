package carriers

import (
	"fmt"
	"sort"

	"github.com/lms-platform/shipping-core/internal/domain"
)

// Registry resolves carrier adapters by name
type Registry struct {
	adapters map[string]domain.CarrierAdapter
}

// NewRegistry creates a registry holding adapters
func NewRegistry(adapters ...domain.CarrierAdapter) *Registry {
	r := &Registry{adapters: make(map[string]domain.CarrierAdapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// NewRegistryFromConfig builds an adapter for every enabled carrier
func NewRegistryFromConfig(cfg *Config, deps Deps) *Registry {
	deps = deps.withDefaults()
	r := NewRegistry()
	if cfg.Delhivery.Enabled {
		r.Register(NewDelhiveryAdapter(cfg.Delhivery, cfg.Timeout, deps))
	}
	if cfg.Shiprocket.Enabled {
		r.Register(NewShiprocketAdapter(cfg.Shiprocket, cfg.Timeout, deps))
	}
	if cfg.Xpressbees.Enabled {
		r.Register(NewXpressbeesAdapter(cfg.Xpressbees, cfg.Timeout, deps))
	}
	return r
}

// Register adds or replaces the adapter for its carrier name
func (r *Registry) Register(a domain.CarrierAdapter) {
	r.adapters[a.Name()] = a
}

// Get returns the adapter of a carrier
func (r *Registry) Get(name string) (domain.CarrierAdapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCarrierNotFound, name)
	}
	return a, nil
}

// All returns every adapter ordered by carrier name
func (r *Registry) All() []domain.CarrierAdapter {
	out := make([]domain.CarrierAdapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Names returns the registered carrier names in order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
