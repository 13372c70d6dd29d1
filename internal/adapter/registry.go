package adapter

import (
	"github.com/rotisserie/eris"

	"github.com/bitebase/catalog-cli/internal/model"
)

// ErrNoAdapters is returned when a run is requested and no adapter has
// credentials configured. Raised before any ingestion work begins.
var ErrNoAdapters = eris.New("adapter: no adapters configured")

// Registry holds the known adapters in registration order.
type Registry struct {
	adapters []Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an adapter. Registration order is preserved so runs are
// deterministic.
func (r *Registry) Register(a Adapter) {
	r.adapters = append(r.adapters, a)
}

// All returns every registered adapter.
func (r *Registry) All() []Adapter {
	return r.adapters
}

// Configured returns the adapters with credentials present, or ErrNoAdapters
// when none are usable.
func (r *Registry) Configured() ([]Adapter, error) {
	var out []Adapter
	for _, a := range r.adapters {
		if a.Configured() {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoAdapters
	}
	return out, nil
}

// BySource returns the adapter for a source name, or an error naming it.
func (r *Registry) BySource(source model.Source) (Adapter, error) {
	for _, a := range r.adapters {
		if a.SourceName() == source {
			return a, nil
		}
	}
	return nil, eris.Errorf("adapter: unknown source %q", source)
}
