// pkg/engine/registry.go
package engine

import (
	"sort"

	"github.com/opd-ai/go-dogfight/pkg/entity"
)

// Registry maps fighter IDs to fighters. Keys are unique and entries are
// never removed. It is not safe for concurrent use; Engine guards it.
type Registry struct {
	fighters map[string]*entity.Fighter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{fighters: make(map[string]*entity.Fighter)}
}

// Add stores a copy of f. It reports false, leaving the registry
// untouched, when f is nil or its ID is already taken.
func (r *Registry) Add(f *entity.Fighter) bool {
	if f == nil {
		return false
	}
	if _, exists := r.fighters[f.ID]; exists {
		return false
	}
	stored := *f
	r.fighters[f.ID] = &stored
	return true
}

// Get returns the stored fighter for id.
func (r *Registry) Get(id string) (*entity.Fighter, bool) {
	f, ok := r.fighters[id]
	return f, ok
}

// Len returns the number of registered fighters.
func (r *Registry) Len() int {
	return len(r.fighters)
}

// Each calls fn for every fighter in unspecified order.
func (r *Registry) Each(fn func(*entity.Fighter)) {
	for _, f := range r.fighters {
		fn(f)
	}
}

// IDs returns all registered IDs in ascending order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.fighters))
	for id := range r.fighters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) all() []*entity.Fighter {
	out := make([]*entity.Fighter, 0, len(r.fighters))
	for _, f := range r.fighters {
		out = append(out, f)
	}
	return out
}
