package bot

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the discard strategies a server can run its bots with.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates a registry holding only Random.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	r.Register(Random{})
	return r
}

// Register adds a strategy under its Name. Panics on duplicate names.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := s.Name()
	if _, exists := r.strategies[name]; exists {
		panic(fmt.Sprintf("bot strategy %q already registered", name))
	}
	r.strategies[name] = s
}

// Get returns a strategy by name.
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	return s, ok
}

// Names lists every registered strategy, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select returns the named strategy. An empty name picks the only
// non-default strategy when exactly one is registered, and Random otherwise.
func (r *Registry) Select(name string) (Strategy, error) {
	if name == "" {
		names := r.Names()
		if len(names) == 2 {
			for _, n := range names {
				if n != (Random{}).Name() {
					name = n
				}
			}
		} else {
			name = Random{}.Name()
		}
	}
	s, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown bot strategy %q (have %v)", name, r.Names())
	}
	return s, nil
}
