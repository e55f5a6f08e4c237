package host

import "sync"

// Registry is the process table of live host modules, searched by name or
// scanned in registration order.
type Registry struct {
	mu    sync.RWMutex
	names []string
	mods  map[string]any
}

func NewRegistry() *Registry {
	return &Registry{mods: map[string]any{}}
}

// Register adds or replaces the module stored under name. Replacing keeps
// the original registration position.
func (r *Registry) Register(name string, mod any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.mods[name]; !ok {
		r.names = append(r.names, name)
	}
	r.mods[name] = mod
}

// Get returns the module registered under name.
func (r *Registry) Get(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mod, ok := r.mods[name]
	return mod, ok
}

// Range calls fn for each module in registration order until fn returns false.
func (r *Registry) Range(fn func(name string, mod any) bool) {
	r.mu.RLock()
	names := append([]string(nil), r.names...)
	mods := make([]any, len(names))
	for i, n := range names {
		mods[i] = r.mods[n]
	}
	r.mu.RUnlock()

	for i, n := range names {
		if !fn(n, mods[i]) {
			return
		}
	}
}

// Names lists registered names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.names...)
}
