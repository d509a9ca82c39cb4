package layerconfig

import (
	"sync"

	"github.com/paulmach/orb/maptile"
)

// Registry is a collection of configurations looked up by id or detected from
// tile URLs. It is safe for concurrent use. Whoever assembles the system owns
// its registry; merged registries never write back to their parent.
type Registry struct {
	mu      sync.RWMutex
	configs []*Config
}

// NewRegistry returns a registry holding configs in detection order.
func NewRegistry(configs ...*Config) *Registry {
	r := &Registry{}
	for _, c := range configs {
		r.Register(c)
	}
	return r
}

// DefaultRegistry returns a new registry holding the built-in providers.
// Every call returns an independent instance.
func DefaultRegistry() *Registry {
	return NewRegistry(Builtin()...)
}

// Register adds c. A configuration with the same id is replaced in place so
// its detection priority is kept.
func (r *Registry) Register(c *Config) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, cur := range r.configs {
		if cur.id == c.id {
			r.configs[i] = c
			return
		}
	}
	r.configs = append(r.configs, c)
}

// Remove deletes the configuration with the given id.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, cur := range r.configs {
		if cur.id == id {
			r.configs = append(r.configs[:i:i], r.configs[i+1:]...)
			return true
		}
	}
	return false
}

// Get looks a configuration up by id.
func (r *Registry) Get(id string) (*Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.configs {
		if c.id == id {
			return c, true
		}
	}
	return nil, false
}

// IDs lists the registered ids in detection order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.configs))
	for i, c := range r.configs {
		out[i] = c.id
	}
	return out
}

// All returns the registered configurations in detection order.
func (r *Registry) All() []*Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Config(nil), r.configs...)
}

// Len returns the number of registered configurations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.configs)
}

// DetectFromTemplates returns the first configuration whose templates accept
// any of the given templates.
func (r *Registry) DetectFromTemplates(templates ...string) (*Config, bool) {
	return r.find(func(c *Config) bool {
		for _, t := range templates {
			if c.MatchesTemplate(t) {
				return true
			}
		}
		return false
	})
}

// DetectFromURLs returns the first configuration that accepts any of the given
// instance URLs.
func (r *Registry) DetectFromURLs(urls ...string) (*Config, bool) {
	return r.find(func(c *Config) bool {
		for _, u := range urls {
			if c.MatchesInstance(u) {
				return true
			}
		}
		return false
	})
}

// ParseTileURL detects the provider of url and extracts its coordinate.
func (r *Registry) ParseTileURL(url string) (*Config, maptile.Tile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.configs {
		if tile, ok := c.ExtractCoordinates(url); ok {
			return c, tile, true
		}
	}
	return nil, maptile.Tile{}, false
}

// CreateMergedRegistry returns a new registry with this registry's entries
// followed by extra. The receiver is left untouched.
func (r *Registry) CreateMergedRegistry(extra ...*Config) *Registry {
	merged := NewRegistry(r.All()...)
	for _, c := range extra {
		merged.Register(c)
	}
	return merged
}

func (r *Registry) find(pred func(*Config) bool) (*Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.configs {
		if pred(c) {
			return c, true
		}
	}
	return nil, false
}
