package plugin

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates a plugin instance for one provider account.
type Factory func(cfg Config) (Plugin, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register adds a plugin factory under its provider type. Called from each
// plugin package's init; a duplicate name is a programming error.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("plugin %q registered twice", name))
	}
	factories[name] = factory
}

// Create instantiates a registered plugin and validates its credentials.
func Create(name string, cfg Config) (Plugin, error) {
	mu.RLock()
	factory, exists := factories[name]
	mu.RUnlock()
	if !exists {
		return nil, &FatalPluginError{
			PluginName: name,
			Err:        fmt.Errorf("unknown provider type (registered: %v)", List()),
		}
	}

	p, err := factory(cfg)
	if err != nil {
		return nil, &FatalPluginError{PluginName: name, Err: err}
	}
	if !p.ValidateCredentials(cfg.Credentials) {
		return nil, &FatalPluginError{
			PluginName: name,
			Err:        fmt.Errorf("missing credentials, need %v", p.RequiredCredentials()),
		}
	}
	return p, nil
}

// List returns registered provider types, sorted.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
