package report

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates a new Reporter.
type Factory func() Reporter

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register adds a reporter factory under name, replacing any previous one.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Get returns the factory registered under name.
func Get(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// New instantiates the reporter registered under name.
func New(name string) (Reporter, error) {
	f, ok := Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown report format %q (available: %v)", name, Names())
	}
	return f(), nil
}

// Names returns the registered reporter names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
