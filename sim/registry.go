package sim

import (
	"fmt"
	"sort"
	"sync"
)

var (
	designsMu sync.RWMutex
	designs   = make(map[string]DeviceFactory)
)

// RegisterDesign makes a design available by name. It panics if the name is
// empty, the factory is nil, or the name is already taken.
func RegisterDesign(name string, factory DeviceFactory) {
	designsMu.Lock()
	defer designsMu.Unlock()

	if name == "" {
		panic("design name cannot be empty")
	}

	if factory == nil {
		panic("design " + name + " has no factory")
	}

	if _, dup := designs[name]; dup {
		panic("design " + name + " already registered")
	}

	designs[name] = factory
}

// LookupDesign returns the factory registered under name.
func LookupDesign(name string) (DeviceFactory, error) {
	designsMu.RLock()
	defer designsMu.RUnlock()

	factory, ok := designs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDesign, name)
	}

	return factory, nil
}

// DesignNames returns the names of all registered designs, sorted.
func DesignNames() []string {
	designsMu.RLock()
	defer designsMu.RUnlock()

	names := make([]string, 0, len(designs))
	for name := range designs {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
