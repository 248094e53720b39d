package driver

import (
	"fmt"
	"sort"
	"sync"

	"feditest/pkg/logging"
)

// Entry is a registered driver.
type Entry struct {
	Name         string
	Description  string
	Capabilities CapabilitySet
	Factory      Factory
	// Validate checks a node configuration before any I/O happens.
	Validate func(NodeConfig) error
	// VolatileFields are exchange paths whose values legitimately change
	// between runs against this driver, e.g. "request.body.id".
	VolatileFields []string
}

// Option customizes an Entry at registration.
type Option func(*Entry)

// WithDescription sets a human readable description.
func WithDescription(d string) Option {
	return func(e *Entry) { e.Description = d }
}

// WithValidator sets a configuration validator.
func WithValidator(v func(NodeConfig) error) Option {
	return func(e *Entry) { e.Validate = v }
}

// WithVolatileFields sets the driver's default volatile field patterns.
func WithVolatileFields(patterns ...string) Option {
	return func(e *Entry) { e.VolatileFields = append(e.VolatileFields, patterns...) }
}

// Registry maps driver names to factories. Registries are explicitly
// constructed so tests can use isolated instances.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewRegistry creates an empty driver registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
	}
}

// Register adds a driver to the registry
func (r *Registry) Register(name string, factory Factory, caps CapabilitySet, opts ...Option) error {
	if name == "" {
		return fmt.Errorf("driver has empty name")
	}
	if factory == nil {
		return fmt.Errorf("cannot register driver %s with nil factory", name)
	}

	entry := &Entry{
		Name:         name,
		Capabilities: NewCapabilitySet().Union(caps),
		Factory:      factory,
	}
	for _, opt := range opts {
		opt(entry)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("driver %s already registered", name)
	}

	r.entries[name] = entry
	logging.Debug("Registry", "Registered driver %s with capabilities %s", name, entry.Capabilities)
	return nil
}

// Unregister removes a driver from the registry
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; !exists {
		return &UnknownDriverError{Name: name}
	}

	delete(r.entries, name)
	return nil
}

// Resolve returns the factory registered under name.
func (r *Registry) Resolve(name string) (Factory, error) {
	e, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return e.Factory, nil
}

// Lookup returns a copy of the full registry entry for name.
func (r *Registry) Lookup(name string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.entries[name]
	if !exists {
		return nil, &UnknownDriverError{Name: name}
	}
	copied := *e
	return &copied, nil
}

// Names returns all registered driver names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entries returns copies of all registered entries, sorted by name.
func (r *Registry) Entries() []Entry {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(names))
	for _, name := range names {
		if e, ok := r.entries[name]; ok {
			out = append(out, *e)
		}
	}
	return out
}

// Close drops all registrations.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*Entry)
}
