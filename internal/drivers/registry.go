// Package drivers contains the per-component extraction drivers and their
// dispatch registry. Each driver owns one registry component: it enumerates
// that component's list pages, and turns fetched pages into typed entity and
// relationship records. Adding a component means adding one driver and one
// endpoint entry; dispatch logic never changes.
package drivers

import (
	"fmt"

	"github.com/madfam-io/renec-harvester-sub000/internal/harvester"
)

// Registry resolves discovered page URLs to the driver responsible for them.
type Registry struct {
	drivers []harvester.Driver
	byName  map[string]harvester.Driver
}

// NewRegistry builds a Registry. Driver order is preserved and used for
// dispatch precedence.
func NewRegistry(ds ...harvester.Driver) (*Registry, error) {
	r := &Registry{byName: make(map[string]harvester.Driver, len(ds))}
	for _, d := range ds {
		name := d.Component()
		if name == "" {
			return nil, fmt.Errorf("driver with empty component name")
		}
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("duplicate driver for component %q", name)
		}
		r.byName[name] = d
		r.drivers = append(r.drivers, d)
	}
	return r, nil
}

// Match returns the first registered driver whose URL pattern accepts url.
func (r *Registry) Match(url string) (harvester.Driver, bool) {
	for _, d := range r.drivers {
		if d.Matches(url) {
			return d, true
		}
	}
	return nil, false
}

// Get returns the driver registered for the component name.
func (r *Registry) Get(component string) (harvester.Driver, bool) {
	d, ok := r.byName[component]
	return d, ok
}

// All returns the registered drivers in registration order.
func (r *Registry) All() []harvester.Driver {
	return r.drivers
}
