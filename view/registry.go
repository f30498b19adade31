/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 */
package view

import "github.com/hdais/eqt-server/dnsname"

// RootViewName is the canonical key of the mandatory default view.
var RootViewName = dnsname.Root

// Registry maps view name -> View, with a mandatory entry keyed by the
// root name (the "[default]" section of the config file). Lookups for
// missing keys fall back to the root entry.
type Registry struct {
	views map[string]*View
}

// NewRegistry returns a Registry whose root view is root (must not be nil).
func NewRegistry(root *View) *Registry {
	r := &Registry{views: map[string]*View{}}
	r.views[RootViewName.Key()] = root
	return r
}

// Add registers v under name. Registering under the root name replaces
// the default view.
func (r *Registry) Add(name dnsname.Name, v *View) {
	r.views[name.Key()] = v
}

// Root returns the mandatory default view.
func (r *Registry) Root() *View {
	return r.views[RootViewName.Key()]
}

// Resolve returns the view named name, or the root view if name is the
// zero value (no hint given) or names a view not present in the
// registry.
func (r *Registry) Resolve(name *dnsname.Name) *View {
	if name != nil {
		if v, ok := r.views[name.Key()]; ok {
			return v
		}
	}
	return r.Root()
}
