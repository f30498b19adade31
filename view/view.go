/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 */

// Package view holds the zone-apex-to-Zone mappings ("views")
// selectable per-query via an EDNS hint, plus the registry of named
// views with a mandatory root-keyed default.
package view

import (
	"github.com/hdais/eqt-server/dnsname"
	"github.com/hdais/eqt-server/zone"
)

// View is an exact-lookup dictionary of zone apex name -> *zone.Zone,
// plus deepest-suffix matching over that same dictionary.
type View struct {
	zones map[string]*zone.Zone // keyed by dnsname.Name.Key()
}

// New returns an empty View, ready for AddZone calls.
func New() *View {
	return &View{zones: map[string]*zone.Zone{}}
}

// AddZone registers z under its own origin as the apex key.
func (v *View) AddZone(z *zone.Zone) {
	v.zones[z.Origin.Key()] = z
}

// Exact returns the zone whose apex is exactly name.
func (v *View) Exact(name dnsname.Name) (*zone.Zone, bool) {
	z, ok := v.zones[name.Key()]
	return z, ok
}

// DeepestMatch returns the zone whose apex is the longest suffix of
// qname among the apexes registered in this view. Apexes are unique,
// so ties cannot occur. Returns false if the view is empty or no apex
// is an ancestor-or-self of qname.
func (v *View) DeepestMatch(qname dnsname.Name) (*zone.Zone, bool) {
	cur := qname
	for {
		if z, ok := v.zones[cur.Key()]; ok {
			return z, true
		}
		parent, ok := cur.Parent()
		if !ok {
			return nil, false
		}
		cur = parent
	}
}

// Len reports how many zones are registered in this view.
func (v *View) Len() int {
	return len(v.zones)
}
