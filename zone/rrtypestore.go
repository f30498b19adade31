/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 */
package zone

import (
	"github.com/miekg/dns"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// RRset is a set of resource records sharing an owner name and type.
// Class is always IN for this server, so it is not tracked separately.
type RRset struct {
	Name   string
	RRtype uint16
	RRs    []dns.RR
}

// rrTypeStore indexes the RRsets at a single owner name by type, at most
// one RRset per type. Backed by a concurrent map so that a fully loaded,
// immutable zone needs no locking on its read path.
type rrTypeStore struct {
	data cmap.ConcurrentMap[uint16, RRset]
}

func newRRTypeStore() *rrTypeStore {
	return &rrTypeStore{
		data: cmap.NewWithCustomShardingFunction[uint16, RRset](func(key uint16) uint32 {
			return uint32(key)
		}),
	}
}

func (s *rrTypeStore) Get(rrtype uint16) (RRset, bool) {
	return s.data.Get(rrtype)
}

func (s *rrTypeStore) Set(rrtype uint16, rrset RRset) {
	s.data.Set(rrtype, rrset)
}

func (s *rrTypeStore) Count() int {
	return s.data.Count()
}

func (s *rrTypeStore) Keys() []uint16 {
	return s.data.Keys()
}

func (s *rrTypeStore) Items() map[uint16]RRset {
	return s.data.Items()
}
