/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 */

// Package zone holds a single loaded DNS zone and answers queries
// against it: the authoritative lookup algorithm (answer, referral,
// NODATA, NXDOMAIN) plus authority/additional section construction.
package zone

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hdais/eqt-server/dnsname"
	"github.com/miekg/dns"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// node is the set of RRsets sharing an owner name.
type node struct {
	name    string // canonical (lowercase) owner name
	rrtypes *rrTypeStore
}

func newNode(name string) *node {
	return &node{name: name, rrtypes: newRRTypeStore()}
}

// Zone is a loaded, immutable-after-load set of RRsets organized by
// owner name, plus the derived set of every name that exists in the
// tree (including empty non-terminals).
type Zone struct {
	Origin   dnsname.Name
	data     cmap.ConcurrentMap[string, *node]
	allNames cmap.ConcurrentMap[string, struct{}]
	apex     *node
}

// Load parses an RFC 1035 master file at path into a Zone rooted at
// originText. No XFR bookkeeping, no serial-unchanged short circuit,
// no DNSSEC.
func Load(originText, path string) (*Zone, error) {
	origin, err := dnsname.Parse(originText)
	if err != nil {
		return nil, fmt.Errorf("zone: bad origin %q: %w", originText, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("zone: opening %s: %w", path, err)
	}
	defer f.Close()
	return parse(origin, f, path)
}

// LoadFromReader is Load, but reads zone data from an already-open
// reader instead of a file path. Exported for tests and for callers
// that already hold zone data in memory.
func LoadFromReader(origin dnsname.Name, r io.Reader, sourceName string) (*Zone, error) {
	return parse(origin, r, sourceName)
}

func parse(origin dnsname.Name, r io.Reader, sourceName string) (*Zone, error) {
	z := &Zone{
		Origin:   origin,
		data:     cmap.New[*node](),
		allNames: cmap.New[struct{}](),
	}

	zp := dns.NewZoneParser(r, origin.String(), sourceName)
	zp.SetIncludeAllowed(true)

	for rr, ok := zp.Next(); ok; rr, ok = zp.Next() {
		if err := z.add(rr); err != nil {
			return nil, err
		}
	}
	if err := zp.Err(); err != nil {
		return nil, fmt.Errorf("zone: parsing %s: %w", sourceName, err)
	}

	if err := z.checkOrigin(); err != nil {
		return nil, err
	}
	z.computeAllNames()
	return z, nil
}

// add inserts rr into its owner's node, dropping duplicate RDATA.
func (z *Zone) add(rr dns.RR) error {
	name := strings.ToLower(rr.Header().Name)
	n, ok := z.data.Get(name)
	if !ok {
		n = newNode(name)
		z.data.Set(name, n)
	}
	rrtype := rr.Header().Rrtype
	rrset, _ := n.rrtypes.Get(rrtype)
	rrset.Name = rr.Header().Name
	rrset.RRtype = rrtype
	for _, existing := range rrset.RRs {
		if dns.IsDuplicate(existing, rr) {
			return nil // duplicate RDATA: silently coalesced, as master-file loaders do
		}
	}
	rrset.RRs = append(rrset.RRs, rr)
	n.rrtypes.Set(rrtype, rrset)
	return nil
}

// checkOrigin asserts that the apex carries SOA and NS RRsets, as
// RFC 1035 requires of any zone's origin.
func (z *Zone) checkOrigin() error {
	apex, ok := z.data.Get(z.Origin.Key())
	if !ok {
		return fmt.Errorf("zone %s: no data at apex", z.Origin)
	}
	if _, ok := apex.rrtypes.Get(dns.TypeSOA); !ok {
		return fmt.Errorf("zone %s: missing apex SOA", z.Origin)
	}
	if _, ok := apex.rrtypes.Get(dns.TypeNS); !ok {
		return fmt.Errorf("zone %s: missing apex NS", z.Origin)
	}
	z.apex = apex
	return nil
}

// computeAllNames populates the derived existence set: every populated
// owner plus every strict ancestor up to and including the origin.
func (z *Zone) computeAllNames() {
	for _, key := range z.data.Keys() {
		n, err := dnsname.Parse(key)
		if err != nil {
			continue
		}
		for _, anc := range n.Ancestors(z.Origin) {
			z.allNames.Set(anc.Key(), struct{}{})
		}
	}
	z.allNames.Set(z.Origin.Key(), struct{}{})
}

// NameExists reports whether name is a populated owner or an empty
// non-terminal within this zone.
func (z *Zone) NameExists(name dnsname.Name) bool {
	_, ok := z.allNames.Get(name.Key())
	return ok
}

func (z *Zone) getNode(name dnsname.Name) (*node, bool) {
	return z.data.Get(name.Key())
}

func (z *Zone) apexNode() *node {
	return z.apex
}
