/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 */

// Package dnsname wraps domain names as ordered, case-insensitive label
// sequences. It builds on github.com/miekg/dns's own name helpers rather
// than re-splitting wire-format names by hand.
package dnsname

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// Name is a domain name, stored leaf-to-root the way dns.SplitDomainName
// returns it. The zero value is the root.
type Name struct {
	labels []string
}

// Root is the zero-label name ".".
var Root = Name{}

// Parse validates and wraps a presentation-format domain name.
func Parse(s string) (Name, error) {
	if s == "" {
		return Name{}, fmt.Errorf("dnsname: empty name")
	}
	fqdn := dns.Fqdn(s)
	if _, ok := dns.IsDomainName(fqdn); !ok {
		return Name{}, fmt.Errorf("dnsname: invalid name %q", s)
	}
	if fqdn == "." {
		return Root, nil
	}
	return Name{labels: dns.SplitDomainName(fqdn)}, nil
}

// MustParse is Parse but panics on error; reserved for constants/tests.
func MustParse(s string) Name {
	n, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return n
}

// String renders the name in wire presentation form, fully qualified.
func (n Name) String() string {
	if len(n.labels) == 0 {
		return "."
	}
	return dns.Fqdn(strings.Join(n.labels, "."))
}

// Key returns a canonical, case-folded string suitable for use as a map
// key. Two names that are Equal share the same Key.
func (n Name) Key() string {
	return strings.ToLower(n.String())
}

// LabelCount returns the number of labels, 0 for the root.
func (n Name) LabelCount() int {
	return len(n.labels)
}

// IsRoot reports whether n is the root name.
func (n Name) IsRoot() bool {
	return len(n.labels) == 0
}

// Equal compares two names case-insensitively per RFC 1035 §3.1.
func (n Name) Equal(other Name) bool {
	return dns.CompareDomainName(n.String(), other.String()) == n.LabelCount() &&
		n.LabelCount() == other.LabelCount()
}

// Parent returns the immediate parent of n and true, or the zero value and
// false if n is already the root.
func (n Name) Parent() (Name, bool) {
	if len(n.labels) == 0 {
		return Root, false
	}
	return Name{labels: n.labels[1:]}, true
}

// IsSubdomainOf reports whether n is equal to or a descendant of parent.
func (n Name) IsSubdomainOf(parent Name) bool {
	return dns.IsSubDomain(parent.String(), n.String())
}

// CommonAncestor returns the longest common suffix of n and other,
// i.e. the deepest name that is an ancestor-or-self of both.
func (n Name) CommonAncestor(other Name) Name {
	matched := dns.CompareDomainName(n.String(), other.String())
	if matched == 0 {
		return Root
	}
	// CompareDomainName counts labels matching from the root; take that
	// many labels off the root end of n's label sequence (which is
	// leaf-to-root, so that's the last `matched` entries).
	start := len(n.labels) - matched
	if start < 0 {
		start = 0
	}
	return Name{labels: append([]string{}, n.labels[start:]...)}
}

// Ancestors yields n, n's parent, n's grandparent, ... down to and
// including stopAt (which must be an ancestor-or-self of n), in that
// bottom-up order.
func (n Name) Ancestors(stopAt Name) []Name {
	var out []Name
	cur := n
	for {
		out = append(out, cur)
		if cur.Equal(stopAt) {
			break
		}
		p, ok := cur.Parent()
		if !ok {
			break
		}
		cur = p
	}
	return out
}
