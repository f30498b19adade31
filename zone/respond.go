/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 */
package zone

import (
	"github.com/hdais/eqt-server/dnsname"
	"github.com/miekg/dns"
)

// Respond implements the authoritative answering algorithm: out-of-
// bailiwick REFUSED, delegation referral, exact match, CNAME fallback,
// ANY, then NODATA-vs-NXDOMAIN via the all_names set. It never
// recurses and never follows a CNAME chain.
func (z *Zone) Respond(r *dns.Msg) *dns.Msg {
	q := r.Question[0]

	if q.Qclass != dns.ClassINET {
		return refused(r)
	}

	qname, err := dnsname.Parse(q.Name)
	if err != nil {
		return refused(r)
	}
	qtype := q.Qtype

	if !qname.IsSubdomainOf(z.Origin) {
		return refused(r)
	}

	// Step 2: delegation / referral check, bottom-up, strictly above apex.
	for _, anc := range qname.Ancestors(z.Origin) {
		if anc.Equal(z.Origin) {
			break // apex NS is not a delegation
		}
		n, ok := z.getNode(anc)
		if !ok {
			continue
		}
		nsRRset, ok := n.rrtypes.Get(dns.TypeNS)
		if !ok || len(nsRRset.RRs) == 0 {
			continue
		}
		return z.referral(r, nsRRset)
	}

	n, exists := z.getNode(qname)

	// Step 3: exact match.
	if exists {
		if rrset, ok := n.rrtypes.Get(qtype); ok && len(rrset.RRs) > 0 {
			return z.answer(r, []RRset{rrset})
		}

		// Step 4: CNAME fallback (qtype != CNAME, already handled above).
		if qtype != dns.TypeCNAME {
			if cname, ok := n.rrtypes.Get(dns.TypeCNAME); ok && len(cname.RRs) > 0 {
				return z.answer(r, []RRset{cname})
			}
		}

		// Step 5: ANY.
		if qtype == dns.TypeANY {
			items := n.rrtypes.Items()
			if len(items) > 0 {
				rrsets := make([]RRset, 0, len(items))
				for _, rrset := range items {
					if len(rrset.RRs) > 0 {
						rrsets = append(rrsets, rrset)
					}
				}
				return z.answer(r, rrsets)
			}
		}
	}

	// Step 6: NODATA vs NXDOMAIN.
	soa, ok := z.apexNode().rrtypes.Get(dns.TypeSOA)
	if !ok || len(soa.RRs) == 0 {
		return servfail(r)
	}
	m := baseReply(r)
	m.Ns = append(m.Ns, soa.RRs...)
	if z.NameExists(qname) {
		m.Rcode = dns.RcodeSuccess
	} else {
		m.Rcode = dns.RcodeNameError
	}
	return m
}

// answer builds a direct ANSWER response: AA set, apex NS in authority,
// glue in additional for every NS target / MX exchange referenced by
// the answer or authority sections.
func (z *Zone) answer(r *dns.Msg, rrsets []RRset) *dns.Msg {
	m := baseReply(r)
	m.Authoritative = true
	for _, rrset := range rrsets {
		m.Answer = append(m.Answer, rrset.RRs...)
	}
	glueSources := append([]RRset{}, rrsets...)
	if nsRRset, ok := z.apexNode().rrtypes.Get(dns.TypeNS); ok {
		m.Ns = append(m.Ns, nsRRset.RRs...)
		glueSources = append(glueSources, nsRRset)
	}
	m.Extra = z.glueFor(glueSources)
	return m
}

// referral builds a delegation response: AA clear, NS RRset for the
// delegation point in authority, glue A/AAAA in additional.
func (z *Zone) referral(r *dns.Msg, nsRRset RRset) *dns.Msg {
	m := baseReply(r)
	m.Authoritative = false
	m.Ns = append(m.Ns, nsRRset.RRs...)
	m.Extra = z.glueFor([]RRset{nsRRset})
	return m
}

// glueFor looks up A/AAAA for every NS target and MX exchange named in
// rrsets, within this zone only, deduplicated by (name,type).
func (z *Zone) glueFor(rrsets []RRset) []dns.RR {
	type key struct {
		name   string
		rrtype uint16
	}
	seen := map[key]bool{}
	var extra []dns.RR

	addGlue := func(target string) {
		name, err := dnsname.Parse(target)
		if err != nil {
			return
		}
		n, ok := z.getNode(name)
		if !ok {
			return
		}
		for _, rrtype := range [2]uint16{dns.TypeA, dns.TypeAAAA} {
			rrset, ok := n.rrtypes.Get(rrtype)
			if !ok {
				continue
			}
			k := key{name: name.Key(), rrtype: rrtype}
			if seen[k] {
				continue
			}
			seen[k] = true
			extra = append(extra, rrset.RRs...)
		}
	}

	for _, rrset := range rrsets {
		switch rrset.RRtype {
		case dns.TypeNS:
			for _, rr := range rrset.RRs {
				if ns, ok := rr.(*dns.NS); ok {
					addGlue(ns.Ns)
				}
			}
		case dns.TypeMX:
			for _, rr := range rrset.RRs {
				if mx, ok := rr.(*dns.MX); ok {
					addGlue(mx.Mx)
				}
			}
		}
	}
	return extra
}

func baseReply(r *dns.Msg) *dns.Msg {
	m := new(dns.Msg)
	m.SetReply(r)
	m.RecursionDesired = false
	if opt := r.IsEdns0(); opt != nil {
		m.SetEdns0(4096, false)
	}
	return m
}

func refused(r *dns.Msg) *dns.Msg {
	m := baseReply(r)
	m.Rcode = dns.RcodeRefused
	return m
}

func servfail(r *dns.Msg) *dns.Msg {
	m := baseReply(r)
	m.Rcode = dns.RcodeServerFailure
	return m
}
