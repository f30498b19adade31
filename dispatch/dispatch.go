/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 */

// Package dispatch implements the per-packet pipeline: decode,
// extract EDNS option hints, select a view then a zone, invoke the
// zone's responder, and re-encode the reply.
package dispatch

import (
	"log"
	"runtime/debug"

	"github.com/hdais/eqt-server/dnsname"
	"github.com/hdais/eqt-server/view"
	"github.com/hdais/eqt-server/zone"
	"github.com/miekg/dns"
)

// Proprietary EDNS(0) option codes (RFC 6891 §6.1.2 experimental/
// private range), no IANA registration required.
const (
	optTargetZone uint16 = 65230
	optTargetView uint16 = 65231
)

// maxUDPPayload is the EDNS payload size this server advertises.
const maxUDPPayload = 4096

// Handle decodes raw, routes it through view/zone selection and the
// responder, and returns the packed reply. It returns nil when the
// packet should be silently dropped (decode failure or a sanity-check
// violation).
func Handle(reg *view.Registry, raw []byte) []byte {
	r := new(dns.Msg)
	if err := r.Unpack(raw); err != nil {
		log.Printf("dispatch: decode error: %v", err)
		return nil
	}

	if !sane(r) {
		log.Printf("dispatch: dropping malformed query id=%d", r.Id)
		return nil
	}

	resp := answer(reg, r)

	out, err := resp.Pack()
	if err != nil {
		log.Printf("dispatch: encode error: %v", err)
		return nil
	}
	return enforceTruncation(r, resp, out)
}

// sane rejects packets that have no business being treated as queries:
// more than one question, the QR bit already set (a reply, not a
// query), or an opcode other than QUERY.
func sane(r *dns.Msg) bool {
	if len(r.Question) != 1 {
		return false
	}
	if r.Response {
		return false
	}
	if r.Opcode != dns.OpcodeQuery {
		return false
	}
	return true
}

// answer performs EDNS hint extraction, view/zone selection, and
// responder invocation. Panics from the responder are recovered into
// SERVFAIL.
func answer(reg *view.Registry, r *dns.Msg) (resp *dns.Msg) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("dispatch: recovered panic answering qname=%s: %v\n%s", r.Question[0].Name, rec, debug.Stack())
			resp = servfail(r)
		}
	}()

	targetZone, targetView := extractHints(r)

	v := reg.Resolve(targetView)

	qname, err := dnsname.Parse(r.Question[0].Name)
	if err != nil {
		return refused(r)
	}

	z, ok := selectZone(v, targetZone, qname)
	if !ok {
		return refused(r)
	}

	return z.Respond(r)
}

// selectZone picks targetZone by exact match within v if present and
// registered; otherwise falls back to deepest-suffix match on qname.
func selectZone(v *view.View, targetZone *dnsname.Name, qname dnsname.Name) (*zone.Zone, bool) {
	if targetZone != nil {
		if z, ok := v.Exact(*targetZone); ok {
			return z, true
		}
		log.Printf("dispatch: target zone %s not found in selected view, falling back to suffix match", targetZone)
	}
	return v.DeepestMatch(qname)
}

// extractHints walks the EDNS options of r looking for the TARGET_ZONE
// and TARGET_VIEW private options. Unrecognized option codes are
// logged and ignored.
func extractHints(r *dns.Msg) (targetZone, targetView *dnsname.Name) {
	opt := r.IsEdns0()
	if opt == nil {
		return nil, nil
	}
	for _, o := range opt.Option {
		local, ok := o.(*dns.EDNS0_LOCAL)
		if !ok {
			log.Printf("dispatch: ignoring unknown EDNS option code %d", o.Option())
			continue
		}
		switch local.Code {
		case optTargetZone:
			if n, _, err := dns.UnpackDomainName(local.Data, 0); err == nil {
				if name, err := dnsname.Parse(n); err == nil {
					targetZone = &name
					log.Printf("dispatch: EDNS TARGET_ZONE %s", name)
				}
			}
		case optTargetView:
			if n, _, err := dns.UnpackDomainName(local.Data, 0); err == nil {
				if name, err := dnsname.Parse(n); err == nil {
					targetView = &name
					log.Printf("dispatch: EDNS TARGET_VIEW %s", name)
				}
			}
		default:
			log.Printf("dispatch: ignoring unknown EDNS option code %d", local.Code)
		}
	}
	return targetZone, targetView
}

func refused(r *dns.Msg) *dns.Msg {
	m := new(dns.Msg)
	m.SetReply(r)
	m.RecursionDesired = false
	m.Rcode = dns.RcodeRefused
	return m
}

func servfail(r *dns.Msg) *dns.Msg {
	m := new(dns.Msg)
	m.SetReply(r)
	m.RecursionDesired = false
	m.Rcode = dns.RcodeServerFailure
	return m
}

// enforceTruncation sets TC and strips the answer/authority/additional
// sections down to just the question when the packed reply would
// exceed the peer's advertised (or default) UDP payload size, per
// RFC 1035 §4.1.1. TCP resend is out of scope; this is done here, at
// the dispatcher, since only it knows the transport's size budget.
func enforceTruncation(r *dns.Msg, resp *dns.Msg, packed []byte) []byte {
	limit := 512
	if opt := r.IsEdns0(); opt != nil {
		if sz := int(opt.UDPSize()); sz > limit {
			limit = sz
		}
	}
	if sz := maxUDPPayload; limit > sz {
		limit = sz
	}
	if len(packed) <= limit {
		return packed
	}

	trimmed := new(dns.Msg)
	trimmed.SetReply(r)
	trimmed.RecursionDesired = false
	trimmed.Rcode = resp.Rcode
	trimmed.Authoritative = resp.Authoritative
	trimmed.Truncated = true
	if opt := r.IsEdns0(); opt != nil {
		trimmed.SetEdns0(maxUDPPayload, false)
	}
	out, err := trimmed.Pack()
	if err != nil {
		log.Printf("dispatch: error packing truncated reply: %v", err)
		return nil
	}
	return out
}
