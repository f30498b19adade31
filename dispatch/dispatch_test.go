package dispatch

import (
	"strings"
	"testing"

	"github.com/hdais/eqt-server/dnsname"
	"github.com/hdais/eqt-server/view"
	"github.com/hdais/eqt-server/zone"
	"github.com/miekg/dns"
)

const publicZoneBody = `
$ORIGIN example.
@	3600	IN	SOA	ns1.example. hostmaster.example. 1 3600 600 604800 3600
@	3600	IN	NS	ns1.example.
www	3600	IN	A	192.0.2.1
`

const internalZoneBody = `
$ORIGIN example.
@	3600	IN	SOA	ns1.example. hostmaster.example. 2 3600 600 604800 3600
@	3600	IN	NS	ns1.example.
www	3600	IN	A	10.1.1.1
`

func loadZone(t *testing.T, origin, body string) *zone.Zone {
	t.Helper()
	z, err := zone.LoadFromReader(dnsname.MustParse(origin), strings.NewReader(body), "test")
	if err != nil {
		t.Fatalf("LoadFromReader(%s): %v", origin, err)
	}
	return z
}

// newTestRegistry builds a root view carrying the public answer for
// example., plus an "internal." view carrying a different answer for
// the same zone name.
func newTestRegistry(t *testing.T) *view.Registry {
	t.Helper()
	root := view.New()
	root.AddZone(loadZone(t, "example.", publicZoneBody))
	reg := view.NewRegistry(root)

	internal := view.New()
	internal.AddZone(loadZone(t, "example.", internalZoneBody))
	reg.Add(dnsname.MustParse("internal."), internal)

	return reg
}

func plainQuery(name string, qtype uint16) *dns.Msg {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	return m
}

func ednsQuery(name string, qtype uint16, opts ...*dns.EDNS0_LOCAL) *dns.Msg {
	m := plainQuery(name, qtype)
	o := &dns.OPT{Hdr: dns.RR_Header{Name: ".", Rrtype: dns.TypeOPT}}
	o.SetUDPSize(maxUDPPayload)
	for _, opt := range opts {
		o.Option = append(o.Option, opt)
	}
	m.Extra = append(m.Extra, o)
	return m
}

func localOpt(code uint16, name string) *dns.EDNS0_LOCAL {
	wire := make([]byte, 255)
	off, err := dns.PackDomainName(dns.Fqdn(name), wire, 0, nil, false)
	if err != nil {
		panic(err)
	}
	return &dns.EDNS0_LOCAL{Code: code, Data: wire[:off]}
}

func decode(t *testing.T, raw []byte) *dns.Msg {
	t.Helper()
	if raw == nil {
		t.Fatal("Handle returned nil, expected a reply")
	}
	m := new(dns.Msg)
	if err := m.Unpack(raw); err != nil {
		t.Fatalf("Unpack reply: %v", err)
	}
	return m
}

// A plain query with no EDNS hints is answered from the root/default view.
func TestHandlePlainQuery(t *testing.T) {
	reg := newTestRegistry(t)
	req := plainQuery("www.example.", dns.TypeA)
	raw, _ := req.Pack()

	resp := decode(t, Handle(reg, raw))
	if resp.Rcode != dns.RcodeSuccess {
		t.Fatalf("Rcode = %d, want NOERROR", resp.Rcode)
	}
	a, ok := resp.Answer[0].(*dns.A)
	if !ok || a.A.String() != "192.0.2.1" {
		t.Errorf("answer = %v, want public 192.0.2.1", resp.Answer[0])
	}
}

// An EDNS TARGET_VIEW hint selects the internal view, whose copy of
// example. has a different answer from the root view's.
func TestHandleTargetViewHint(t *testing.T) {
	reg := newTestRegistry(t)
	req := ednsQuery("www.example.", dns.TypeA, localOpt(optTargetView, "internal."))
	raw, _ := req.Pack()

	resp := decode(t, Handle(reg, raw))
	if resp.Rcode != dns.RcodeSuccess {
		t.Fatalf("Rcode = %d, want NOERROR", resp.Rcode)
	}
	a, ok := resp.Answer[0].(*dns.A)
	if !ok || a.A.String() != "10.1.1.1" {
		t.Errorf("answer = %v, want internal 10.1.1.1", resp.Answer[0])
	}
}

// An unknown TARGET_VIEW hint falls back to the root view rather than
// failing the query.
func TestHandleUnknownTargetViewFallsBackToRoot(t *testing.T) {
	reg := newTestRegistry(t)
	req := ednsQuery("www.example.", dns.TypeA, localOpt(optTargetView, "nosuchview."))
	raw, _ := req.Pack()

	resp := decode(t, Handle(reg, raw))
	a, ok := resp.Answer[0].(*dns.A)
	if !ok || a.A.String() != "192.0.2.1" {
		t.Errorf("answer = %v, want root-view fallback 192.0.2.1", resp.Answer[0])
	}
}

// A TARGET_ZONE hint selects among same-named zones within whatever
// view is active; an unregistered target zone falls back to
// deepest-suffix match rather than REFUSED.
func TestHandleTargetZoneHintUnknownFallsBackToSuffixMatch(t *testing.T) {
	reg := newTestRegistry(t)
	req := ednsQuery("www.example.", dns.TypeA, localOpt(optTargetZone, "other.example."))
	raw, _ := req.Pack()

	resp := decode(t, Handle(reg, raw))
	if resp.Rcode != dns.RcodeSuccess {
		t.Fatalf("Rcode = %d, want NOERROR via suffix-match fallback", resp.Rcode)
	}
}

// A name with no registered zone anywhere in the selected view is
// REFUSED.
func TestHandleNoZoneMatchRefused(t *testing.T) {
	reg := newTestRegistry(t)
	req := plainQuery("www.nosuchzone.", dns.TypeA)
	raw, _ := req.Pack()

	resp := decode(t, Handle(reg, raw))
	if resp.Rcode != dns.RcodeRefused {
		t.Fatalf("Rcode = %d, want REFUSED", resp.Rcode)
	}
}

// Malformed packets (too short to be a DNS message) are dropped, not
// answered with an error.
func TestHandleDropsUndecodable(t *testing.T) {
	reg := newTestRegistry(t)
	if out := Handle(reg, []byte{0x00, 0x01}); out != nil {
		t.Errorf("expected nil for undecodable packet, got %d bytes", len(out))
	}
}

// A reply to a query (QR already set) must never itself be answered.
func TestHandleDropsRepliesAndMultiQuestion(t *testing.T) {
	reg := newTestRegistry(t)

	reply := plainQuery("www.example.", dns.TypeA)
	reply.Response = true
	raw, _ := reply.Pack()
	if out := Handle(reg, raw); out != nil {
		t.Errorf("expected nil for a reply-flagged packet, got %d bytes", len(out))
	}

	multi := plainQuery("www.example.", dns.TypeA)
	multi.Question = append(multi.Question, multi.Question[0])
	raw2, _ := multi.Pack()
	if out := Handle(reg, raw2); out != nil {
		t.Errorf("expected nil for a multi-question packet, got %d bytes", len(out))
	}
}

// The packed reply must itself decode cleanly and carry the original
// question and id back.
func TestHandleRoundTrip(t *testing.T) {
	reg := newTestRegistry(t)
	req := plainQuery("www.example.", dns.TypeA)
	req.Id = 4242
	raw, _ := req.Pack()

	resp := decode(t, Handle(reg, raw))
	if resp.Id != 4242 {
		t.Errorf("Id = %d, want 4242", resp.Id)
	}
	if len(resp.Question) != 1 || resp.Question[0].Name != "www.example." {
		t.Errorf("question not preserved: %v", resp.Question)
	}
}

// Many goroutines hitting Handle against the same registry
// concurrently must not race or panic.
func TestHandleConcurrent(t *testing.T) {
	reg := newTestRegistry(t)
	req := plainQuery("www.example.", dns.TypeA)
	raw, _ := req.Pack()

	const n = 64
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			if out := Handle(reg, raw); out == nil {
				t.Error("concurrent Handle returned nil")
			}
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}
}
