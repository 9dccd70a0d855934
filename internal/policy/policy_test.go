package policy

import (
	"net"
	"testing"

	"github.com/routectl/ctlplane/internal/attr"
	"github.com/routectl/ctlplane/internal/flags"
	"github.com/routectl/ctlplane/internal/prefix"
)

func TestSetLocalPrefAction(t *testing.T) {
	in := attr.NewBuilder().SetOrigin(attr.OriginIGP).SetLocalPref(100).Content()
	p := Policy{Terms: []Term{
		{
			Match:   []Match{{Kind: MatchProtocol, Protocol: "BGP"}},
			Actions: []Action{{Kind: ActionSetLocalPref, Value: 200}},
		},
	}}

	key := prefix.NewInet4(net.ParseIP("10.0.0.0"), 24)
	res := Apply(p, key, in, 0, "BGP")

	if res.Content.LocalPref != 200 {
		t.Fatalf("expected local-pref rewritten to 200, got %d", res.Content.LocalPref)
	}
	if !res.HasOriginal {
		t.Fatalf("expected Original to be populated when a term changed the path")
	}
}

func TestRejectSetsPolicyRejectAndRetainsOriginal(t *testing.T) {
	in := attr.NewBuilder().SetOrigin(attr.OriginIGP).SetCommunity([]string{"65001:666"}).Content()
	p := Policy{Terms: []Term{
		{
			Match:   []Match{{Kind: MatchCommunity, Community: "65001:666"}},
			Actions: []Action{{Kind: ActionReject}},
		},
	}}

	key := prefix.NewInet4(net.ParseIP("10.0.0.0"), 24)
	res := Apply(p, key, in, 0, "BGP")

	if !res.Rejected {
		t.Fatalf("expected Rejected true")
	}
	if !res.Flags.Has(flags.PolicyReject) {
		t.Fatalf("expected PolicyReject flag set")
	}
	if !res.HasOriginal || res.Original.Community != in.Community {
		t.Fatalf("expected original community preserved on the original slot")
	}
}

func TestNonMatchingTermLeavesContentUnchanged(t *testing.T) {
	in := attr.NewBuilder().SetOrigin(attr.OriginIGP).SetLocalPref(150).Content()
	p := Policy{Terms: []Term{
		{
			Match:   []Match{{Kind: MatchProtocol, Protocol: "XMPP"}},
			Actions: []Action{{Kind: ActionSetLocalPref, Value: 999}},
		},
	}}

	key := prefix.NewInet4(net.ParseIP("10.0.0.0"), 24)
	res := Apply(p, key, in, 0, "BGP")

	if res.HasOriginal {
		t.Fatalf("expected no Original when no term matched")
	}
	if res.Content != in {
		t.Fatalf("expected unchanged Content to be reused verbatim")
	}
}

func TestAcceptTerminatesEvaluation(t *testing.T) {
	in := attr.NewBuilder().SetOrigin(attr.OriginIGP).SetLocalPref(100).Content()
	p := Policy{Terms: []Term{
		{
			Match:   []Match{{Kind: MatchProtocol, Protocol: "BGP"}},
			Actions: []Action{{Kind: ActionSetLocalPref, Value: 200}, {Kind: ActionAccept}},
		},
		{
			Match:   []Match{{Kind: MatchProtocol, Protocol: "BGP"}},
			Actions: []Action{{Kind: ActionSetLocalPref, Value: 300}},
		},
	}}

	key := prefix.NewInet4(net.ParseIP("10.0.0.0"), 24)
	res := Apply(p, key, in, 0, "BGP")

	if res.Content.LocalPref != 200 {
		t.Fatalf("expected evaluation to stop at the accepting term, got local-pref %d", res.Content.LocalPref)
	}
}
