// Package policy implements the routing-policy evaluator of §4.8: an
// ordered list of terms, each a match clause and an action clause,
// applied to a path's attribute bundle on import or export.
package policy

import (
	"strings"

	"github.com/routectl/ctlplane/internal/attr"
	"github.com/routectl/ctlplane/internal/flags"
	"github.com/routectl/ctlplane/internal/prefix"
)

// MatchKind distinguishes a term's match clause components.
type MatchKind int

const (
	MatchPrefixList MatchKind = iota
	MatchCommunity
	MatchProtocol
)

// Match is one disjunct of a term's match clause (§4.8: "disjunction
// over {prefix-list, community-match, protocol-match}").
type Match struct {
	Kind MatchKind

	// PrefixList: route matches if its prefix is covered by any entry.
	PrefixList []prefix.Inet4
	// Community: route matches if it carries this regular community.
	Community string
	// Protocol: route matches if its source_tag's string form equals
	// this (e.g. "BGP", "XMPP").
	Protocol string
}

func (m Match) matches(p prefix.Prefix, c attr.Content, source string) bool {
	switch m.Kind {
	case MatchPrefixList:
		inet, ok := p.(prefix.Inet4)
		if !ok {
			return false
		}
		for _, entry := range m.PrefixList {
			if entry.Contains(inet) || entry == inet {
				return true
			}
		}
		return false
	case MatchCommunity:
		for _, comm := range splitCSV(c.Community) {
			if comm == m.Community {
				return true
			}
		}
		return false
	case MatchProtocol:
		return strings.EqualFold(source, m.Protocol)
	default:
		return false
	}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// ActionKind identifies one action-clause transform.
type ActionKind int

const (
	ActionSetLocalPref ActionKind = iota
	ActionSetMED
	ActionAddCommunity
	ActionRemoveCommunity
	ActionSetCommunityList
	ActionAddExtCommunity
	ActionRemoveExtCommunity
	ActionReject
	ActionAccept
)

// Action is one step of a term's action clause (§4.8).
type Action struct {
	Kind ActionKind

	Value         uint32   // for SetLocalPref/SetMED
	Community     string   // for AddCommunity/RemoveCommunity
	CommunityList []string // for SetCommunityList
	ExtCommunity  string   // for AddExtCommunity/RemoveExtCommunity
}

// Term is one ordered match-then-act rule.
type Term struct {
	Match   []Match // disjunction: any Match satisfied triggers this term's actions
	Actions []Action
}

func (t Term) matches(p prefix.Prefix, c attr.Content, source string) bool {
	for _, m := range t.Match {
		if m.matches(p, c, source) {
			return true
		}
	}
	return false
}

// Policy is an ordered list of terms (§4.8).
type Policy struct {
	Name  string
	Terms []Term
}

// Result is the outcome of applying a Policy to one path.
type Result struct {
	Content  attr.Content
	Flags    flags.PathFlags
	Rejected bool
	// Original holds the pre-policy content, populated whenever a
	// matching term applied at least one action, so sandesh-equivalent
	// introspection can still report the input attributes (§4.8
	// "original attributes are retained on the path's 'original'
	// slot").
	Original    attr.Content
	HasOriginal bool
}

// Apply evaluates p's terms in order against (prefix, content, flags,
// source); every term whose match clause is satisfied applies its
// actions, and accept/reject terminate evaluation (§4.8 "Evaluation").
// A term with no matching clauses lets evaluation continue to the next
// term. Unchanged paths reuse the input Content unmodified (Result.Content
// equals the input by value when nothing matched).
func Apply(p Policy, key prefix.Prefix, in attr.Content, inFlags flags.PathFlags, source string) Result {
	out := in
	outFlags := inFlags
	changed := false

	for _, term := range p.Terms {
		if !term.matches(key, out, source) {
			continue
		}
		for _, action := range term.Actions {
			out, outFlags = applyAction(action, out, outFlags)
			changed = true
		}
		if terminates(term.Actions) {
			break
		}
	}

	res := Result{Content: out, Flags: outFlags, Rejected: outFlags.Has(flags.PolicyReject)}
	if changed {
		res.Original = in
		res.HasOriginal = true
	}
	return res
}

func terminates(actions []Action) bool {
	for _, a := range actions {
		if a.Kind == ActionReject || a.Kind == ActionAccept {
			return true
		}
	}
	return false
}

func applyAction(a Action, c attr.Content, f flags.PathFlags) (attr.Content, flags.PathFlags) {
	b := attr.NewBuilder()
	b.FromContent(c)

	switch a.Kind {
	case ActionSetLocalPref:
		b.SetLocalPref(a.Value)
	case ActionSetMED:
		b.SetMED(a.Value)
	case ActionAddCommunity:
		b.SetCommunity(appendUnique(splitCSV(c.Community), a.Community))
	case ActionRemoveCommunity:
		b.SetCommunity(removeValue(splitCSV(c.Community), a.Community))
	case ActionSetCommunityList:
		b.SetCommunity(a.CommunityList)
	case ActionAddExtCommunity:
		b.SetExtCommunity(appendUnique(splitCSV(c.ExtCommunity), a.ExtCommunity))
	case ActionRemoveExtCommunity:
		b.SetExtCommunity(removeValue(splitCSV(c.ExtCommunity), a.ExtCommunity))
	case ActionReject:
		f = f.Set(flags.PolicyReject)
	case ActionAccept:
		f = f.Clear(flags.PolicyReject)
	}
	return b.Content(), f
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(append([]string{}, list...), v)
}

func removeValue(list []string, v string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
