// Package ribapi defines the external-facing contracts of §6: the
// table request shape BGP peer I/O and the XMPP channel both drive, and
// the listener callback shape condition listeners, the replication
// engine, and any other table observer implement.
package ribapi

import (
	"github.com/routectl/ctlplane/internal/attr"
	"github.com/routectl/ctlplane/internal/flags"
	"github.com/routectl/ctlplane/internal/prefix"
)

// Op identifies a table request's kind (§6).
type Op int

const (
	OpAdd Op = iota
	OpDelete
)

// SourceTag identifies where a path came from (§3 "Path").
type SourceTag int

const (
	SourceBGP SourceTag = iota
	SourceXMPP
	SourceAggregate
	SourceServiceChain
	SourceStatic
	SourceResolvedRoute
	SourceLocal
)

func (s SourceTag) String() string {
	switch s {
	case SourceBGP:
		return "BGP"
	case SourceXMPP:
		return "XMPP"
	case SourceAggregate:
		return "Aggregate"
	case SourceServiceChain:
		return "ServiceChain"
	case SourceStatic:
		return "Static"
	case SourceResolvedRoute:
		return "ResolvedRoute"
	default:
		return "Local"
	}
}

// PeerID identifies the originating peer or agent of a path. For
// synthesized paths (aggregate, static) it is a small well-known
// sentinel rather than a real peer address.
type PeerID string

// PathID distinguishes multiple paths from the same peer for the same
// prefix (ECMP / Add-Path, §3 "Path").
type PathID uint32

// Request is a single table mutation request (§6 "Table request").
// Add/Change creates or replaces the path identified by (PeerID,
// PathID); Delete removes it.
type Request struct {
	Op      Op
	Key     prefix.Prefix
	Peer    PeerID
	PathID  PathID
	Source  SourceTag
	Content attr.Content // ignored for OpDelete
	Label   uint32
	Flags   flags.PathFlags

	// RouterID, PeerAddress and IsEBGP feed the best-path comparator's
	// clauses 6-9 (§4.2). Synthesized sources (aggregate, static, local)
	// leave RouterID/PeerAddress as a well-known sentinel string and
	// IsEBGP false; they are ignored for OpDelete.
	RouterID    string
	PeerAddress string
	IsEBGP      bool
}

// Listener receives a notification after every committed table change
// (§6 "Listener callback", §4.1 "register_listener"). It runs on the
// partition's own goroutine and must not block.
type Listener func(partitionID int, snapshot RouteSnapshot, isDelete bool)

// ListenerID identifies a registered Listener for later unregistration.
type ListenerID int

// RouteSnapshot is the read-only view of a route entry a Listener
// observes (§6).
type RouteSnapshot interface {
	Prefix() prefix.Prefix
	PathCount() int
	BestPathIndex() int
	IsDeleted() bool
}
