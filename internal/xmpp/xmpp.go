// Package xmpp implements the agent channel of §4.9: one instance per
// connected compute-node agent, turning subscribe/unsubscribe/publish/
// withdraw messages into membership registrations and table requests,
// with a deferred-request queue for subscriptions whose table
// registration has not yet completed.
package xmpp

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/routectl/ctlplane/internal/attr"
	"github.com/routectl/ctlplane/internal/flags"
	"github.com/routectl/ctlplane/internal/instance"
	"github.com/routectl/ctlplane/internal/policy"
	"github.com/routectl/ctlplane/internal/prefix"
	"github.com/routectl/ctlplane/internal/ribapi"
	"github.com/routectl/ctlplane/internal/table"
)

// Action identifies one of the four IQ-set message kinds a channel
// consumes (§6 "XMPP message schema").
type Action int

const (
	ActionSubscribe Action = iota
	ActionUnsubscribe
	ActionPublish
	ActionWithdraw
)

// Message is the semantic content of one XMPP stanza, independent of
// wire framing (framing itself is out of scope; see internal/xmppsim
// for an in-memory stand-in used by tests).
type Message struct {
	Action     Action
	VRF        string
	InstanceID int
	Items      []Item
}

// AFI/SAFI values a publish/withdraw item's as_node tag carries (§6).
const (
	AFIInet  = 1
	AFIInet6 = 2
	AFIL2VPN = 25
)

const (
	SAFIUnicast   = 1
	SAFIMulticast = 2
	SAFIEnet      = 65
)

// Item is one <item> of a publish/withdraw message.
type Item struct {
	AFI  int
	SAFI int
	Body ItemBody
}

// ItemBody is implemented by UnicastItem, McastItem and EnetItem.
type ItemBody interface{ isItemBody() }

// UnicastItem carries an inet or inet6 unicast NLRI plus next hop and
// attributes (§4.9 "unicast-inet, unicast-inet6").
type UnicastItem struct {
	Prefix       net.IP
	PrefixLen    int
	Nexthop      net.IP
	Label        uint32
	Community    []string
	ExtCommunity []string
	LocalPref    uint32
	HasLocalPref bool
}

func (UnicastItem) isItemBody() {}

// McastItem carries a multicast (source, group) route for the ERMVPN
// family (§4.9 "multicast").
type McastItem struct {
	Group   net.IP
	Source  net.IP
	Nexthop net.IP
	Label   uint32
}

func (McastItem) isItemBody() {}

// EnetItem carries an EVPN route: a route type plus an opaque
// type-specific key (MAC/IP, ESI, ethernet tag — see internal/prefix's
// EVPN key, which deliberately does not encode byte-for-byte NLRI;
// §4.9 "evpn").
type EnetItem struct {
	RouteType uint8
	Key       string
	MAC       string
	Nexthop   net.IP
	Label     uint32
}

func (EnetItem) isItemBody() {}

// Transport abstracts XMPP wire framing so a Channel can be driven by
// any source of Messages — a real stream, or a fixture-driven
// simulator (internal/xmppsim).
type Transport interface {
	Recv() (Message, error)
	Send(Message) error
}

// Metrics receives the per-family decoder-error counters and the rx
// message counters of §6 "Peer observability". nopMetrics is used when
// a caller doesn't wire one.
type Metrics interface {
	IncDecoderError(family prefix.Family, kind string)
	IncMessage(direction, action string)
}

type nopMetrics struct{}

func (nopMetrics) IncDecoderError(prefix.Family, string) {}
func (nopMetrics) IncMessage(string, string)             {}

func actionLabel(a Action) string {
	switch a {
	case ActionSubscribe:
		return "subscribe"
	case ActionUnsubscribe:
		return "unsubscribe"
	case ActionPublish:
		return "publish"
	case ActionWithdraw:
		return "withdraw"
	default:
		return "unknown"
	}
}

// MembershipManager registers/unregisters an agent's membership in a
// table, asynchronously invoking done on completion (§4.9 "register
// membership via the membership manager (async)"). Real peer
// membership bookkeeping is out of scope (spec.md §1); asyncMembership
// is the default, completing on its own goroutine so the state machine
// below is genuinely exercised by concurrent callbacks rather than
// collapsing into synchronous calls.
type MembershipManager interface {
	Register(peer ribapi.PeerID, tbl *table.Table, done func())
	Unregister(peer ribapi.PeerID, tbl *table.Table, done func())
}

type asyncMembership struct{}

func (asyncMembership) Register(_ ribapi.PeerID, _ *table.Table, done func())   { go done() }
func (asyncMembership) Unregister(_ ribapi.PeerID, _ *table.Table, done func()) { go done() }

// PeerCloseManager finalises a channel's teardown (§4.9 "Close
// semantics"). graceful asks it to retain the peer's routes as Stale
// for a grace period instead of withdrawing them immediately.
type PeerCloseManager interface {
	Close(peer ribapi.PeerID, graceful bool)
}

type discardPeerClose struct{}

func (discardPeerClose) Close(ribapi.PeerID, bool) {}

// PolicyResolver resolves one of an instance's configured policy names
// to its compiled Policy, so handlePublishWithdraw can run a publish
// through the instance's ordered policy vector before it reaches the
// table (§4.8 "applied to a path's attribute bundle on import").
// internal/policy intentionally has no such name->Policy registry of
// its own (see instance.Instance.SetPolicies), so resolution is left
// to whatever wiring layer owns the compiled policies.
type PolicyResolver interface {
	Resolve(name string) (policy.Policy, bool)
}

type noPolicyResolver struct{}

func (noPolicyResolver) Resolve(string) (policy.Policy, bool) { return policy.Policy{}, false }

func WithPolicyResolver(r PolicyResolver) Option { return func(c *Channel) { c.policies = r } }

// ErrAlreadyClosing is returned by a second Close() observed while a
// prior close is already in progress or has finished (§4.9 "close in
// progress").
var ErrAlreadyClosing = errors.New("xmpp: channel already closing")

// nonVPNFamilies is the fixed set of per-instance tables a subscribe
// registers membership against (§4.9: "for each of its non-VPN,
// non-RTarget tables").
var nonVPNFamilies = []prefix.Family{
	prefix.FamilyInet4,
	prefix.FamilyInet6,
	prefix.FamilyEVPN,
	prefix.FamilyERMVPN,
}

type subPhase int

const (
	phaseIdle subPhase = iota
	phaseRegistering
	phaseRegistered
	phaseUnregistering
)

type pendingReq int

const (
	pendingNone pendingReq = iota
	pendingSubscribe
	pendingUnsubscribe
)

// tableSubState is the explicit state machine of §4.9's diagram,
// tracked per (vrf, family) a channel has subscribed to.
type tableSubState struct {
	phase   subPhase
	pending pendingReq
}

type subKey struct {
	vrf    string
	family prefix.Family
}

type closePhase int

const (
	closeIdle closePhase = iota
	closeInProgress
	closeStale
)

// Channel is one agent connection (§4.9 "One instance per connected
// agent").
type Channel struct {
	id         string
	transport  Transport
	registry   *instance.Registry
	membership MembershipManager
	peerClose  PeerCloseManager
	logger     *zap.Logger
	metrics    Metrics
	policies   PolicyResolver
	passive    bool
	gracefulOK bool

	mu           sync.Mutex
	localASN     uint32
	vrfPending   map[string]int // vrf_name -> instance_id, subscribes awaiting instance creation
	subscribed   map[string]struct{}
	tableSubs    map[subKey]*tableSubState
	deferred     map[subKey][]ribapi.Request
	advertisedRT map[prefix.RouteTarget]map[string]struct{}
	closePhase   closePhase

	inFlight sync.WaitGroup
}

// Option configures optional Channel collaborators.
type Option func(*Channel)

func WithMembershipManager(m MembershipManager) Option { return func(c *Channel) { c.membership = m } }
func WithPeerCloseManager(m PeerCloseManager) Option    { return func(c *Channel) { c.peerClose = m } }
func WithMetrics(m Metrics) Option                      { return func(c *Channel) { c.metrics = m } }
func WithLogger(l *zap.Logger) Option                   { return func(c *Channel) { c.logger = l } }

// WithPassive marks the channel as a passive (agent-initiated)
// connection with graceful restart enabled server-side, the
// precondition for signalling graceful close (§4.9 "if enabled
// server-side and the channel was passive").
func WithPassive(graceful bool) Option {
	return func(c *Channel) { c.passive = true; c.gracefulOK = graceful }
}

// NewChannel builds a Channel for a freshly accepted agent connection.
func NewChannel(id string, localASN uint32, transport Transport, registry *instance.Registry, opts ...Option) *Channel {
	c := &Channel{
		id:           id,
		localASN:     localASN,
		transport:    transport,
		registry:     registry,
		membership:   asyncMembership{},
		peerClose:    discardPeerClose{},
		logger:       zap.NewNop(),
		metrics:      nopMetrics{},
		policies:     noPolicyResolver{},
		vrfPending:   make(map[string]int),
		subscribed:   make(map[string]struct{}),
		tableSubs:    make(map[subKey]*tableSubState),
		deferred:     make(map[subKey][]ribapi.Request),
		advertisedRT: make(map[prefix.RouteTarget]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Channel) peerID() ribapi.PeerID { return ribapi.PeerID("xmpp:" + c.id) }

// Run drives the channel from its Transport until Recv returns an
// error, closing the channel before returning.
func (c *Channel) Run() error {
	for {
		msg, err := c.transport.Recv()
		if err != nil {
			c.Close()
			return err
		}
		c.HandleMessage(msg)
	}
}

// HandleMessage dispatches one already-decoded Message. Exported so
// tests (and internal/xmppsim) can drive a Channel without a real
// Transport loop.
func (c *Channel) HandleMessage(msg Message) {
	c.metrics.IncMessage("rx", actionLabel(msg.Action))

	switch msg.Action {
	case ActionSubscribe:
		c.handleSubscribe(msg.VRF, msg.InstanceID)
	case ActionUnsubscribe:
		c.handleUnsubscribe(msg.VRF)
	case ActionPublish:
		for _, item := range msg.Items {
			c.handlePublishWithdraw(msg.VRF, item, false)
		}
	case ActionWithdraw:
		for _, item := range msg.Items {
			c.handlePublishWithdraw(msg.VRF, item, true)
		}
	}
}

func (c *Channel) handleSubscribe(vrf string, instanceID int) {
	inst, ok := c.registry.Get(vrf)
	if !ok {
		c.mu.Lock()
		c.vrfPending[vrf] = instanceID
		c.mu.Unlock()
		c.logger.Debug("xmpp: subscribe deferred, instance not yet created", zap.String("vrf", vrf))
		return
	}
	c.subscribeInstance(inst)
}

func (c *Channel) subscribeInstance(inst *instance.Instance) {
	c.mu.Lock()
	c.subscribed[inst.Name] = struct{}{}
	c.mu.Unlock()

	for _, fam := range nonVPNFamilies {
		c.subscribeTable(inst, fam)
	}
	for _, rt := range inst.ImportRTs() {
		c.advertiseRT(rt, inst.Name)
	}
}

func (c *Channel) subscribeTable(inst *instance.Instance, fam prefix.Family) {
	key := subKey{vrf: inst.Name, family: fam}

	c.mu.Lock()
	st, ok := c.tableSubs[key]
	if !ok {
		st = &tableSubState{}
		c.tableSubs[key] = st
	}
	switch st.phase {
	case phaseIdle:
		st.phase = phaseRegistering
		c.mu.Unlock()
		c.dispatchRegister(inst, fam, key)
		return
	case phaseUnregistering:
		// duplicate subscribe (§4.9 diagram): arriving subscribe while
		// unregistering chains a register once the unregister completes.
		st.pending = pendingSubscribe
	default:
		// already Registering or Registered: duplicate subscribe, no-op.
	}
	c.mu.Unlock()
}

func (c *Channel) dispatchRegister(inst *instance.Instance, fam prefix.Family, key subKey) {
	tbl := inst.Table(fam)
	c.inFlight.Add(1)
	c.membership.Register(c.peerID(), tbl, func() {
		c.inFlight.Done()
		c.onRegistered(key, tbl)
	})
}

func (c *Channel) onRegistered(key subKey, tbl *table.Table) {
	c.mu.Lock()
	st, ok := c.tableSubs[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	if st.phase != phaseRegistering {
		c.mu.Unlock()
		panic("xmpp: unreachable pending_req transition")
	}
	if st.pending == pendingUnsubscribe {
		st.phase = phaseUnregistering
		st.pending = pendingNone
		c.mu.Unlock()
		c.dispatchUnregister(key, tbl)
		return
	}
	st.phase = phaseRegistered
	pending := c.deferred[key]
	delete(c.deferred, key)
	c.mu.Unlock()

	for _, req := range pending {
		tbl.Enqueue(req)
	}
}

func (c *Channel) handleUnsubscribe(vrf string) {
	c.mu.Lock()
	delete(c.vrfPending, vrf)
	delete(c.subscribed, vrf)
	c.mu.Unlock()

	c.withdrawAllRTsFor(vrf)

	inst, ok := c.registry.Get(vrf)
	if !ok {
		return
	}
	for _, fam := range nonVPNFamilies {
		c.unsubscribeTable(inst, fam)
	}
}

func (c *Channel) unsubscribeTable(inst *instance.Instance, fam prefix.Family) {
	key := subKey{vrf: inst.Name, family: fam}

	c.mu.Lock()
	st, ok := c.tableSubs[key]
	if !ok || st.phase == phaseIdle {
		c.mu.Unlock()
		return // duplicate unsubscribe, no-op
	}
	switch st.phase {
	case phaseRegistering:
		st.pending = pendingUnsubscribe
		c.mu.Unlock()
	case phaseUnregistering:
		// duplicate unsubscribe mid-flight, no-op.
		c.mu.Unlock()
	case phaseRegistered:
		st.phase = phaseUnregistering
		st.pending = pendingNone
		delete(c.deferred, key) // deferred entries discarded, not replayed, on unsubscribe
		c.mu.Unlock()
		c.dispatchUnregister(key, inst.Table(fam))
	}
}

func (c *Channel) dispatchUnregister(key subKey, tbl *table.Table) {
	c.inFlight.Add(1)
	c.membership.Unregister(c.peerID(), tbl, func() {
		c.inFlight.Done()
		c.onUnregistered(key)
	})
}

func (c *Channel) onUnregistered(key subKey) {
	c.mu.Lock()
	st, ok := c.tableSubs[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	if st.phase != phaseUnregistering {
		c.mu.Unlock()
		panic("xmpp: unreachable pending_req transition")
	}
	if st.pending == pendingSubscribe {
		st.phase = phaseRegistering
		st.pending = pendingNone
		c.mu.Unlock()

		inst, ok := c.registry.Get(key.vrf)
		if !ok {
			return
		}
		c.dispatchRegister(inst, key.family, key)
		return
	}
	delete(c.tableSubs, key)
	delete(c.deferred, key)
	c.mu.Unlock()
}

// handlePublishWithdraw implements §4.9's publish/withdraw handling
// and the four deferred/dropped cases of §7 (unknown VRF, membership
// mismatch, protocol policy error, decoder error).
func (c *Channel) handlePublishWithdraw(vrf string, item Item, isWithdraw bool) {
	family, key, content, err := decodeItem(item)
	if err != nil {
		kind := "bad-xml-token"
		var de decodeError
		if errors.As(err, &de) {
			kind = de.kind
		}
		c.metrics.IncDecoderError(family, kind)
		c.logger.Warn("xmpp: dropping malformed item", zap.String("vrf", vrf), zap.String("kind", kind))
		return
	}

	op := ribapi.OpAdd
	if isWithdraw {
		op = ribapi.OpDelete
	}

	skey := subKey{vrf: vrf, family: family}

	inst, ok := c.registry.Get(vrf)
	if !ok {
		// Unknown VRF: defer until the instance shows up (§7). A
		// policy vector can't be resolved without the instance, so a
		// request queued here reaches the table with pre-policy
		// content once OnInstanceCreated flushes it.
		req := ribapi.Request{
			Op: op, Key: key, Peer: c.peerID(), PathID: 1,
			Source: ribapi.SourceXMPP, Content: content,
		}
		c.mu.Lock()
		c.deferred[skey] = append(c.deferred[skey], req)
		c.mu.Unlock()
		return
	}

	if !isWithdraw {
		var pathFlags flags.PathFlags
		for _, name := range inst.Policies() {
			p, ok := c.policies.Resolve(name)
			if !ok {
				continue
			}
			res := policy.Apply(p, key, content, pathFlags, ribapi.SourceXMPP.String())
			content, pathFlags = res.Content, res.Flags
			if res.Rejected {
				c.logger.Debug("xmpp: publish rejected by policy", zap.String("vrf", vrf), zap.String("policy", name))
				return
			}
		}
	}

	req := ribapi.Request{
		Op: op, Key: key, Peer: c.peerID(), PathID: 1,
		Source: ribapi.SourceXMPP, Content: content,
	}

	c.mu.Lock()
	st, subscribedToTable := c.tableSubs[skey]
	switch {
	case !subscribedToTable || st.phase == phaseIdle:
		// Membership mismatch: publish for a table we never subscribed to.
		c.mu.Unlock()
		c.logger.Warn("xmpp: publish for unsubscribed table", zap.String("vrf", vrf))
		return
	case st.phase == phaseUnregistering:
		// Protocol policy error: update arrived for a table under unregister.
		c.mu.Unlock()
		return
	case st.phase != phaseRegistered:
		c.deferred[skey] = append(c.deferred[skey], req)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	inst.Table(family).Enqueue(req)
}

// decodeError carries the per-family counter kind of §6 ("bad-xml-
// token, bad-prefix, bad-nexthop, bad-afi-safi").
type decodeError struct{ kind string }

func (e decodeError) Error() string { return "xmpp: decoder error: " + e.kind }

func decodeItem(item Item) (prefix.Family, prefix.Prefix, attr.Content, error) {
	switch body := item.Body.(type) {
	case UnicastItem:
		var family prefix.Family
		switch item.AFI {
		case AFIInet:
			family = prefix.FamilyInet4
		case AFIInet6:
			family = prefix.FamilyInet6
		default:
			return prefix.FamilyInet4, nil, attr.Content{}, decodeError{"bad-afi-safi"}
		}
		if body.Prefix == nil {
			return family, nil, attr.Content{}, decodeError{"bad-prefix"}
		}
		if body.Nexthop == nil {
			return family, nil, attr.Content{}, decodeError{"bad-nexthop"}
		}
		var key prefix.Prefix
		if family == prefix.FamilyInet4 {
			key = prefix.NewInet4(body.Prefix, body.PrefixLen)
		} else {
			key = prefix.NewInet6(body.Prefix, body.PrefixLen)
		}
		b := attr.NewBuilder().SetOrigin(attr.OriginIGP).SetNexthop(body.Nexthop).
			SetCommunity(body.Community).SetExtCommunity(body.ExtCommunity).SetLabel(body.Label)
		if body.HasLocalPref {
			b.SetLocalPref(body.LocalPref)
		}
		return family, key, b.Content(), nil

	case McastItem:
		if item.AFI != AFIInet || item.SAFI != SAFIMulticast {
			return prefix.FamilyERMVPN, nil, attr.Content{}, decodeError{"bad-afi-safi"}
		}
		if body.Group == nil || body.Source == nil {
			return prefix.FamilyERMVPN, nil, attr.Content{}, decodeError{"bad-prefix"}
		}
		key := prefix.NewERMVPN(prefix.RD{}, fmt.Sprintf("%s,%s", body.Group, body.Source))
		c := attr.NewBuilder().SetOrigin(attr.OriginIGP).SetNexthop(body.Nexthop).SetLabel(body.Label).Content()
		return prefix.FamilyERMVPN, key, c, nil

	case EnetItem:
		if item.AFI != AFIL2VPN || item.SAFI != SAFIEnet {
			return prefix.FamilyEVPN, nil, attr.Content{}, decodeError{"bad-afi-safi"}
		}
		if body.Key == "" {
			return prefix.FamilyEVPN, nil, attr.Content{}, decodeError{"bad-prefix"}
		}
		key := prefix.NewEVPN(prefix.RD{}, body.RouteType, body.Key)
		ext := []string{}
		if body.MAC != "" {
			ext = append(ext, "mac:"+body.MAC)
		}
		c := attr.NewBuilder().SetOrigin(attr.OriginIGP).SetNexthop(body.Nexthop).SetExtCommunity(ext).SetLabel(body.Label).Content()
		return prefix.FamilyEVPN, key, c, nil

	default:
		return prefix.FamilyInet4, nil, attr.Content{}, decodeError{"bad-xml-token"}
	}
}

func (c *Channel) advertiseRT(rt prefix.RouteTarget, instName string) {
	c.mu.Lock()
	if c.advertisedRT[rt] == nil {
		c.advertisedRT[rt] = make(map[string]struct{})
	}
	_, already := c.advertisedRT[rt][instName]
	c.advertisedRT[rt][instName] = struct{}{}
	asn := c.localASN
	c.mu.Unlock()
	if already {
		return
	}
	c.enqueueRT(rt, asn, ribapi.OpAdd)
}

func (c *Channel) withdrawRT(rt prefix.RouteTarget, instName string) {
	c.mu.Lock()
	set := c.advertisedRT[rt]
	if set == nil {
		c.mu.Unlock()
		return
	}
	_, present := set[instName]
	delete(set, instName)
	if len(set) == 0 {
		delete(c.advertisedRT, rt)
	}
	asn := c.localASN
	c.mu.Unlock()
	if !present {
		return
	}
	c.enqueueRT(rt, asn, ribapi.OpDelete)
}

func (c *Channel) withdrawAllRTsFor(instName string) {
	c.mu.Lock()
	var rts []prefix.RouteTarget
	for rt, insts := range c.advertisedRT {
		if _, ok := insts[instName]; ok {
			rts = append(rts, rt)
		}
	}
	c.mu.Unlock()
	for _, rt := range rts {
		c.withdrawRT(rt, instName)
	}
}

// enqueueRT advertises (or withdraws) a route-target membership route
// into the master instance's RT table, keyed by the local ASN so an
// ASN change produces a distinct path id and a genuine
// withdraw-then-readvertise rather than an in-place content update
// (§4.9 "ASN change").
func (c *Channel) enqueueRT(rt prefix.RouteTarget, asn uint32, op ribapi.Op) {
	tbl := c.registry.Master().Table(prefix.FamilyRTarget)
	req := ribapi.Request{Op: op, Key: rt, Peer: c.peerID(), PathID: ribapi.PathID(asn), Source: ribapi.SourceXMPP}
	if op == ribapi.OpAdd {
		req.Content = attr.NewBuilder().SetOrigin(attr.OriginIGP).SetASPath(strconv.FormatUint(uint64(asn), 10)).Content()
	}
	tbl.Enqueue(req)
}

// SetLocalASN re-advertises every route-target membership route this
// channel has published under the old AS, withdrawing the old and
// adding the new (§4.9 "ASN change").
func (c *Channel) SetLocalASN(asn uint32) {
	c.mu.Lock()
	old := c.localASN
	if old == asn {
		c.mu.Unlock()
		return
	}
	c.localASN = asn
	type pair struct {
		rt   prefix.RouteTarget
		inst string
	}
	var pairs []pair
	for rt, insts := range c.advertisedRT {
		for name := range insts {
			pairs = append(pairs, pair{rt, name})
		}
	}
	c.mu.Unlock()

	for _, p := range pairs {
		c.enqueueRT(p.rt, old, ribapi.OpDelete)
		c.enqueueRT(p.rt, asn, ribapi.OpAdd)
	}
}

// OnInstanceCreated runs any subscribe this channel deferred for name
// while its instance did not yet exist (§4.9 "Routing-instance
// lifecycle callback").
func (c *Channel) OnInstanceCreated(inst *instance.Instance) {
	c.mu.Lock()
	_, pending := c.vrfPending[inst.Name]
	delete(c.vrfPending, inst.Name)
	c.mu.Unlock()
	if !pending {
		return
	}
	c.subscribeInstance(inst)
}

// OnImportRTChanged issues the advertise/withdraw delta for one
// route-target joining or leaving inst's import set, provided this
// channel is currently subscribed to inst (§4.9 "When an instance's
// import list changes, RT advertisements are diffed and the delta is
// issued"). Callers wire this as an instance.Instance.AddImportListener
// callback, one per subscribed channel.
func (c *Channel) OnImportRTChanged(inst *instance.Instance, rt prefix.RouteTarget, added bool) {
	c.mu.Lock()
	_, subscribed := c.subscribed[inst.Name]
	c.mu.Unlock()
	if !subscribed {
		return
	}
	if added {
		c.advertiseRT(rt, inst.Name)
	} else {
		c.withdrawRT(rt, inst.Name)
	}
}

// Close begins "close in progress" (§4.9 "Close semantics"): it clears
// the vrf-pending and defer maps immediately, then waits for any
// in-flight membership registrations to settle before invoking the
// peer-close manager. A second Close observed once this has already
// started returns ErrAlreadyClosing.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closePhase != closeIdle {
		c.mu.Unlock()
		return ErrAlreadyClosing
	}
	c.closePhase = closeInProgress
	c.vrfPending = make(map[string]int)
	c.deferred = make(map[subKey][]ribapi.Request)
	graceful := c.passive && c.gracefulOK
	c.mu.Unlock()

	go func() {
		c.inFlight.Wait()
		c.peerClose.Close(c.peerID(), graceful)
		c.mu.Lock()
		c.closePhase = closeStale
		c.mu.Unlock()
	}()
	return nil
}
