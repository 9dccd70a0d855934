// Package xmppsim drives a channel's Transport interface from a
// recorded stream of fixture records instead of a live network
// connection, the same "replay records against the core" shape the
// teacher used to feed BMP/Kafka captures through its BGP decoder in
// cmd/debug-raw.
//
// cmd/ctlplane uses it to replay an optional fixture file through an
// xmpp.Channel without a real agent connection, logging the fixture's
// decoded description (DescribeJSON) before it replays the records.
package xmppsim

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/routectl/ctlplane/internal/xmpp"
)

// Record is one fixture entry: an inbound message to hand the channel
// via Recv, decoded from the file's item shorthand into an xmpp.Item.
type Record struct {
	Action     string      `yaml:"action" json:"action"`
	VRF        string      `yaml:"vrf" json:"vrf"`
	InstanceID int         `yaml:"instance_id" json:"instance_id"`
	Items      []ItemSpec  `yaml:"items" json:"items"`
}

// ItemSpec is the flattened, human-writable form of an xmpp.Item used
// in fixture files; Decode converts it to the real wire type.
type ItemSpec struct {
	AFI          int      `yaml:"afi" json:"afi"`
	SAFI         int      `yaml:"safi" json:"safi"`
	Prefix       string   `yaml:"prefix" json:"prefix"`
	PrefixLen    int      `yaml:"prefix_len" json:"prefix_len"`
	Nexthop      string   `yaml:"nexthop" json:"nexthop"`
	Label        uint32   `yaml:"label" json:"label"`
	Community    []string `yaml:"community" json:"community"`
	ExtCommunity []string `yaml:"ext_community" json:"ext_community"`
	LocalPref    *uint32  `yaml:"local_pref" json:"local_pref"`
	Group        string   `yaml:"group" json:"group"`
	Source       string   `yaml:"source" json:"source"`
	RouteType    uint8    `yaml:"route_type" json:"route_type"`
	Key          string   `yaml:"key" json:"key"`
	MAC          string   `yaml:"mac" json:"mac"`
}

// Decode converts the fixture shorthand to the concrete Item the
// channel's decoder expects, picking the ItemBody variant by SAFI the
// same way a real agent's encoder would have chosen it.
func (s ItemSpec) Decode() xmpp.Item {
	switch s.SAFI {
	case xmpp.SAFIMulticast:
		return xmpp.Item{
			AFI: s.AFI, SAFI: s.SAFI,
			Body: xmpp.McastItem{
				Group:   net.ParseIP(s.Group),
				Source:  net.ParseIP(s.Source),
				Nexthop: net.ParseIP(s.Nexthop),
				Label:   s.Label,
			},
		}
	case xmpp.SAFIEnet:
		return xmpp.Item{
			AFI: s.AFI, SAFI: s.SAFI,
			Body: xmpp.EnetItem{
				RouteType: s.RouteType,
				Key:       s.Key,
				MAC:       s.MAC,
				Nexthop:   net.ParseIP(s.Nexthop),
				Label:     s.Label,
			},
		}
	default:
		body := xmpp.UnicastItem{
			Prefix:       net.ParseIP(s.Prefix),
			PrefixLen:    s.PrefixLen,
			Nexthop:      net.ParseIP(s.Nexthop),
			Label:        s.Label,
			Community:    s.Community,
			ExtCommunity: s.ExtCommunity,
		}
		if s.LocalPref != nil {
			body.HasLocalPref = true
			body.LocalPref = *s.LocalPref
		}
		return xmpp.Item{AFI: s.AFI, SAFI: s.SAFI, Body: body}
	}
}

func (r Record) toMessage() xmpp.Message {
	items := make([]xmpp.Item, len(r.Items))
	for i, it := range r.Items {
		items[i] = it.Decode()
	}
	return xmpp.Message{
		Action:     actionFromString(r.Action),
		VRF:        r.VRF,
		InstanceID: r.InstanceID,
		Items:      items,
	}
}

func actionFromString(s string) xmpp.Action {
	switch s {
	case "subscribe":
		return xmpp.ActionSubscribe
	case "unsubscribe":
		return xmpp.ActionUnsubscribe
	case "publish":
		return xmpp.ActionPublish
	case "withdraw":
		return xmpp.ActionWithdraw
	default:
		panic(fmt.Sprintf("xmppsim: unknown action %q", s))
	}
}

// Sent is one outbound message the channel attempted to send back to
// the simulated agent, captured for later inspection.
type Sent struct {
	Message xmpp.Message
}

// Transport is a canned xmpp.Transport: Recv replays a fixed sequence
// of records, Send records what the channel tried to push back. It is
// safe to share across a channel's single Run goroutine and a test's
// inspection of Sent after Close.
type Transport struct {
	mu      sync.Mutex
	records []Record
	pos     int
	sent    []Sent
	closed  bool
}

// LoadYAML reads a fixture file of the form `records: [...]` and
// returns a Transport ready to replay it.
func LoadYAML(path string) (*Transport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("xmppsim: read fixture: %w", err)
	}
	var doc struct {
		Records []Record `yaml:"records"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("xmppsim: parse fixture: %w", err)
	}
	return &Transport{records: doc.Records}, nil
}

// New builds a Transport directly from in-memory records, for tests
// that would rather construct fixtures as Go literals than files.
func New(records ...Record) *Transport {
	return &Transport{records: records}
}

// Recv returns the next queued record's message, or io.EOF once the
// fixture is exhausted — Channel.Run treats that as a normal close.
func (tr *Transport) Recv() (xmpp.Message, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.closed || tr.pos >= len(tr.records) {
		return xmpp.Message{}, io.EOF
	}
	rec := tr.records[tr.pos]
	tr.pos++
	return rec.toMessage(), nil
}

// Send records msg as something the channel pushed toward the agent.
func (tr *Transport) Send(msg xmpp.Message) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.sent = append(tr.sent, Sent{Message: msg})
	return nil
}

// Records returns the fixture's decoded record list, for callers that
// want to describe a fixture (DescribeJSON) before or alongside
// replaying it.
func (tr *Transport) Records() []Record {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]Record{}, tr.records...)
}

// Sent returns a snapshot of every message recorded via Send, in order.
func (tr *Transport) Sent() []Sent {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]Sent{}, tr.sent...)
}

// Close marks the fixture exhausted so any further Recv returns
// io.EOF immediately, for tests that want to stop a Run loop early.
func (tr *Transport) Close() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.closed = true
}

// DescribeJSON renders the fixture's decoded records as indented JSON,
// the offline equivalent of cmd/debug-raw's per-record diagnostic
// printout — used by cmd/ctlplane to log what a fixture will drive
// into a channel before replaying it.
func DescribeJSON(records []Record) (string, error) {
	type decoded struct {
		Action     string        `json:"action"`
		VRF        string        `json:"vrf"`
		InstanceID int           `json:"instance_id"`
		Items      []interface{} `json:"items"`
	}
	out := make([]decoded, len(records))
	for i, r := range records {
		msg := r.toMessage()
		items := make([]interface{}, len(msg.Items))
		for j, it := range msg.Items {
			items[j] = it.Body
		}
		out[i] = decoded{
			Action:     r.Action,
			VRF:        msg.VRF,
			InstanceID: msg.InstanceID,
			Items:      items,
		}
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
