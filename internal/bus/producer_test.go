package bus

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRouteEvent_JSONShape(t *testing.T) {
	ev := RouteEvent{
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Instance:  "blue",
		Family:    "inet4",
		Prefix:    "10.1.1.0/24",
		Op:        "add",
		Peer:      "xmpp:agent1",
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var round RouteEvent
	if err := json.Unmarshal(raw, &round); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if round != ev {
		t.Fatalf("round trip mismatch: got %+v, want %+v", round, ev)
	}
}

func TestDeltaEvent_OmitsPeerField(t *testing.T) {
	ev := DeltaEvent{Timestamp: time.Unix(0, 0).UTC(), Kind: "instance", Name: "blue"}
	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var asMap map[string]interface{}
	if err := json.Unmarshal(raw, &asMap); err != nil {
		t.Fatalf("unmarshal to map: %v", err)
	}
	if _, ok := asMap["peer"]; ok {
		t.Fatalf("DeltaEvent should not have a peer field: %v", asMap)
	}
}
