package store

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/routectl/ctlplane/internal/config"
)

func TestMarshalDeltaContent(t *testing.T) {
	raw := []byte(`
kind: static-route
name: blue
content:
  prefix: "10.1.1.0/24"
  nexthop: "10.0.0.1"
`)
	d, err := config.DecodeDelta(raw)
	if err != nil {
		t.Fatalf("decoding fixture delta: %v", err)
	}

	content, err := marshalDeltaContent(d)
	if err != nil {
		t.Fatalf("marshalDeltaContent: %v", err)
	}

	var roundTrip struct {
		Prefix  string `yaml:"prefix"`
		Nexthop string `yaml:"nexthop"`
	}
	if err := yaml.Unmarshal(content, &roundTrip); err != nil {
		t.Fatalf("unmarshaling re-encoded content: %v", err)
	}
	if roundTrip.Prefix != "10.1.1.0/24" || roundTrip.Nexthop != "10.0.0.1" {
		t.Fatalf("unexpected round trip: %+v", roundTrip)
	}
	if !strings.Contains(string(content), "prefix") {
		t.Fatalf("expected marshaled content to retain field names, got %s", content)
	}
}
