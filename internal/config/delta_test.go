package config

import (
	"errors"
	"strings"
	"testing"
)

var errStop = errors.New("stop")

func TestDecodeDelta_Instance(t *testing.T) {
	raw := []byte(`
kind: instance
name: blue
content:
  route_distinguisher: "64496:1"
  import_targets: ["target:64496:100"]
  policies: ["default-accept"]
`)
	d, err := DecodeDelta(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Kind != DeltaInstance || d.Name != "blue" {
		t.Fatalf("unexpected delta header: %+v", d)
	}

	var inst InstanceDelta
	if err := d.Unmarshal(&inst); err != nil {
		t.Fatalf("unmarshal content: %v", err)
	}
	if inst.RouteDistinguisher != "64496:1" {
		t.Errorf("expected route distinguisher 64496:1, got %q", inst.RouteDistinguisher)
	}
	if len(inst.ImportTargets) != 1 || inst.ImportTargets[0] != "target:64496:100" {
		t.Errorf("unexpected import targets: %v", inst.ImportTargets)
	}
}

func TestDecodeDeltaStream_MultipleDocuments(t *testing.T) {
	raw := `
kind: instance
name: blue
content:
  route_distinguisher: "64496:1"
---
kind: static-route
name: blue
content:
  prefix: "10.1.1.0/24"
  nexthop: "10.0.0.1"
`
	var kinds []DeltaKind
	err := DecodeDeltaStream(strings.NewReader(raw), func(d Delta) error {
		kinds = append(kinds, d.Kind)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(kinds) != 2 || kinds[0] != DeltaInstance || kinds[1] != DeltaStaticRoute {
		t.Fatalf("unexpected kinds decoded: %v", kinds)
	}
}

func TestDecodeDeltaStream_StopsOnCallbackError(t *testing.T) {
	raw := `
kind: instance
name: blue
content: {}
---
kind: instance
name: red
content: {}
`
	sentinel := strings.NewReader(raw)
	count := 0
	err := DecodeDeltaStream(sentinel, func(d Delta) error {
		count++
		if count == 1 {
			return errStop
		}
		return nil
	})
	if err != errStop {
		t.Fatalf("expected errStop, got %v", err)
	}
	if count != 1 {
		t.Fatalf("expected stream to stop after first document, processed %d", count)
	}
}
