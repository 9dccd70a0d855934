package config

import (
	"bufio"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// DeltaKind names the kind of object a Delta mutates.
type DeltaKind string

const (
	DeltaInstance     DeltaKind = "instance"
	DeltaPolicy       DeltaKind = "policy"
	DeltaStaticRoute  DeltaKind = "static-route"
	DeltaAggregate    DeltaKind = "aggregate"
	DeltaImportTarget DeltaKind = "import-target"
	DeltaExportTarget DeltaKind = "export-target"
	DeltaDelete       DeltaKind = "delete"
)

// Delta is one entry in the dynamic configuration stream: an
// instance/policy/static-route/aggregate definition, a route-target
// attachment, or a deletion, addressed by name with its body left
// as raw YAML for the caller to unmarshal against the kind-specific
// shape it expects (InstanceDelta, PolicyDelta, and so on).
type Delta struct {
	Kind    DeltaKind `yaml:"kind"`
	Name    string    `yaml:"name"`
	Content yaml.Node `yaml:"content"`
}

// InstanceDelta is the Content shape for DeltaInstance.
type InstanceDelta struct {
	RouteDistinguisher string   `yaml:"route_distinguisher"`
	ImportTargets      []string `yaml:"import_targets"`
	ExportTargets      []string `yaml:"export_targets"`
	Policies           []string `yaml:"policies"`
}

// PolicyDelta is the Content shape for DeltaPolicy: an ordered list of
// terms, each a match clause and an action clause, both left as raw
// YAML since their exact fields depend on the attribute they match or
// rewrite.
type PolicyDelta struct {
	Terms []PolicyTermDelta `yaml:"terms"`
}

type PolicyTermDelta struct {
	Match  yaml.Node `yaml:"match"`
	Action yaml.Node `yaml:"action"`
}

// StaticRouteDelta is the Content shape for DeltaStaticRoute. Name
// identifies the static-route entry; Instance names the routing
// instance it is configured against.
type StaticRouteDelta struct {
	Instance  string   `yaml:"instance"`
	Prefix    string   `yaml:"prefix"`
	Nexthop   string   `yaml:"nexthop"`
	RTList    []string `yaml:"rt_list"`
	Community []string `yaml:"community"`
}

// AggregateDelta is the Content shape for DeltaAggregate.
type AggregateDelta struct {
	Instance string `yaml:"instance"`
	Prefix   string `yaml:"prefix"`
	Nexthop  string `yaml:"nexthop"`
}

// RouteTargetDelta is the Content shape for DeltaImportTarget and
// DeltaExportTarget: Name carries the route-target's own string form
// (target:ASN:value, with a 2-byte AS number), Instance the routing
// instance added to its importer/exporter set. These delta kinds only
// add; none of them removes an instance from the set.
type RouteTargetDelta struct {
	Instance string `yaml:"instance"`
}

// Unmarshal decodes d.Content into v, the kind-specific struct the
// caller expects for d.Kind.
func (d Delta) Unmarshal(v interface{}) error {
	if err := d.Content.Decode(v); err != nil {
		return fmt.Errorf("config: decoding %s delta %q: %w", d.Kind, d.Name, err)
	}
	return nil
}

// DecodeDeltaStream reads a `---`-separated sequence of Delta
// documents, calling fn for each as it is decoded. It stops at the
// first error fn returns or the first malformed document.
func DecodeDeltaStream(r io.Reader, fn func(Delta) error) error {
	dec := yaml.NewDecoder(bufio.NewReader(r))
	for {
		var d Delta
		if err := dec.Decode(&d); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("config: decoding delta stream: %w", err)
		}
		if err := fn(d); err != nil {
			return err
		}
	}
}

// DecodeDelta decodes a single Delta document from raw YAML bytes, for
// callers handling one delta at a time rather than a stream.
func DecodeDelta(raw []byte) (Delta, error) {
	var d Delta
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return Delta{}, fmt.Errorf("config: decoding delta: %w", err)
	}
	return d, nil
}
