package rtarget

import (
	"sync"
	"testing"

	"github.com/routectl/ctlplane/internal/prefix"
)

func TestJoinImportRescansOnlyOnEmptyToNonEmpty(t *testing.T) {
	rt := prefix.NewRouteTargetASN2(65001, 100)

	var mu sync.Mutex
	calls := 0
	m := New(func(prefix.RouteTarget) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	m.JoinImport(rt, "vrf-a")
	m.JoinImport(rt, "vrf-b")

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected exactly one rescan on the empty->non-empty transition, got %d", calls)
	}
}

func TestLeaveImportRescansOnlyOnNonEmptyToEmpty(t *testing.T) {
	rt := prefix.NewRouteTargetASN2(65001, 200)

	var mu sync.Mutex
	calls := 0
	m := New(func(prefix.RouteTarget) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	m.JoinImport(rt, "vrf-a")
	m.JoinImport(rt, "vrf-b")
	mu.Lock()
	calls = 0
	mu.Unlock()

	m.LeaveImport(rt, "vrf-a")
	mu.Lock()
	if calls != 0 {
		t.Fatalf("expected no rescan while an importer remains, got %d", calls)
	}
	mu.Unlock()

	m.LeaveImport(rt, "vrf-b")
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected exactly one rescan on the non-empty->empty transition, got %d", calls)
	}
}

func TestImportExportIndependent(t *testing.T) {
	rt := prefix.NewRouteTargetASN2(65001, 300)
	m := New(nil)

	m.JoinImport(rt, "vrf-a")
	m.JoinExport(rt, "vrf-b")

	g := m.Locate(rt)
	imp := g.Importers()
	exp := g.Exporters()
	if len(imp) != 1 || imp[0] != "vrf-a" {
		t.Fatalf("expected importer set {vrf-a}, got %v", imp)
	}
	if len(exp) != 1 || exp[0] != "vrf-b" {
		t.Fatalf("expected exporter set {vrf-b}, got %v", exp)
	}
}

func TestLocateIdempotentCreateIfAbsent(t *testing.T) {
	rt := prefix.NewRouteTargetASN2(65001, 400)
	m := New(nil)

	g1 := m.Locate(rt)
	g2 := m.Locate(rt)
	if g1 != g2 {
		t.Fatalf("expected Locate to be idempotent create-if-absent, got distinct groups")
	}
}
