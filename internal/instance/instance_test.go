package instance

import (
	"testing"

	"github.com/routectl/ctlplane/internal/attr"
	"github.com/routectl/ctlplane/internal/prefix"
	"github.com/routectl/ctlplane/internal/rtarget"
)

func TestMasterInstanceCreatedAtStartup(t *testing.T) {
	reg := NewRegistry(attr.NewInterner(), rtarget.New(nil))
	m := reg.Master()
	if !m.IsMaster {
		t.Fatalf("expected master instance to be flagged IsMaster")
	}
	if m.Name != MasterName {
		t.Fatalf("expected master instance name %q, got %q", MasterName, m.Name)
	}
	if got, ok := reg.Get(MasterName); !ok || got != m {
		t.Fatalf("expected Get(%q) to return the master instance", MasterName)
	}
}

func TestTableCreatedOnFirstReference(t *testing.T) {
	reg := NewRegistry(attr.NewInterner(), rtarget.New(nil))
	vrf := reg.GetOrCreate("blue")

	if vrf.HasTable(prefix.FamilyInet4) {
		t.Fatalf("expected no table before first reference")
	}
	tbl := vrf.Table(prefix.FamilyInet4)
	if tbl == nil {
		t.Fatalf("expected Table to create and return a table")
	}
	if !vrf.HasTable(prefix.FamilyInet4) {
		t.Fatalf("expected HasTable true after first reference")
	}
	if vrf.Table(prefix.FamilyInet4) != tbl {
		t.Fatalf("expected repeated Table calls to return the same instance")
	}
}

func TestImportRTMembershipInvariant(t *testing.T) {
	rtMgr := rtarget.New(nil)
	reg := NewRegistry(attr.NewInterner(), rtMgr)
	vrf := reg.GetOrCreate("blue")

	rt := prefix.NewRouteTargetASN2(65001, 100)
	vrf.AddImportRT(rt)

	importers := rtMgr.Importers(rt)
	if len(importers) != 1 || importers[0] != rtarget.InstanceName("blue") {
		t.Fatalf("expected rtarget.Manager to reflect the new importer, got %v", importers)
	}

	vrf.RemoveImportRT(rt)
	if importers := rtMgr.Importers(rt); len(importers) != 0 {
		t.Fatalf("expected importer set empty after RemoveImportRT, got %v", importers)
	}
}

func TestDestroyableRequiresDeletedAndEmptyTables(t *testing.T) {
	reg := NewRegistry(attr.NewInterner(), rtarget.New(nil))
	vrf := reg.GetOrCreate("blue")
	vrf.Table(prefix.FamilyInet4)

	if vrf.Destroyable() {
		t.Fatalf("expected not destroyable before MarkDeleted")
	}
	vrf.MarkDeleted()
	if !vrf.Destroyable() {
		t.Fatalf("expected destroyable once deleted and tables empty")
	}
}
