package accounts

import "testing"

func ptr(v int64) *int64 { return &v }

func TestBuildHierarchyAssemblesForest(t *testing.T) {
	accounts := []Account{
		{ID: 1, Code: "1000", Level: 0},
		{ID: 2, Code: "1100", ParentID: ptr(1), Level: 1},
		{ID: 3, Code: "1200", ParentID: ptr(1), Level: 1},
		{ID: 4, Code: "1110", ParentID: ptr(2), Level: 2},
		{ID: 5, Code: "4000", Level: 0},
	}
	roots := BuildHierarchy(accounts)
	if len(roots) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(roots))
	}
	if roots[0].Code != "1000" || roots[1].Code != "4000" {
		t.Fatalf("unexpected root order: %s, %s", roots[0].Code, roots[1].Code)
	}
	if len(roots[0].Children) != 2 {
		t.Fatalf("expected 2 children under 1000, got %d", len(roots[0].Children))
	}
	if roots[0].Children[0].Code != "1100" {
		t.Fatalf("children not sorted by code: %s", roots[0].Children[0].Code)
	}
	if len(roots[0].Children[0].Children) != 1 || roots[0].Children[0].Children[0].Code != "1110" {
		t.Fatalf("grandchild not attached")
	}
}

func TestBuildHierarchyOrphanBecomesRoot(t *testing.T) {
	accounts := []Account{
		{ID: 2, Code: "1100", ParentID: ptr(99), Level: 1},
	}
	roots := BuildHierarchy(accounts)
	if len(roots) != 1 || roots[0].Code != "1100" {
		t.Fatalf("expected orphan to surface as root")
	}
}

func TestBuildHierarchyEmpty(t *testing.T) {
	if roots := BuildHierarchy(nil); len(roots) != 0 {
		t.Fatalf("expected empty forest")
	}
}
