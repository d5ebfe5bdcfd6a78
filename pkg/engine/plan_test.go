package engine

import (
	"strings"
	"testing"

	"github.com/openfroyo/schemaprov/pkg/catalog"
	"github.com/openfroyo/schemaprov/pkg/remote"
)

func TestBuildPlanOrderAndLevels(t *testing.T) {
	def := twoCollectionDef()
	def.Seeds = []catalog.SeedSet{{
		Collection: "gadgets",
		Label:      "label",
		Documents:  []map[string]interface{}{{"label": "first"}, {"qty": 3}},
	}}

	plan := BuildPlan(def)

	wantIDs := []string{
		"database:test_db",
		"collection:widgets",
		"attribute:widgets.name",
		"index:widgets.idx_name",
		"collection:gadgets",
		"attribute:gadgets.label",
		"attribute:gadgets.qty",
		"attribute:gadgets.active",
		"index:gadgets.idx_label",
		"index:gadgets.idx_qty",
		"document:gadgets/first",
		"document:gadgets#1",
	}
	if len(plan.Steps) != len(wantIDs) {
		t.Fatalf("got %d steps, want %d", len(plan.Steps), len(wantIDs))
	}
	for i, id := range wantIDs {
		if plan.Steps[i].ID != id {
			t.Errorf("step %d = %s, want %s", i, plan.Steps[i].ID, id)
		}
	}

	levels := map[string]int{}
	for _, s := range plan.Steps {
		levels[s.ID] = s.Level
	}
	if levels["database:test_db"] != 0 || levels["collection:widgets"] != 1 || levels["collection:gadgets"] != 2 {
		t.Errorf("unexpected collection levels: %v", levels)
	}
	if levels["index:gadgets.idx_qty"] != 4 {
		t.Errorf("index level = %d, want 4", levels["index:gadgets.idx_qty"])
	}
	if plan.Depth != 5 {
		t.Errorf("Depth = %d, want 5", plan.Depth)
	}
	if plan.Count(remote.KindAttribute) != 4 || plan.Count(remote.KindDocument) != 2 {
		t.Errorf("unexpected counts")
	}
}

func TestPlanDependenciesPrecedeSteps(t *testing.T) {
	def, err := catalog.Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	plan := BuildPlan(def)

	seen := make(map[string]bool, len(plan.Steps))
	for _, s := range plan.Steps {
		for _, dep := range s.Dependencies {
			if !seen[dep.TargetID] {
				t.Fatalf("%s depends on %s, which comes later", s.ID, dep.TargetID)
			}
		}
		seen[s.ID] = true
	}
	if got := plan.Count(remote.KindIndex); got != def.CountIndexes() {
		t.Errorf("planned %d indexes, want %d", got, def.CountIndexes())
	}
}

func TestPlanToDOT(t *testing.T) {
	dot := BuildPlan(twoCollectionDef()).ToDOT()

	for _, want := range []string{
		"digraph Provisioning {",
		`"database:test_db" -> "collection:widgets" [style=solid, color=black];`,
		`"collection:widgets" -> "collection:gadgets" [style=dotted, color=gray];`,
		`"attribute:gadgets.active" -> "index:gadgets.idx_qty"`,
		"cluster_level_4",
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %q", want)
		}
	}
}
