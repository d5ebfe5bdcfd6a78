package engine

import (
	"fmt"
	"strings"

	"github.com/openfroyo/schemaprov/pkg/catalog"
	"github.com/openfroyo/schemaprov/pkg/remote"
)

// DependencyType describes an edge between planned steps.
type DependencyType string

const (
	// DependencyRequire means the target must exist for the step to succeed.
	DependencyRequire DependencyType = "require"

	// DependencyOrder only sequences the steps.
	DependencyOrder DependencyType = "order"
)

// Dependency is an edge to a step that runs earlier.
type Dependency struct {
	TargetID string         `json:"target_id"`
	Type     DependencyType `json:"type"`
}

// PlannedStep is one remote call a run will attempt.
type PlannedStep struct {
	ID           string       `json:"id"`
	Kind         remote.Kind  `json:"kind"`
	Resource     string       `json:"resource"`
	Level        int          `json:"level"`
	Dependencies []Dependency `json:"dependencies,omitempty"`
}

// Plan lists the steps of a run in the order Run attempts them when nothing
// fails, together with the dependency graph between them.
type Plan struct {
	DatabaseID string        `json:"database_id"`
	Steps      []PlannedStep `json:"steps"`

	// Depth is the number of dependency levels.
	Depth int `json:"depth"`
}

// BuildPlan derives the plan for def. It does not contact the remote.
func BuildPlan(def catalog.Definition) *Plan {
	p := &Plan{DatabaseID: def.DatabaseID}

	dbID := stepID(remote.KindDatabase, def.DatabaseID)
	p.add(remote.KindDatabase, def.DatabaseID)

	collIDs := make(map[string]string, len(def.Collections))
	prev := ""
	for _, c := range def.Collections {
		cid := stepID(remote.KindCollection, c.ID)
		collIDs[c.ID] = cid
		deps := []Dependency{{TargetID: dbID, Type: DependencyRequire}}
		if prev != "" {
			deps = append(deps, Dependency{TargetID: prev, Type: DependencyOrder})
		}
		p.add(remote.KindCollection, c.ID, deps...)
		prev = cid

		for _, a := range c.Attributes {
			p.add(remote.KindAttribute, c.ID+"."+a.Meta().Key,
				Dependency{TargetID: cid, Type: DependencyRequire})
		}
		for _, idx := range c.Indexes {
			deps := []Dependency{{TargetID: cid, Type: DependencyRequire}}
			for _, key := range idx.Attributes {
				deps = append(deps, Dependency{
					TargetID: stepID(remote.KindAttribute, c.ID+"."+key),
					Type:     DependencyRequire,
				})
			}
			p.add(remote.KindIndex, c.ID+"."+idx.Key, deps...)
		}
	}

	for _, set := range def.Seeds {
		for i, doc := range set.Documents {
			resource := fmt.Sprintf("%s#%d", set.Collection, i)
			if set.Label != "" {
				if v, ok := doc[set.Label]; ok && v != nil {
					resource = fmt.Sprintf("%s/%v", set.Collection, v)
				}
			}
			p.add(remote.KindDocument, resource,
				Dependency{TargetID: collIDs[set.Collection], Type: DependencyRequire})
		}
	}

	p.computeLevels()
	return p
}

func stepID(kind remote.Kind, resource string) string {
	return string(kind) + ":" + resource
}

func (p *Plan) add(kind remote.Kind, resource string, deps ...Dependency) {
	p.Steps = append(p.Steps, PlannedStep{
		ID:           stepID(kind, resource),
		Kind:         kind,
		Resource:     resource,
		Dependencies: deps,
	})
}

// computeLevels assigns each step one level past its deepest dependency.
// Steps are appended after everything they depend on, so one pass suffices.
func (p *Plan) computeLevels() {
	level := make(map[string]int, len(p.Steps))
	depth := 0
	for i := range p.Steps {
		s := &p.Steps[i]
		l := 0
		for _, dep := range s.Dependencies {
			if dl, ok := level[dep.TargetID]; ok && dl+1 > l {
				l = dl + 1
			}
		}
		s.Level = l
		level[s.ID] = l
		if l+1 > depth {
			depth = l + 1
		}
	}
	p.Depth = depth
}

// Count returns the number of planned steps of kind.
func (p *Plan) Count(kind remote.Kind) int {
	n := 0
	for _, s := range p.Steps {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

// Levels groups step IDs by level.
func (p *Plan) Levels() [][]string {
	levels := make([][]string, p.Depth)
	for _, s := range p.Steps {
		levels[s.Level] = append(levels[s.Level], s.ID)
	}
	return levels
}

// ToDOT renders the plan in Graphviz DOT format.
func (p *Plan) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph Provisioning {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	kinds := make(map[string]remote.Kind, len(p.Steps))
	for _, s := range p.Steps {
		kinds[s.ID] = s.Kind
	}

	for level, ids := range p.Levels() {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")
		for _, id := range ids {
			sb.WriteString(fmt.Sprintf("    %q [fillcolor=%q, style=\"filled,rounded\"];\n", id, kindColor(kinds[id])))
		}
		sb.WriteString("  }\n\n")
	}

	for _, s := range p.Steps {
		for _, dep := range s.Dependencies {
			sb.WriteString(fmt.Sprintf("  %q -> %q [%s];\n", dep.TargetID, s.ID, dependencyStyle(dep.Type)))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

func kindColor(kind remote.Kind) string {
	switch kind {
	case remote.KindDatabase:
		return "lightcoral"
	case remote.KindCollection:
		return "lightblue"
	case remote.KindAttribute:
		return "lightgreen"
	case remote.KindIndex:
		return "khaki"
	default:
		return "lightgray"
	}
}

func dependencyStyle(t DependencyType) string {
	if t == DependencyOrder {
		return "style=dotted, color=gray"
	}
	return "style=solid, color=black"
}
