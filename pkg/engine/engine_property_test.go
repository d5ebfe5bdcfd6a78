package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/openfroyo/schemaprov/pkg/catalog"
	"github.com/openfroyo/schemaprov/pkg/remote"
	"github.com/openfroyo/schemaprov/pkg/remote/memory"
)

// syntheticDef builds a catalog of collections collections, each with
// between one and four attributes and an index over every other attribute.
func syntheticDef(collections, attrSeed int) catalog.Definition {
	def := catalog.Definition{DatabaseID: "prop_db", DatabaseName: "Prop DB"}
	for i := 0; i < collections; i++ {
		c := catalog.Collection{ID: fmt.Sprintf("c%d", i), Name: fmt.Sprintf("C%d", i)}
		n := (i+attrSeed)%4 + 1
		for j := 0; j < n; j++ {
			key := fmt.Sprintf("a%d", j)
			c.Attributes = append(c.Attributes, catalog.StringAttribute{
				AttributeMeta: catalog.AttributeMeta{Key: key},
				Size:          32,
			})
			if j%2 == 0 {
				c.Indexes = append(c.Indexes, catalog.Index{
					Key:        "idx_" + key,
					Type:       catalog.IndexKey,
					Attributes: []string{key},
				})
			}
		}
		def.Collections = append(def.Collections, c)
	}
	return def
}

func propertyEngine(def catalog.Definition, client remote.Client) *Engine {
	e, err := New(def, client, WithSleeper(&recordingSleeper{}), WithTiming(fastTiming()))
	if err != nil {
		panic(err)
	}
	return e
}

// TestProperty_RerunCreatesNothing checks that a second run over the same
// remote creates nothing, fails nothing and reports the same collection count.
func TestProperty_RerunCreatesNothing(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("second run reports every resource as existing", prop.ForAll(
		func(collections, attrSeed int) bool {
			def := syntheticDef(collections, attrSeed)
			e := propertyEngine(def, memory.New())

			first := e.Run(context.Background(), false)
			second := e.Run(context.Background(), false)
			if !first.Success || !second.Success {
				return false
			}
			if second.CollectionsCreated != first.CollectionsCreated || second.IndexesCreated != 0 {
				return false
			}
			for _, c := range second.Tally {
				if c.Created != 0 || c.Failed != 0 {
					return false
				}
			}
			return second.Tally[remote.KindIndex].Existing == def.CountIndexes()
		},
		gen.IntRange(1, 6),
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}

// TestProperty_RecoverableFailuresKeepSuccess checks that failing any single
// attribute never fails the run and never stops later collections.
func TestProperty_RecoverableFailuresKeepSuccess(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("attribute failure is isolated", prop.ForAll(
		func(collections, attrSeed, target int) bool {
			def := syntheticDef(collections, attrSeed)
			c := def.Collections[target%len(def.Collections)]
			resource := c.ID + "." + c.Attributes[0].Meta().Key

			store := memory.New()
			store.Fail(remote.OpCreateAttribute, resource, remote.NewError(remote.OpCreateAttribute, resource, 500, "boom"))

			result := propertyEngine(def, store).Run(context.Background(), false)
			if !result.Success || result.CollectionsCreated != len(def.Collections) {
				return false
			}
			attrs := result.Tally[remote.KindAttribute]
			return attrs.Failed == 1 && attrs.Created == def.CountAttributes()-1
		},
		gen.IntRange(1, 6),
		gen.IntRange(0, 3),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}

// TestProperty_CallsRespectDependencies checks that every remote call happens
// after the calls for everything it depends on.
func TestProperty_CallsRespectDependencies(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("calls follow the plan", prop.ForAll(
		func(collections, attrSeed int) bool {
			def := syntheticDef(collections, attrSeed)
			store := memory.New()
			if result := propertyEngine(def, store).Run(context.Background(), false); !result.Success {
				return false
			}

			position := make(map[string]int)
			for i, call := range store.Calls() {
				position[call.Resource] = i
			}

			plan := BuildPlan(def)
			byID := make(map[string]PlannedStep, len(plan.Steps))
			for _, s := range plan.Steps {
				byID[s.ID] = s
			}
			for _, s := range plan.Steps {
				at, ok := position[s.Resource]
				if !ok {
					return false
				}
				for _, dep := range s.Dependencies {
					if position[byID[dep.TargetID].Resource] >= at {
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(1, 6),
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}
