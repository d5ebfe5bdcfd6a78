package engine_test

import (
	"context"
	"fmt"
	"time"

	"github.com/openfroyo/schemaprov/pkg/catalog"
	"github.com/openfroyo/schemaprov/pkg/engine"
	"github.com/openfroyo/schemaprov/pkg/remote"
	"github.com/openfroyo/schemaprov/pkg/remote/memory"
)

func exampleCatalog() catalog.Definition {
	return catalog.Definition{
		DatabaseID:   "shop",
		DatabaseName: "Shop",
		Collections: []catalog.Collection{
			{
				ID:   "widgets",
				Name: "Widgets",
				Attributes: []catalog.Attribute{
					catalog.StringAttribute{AttributeMeta: catalog.AttributeMeta{Key: "name", Required: true}, Size: 255},
				},
				Indexes: []catalog.Index{
					{Key: "idx_name", Type: catalog.IndexKey, Attributes: []string{"name"}},
				},
			},
		},
	}
}

// Example_rerun shows that provisioning twice is safe: the second run finds
// everything in place.
func Example_rerun() {
	noWait := engine.SleeperFunc(func(ctx context.Context, _ time.Duration) error { return ctx.Err() })

	e, err := engine.New(exampleCatalog(), memory.New(), engine.WithSleeper(noWait))
	if err != nil {
		panic(err)
	}

	for i := 0; i < 2; i++ {
		result := e.Run(context.Background(), false)
		tally := result.Tally[remote.KindIndex]
		fmt.Printf("run %d: success=%v collections=%d indexes created=%d existing=%d\n",
			i+1, result.Success, result.CollectionsCreated, tally.Created, tally.Existing)
	}

	// Output:
	// run 1: success=true collections=1 indexes created=1 existing=0
	// run 2: success=true collections=1 indexes created=0 existing=1
}

// Example_plan prints the steps a run attempts.
func Example_plan() {
	plan := engine.BuildPlan(exampleCatalog())
	for _, s := range plan.Steps {
		fmt.Printf("%d %s\n", s.Level, s.ID)
	}

	// Output:
	// 0 database:shop
	// 1 collection:widgets
	// 2 attribute:widgets.name
	// 3 index:widgets.idx_name
}
