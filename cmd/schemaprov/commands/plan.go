package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/schemaprov/pkg/engine"
)

func newPlanCommand() *cobra.Command {
	var dotFile string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the steps a run would attempt",
		Long: `Show the remote calls a run attempts for the catalog, grouped into
dependency levels. The remote is not contacted.

With --dot the dependency graph is written in Graphviz DOT format.`,
		Example: `  # List planned steps
  schemaprov plan --catalog catalog.yaml

  # Render the graph
  schemaprov plan --dot plan.dot && dot -Tsvg plan.dot > plan.svg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := loadCatalog(cfg.CatalogPath)
			if err != nil {
				return fmt.Errorf("failed to load catalog: %w", err)
			}

			plan := engine.BuildPlan(def)
			log.Debug().
				Int("steps", len(plan.Steps)).
				Int("depth", plan.Depth).
				Msg("Plan built")

			if dotFile != "" {
				if err := os.WriteFile(dotFile, []byte(plan.ToDOT()), 0644); err != nil {
					return fmt.Errorf("failed to write DOT file: %w", err)
				}
				log.Info().Str("file", dotFile).Msg("Wrote plan graph")
			}

			if jsonOutput {
				return printJSON(plan)
			}

			fmt.Printf("Plan for database %s: %d steps in %d levels\n", plan.DatabaseID, len(plan.Steps), plan.Depth)
			for i, level := range plan.Levels() {
				fmt.Printf("\nLevel %d:\n", i)
				for _, id := range level {
					fmt.Printf("  %s\n", id)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dotFile, "dot", "", "write the DOT graph to this file")

	return cmd
}
