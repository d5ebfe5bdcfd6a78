package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openfroyo/schemaprov/pkg/catalog"
)

func newCatalogCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the effective catalog",
		Long: `Print the catalog the engine would run, after defaults are applied.
Useful as a starting point for a catalog file.`,
		Example: `  # Export the embedded catalog as YAML
  schemaprov catalog > catalog.yaml

  # Convert a catalog to CUE
  schemaprov catalog --catalog catalog.json --format cue`,
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := loadCatalog(cfg.CatalogPath)
			if err != nil {
				return fmt.Errorf("failed to load catalog: %w", err)
			}

			f := catalog.Format(format)
			if jsonOutput {
				f = catalog.FormatJSON
			}
			return catalog.Encode(os.Stdout, def, f)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(catalog.FormatYAML), "output format (yaml, json, cue)")

	return cmd
}
