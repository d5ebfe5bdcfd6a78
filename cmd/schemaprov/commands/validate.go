package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [catalog]",
		Short: "Validate a catalog and lint it against policies",
		Long: `Validate a catalog structurally and evaluate the built-in and configured
policies against it. Exits non-zero when the catalog is invalid or a policy
reports an error.`,
		Example: `  # Validate the embedded catalog
  schemaprov validate

  # Validate a file with extra policies
  SCHEMAPROV_POLICY_PATHS=./policies schemaprov validate catalog.cue`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfg.CatalogPath
			if len(args) == 1 {
				path = args[0]
			}

			def, err := loadCatalog(path)
			if err != nil {
				return fmt.Errorf("invalid catalog: %w", err)
			}

			pe, err := newPolicyEngine(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load policies: %w", err)
			}
			res, err := pe.Evaluate(cmd.Context(), def)
			if err != nil {
				return fmt.Errorf("policy evaluation failed: %w", err)
			}

			if jsonOutput {
				if err := printJSON(res); err != nil {
					return err
				}
			} else {
				name := path
				if name == "" {
					name = "embedded catalog"
				}
				fmt.Printf("%s: %d collections, %d attributes, %d indexes\n",
					name, len(def.Collections), def.CountAttributes(), def.CountIndexes())
				printPolicyResult(os.Stdout, res)
			}

			if !res.Allowed {
				return fmt.Errorf("catalog rejected by policy: %d violation(s)", len(res.Violations))
			}
			return nil
		},
	}

	return cmd
}
