package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/schemaprov/pkg/config"
	"github.com/openfroyo/schemaprov/pkg/telemetry"
)

var (
	// Global flags
	envFile     string
	catalogPath string
	verbose     bool
	jsonOutput  bool

	// cfg is loaded before every subcommand runs.
	cfg *config.Config

	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	buildVersion = version

	rootCmd := &cobra.Command{
		Use:   "schemaprov",
		Short: "schemaprov - declarative schema provisioning for document stores",
		Long: `schemaprov provisions a remote document store from a declarative catalog:
one database, its collections, typed attributes, indexes and seed documents.

Runs are idempotent. Resources that already exist count as success, so the
same catalog can be applied any number of times.

Features:
  - Catalogs in YAML, JSON or CUE
  - Pre-flight plan and graphviz output
  - OPA policy checks on the catalog
  - HTTP trigger with run history in SQLite
  - Prometheus metrics and OpenTelemetry traces`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig()
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to read (default .env)")
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", "catalog file (default: embedded development catalog)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newCatalogCommand())

	return rootCmd
}

// loadConfig reads the environment, applies global flags and reconfigures
// the process logger.
func loadConfig() error {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}

	loaded, err := config.Load(files...)
	if err != nil {
		return err
	}
	if catalogPath != "" {
		loaded.CatalogPath = catalogPath
	}
	if verbose {
		loaded.Logging.Level = "debug"
	}
	cfg = loaded

	logger, err := telemetry.NewLogger(cfg.Telemetry(buildVersion).Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	log.Logger = logger.Zerolog()
	zerolog.SetGlobalLevel(telemetry.ParseLevel(cfg.Logging.Level))

	log.Debug().
		Str("catalog", cfg.CatalogPath).
		Str("store", cfg.StorePath).
		Str("environment", cfg.Environment).
		Msg("Configuration loaded")
	return nil
}
