package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/schemaprov/pkg/api"
	"github.com/openfroyo/schemaprov/pkg/engine"
	"github.com/openfroyo/schemaprov/pkg/policy"
	"github.com/openfroyo/schemaprov/pkg/remote"
	"github.com/openfroyo/schemaprov/pkg/remote/memory"
	"github.com/openfroyo/schemaprov/pkg/stores"
)

// cliTrigger tags runs started from the command line.
const cliTrigger = "cli"

func newApplyCommand() *cobra.Command {
	var (
		forceRecreate bool
		dryRun        bool
		checkPolicy   bool
		apiKey        string
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Provision the catalog on the remote",
		Long: `Provision the database, collections, attributes, indexes and seed
documents described by the catalog.

Resources that already exist are reported as existing and count as success.
Only a failed database or collection creation fails the run; attribute,
index and seed failures are logged and the run continues.

With --dry-run the run goes against an in-memory store instead of the
remote, without settle delays, which shows exactly which steps would run.`,
		Example: `  # Provision with credentials from the environment
  schemaprov apply

  # Provision a catalog file and print the response body
  schemaprov apply --catalog catalog.yaml --json

  # Rehearse against an in-memory store
  schemaprov apply --dry-run

  # Refuse to run when a policy reports an error
  schemaprov apply --policy`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd.Context(), forceRecreate, dryRun, checkPolicy || cfg.EnforcePolicy, apiKey)
		},
	}

	cmd.Flags().BoolVar(&forceRecreate, "force-recreate", false, "request recreation (echoed in the result)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "run against an in-memory store")
	cmd.Flags().BoolVar(&checkPolicy, "policy", false, "block the run on policy errors")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key (overrides APPWRITE_FUNCTION_API_KEY)")

	return cmd
}

func runApply(ctx context.Context, forceRecreate, dryRun, enforce bool, apiKey string) error {
	start := time.Now()

	def, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	tel, err := newTelemetry()
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Telemetry shutdown failed")
		}
	}()

	pe, err := newPolicyEngine(ctx)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	verdict, err := pe.Evaluate(ctx, def)
	if err != nil {
		return fmt.Errorf("policy evaluation failed: %w", err)
	}
	if !jsonOutput && (len(verdict.Violations) > 0 || len(verdict.Warnings) > 0) {
		fmt.Fprintln(os.Stderr, "Policy findings:")
		printPolicyResult(os.Stderr, verdict)
	}
	if enforce && !verdict.Allowed {
		return fmt.Errorf("catalog rejected by policy: %d violation(s)", len(verdict.Violations))
	}

	opts := []engine.Option{
		engine.WithLogger(tel.Logger.Component("engine")),
		engine.WithTiming(cfg.EngineTiming()),
		engine.WithMetrics(tel.Metrics),
		engine.WithTracer(tel.Tracer),
		engine.WithTrigger(cliTrigger),
	}

	var client remote.Client
	if dryRun {
		client = memory.New()
		opts = append(opts, engine.WithSleeper(engine.SleeperFunc(func(ctx context.Context, _ time.Duration) error {
			return ctx.Err()
		})))
		log.Info().Msg("Dry run: provisioning an in-memory store")
	} else {
		client, err = newRemoteClient(apiKey, tel)
		if err != nil {
			return err
		}
	}

	eng, err := engine.New(def, client, opts...)
	if err != nil {
		return err
	}
	result := eng.Run(ctx, forceRecreate)

	if !dryRun {
		recordRun(ctx, result)
	}

	end := time.Now()
	log.Info().
		Str("run_id", result.RunID).
		Msgf("Setup completed in %.2f seconds", end.Sub(start).Seconds())

	if jsonOutput {
		if result.Success {
			resp := api.NewSetupResponse(result, cfg.Environment, end.Sub(start), end)
			resp.Policy = verdict
			if err := printJSON(resp); err != nil {
				return err
			}
		} else {
			resp := api.NewFailureResponse(result, end.Sub(start), end)
			resp.Policy = verdict
			if err := printJSON(resp); err != nil {
				return err
			}
		}
	} else {
		printResult(result, verdict)
	}

	if !result.Success {
		return fmt.Errorf("database setup failed: %v", result.Error)
	}
	return nil
}

// recordRun saves result when run history is configured. Failures only warn.
func recordRun(ctx context.Context, result *engine.RunResult) {
	store, err := openStore(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Run history unavailable")
		return
	}
	if store == nil {
		return
	}
	defer store.Close()

	if err := store.SaveRun(ctx, stores.NewRecord(result, cliTrigger)); err != nil {
		log.Warn().Err(err).Str("run_id", result.RunID).Msg("Failed to record run")
	}
}

func printResult(result *engine.RunResult, verdict *policy.Result) {
	status := "SUCCEEDED"
	if !result.Success {
		status = "FAILED"
	}

	fmt.Printf("Run %s %s\n", result.RunID, status)
	fmt.Printf("  Database:             %s (%s)\n", result.DatabaseName, result.DatabaseID)
	fmt.Printf("  Collections created:  %d\n", result.CollectionsCreated)
	fmt.Printf("  Indexes created:      %d\n", result.IndexesCreated)
	fmt.Printf("  Seed data inserted:   %t\n", result.DefaultDataInserted)
	fmt.Printf("  Duration:             %s\n", result.Duration().Round(time.Millisecond))
	if verdict != nil {
		fmt.Printf("  Policy:               %d violation(s), %d warning(s)\n", len(verdict.Violations), len(verdict.Warnings))
	}

	fmt.Println()
	fmt.Printf("  %-12s %8s %8s %8s\n", "KIND", "CREATED", "EXISTING", "FAILED")
	for _, kind := range []remote.Kind{remote.KindDatabase, remote.KindCollection, remote.KindAttribute, remote.KindIndex, remote.KindDocument} {
		c, ok := result.Tally[kind]
		if !ok {
			continue
		}
		fmt.Printf("  %-12s %8d %8d %8d\n", kind, c.Created, c.Existing, c.Failed)
	}

	if !result.Success && result.Error != nil {
		fmt.Println()
		fmt.Printf("  Error: %s\n", strings.TrimSpace(result.Error.Error()))
	}
}
