package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/schemaprov/pkg/catalog"
	"github.com/openfroyo/schemaprov/pkg/policy"
	"github.com/openfroyo/schemaprov/pkg/remote"
	"github.com/openfroyo/schemaprov/pkg/remote/appwrite"
	"github.com/openfroyo/schemaprov/pkg/stores"
	"github.com/openfroyo/schemaprov/pkg/telemetry"
)

// loadCatalog loads path, or the embedded catalog when path is empty.
func loadCatalog(path string) (catalog.Definition, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

// newTelemetry builds tracing and metrics from the loaded configuration.
func newTelemetry() (*telemetry.Telemetry, error) {
	tel, err := telemetry.NewTelemetry(cfg.Telemetry(buildVersion))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	return tel, nil
}

// newRemoteClient builds an instrumented Appwrite client. A non-empty apiKey
// overrides the configured one.
func newRemoteClient(apiKey string, tel *telemetry.Telemetry) (remote.Client, error) {
	ac := cfg.AppwriteConfig(apiKey)
	if ac.APIKey == "" {
		return nil, fmt.Errorf("API key not found in headers or environment variables")
	}
	client, err := appwrite.New(ac, appwrite.WithUserAgent("schemaprov/"+buildVersion))
	if err != nil {
		return nil, err
	}
	return remote.Instrument(client, tel.Metrics, tel.Tracer, tel.Logger.Component("remote")), nil
}

// openStore opens and migrates the run history store. It returns nil when
// history is disabled.
func openStore(ctx context.Context) (*stores.SQLiteStore, error) {
	if cfg.StorePath == "" {
		return nil, nil
	}
	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.StorePath})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate run store: %w", err)
	}
	return store, nil
}

// newPolicyEngine loads the built-in policies plus the configured paths.
func newPolicyEngine(ctx context.Context) (*policy.Engine, error) {
	pe, err := policy.NewEngine(log.Logger)
	if err != nil {
		return nil, err
	}
	if len(cfg.PolicyPaths) > 0 {
		if err := pe.LoadPolicies(ctx, cfg.PolicyPaths); err != nil {
			return nil, err
		}
	}
	return pe, nil
}

// printPolicyResult writes findings in text form.
func printPolicyResult(w io.Writer, res *policy.Result) {
	for _, v := range res.Violations {
		fmt.Fprintf(w, "  ERROR   %-18s %-40s %s\n", v.Policy, v.Resource, v.Message)
	}
	for _, v := range res.Warnings {
		fmt.Fprintf(w, "  %-7s %-18s %-40s %s\n", strings.ToUpper(string(v.Severity)), v.Policy, v.Resource, v.Message)
	}
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  FAILED  %s\n", e)
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
