package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/schemaprov/pkg/api"
	"github.com/openfroyo/schemaprov/pkg/catalog"
	"github.com/openfroyo/schemaprov/pkg/engine"
	"github.com/openfroyo/schemaprov/pkg/policy"
	"github.com/openfroyo/schemaprov/pkg/remote"
)

func newServeCommand() *cobra.Command {
	var (
		listen string
		watch  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve provisioning runs over HTTP",
		Long: `Start the HTTP trigger. GET or POST / runs the catalog and answers
with the run result; the x-appwrite-key header overrides the configured API key.

With SCHEMAPROV_STORE set, every run is recorded and browsable under /runs.
With --watch, catalog and policy files are reloaded when they change.`,
		Example: `  # Serve on the default address
  schemaprov serve

  # Serve a catalog file and reload it on change
  schemaprov serve --catalog catalog.yaml --watch --listen :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen == "" {
				listen = cfg.Listen
			}
			return runServe(cmd.Context(), listen, watch)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from SCHEMAPROV_LISTEN)")
	cmd.Flags().BoolVar(&watch, "watch", false, "reload catalog and policies on change")

	return cmd
}

func runServe(ctx context.Context, listen string, watch bool) error {
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

	factory := func(_ context.Context, key string) (remote.Client, error) {
		return newRemoteClient(key, tel)
	}

	opts := []api.Option{
		api.WithLogger(tel.Logger.Zerolog()),
		api.WithEnvironment(cfg.Environment),
		api.WithPolicy(pe, cfg.EnforcePolicy),
		api.WithEngineOptions(
			engine.WithLogger(tel.Logger.Component("engine")),
			engine.WithTiming(cfg.EngineTiming()),
			engine.WithMetrics(tel.Metrics),
			engine.WithTracer(tel.Tracer),
		),
	}
	if cfg.Metrics {
		opts = append(opts, api.WithMetrics(tel.Metrics))
	}

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		opts = append(opts, api.WithStore(store))
	}

	srv, err := api.NewServer(def, factory, opts...)
	if err != nil {
		return err
	}

	if watch {
		if err := startWatchers(ctx, srv, pe); err != nil {
			return err
		}
	}

	log.Info().
		Str("listen", listen).
		Str("database", def.DatabaseID).
		Bool("history", store != nil).
		Bool("enforce_policy", cfg.EnforcePolicy).
		Msg("Starting server")

	return srv.ListenAndServe(ctx, listen)
}

func startWatchers(ctx context.Context, srv *api.Server, pe *policy.Engine) error {
	if cfg.CatalogPath != "" {
		_, err := catalog.Watch(ctx, cfg.CatalogPath, log.Logger, func(def catalog.Definition) {
			if err := srv.SetCatalog(def); err != nil {
				log.Error().Err(err).Msg("Rejected catalog revision")
				return
			}
			log.Info().Str("database", def.DatabaseID).Msg("Catalog reloaded")
		})
		if err != nil {
			return err
		}
	} else {
		log.Warn().Msg("No catalog file configured, serving the embedded catalog without watching")
	}

	if len(cfg.PolicyPaths) > 0 {
		loader := policy.NewLoader(log.Logger)
		err := loader.Watch(ctx, cfg.PolicyPaths, func(policies []policy.Policy) error {
			return pe.Replace(ctx, policies)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
