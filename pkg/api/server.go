package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/schemaprov/pkg/catalog"
	"github.com/openfroyo/schemaprov/pkg/engine"
	"github.com/openfroyo/schemaprov/pkg/policy"
	"github.com/openfroyo/schemaprov/pkg/remote"
	"github.com/openfroyo/schemaprov/pkg/runlog"
	"github.com/openfroyo/schemaprov/pkg/stores"
	"github.com/openfroyo/schemaprov/pkg/telemetry"
)

// APIKeyHeader carries a per-request API key for the remote.
const APIKeyHeader = "x-appwrite-key"

// maxBodyBytes bounds the setup request body.
const maxBodyBytes = 1 << 20

// Trigger labels runs started over HTTP.
const Trigger = "api"

// ClientFactory builds a remote client for one run. apiKey is the request's
// key, empty when the request carried none.
type ClientFactory func(ctx context.Context, apiKey string) (remote.Client, error)

// Option configures a Server.
type Option func(*Server)

// WithStore records every run in store.
func WithStore(store stores.Store) Option {
	return func(s *Server) { s.store = store }
}

// WithPolicy evaluates the catalog before each run. When enforce is set a
// catalog with blocking violations is rejected.
func WithPolicy(pe *policy.Engine, enforce bool) Option {
	return func(s *Server) {
		s.policy = pe
		s.enforce = enforce
	}
}

// WithEnvironment sets the environment reported in responses.
func WithEnvironment(env string) Option {
	return func(s *Server) { s.environment = env }
}

// WithEngineOptions passes options to every engine the server builds.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(s *Server) { s.engineOpts = append(s.engineOpts, opts...) }
}

// WithMetrics serves m on /metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the request logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger.With().Str("component", "api").Logger() }
}

// WithClock replaces time.Now for response timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// Server exposes provisioning runs and run history over HTTP. At most one
// run is in flight at a time.
type Server struct {
	catalog     atomic.Pointer[catalog.Definition]
	factory     ClientFactory
	store       stores.Store
	policy      *policy.Engine
	enforce     bool
	environment string
	engineOpts  []engine.Option
	metrics     *telemetry.Metrics
	logger      zerolog.Logger
	now         func() time.Time

	running sync.Mutex
}

// NewServer creates a server that provisions def with clients from factory.
func NewServer(def catalog.Definition, factory ClientFactory, opts ...Option) (*Server, error) {
	if factory == nil {
		return nil, errors.New("client factory is required")
	}
	s := &Server{
		factory:     factory,
		environment: "development",
		logger:      zerolog.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.SetCatalog(def); err != nil {
		return nil, err
	}
	return s, nil
}

// SetCatalog replaces the catalog used by later runs. A run in progress
// keeps the catalog it started with.
func (s *Server) SetCatalog(def catalog.Definition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}
	c := def.Clone()
	s.catalog.Store(&c)
	s.logger.Info().
		Str("database", c.DatabaseID).
		Int("collections", len(c.Collections)).
		Msg("Catalog installed")
	return nil
}

// Catalog returns a copy of the current catalog.
func (s *Server) Catalog() catalog.Definition {
	return s.catalog.Load().Clone()
}

// Handler returns the HTTP routes wrapped in recovery and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", s.handleSetup)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /plan", s.handlePlan)
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /runs/{id}/log", s.handleRunLog)
	return s.recovery(s.requestLogging(mux))
}

// ListenAndServe serves Handler on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.logger.Info().Msg("Shutting down HTTP server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		return nil
	}
}

// SetupRequest is the optional POST body.
type SetupRequest struct {
	ForceRecreate bool `json:"force_recreate"`
}

// SetupResponse is returned when a run succeeds.
type SetupResponse struct {
	Success             bool           `json:"success"`
	Message             string         `json:"message"`
	Environment         string         `json:"environment"`
	RunID               string         `json:"run_id"`
	DatabaseID          string         `json:"database_id"`
	DatabaseName        string         `json:"database_name"`
	ForceRecreate       bool           `json:"force_recreate"`
	CollectionsCreated  int            `json:"collections_created"`
	IndexesCreated      int            `json:"indexes_created"`
	DefaultDataInserted bool           `json:"default_data_inserted"`
	Tally               engine.Tally   `json:"tally"`
	Policy              *policy.Result `json:"policy,omitempty"`
	DurationSeconds     float64        `json:"duration_seconds"`
	SetupLog            []runlog.Entry `json:"setup_log"`
	Timestamp           string         `json:"timestamp"`
}

// FailureResponse is returned for rejected requests and failed runs.
type FailureResponse struct {
	Success         bool           `json:"success"`
	Error           string         `json:"error"`
	Details         string         `json:"details,omitempty"`
	RunID           string         `json:"run_id,omitempty"`
	Tally           engine.Tally   `json:"tally,omitempty"`
	Policy          *policy.Result `json:"policy,omitempty"`
	SetupLog        []runlog.Entry `json:"setup_log,omitempty"`
	DurationSeconds *float64       `json:"duration_seconds,omitempty"`
	Timestamp       string         `json:"timestamp"`
}

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	start := s.now()

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, FailureResponse{
			Error:     "Only POST or GET methods allowed",
			Timestamp: timestamp(start),
		})
		return
	}

	if !s.running.TryLock() {
		writeJSON(w, http.StatusConflict, FailureResponse{
			Error:     "run already in progress",
			Timestamp: timestamp(s.now()),
		})
		return
	}
	defer s.running.Unlock()

	req := s.decodeSetupRequest(r)
	def := s.Catalog()

	// The run outlives a disconnecting caller.
	ctx := context.WithoutCancel(r.Context())

	var verdict *policy.Result
	if s.policy != nil {
		res, err := s.policy.Evaluate(ctx, def)
		if err != nil {
			s.fail(w, start, fmt.Sprintf("Function execution failed: %v", err))
			return
		}
		verdict = res
		if s.enforce && !res.Allowed {
			end := s.now()
			d := end.Sub(start).Seconds()
			writeJSON(w, http.StatusUnprocessableEntity, FailureResponse{
				Error:           "Catalog rejected by policy",
				Details:         violationSummary(res.Violations),
				Policy:          res,
				DurationSeconds: &d,
				Timestamp:       timestamp(end),
			})
			return
		}
	}

	client, err := s.factory(ctx, r.Header.Get(APIKeyHeader))
	if err != nil {
		s.fail(w, start, fmt.Sprintf("Function execution failed: %v", err))
		return
	}

	opts := append([]engine.Option{engine.WithLogger(s.logger), engine.WithTrigger(Trigger)}, s.engineOpts...)
	eng, err := engine.New(def, client, opts...)
	if err != nil {
		s.fail(w, start, fmt.Sprintf("Function execution failed: %v", err))
		return
	}

	result := eng.Run(ctx, req.ForceRecreate)
	s.record(ctx, result)

	end := s.now()
	s.logger.Info().
		Str("run_id", result.RunID).
		Msgf("Setup completed in %.2f seconds", end.Sub(start).Seconds())

	if !result.Success {
		resp := NewFailureResponse(result, end.Sub(start), end)
		resp.Policy = verdict
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}

	resp := NewSetupResponse(result, s.environment, end.Sub(start), end)
	resp.Policy = verdict
	writeJSON(w, http.StatusOK, resp)
}

// NewSetupResponse builds the success body for result.
func NewSetupResponse(result *engine.RunResult, environment string, duration time.Duration, end time.Time) SetupResponse {
	return SetupResponse{
		Success:             true,
		Message:             "Database setup completed successfully",
		Environment:         environment,
		RunID:               result.RunID,
		DatabaseID:          result.DatabaseID,
		DatabaseName:        result.DatabaseName,
		ForceRecreate:       result.ForceRecreate,
		CollectionsCreated:  result.CollectionsCreated,
		IndexesCreated:      result.IndexesCreated,
		DefaultDataInserted: result.DefaultDataInserted,
		Tally:               result.Tally,
		DurationSeconds:     duration.Seconds(),
		SetupLog:            result.Log,
		Timestamp:           timestamp(end),
	}
}

// NewFailureResponse builds the failure body for a failed result.
func NewFailureResponse(result *engine.RunResult, duration time.Duration, end time.Time) FailureResponse {
	details := "Unknown error"
	if result.Error != nil {
		details = result.Error.Error()
	}
	d := duration.Seconds()
	return FailureResponse{
		Error:           "Database setup failed",
		Details:         details,
		RunID:           result.RunID,
		Tally:           result.Tally,
		SetupLog:        result.Log,
		DurationSeconds: &d,
		Timestamp:       timestamp(end),
	}
}

// decodeSetupRequest reads the optional POST body. A missing or malformed
// body means defaults.
func (s *Server) decodeSetupRequest(r *http.Request) SetupRequest {
	var req SetupRequest
	if r.Method != http.MethodPost || r.Body == nil {
		return req
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || len(strings.TrimSpace(string(body))) == 0 {
		return req
	}
	if err := json.Unmarshal(body, &req); err != nil {
		s.logger.Debug().Err(err).Msg("Ignoring malformed request body")
		return SetupRequest{}
	}
	return req
}

func (s *Server) fail(w http.ResponseWriter, start time.Time, msg string) {
	end := s.now()
	d := end.Sub(start).Seconds()
	s.logger.Error().Msg(msg)
	writeJSON(w, http.StatusInternalServerError, FailureResponse{
		Error:           msg,
		DurationSeconds: &d,
		Timestamp:       timestamp(end),
	})
}

// record saves the run when a store is configured. Store failures are
// logged and never change the response.
func (s *Server) record(ctx context.Context, result *engine.RunResult) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveRun(ctx, stores.NewRecord(result, Trigger)); err != nil {
		s.logger.Warn().Err(err).Str("run_id", result.RunID).Msg("Failed to record run")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	if s.store != nil {
		if err := s.store.HealthCheck(r.Context()); err != nil {
			status["status"] = "degraded"
			status["store"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, status)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	plan := engine.BuildPlan(s.Catalog())
	if r.URL.Query().Get("format") == "dot" {
		w.Header().Set("Content-Type", "text/vnd.graphviz")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, plan.ToDOT())
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := s.store.ListRuns(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list runs: %v", err))
		return
	}
	if runs == nil {
		runs = []*stores.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	run, err := s.store.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRunLog(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	entries, err := s.store.GetRunLog(r.Context(), r.PathValue("id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "run history is disabled")
		return false
	}
	return true
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, stores.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return n, nil
}

func violationSummary(vs []policy.Violation) string {
	msgs := make([]string, 0, len(vs))
	for _, v := range vs {
		msgs = append(msgs, fmt.Sprintf("%s: %s", v.Policy, v.Message))
	}
	return strings.Join(msgs, "; ")
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
