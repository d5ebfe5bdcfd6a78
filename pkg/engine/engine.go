package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfroyo/schemaprov/pkg/catalog"
	"github.com/openfroyo/schemaprov/pkg/remote"
	"github.com/openfroyo/schemaprov/pkg/runlog"
	"github.com/openfroyo/schemaprov/pkg/telemetry"
)

// Timing holds the deliberate waits of a run.
type Timing struct {
	// SettleDelay is the fixed wait after a collection's attributes when the
	// client cannot report attribute status.
	SettleDelay time.Duration

	// SettleTimeout bounds polling for attribute availability.
	SettleTimeout time.Duration

	// PollInterval is the wait between attribute status polls.
	PollInterval time.Duration

	// CollectionPacing is the wait after each collection.
	CollectionPacing time.Duration
}

// DefaultTiming returns the waits used against a live remote.
func DefaultTiming() Timing {
	return Timing{
		SettleDelay:      time.Second,
		SettleTimeout:    30 * time.Second,
		PollInterval:     250 * time.Millisecond,
		CollectionPacing: 500 * time.Millisecond,
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger the run log is mirrored to.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithSleeper replaces the sleeper used for every wait.
func WithSleeper(s Sleeper) Option {
	return func(e *Engine) {
		e.sleeper = s
	}
}

// WithClock replaces the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithTiming replaces the run's waits.
func WithTiming(t Timing) Option {
	return func(e *Engine) {
		e.timing = t
	}
}

// WithMetrics records run and step metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTracer records a span per run and per step.
func WithTracer(t *telemetry.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithTrigger labels run metrics with what started the run, e.g. "cli".
func WithTrigger(trigger string) Option {
	return func(e *Engine) {
		e.trigger = trigger
	}
}

// WithRunIDs replaces the run ID generator.
func WithRunIDs(next func() string) Option {
	return func(e *Engine) {
		e.newRunID = next
	}
}

// Engine provisions one catalog against one remote. An Engine holds no
// per-run state; each Run builds its own log and outcomes. It takes no locks:
// callers that share a remote database must not run concurrently.
type Engine struct {
	def    catalog.Definition
	client remote.Client

	logger   zerolog.Logger
	sleeper  Sleeper
	now      func() time.Time
	timing   Timing
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
	trigger  string
	newRunID func() string
}

// New validates def and creates an engine for it. The engine keeps its own
// copy of def.
func New(def catalog.Definition, client remote.Client, opts ...Option) (*Engine, error) {
	if client == nil {
		return nil, fmt.Errorf("remote client is required")
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}

	e := &Engine{
		def:      def.Clone(),
		client:   client,
		logger:   zerolog.Nop(),
		sleeper:  RealSleeper{},
		now:      func() time.Time { return time.Now().UTC() },
		timing:   DefaultTiming(),
		trigger:  "api",
		newRunID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Definition returns a copy of the engine's catalog.
func (e *Engine) Definition() catalog.Definition {
	return e.def.Clone()
}

// Run provisions the catalog. Conflicts count as success; attribute, index
// and seed failures are logged and isolated; a database or collection
// failure aborts the run. Run never panics: anything unhandled becomes a
// failed result.
//
// forceRecreate is accepted and echoed but has no destructive effect.
func (e *Engine) Run(ctx context.Context, forceRecreate bool) (result *RunResult) {
	runID := e.newRunID()
	e.metrics.RecordRunStarted(e.trigger)
	ctx, span := e.tracer.StartRunSpan(ctx, runID, e.def.DatabaseID)

	lc := e.logger.With().
		Str("run_id", runID).
		Str("database_id", e.def.DatabaseID)
	if traceID := telemetry.TraceID(ctx); traceID != "" {
		lc = lc.Str("trace_id", traceID)
	}
	logger := lc.Logger()

	r := &run{
		engine: e,
		client: e.client,
		logger: logger,
		log:    runlog.New(runlog.WithClock(e.now), runlog.WithMirror(logger)),
	}

	result = &RunResult{
		RunID:         runID,
		DatabaseID:    e.def.DatabaseID,
		DatabaseName:  e.def.DatabaseName,
		ForceRecreate: forceRecreate,
		StartedAt:     e.now(),
	}

	defer func() {
		if rec := recover(); rec != nil {
			err := newUnhandledError(e.def.DatabaseID, rec)
			logger.Error().Str("stack", string(debug.Stack())).Msg("Recovered panic during run")
			r.log.Errorf("Setup failed: %v", err)
			r.outcomes = append(r.outcomes, StepOutcome{
				Kind:     KindRun,
				Resource: e.def.DatabaseID,
				Status:   StepFailed,
				Err:      err,
			})
		}

		r.finish(result)

		e.metrics.RecordRunCompleted(result.Status(), result.Duration())
		span.SetAttributes(telemetry.AttrRunStatus.String(result.Status()))
		if result.Error != nil {
			telemetry.RecordError(span, result.Error)
		} else {
			telemetry.RecordSuccess(span)
		}
		span.End()
	}()

	r.execute(ctx, forceRecreate)
	return result
}

// run is the private state of one Run call.
type run struct {
	engine *Engine
	client remote.Client
	logger zerolog.Logger
	log    *runlog.Log

	outcomes           []StepOutcome
	collectionsCreated int
	indexesCreated     int
	seeded             bool
}

func (r *run) execute(ctx context.Context, forceRecreate bool) {
	def := r.engine.def

	r.log.Infof("Starting setup for database %s (%s)", def.DatabaseName, def.DatabaseID)
	if forceRecreate {
		r.log.Info("Force recreate requested; no destructive action is taken, existing resources are kept")
	}

	if !r.ensureDatabase(ctx) {
		return
	}

	for _, c := range def.Collections {
		if !r.ensureCollection(ctx, c) {
			return
		}
		r.collectionsCreated++

		ready := r.createAttributes(ctx, c)
		r.settle(ctx, c, ready)
		r.createIndexes(ctx, c)

		_ = r.wait(ctx, r.engine.timing.CollectionPacing)
	}

	r.log.Infof("Collections ensured: %d", r.collectionsCreated)
	r.log.Infof("New indexes: %d", r.indexesCreated)

	loader := NewSeedLoader(r.client, def.DatabaseID, def.Seeds, r.log,
		WithSeedClock(r.engine.now),
		WithOutcomeHook(r.record),
	)
	r.seeded = loader.Run(ctx)

	r.log.Info("Setup completed successfully")
}

func (r *run) ensureDatabase(ctx context.Context) bool {
	def := r.engine.def
	req := remote.DatabaseRequest{DatabaseID: def.DatabaseID, Name: def.DatabaseName}

	o := r.step(ctx, remote.KindDatabase, req.Resource(), func(ctx context.Context) error {
		return r.client.CreateDatabase(ctx, req)
	})
	switch o.Status {
	case StepCreated:
		r.log.Infof("Database created: %s", def.DatabaseID)
	case StepExists:
		r.log.Infof("Database already exists: %s", def.DatabaseID)
	default:
		r.log.Errorf("Setup failed: %v", o.Err)
		return false
	}
	return true
}

func (r *run) ensureCollection(ctx context.Context, c catalog.Collection) bool {
	req := remote.CollectionRequest{
		DatabaseID:       r.engine.def.DatabaseID,
		CollectionID:     c.ID,
		Name:             c.Name,
		Permissions:      c.Permissions,
		DocumentSecurity: c.DocumentSecurity,
	}

	o := r.step(ctx, remote.KindCollection, req.Resource(), func(ctx context.Context) error {
		return r.client.CreateCollection(ctx, req)
	})
	switch o.Status {
	case StepCreated:
		r.log.Infof("Collection created: %s", c.ID)
	case StepExists:
		r.log.Infof("Collection already exists: %s", c.ID)
	default:
		r.log.Errorf("Setup failed: %v", o.Err)
		return false
	}
	return true
}

// createAttributes creates every attribute in order and returns the keys of
// the ones that now exist, split by whether this run created them.
func (r *run) createAttributes(ctx context.Context, c catalog.Collection) settleSet {
	var set settleSet
	for _, a := range c.Attributes {
		req := remote.AttributeRequest{
			DatabaseID:   r.engine.def.DatabaseID,
			CollectionID: c.ID,
			Attribute:    a,
		}
		o := r.step(ctx, remote.KindAttribute, req.Resource(), func(ctx context.Context) error {
			return r.client.CreateAttribute(ctx, req)
		})
		key := a.Meta().Key
		switch o.Status {
		case StepCreated:
			r.log.Infof("Attribute created: %s", req.Resource())
			set.created = append(set.created, key)
		case StepExists:
			r.log.Infof("Attribute already exists: %s", req.Resource())
			set.existing = append(set.existing, key)
		default:
			r.log.Errorf("Attribute creation failed: %s: %v", req.Resource(), o.Err)
		}
	}
	return set
}

func (r *run) createIndexes(ctx context.Context, c catalog.Collection) {
	for _, idx := range c.Indexes {
		req := remote.IndexRequest{
			DatabaseID:   r.engine.def.DatabaseID,
			CollectionID: c.ID,
			Index:        idx,
		}
		o := r.step(ctx, remote.KindIndex, req.Resource(), func(ctx context.Context) error {
			return r.client.CreateIndex(ctx, req)
		})
		switch o.Status {
		case StepCreated:
			r.indexesCreated++
			r.log.Infof("Index created: %s", req.Resource())
		case StepExists:
			r.log.Infof("Index already exists: %s", req.Resource())
		default:
			r.log.Errorf("Index creation failed: %s: %v", req.Resource(), o.Err)
		}
	}
}

// step performs one remote call, classifies it and records the outcome.
func (r *run) step(ctx context.Context, kind remote.Kind, resource string, call func(context.Context) error) StepOutcome {
	ctx, span := r.engine.tracer.StartStepSpan(ctx, string(kind), resource)
	defer span.End()

	start := r.engine.now()
	err := call(ctx)

	o := StepOutcome{
		Kind:     kind,
		Resource: resource,
		Duration: r.engine.now().Sub(start),
	}
	switch remote.Classify(err) {
	case remote.OutcomeOK:
		o.Status = StepCreated
	case remote.OutcomeConflict:
		o.Status = StepExists
	default:
		o.Status = StepFailed
		o.Err = newStepError(kind, resource, err)
	}

	span.SetAttributes(telemetry.AttrStepStatus.String(string(o.Status)))
	if o.Err != nil {
		telemetry.RecordError(span, o.Err)
	} else {
		telemetry.RecordSuccess(span)
	}

	r.record(o)
	return o
}

// record appends an outcome and counts it.
func (r *run) record(o StepOutcome) {
	r.outcomes = append(r.outcomes, o)
	r.engine.metrics.RecordStep(string(o.Kind), string(o.Status))
	if o.Err != nil {
		r.logger.Debug().Err(o.Err).Str("kind", string(o.Kind)).Str("resource", o.Resource).Msg("Step failed")
	}
}

// wait sleeps through the engine's sleeper; zero durations do not sleep.
func (r *run) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return r.engine.sleeper.Sleep(ctx, d)
}

// finish fills result from the run's state.
func (r *run) finish(result *RunResult) {
	result.Steps = r.outcomes
	result.Tally = NewTally(r.outcomes)
	result.CollectionsCreated = r.collectionsCreated
	result.IndexesCreated = r.indexesCreated
	result.DefaultDataInserted = r.seeded
	result.Error = Verdict(r.outcomes)
	result.Success = result.Error == nil
	result.Log = r.log.Entries()
	result.CompletedAt = r.engine.now()
}
