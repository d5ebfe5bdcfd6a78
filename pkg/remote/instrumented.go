package remote

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/openfroyo/schemaprov/pkg/telemetry"
)

// Instrumented decorates a Client with call metrics, a span per call and
// debug logging. Results pass through unchanged.
type Instrumented struct {
	next    Client
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	logger  zerolog.Logger
}

// instrumentedReader is returned when the wrapped client can report
// attribute status, so the capability survives decoration.
type instrumentedReader struct {
	*Instrumented
	reader AttributeStatusReader
}

// Instrument wraps next. metrics and tracer may be nil.
func Instrument(next Client, metrics *telemetry.Metrics, tracer *telemetry.Tracer, logger zerolog.Logger) Client {
	inst := &Instrumented{
		next:    next,
		metrics: metrics,
		tracer:  tracer,
		logger:  logger.With().Str("component", "remote").Logger(),
	}
	if reader, ok := next.(AttributeStatusReader); ok {
		return &instrumentedReader{Instrumented: inst, reader: reader}
	}
	return inst
}

func (c *Instrumented) observe(ctx context.Context, kind Kind, op, resource string, call func(context.Context) error) error {
	ctx, span := c.tracer.StartRemoteSpan(ctx, op, resource)
	defer span.End()

	timer := telemetry.NewTimer()
	err := call(ctx)
	duration := timer.Duration()

	outcome := Classify(err)
	c.metrics.RecordRemoteCall(string(kind), string(outcome), duration)
	span.SetAttributes(telemetry.AttrRemoteOutcome.String(string(outcome)))

	switch outcome {
	case OutcomeFailed:
		span.SetAttributes(telemetry.AttrErrorCode.Int(StatusCode(err)))
		telemetry.RecordError(span, err)
	default:
		telemetry.RecordSuccess(span)
	}

	c.logger.Debug().
		Str("op", op).
		Str("resource", resource).
		Str("outcome", string(outcome)).
		Dur("duration", duration).
		Msg("Remote call")

	return err
}

// CreateDatabase implements Client.
func (c *Instrumented) CreateDatabase(ctx context.Context, req DatabaseRequest) error {
	return c.observe(ctx, KindDatabase, OpCreateDatabase, req.Resource(), func(ctx context.Context) error {
		return c.next.CreateDatabase(ctx, req)
	})
}

// CreateCollection implements Client.
func (c *Instrumented) CreateCollection(ctx context.Context, req CollectionRequest) error {
	return c.observe(ctx, KindCollection, OpCreateCollection, req.Resource(), func(ctx context.Context) error {
		return c.next.CreateCollection(ctx, req)
	})
}

// CreateAttribute implements Client.
func (c *Instrumented) CreateAttribute(ctx context.Context, req AttributeRequest) error {
	return c.observe(ctx, KindAttribute, OpCreateAttribute, req.Resource(), func(ctx context.Context) error {
		return c.next.CreateAttribute(ctx, req)
	})
}

// CreateIndex implements Client.
func (c *Instrumented) CreateIndex(ctx context.Context, req IndexRequest) error {
	return c.observe(ctx, KindIndex, OpCreateIndex, req.Resource(), func(ctx context.Context) error {
		return c.next.CreateIndex(ctx, req)
	})
}

// CreateDocument implements Client.
func (c *Instrumented) CreateDocument(ctx context.Context, req DocumentRequest) error {
	return c.observe(ctx, KindDocument, OpCreateDocument, req.Resource(), func(ctx context.Context) error {
		return c.next.CreateDocument(ctx, req)
	})
}

// AttributeStatus implements AttributeStatusReader.
func (c *instrumentedReader) AttributeStatus(ctx context.Context, databaseID, collectionID, key string) (AttributeStatus, error) {
	ctx, span := c.tracer.StartRemoteSpan(ctx, OpAttributeStatus, collectionID+"."+key)
	defer span.End()

	status, err := c.reader.AttributeStatus(ctx, databaseID, collectionID, key)
	if err != nil {
		telemetry.RecordError(span, err)
		return status, err
	}
	span.SetAttributes(telemetry.AttrStepStatus.String(string(status)))
	return status, nil
}
