package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openfroyo/schemaprov/pkg/catalog"
	"github.com/openfroyo/schemaprov/pkg/remote"
	"github.com/openfroyo/schemaprov/pkg/runlog"
)

// seedNamespace scopes name-based seed document IDs.
var seedNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("schemaprov:seed"))

// SeedOption configures a SeedLoader.
type SeedOption func(*SeedLoader)

// WithSeedClock sets the clock used for "$now" values.
func WithSeedClock(now func() time.Time) SeedOption {
	return func(l *SeedLoader) {
		l.now = now
	}
}

// WithOutcomeHook receives the outcome of every document insert.
func WithOutcomeHook(hook func(StepOutcome)) SeedOption {
	return func(l *SeedLoader) {
		l.hook = hook
	}
}

// SeedLoader inserts sample documents once the schema exists. Failures are
// per document and never fail the run.
type SeedLoader struct {
	client     remote.Client
	databaseID string
	seeds      []catalog.SeedSet
	log        *runlog.Log
	now        func() time.Time
	hook       func(StepOutcome)
}

// NewSeedLoader creates a loader that writes into log.
func NewSeedLoader(client remote.Client, databaseID string, seeds []catalog.SeedSet, log *runlog.Log, opts ...SeedOption) *SeedLoader {
	l := &SeedLoader{
		client:     client,
		databaseID: databaseID,
		seeds:      seeds,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
		hook:       func(StepOutcome) {},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run inserts every seed document in catalog order. It returns false only
// when ctx is already done or the pass panics.
func (l *SeedLoader) Run(ctx context.Context) (ok bool) {
	if err := ctx.Err(); err != nil {
		l.log.Errorf("Default data skipped: %v", err)
		return false
	}

	defer func() {
		if rec := recover(); rec != nil {
			l.log.Errorf("Default data insertion aborted: %v", rec)
			ok = false
		}
	}()

	stamp := l.now().UTC().Format(time.RFC3339)
	inserted, existing, failed := 0, 0, 0

	for _, set := range l.seeds {
		for _, doc := range set.Documents {
			req := remote.DocumentRequest{
				DatabaseID:   l.databaseID,
				CollectionID: set.Collection,
				DocumentID:   documentID(set, doc),
				Data:         expandNow(doc, stamp),
			}
			name := describe(set, doc, req.DocumentID)

			start := l.now()
			err := l.client.CreateDocument(ctx, req)
			o := StepOutcome{
				Kind:     remote.KindDocument,
				Resource: req.Resource(),
				Duration: l.now().Sub(start),
			}

			switch remote.Classify(err) {
			case remote.OutcomeOK:
				o.Status = StepCreated
				inserted++
				l.log.Infof("Seed document inserted: %s", name)
			case remote.OutcomeConflict:
				o.Status = StepExists
				existing++
				l.log.Infof("Seed document already exists: %s", name)
			default:
				o.Status = StepFailed
				o.Err = newStepError(remote.KindDocument, req.Resource(), err)
				failed++
				l.log.Errorf("Seed document insertion failed: %s: %v", name, err)
			}
			l.hook(o)
		}
	}

	l.log.Infof("Default data: %d inserted, %d present, %d failed", inserted, existing, failed)
	return true
}

// documentID derives a stable ID from the label value when there is one.
func documentID(set catalog.SeedSet, doc map[string]interface{}) string {
	if set.Label != "" {
		if v, ok := doc[set.Label]; ok && v != nil {
			name := fmt.Sprintf("%s/%v", set.Collection, v)
			return uuid.NewSHA1(seedNamespace, []byte(name)).String()
		}
	}
	return uuid.NewString()
}

func describe(set catalog.SeedSet, doc map[string]interface{}, id string) string {
	if set.Label != "" {
		if v, ok := doc[set.Label]; ok && v != nil {
			return fmt.Sprintf("%s/%v", set.Collection, v)
		}
	}
	return set.Collection + "/" + id
}

// expandNow copies doc, replacing "$now" string values with stamp.
func expandNow(doc map[string]interface{}, stamp string) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		if s, ok := v.(string); ok && s == catalog.NowPlaceholder {
			out[k] = stamp
			continue
		}
		out[k] = v
	}
	return out
}
