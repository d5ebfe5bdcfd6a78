package engine

import (
	"context"
	"time"

	"github.com/openfroyo/schemaprov/pkg/catalog"
	"github.com/openfroyo/schemaprov/pkg/remote"
)

// Sleeper waits for a duration or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep calls f.
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// RealSleeper waits on a timer.
type RealSleeper struct{}

// Sleep implements Sleeper.
func (RealSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// settleSet holds the attribute keys of a collection that exist after the
// attribute phase.
type settleSet struct {
	created  []string
	existing []string
}

func (s settleSet) all() []string {
	keys := make([]string, 0, len(s.created)+len(s.existing))
	keys = append(keys, s.created...)
	return append(keys, s.existing...)
}

// settle waits for a collection's attributes before its indexes are created.
// With a status-reporting client it polls until every attribute is available
// or the settle timeout passes; otherwise it waits a fixed delay when the run
// created at least one attribute. Settle records no outcomes: an attribute
// that never becomes available shows up as a failed index.
func (r *run) settle(ctx context.Context, c catalog.Collection, set settleSet) {
	timing := r.engine.timing

	reader, ok := r.client.(remote.AttributeStatusReader)
	if !ok || timing.SettleTimeout <= 0 {
		if len(set.created) > 0 {
			_ = r.wait(ctx, timing.SettleDelay)
		}
		return
	}

	pending := set.all()
	if len(pending) == 0 {
		return
	}

	// Waited time is accumulated rather than read from the clock so an
	// injected sleeper that returns immediately still terminates.
	var waited time.Duration
	for {
		pending = r.pollAttributes(ctx, reader, c.ID, pending)
		if len(pending) == 0 {
			r.logger.Debug().Str("collection", c.ID).Dur("waited", waited).Msg("Attributes available")
			return
		}
		if waited >= timing.SettleTimeout {
			r.log.Errorf("Attributes not available after %s: %s %v", timing.SettleTimeout, c.ID, pending)
			return
		}
		if err := r.wait(ctx, timing.PollInterval); err != nil {
			return
		}
		if timing.PollInterval > 0 {
			waited += timing.PollInterval
		} else {
			waited = timing.SettleTimeout
		}
	}
}

// pollAttributes reads each pending key once and returns the keys still
// processing.
func (r *run) pollAttributes(ctx context.Context, reader remote.AttributeStatusReader, collectionID string, keys []string) []string {
	var still []string
	for _, key := range keys {
		resource := collectionID + "." + key
		status, err := reader.AttributeStatus(ctx, r.engine.def.DatabaseID, collectionID, key)
		if err != nil {
			r.log.Errorf("Attribute status unavailable: %s: %v", resource, err)
			continue
		}
		switch status {
		case remote.AttributeAvailable:
		case remote.AttributeStuck, remote.AttributeFailed:
			r.log.Errorf("Attribute not available: %s (%s)", resource, status)
		default:
			still = append(still, key)
		}
	}
	return still
}
