package remote_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/openfroyo/schemaprov/pkg/catalog"
	"github.com/openfroyo/schemaprov/pkg/remote"
	"github.com/openfroyo/schemaprov/pkg/remote/memory"
	"github.com/openfroyo/schemaprov/pkg/telemetry"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want remote.Outcome
	}{
		{"nil", nil, remote.OutcomeOK},
		{"conflict constructor", remote.NewConflict(remote.OpCreateIndex, "c.i"), remote.OutcomeConflict},
		{"bare sentinel", remote.ErrConflict, remote.OutcomeConflict},
		{"409 without sentinel", &remote.Error{Code: http.StatusConflict}, remote.OutcomeConflict},
		{"wrapped conflict", fmt.Errorf("step: %w", remote.NewConflict(remote.OpCreateDatabase, "db")), remote.OutcomeConflict},
		{"server error", remote.NewError(remote.OpCreateCollection, "c", 500, "boom"), remote.OutcomeFailed},
		{"plain error", errors.New("dial tcp: refused"), remote.OutcomeFailed},
		{"cancelled", context.Canceled, remote.OutcomeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := remote.Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := remote.NewError(remote.OpCreateAttribute, "widgets.name", 400, "invalid size")
	want := "create_attribute widgets.name: invalid size (code 400)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if remote.StatusCode(fmt.Errorf("wrap: %w", err)) != 400 {
		t.Error("StatusCode should see through wrapping")
	}
	if remote.StatusCode(errors.New("x")) != 0 {
		t.Error("StatusCode of a plain error should be 0")
	}
}

func TestRequestResources(t *testing.T) {
	attr := catalog.StringAttribute{AttributeMeta: catalog.AttributeMeta{Key: "name"}, Size: 10}
	if got := (remote.AttributeRequest{CollectionID: "widgets", Attribute: attr}).Resource(); got != "widgets.name" {
		t.Errorf("attribute resource = %s", got)
	}
	if got := (remote.IndexRequest{CollectionID: "widgets", Index: catalog.Index{Key: "idx"}}).Resource(); got != "widgets.idx" {
		t.Errorf("index resource = %s", got)
	}
	if got := (remote.DocumentRequest{CollectionID: "widgets", DocumentID: "d1"}).Resource(); got != "widgets/d1" {
		t.Errorf("document resource = %s", got)
	}
}

func TestAttributeStatusTerminal(t *testing.T) {
	for status, want := range map[remote.AttributeStatus]bool{
		remote.AttributeAvailable:  true,
		remote.AttributeFailed:     true,
		remote.AttributeStuck:      true,
		remote.AttributeProcessing: false,
		remote.AttributeDeleting:   false,
	} {
		if status.Terminal() != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, !want, want)
		}
	}
}

func TestInstrumentPassesResultsThrough(t *testing.T) {
	metrics, err := telemetry.NewMetrics(telemetry.DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	store := memory.New()
	client := remote.Instrument(store, metrics, nil, zerolog.Nop())

	if _, ok := client.(remote.AttributeStatusReader); !ok {
		t.Fatal("instrumented memory store lost AttributeStatusReader")
	}

	ctx := context.Background()
	req := remote.DatabaseRequest{DatabaseID: "db", Name: "DB"}
	if err := client.CreateDatabase(ctx, req); err != nil {
		t.Fatalf("first CreateDatabase: %v", err)
	}
	err = client.CreateDatabase(ctx, req)
	if !remote.IsConflict(err) {
		t.Fatalf("second CreateDatabase = %v, want conflict", err)
	}

	body := scrape(t, metrics)
	for _, want := range []string{
		`schemaprov_remote_calls_total{outcome="ok",resource="database"} 1`,
		`schemaprov_remote_calls_total{outcome="conflict",resource="database"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

type plainClient struct{ remote.Client }

func TestInstrumentWithoutStatusReader(t *testing.T) {
	client := remote.Instrument(plainClient{memory.New()}, nil, nil, zerolog.Nop())
	if _, ok := client.(remote.AttributeStatusReader); ok {
		t.Error("decorator must not invent AttributeStatusReader")
	}
}

func scrape(t *testing.T, m *telemetry.Metrics) string {
	t.Helper()
	n, err := testutil.GatherAndCount(m.Registry(), "schemaprov_remote_calls_total")
	if err != nil || n == 0 {
		t.Fatalf("gather failed: n=%d err=%v", n, err)
	}
	mfs, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	var out string
	for _, mf := range mfs {
		if mf.GetName() != "schemaprov_remote_calls_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			out += fmt.Sprintf("schemaprov_remote_calls_total{outcome=%q,resource=%q} %g\n",
				labels["outcome"], labels["resource"], metric.GetCounter().GetValue())
		}
	}
	return out
}
