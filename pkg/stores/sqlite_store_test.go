package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/openfroyo/schemaprov/pkg/catalog"
	"github.com/openfroyo/schemaprov/pkg/engine"
	"github.com/openfroyo/schemaprov/pkg/remote"
	"github.com/openfroyo/schemaprov/pkg/remote/memory"
	"github.com/openfroyo/schemaprov/pkg/runlog"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRecord(id string, started time.Time) Record {
	errMsg := "[recoverable] index creation failed (resource=widgets.idx_name): boom"
	return Record{
		Run: Run{
			ID:                 id,
			DatabaseID:         "test_db",
			Trigger:            "cli",
			Status:             RunStatusSucceeded,
			CollectionsCreated: 1,
			IndexesCreated:     0,
			Tally: engine.Tally{
				remote.KindCollection: {Created: 1},
				remote.KindIndex:      {Failed: 1},
			},
			StartedAt:   started,
			CompletedAt: started.Add(1500 * time.Millisecond),
			Steps: []Step{
				{Seq: 0, Kind: "database", Resource: "test_db", Status: "exists"},
				{Seq: 1, Kind: "collection", Resource: "widgets", Status: "created", Duration: 20 * time.Millisecond},
				{Seq: 2, Kind: "index", Resource: "widgets.idx_name", Status: "failed", Error: &errMsg},
			},
		},
		Log: []runlog.Entry{
			{Timestamp: started, Level: runlog.LevelInfo, Message: "Database already exists: test_db"},
			{Timestamp: started.Add(time.Millisecond), Level: runlog.LevelInfo, Message: "Collection created: widgets"},
			{Timestamp: started.Add(2 * time.Millisecond), Level: runlog.LevelError, Message: "Index creation failed: widgets.idx_name: boom"},
		},
	}
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("expected health check to fail before Init")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, table := range []string{"runs", "run_steps", "run_log"} {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	if err := store.Migrate(ctx); err != nil {
		t.Errorf("second migrate should be a no-op: %v", err)
	}
}

func TestSaveAndGetRun(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	started := time.Date(2024, 5, 1, 10, 0, 0, 123456789, time.UTC)

	rec := sampleRecord("run-001", started)
	if err := store.SaveRun(ctx, rec); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := store.GetRun(ctx, "run-001")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.DatabaseID != "test_db" || got.Trigger != "cli" || got.Status != RunStatusSucceeded {
		t.Errorf("unexpected run: %+v", got)
	}
	if !got.StartedAt.Equal(started) || got.CompletedAt.Sub(got.StartedAt) != 1500*time.Millisecond {
		t.Errorf("times not preserved: %v / %v", got.StartedAt, got.CompletedAt)
	}
	if got.Tally[remote.KindIndex].Failed != 1 || got.Tally[remote.KindCollection].Created != 1 {
		t.Errorf("tally not preserved: %+v", got.Tally)
	}
	if len(got.Steps) != 3 {
		t.Fatalf("got %d steps, want 3", len(got.Steps))
	}
	if got.Steps[2].Error == nil || *got.Steps[2].Error != *rec.Run.Steps[2].Error {
		t.Errorf("step error not preserved: %+v", got.Steps[2])
	}
	if got.Steps[1].Duration != 20*time.Millisecond {
		t.Errorf("step duration = %v", got.Steps[1].Duration)
	}
	if got.Error != nil {
		t.Errorf("unexpected run error: %v", *got.Error)
	}

	if err := store.SaveRun(ctx, rec); err == nil {
		t.Error("expected duplicate run ID to fail")
	}
}

func TestGetRunLog(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	if err := store.SaveRun(ctx, sampleRecord("run-log", started)); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	entries, err := store.GetRunLog(ctx, "run-log")
	if err != nil {
		t.Fatalf("GetRunLog: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[2].Level != runlog.LevelError || entries[2].Seq != 2 {
		t.Errorf("unexpected entry: %+v", entries[2])
	}
	if entries[1].Message != "Collection created: widgets" {
		t.Errorf("unexpected message: %q", entries[1].Message)
	}

	if _, err := store.GetRunLog(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		if err := store.SaveRun(ctx, sampleRecord(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("SaveRun %s: %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-c" || runs[1].ID != "run-b" {
		t.Errorf("unexpected page: %v", ids(runs))
	}
	if len(runs[0].Steps) != 0 {
		t.Error("ListRuns should not load steps")
	}

	runs, err = store.ListRuns(ctx, 2, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-a" {
		t.Errorf("unexpected second page: %v", ids(runs))
	}
}

func TestDeleteRunCascades(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.SaveRun(ctx, sampleRecord("run-del", time.Now())); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := store.DeleteRun(ctx, "run-del"); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}

	if _, err := store.GetRun(ctx, "run-del"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	var n int
	if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM run_log WHERE run_id = ?", "run-del").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("%d log entries left after delete", n)
	}
	if err := store.DeleteRun(ctx, "run-del"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestRecordFromEngineResult(t *testing.T) {
	def := catalog.Definition{
		DatabaseID:   "test_db",
		DatabaseName: "Test DB",
		Collections: []catalog.Collection{{
			ID:   "widgets",
			Name: "Widgets",
			Attributes: []catalog.Attribute{
				catalog.StringAttribute{AttributeMeta: catalog.AttributeMeta{Key: "name"}, Size: 64},
			},
		}},
	}
	client := memory.New()
	client.Fail(remote.OpCreateAttribute, "widgets.name", remote.NewError(remote.OpCreateAttribute, "widgets.name", 500, "boom"))

	noWait := engine.SleeperFunc(func(ctx context.Context, _ time.Duration) error { return nil })
	e, err := engine.New(def, client, engine.WithSleeper(noWait))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	result := e.Run(context.Background(), true)

	store := setupTestStore(t)
	ctx := context.Background()
	if err := store.SaveRun(ctx, NewRecord(result, "api")); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := store.GetRun(ctx, result.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if !got.ForceRecreate || got.Trigger != "api" || got.Status != RunStatusSucceeded {
		t.Errorf("unexpected run: %+v", got)
	}
	if len(got.Steps) != len(result.Steps) {
		t.Fatalf("got %d steps, want %d", len(got.Steps), len(result.Steps))
	}
	if got.Steps[2].Status != "failed" || got.Steps[2].Error == nil {
		t.Errorf("failed attribute not recorded: %+v", got.Steps[2])
	}

	entries, err := store.GetRunLog(ctx, result.RunID)
	if err != nil {
		t.Fatalf("GetRunLog: %v", err)
	}
	if len(entries) != len(result.Log) {
		t.Errorf("got %d log entries, want %d", len(entries), len(result.Log))
	}
}

func TestFileStoreWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := NewSQLiteStore(Config{Path: path})
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	var mode string
	if err := store.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func ids(runs []*Run) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.ID
	}
	return out
}
