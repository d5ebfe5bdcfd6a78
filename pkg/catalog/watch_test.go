package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(path, []byte(widgetsYAML), 0o600); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan Definition, 4)
	if _, err := Watch(ctx, path, zerolog.Nop(), func(def Definition) {
		changes <- def
	}); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	// An invalid revision is ignored.
	if err := os.WriteFile(path, []byte("database: {}\n"), 0o600); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}
	time.Sleep(2 * reloadDelay)

	updated := strings.Replace(widgetsYAML, "id: widgets_db", "id: gadgets_db", 1)
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}

	select {
	case def := <-changes:
		if def.DatabaseID != "gadgets_db" {
			t.Errorf("reloaded database id = %s, want gadgets_db", def.DatabaseID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
