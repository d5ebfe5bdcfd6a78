package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(map[string]string{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Environment != "development" || cfg.Listen != ":8080" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Remote.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v", cfg.Remote.Timeout)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "console" {
		t.Errorf("unexpected logging: %+v", cfg.Logging)
	}
	if !cfg.Metrics || cfg.Tracing.Exporter != "none" || cfg.EnforcePolicy {
		t.Errorf("unexpected toggles: %+v", cfg)
	}

	timing := cfg.EngineTiming()
	if timing.SettleDelay != time.Second || timing.SettleTimeout != 30*time.Second ||
		timing.PollInterval != 250*time.Millisecond || timing.CollectionPacing != 500*time.Millisecond {
		t.Errorf("unexpected timing: %+v", timing)
	}
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse(map[string]string{
		"APPWRITE_FUNCTION_API_ENDPOINT": "https://cloud.example.com/v1",
		"APPWRITE_FUNCTION_PROJECT_ID":   "proj",
		"APPWRITE_FUNCTION_API_KEY":      "env-key",
		"SCHEMAPROV_CATALOG":             "catalog.yaml",
		"SCHEMAPROV_STORE":               "history.db",
		"SCHEMAPROV_POLICY_PATHS":        "policies,extra.rego",
		"SCHEMAPROV_SETTLE_DELAY":        "0s",
		"SCHEMAPROV_COLLECTION_PACING":   "2s",
		"SCHEMAPROV_TRACE_EXPORTER":      "otlp",
		"OTEL_EXPORTER_OTLP_ENDPOINT":    "localhost:4317",
		"LOG_LEVEL":                      "debug",
		"LOG_FORMAT":                     "json",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if !reflect.DeepEqual(cfg.PolicyPaths, []string{"policies", "extra.rego"}) {
		t.Errorf("PolicyPaths = %v", cfg.PolicyPaths)
	}
	if cfg.Timing.SettleDelay != 0 || cfg.Timing.CollectionPacing != 2*time.Second {
		t.Errorf("unexpected timing: %+v", cfg.Timing)
	}

	aw := cfg.AppwriteConfig("")
	if aw.Endpoint != "https://cloud.example.com/v1" || aw.ProjectID != "proj" || aw.APIKey != "env-key" {
		t.Errorf("unexpected appwrite config: %+v", aw)
	}
	if got := cfg.AppwriteConfig("header-key").APIKey; got != "header-key" {
		t.Errorf("header key not preferred: %s", got)
	}

	tc := cfg.Telemetry("1.2.3")
	if err := tc.Validate(); err != nil {
		t.Fatalf("telemetry config invalid: %v", err)
	}
	if !tc.Tracing.Enabled || tc.Tracing.Endpoint != "localhost:4317" || tc.ServiceVersion != "1.2.3" {
		t.Errorf("unexpected telemetry config: %+v", tc.Tracing)
	}
	if tc.Logging.Format != "json" || tc.Logging.Level != "debug" {
		t.Errorf("unexpected telemetry logging: %+v", tc.Logging)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
	}{
		{"bad endpoint", map[string]string{"APPWRITE_FUNCTION_API_ENDPOINT": "not a url"}},
		{"bad duration", map[string]string{"SCHEMAPROV_SETTLE_DELAY": "soon"}},
		{"negative timeout", map[string]string{"SCHEMAPROV_SETTLE_TIMEOUT": "-1s"}},
		{"zero poll interval", map[string]string{"SCHEMAPROV_POLL_INTERVAL": "0s"}},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}},
		{"bad log format", map[string]string{"LOG_FORMAT": "xml"}},
		{"bad exporter", map[string]string{"SCHEMAPROV_TRACE_EXPORTER": "jaeger"}},
		{"otlp without endpoint", map[string]string{"SCHEMAPROV_TRACE_EXPORTER": "otlp"}},
		{"otlphttp without endpoint", map[string]string{"SCHEMAPROV_TRACE_EXPORTER": "otlphttp"}},
		{"bad bool", map[string]string{"SCHEMAPROV_METRICS": "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.environ); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadReadsDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "APPWRITE_FUNCTION_PROJECT_ID=from-file\nSCHEMAPROV_LISTEN=:9090\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	// Set before loading so the process value wins over the file.
	t.Setenv("SCHEMAPROV_LISTEN", ":7070")
	// Registered so the value godotenv sets is cleared after the test.
	t.Setenv("APPWRITE_FUNCTION_PROJECT_ID", "")
	if err := os.Unsetenv("APPWRITE_FUNCTION_PROJECT_ID"); err != nil {
		t.Fatalf("unsetenv: %v", err)
	}

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Remote.ProjectID != "from-file" {
		t.Errorf("ProjectID = %q, want from-file", cfg.Remote.ProjectID)
	}
	if cfg.Listen != ":7070" {
		t.Errorf("Listen = %q, want process value", cfg.Listen)
	}
}

func TestLoadRejectsMalformedDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.env")
	if err := os.WriteFile(path, []byte("KEY=\"unterminated\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed dotenv")
	}
}
