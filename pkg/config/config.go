package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/openfroyo/schemaprov/pkg/engine"
	"github.com/openfroyo/schemaprov/pkg/remote/appwrite"
	"github.com/openfroyo/schemaprov/pkg/telemetry"
)

// DefaultEnvFile is read by Load when no files are named.
const DefaultEnvFile = ".env"

// Config is the service configuration read from the environment.
type Config struct {
	// Remote holds the remote API coordinates.
	Remote RemoteConfig

	// Environment is reported in run responses.
	Environment string `env:"SCHEMAPROV_ENVIRONMENT" envDefault:"development" validate:"required"`

	// CatalogPath is the catalog file; empty selects the embedded catalog.
	CatalogPath string `env:"SCHEMAPROV_CATALOG"`

	// Listen is the HTTP listen address for serve.
	Listen string `env:"SCHEMAPROV_LISTEN" envDefault:":8080" validate:"required"`

	// StorePath is the SQLite run history path; empty disables history.
	StorePath string `env:"SCHEMAPROV_STORE"`

	// PolicyPaths are extra .rego or .json policy files and directories.
	PolicyPaths []string `env:"SCHEMAPROV_POLICY_PATHS" envSeparator:","`

	// EnforcePolicy rejects runs whose catalog has blocking violations.
	EnforcePolicy bool `env:"SCHEMAPROV_POLICY_ENFORCE" envDefault:"false"`

	Timing  TimingConfig
	Logging LoggingConfig
	Tracing TracingConfig

	// Metrics enables the prometheus registry and /metrics.
	Metrics bool `env:"SCHEMAPROV_METRICS" envDefault:"true"`
}

// RemoteConfig locates the remote API. APIKey may be left empty when
// requests supply their own key.
type RemoteConfig struct {
	Endpoint  string        `env:"APPWRITE_FUNCTION_API_ENDPOINT" validate:"omitempty,url"`
	ProjectID string        `env:"APPWRITE_FUNCTION_PROJECT_ID"`
	APIKey    string        `env:"APPWRITE_FUNCTION_API_KEY"`
	Timeout   time.Duration `env:"SCHEMAPROV_HTTP_TIMEOUT" envDefault:"30s" validate:"gte=0"`
}

// TimingConfig holds the engine's waits.
type TimingConfig struct {
	SettleDelay      time.Duration `env:"SCHEMAPROV_SETTLE_DELAY" envDefault:"1s" validate:"gte=0"`
	SettleTimeout    time.Duration `env:"SCHEMAPROV_SETTLE_TIMEOUT" envDefault:"30s" validate:"gte=0"`
	PollInterval     time.Duration `env:"SCHEMAPROV_POLL_INTERVAL" envDefault:"250ms" validate:"gt=0"`
	CollectionPacing time.Duration `env:"SCHEMAPROV_COLLECTION_PACING" envDefault:"500ms" validate:"gte=0"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=trace debug info warn error fatal"`
	Format string `env:"LOG_FORMAT" envDefault:"console" validate:"oneof=console json"`
}

// TracingConfig selects the trace exporter.
type TracingConfig struct {
	Exporter string `env:"SCHEMAPROV_TRACE_EXPORTER" envDefault:"none" validate:"oneof=none stdout otlp otlphttp"`
	Endpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" validate:"required_if=Exporter otlp,required_if=Exporter otlphttp"`
}

var validate = validator.New()

// Load reads the named dotenv files, or .env when none are named, then
// parses and validates the process environment. Missing dotenv files are
// skipped. Variables already set win over dotenv values.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{DefaultEnvFile}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse builds a Config from environ alone.
func Parse(environ map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// EngineTiming converts the timing settings for the engine.
func (c *Config) EngineTiming() engine.Timing {
	return engine.Timing{
		SettleDelay:      c.Timing.SettleDelay,
		SettleTimeout:    c.Timing.SettleTimeout,
		PollInterval:     c.Timing.PollInterval,
		CollectionPacing: c.Timing.CollectionPacing,
	}
}

// AppwriteConfig returns the client configuration. A non-empty apiKey
// overrides the configured key.
func (c *Config) AppwriteConfig(apiKey string) appwrite.Config {
	if apiKey == "" {
		apiKey = c.Remote.APIKey
	}
	return appwrite.Config{
		Endpoint:  c.Remote.Endpoint,
		ProjectID: c.Remote.ProjectID,
		APIKey:    apiKey,
		Timeout:   c.Remote.Timeout,
	}
}

// Telemetry maps the settings onto a telemetry configuration.
func (c *Config) Telemetry(version string) *telemetry.Config {
	tc := telemetry.DefaultConfig()
	if version != "" {
		tc.ServiceVersion = version
	}
	tc.Environment = c.Environment
	tc.Logging.Level = c.Logging.Level
	tc.Logging.Format = c.Logging.Format
	tc.Metrics.Enabled = c.Metrics
	tc.Tracing.Exporter = c.Tracing.Exporter
	tc.Tracing.Endpoint = c.Tracing.Endpoint
	tc.Tracing.Enabled = c.Tracing.Exporter != "none"
	return tc
}
