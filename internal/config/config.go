package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/guillermoBallester/dqmon/internal/core/domain"
	"github.com/guillermoBallester/dqmon/internal/report"
)

const (
	BackendTrino    = "trino"
	BackendPostgres = "postgres"

	TransportScheduler = "scheduler"
	TransportMCP       = "mcp"
)

type Config struct {
	// Query backend.
	Backend      string // "trino" (default) or "postgres"
	TrinoScheme  string
	TrinoHost    string
	TrinoPort    int
	HTTPTimeout  time.Duration // per protocol request
	DatabaseURL  string        // required when Backend is postgres
	PoolMaxConns int32

	// Session identity sent with every check query.
	Catalog string
	Schema  string
	User    string
	Source  string

	// Poll budget.
	MaxPolls  int
	PollDelay time.Duration

	// Scheduling.
	ScanInterval         time.Duration
	ScanCron             string // optional; replaces ScanInterval
	StartupRetryInterval time.Duration
	StartupMaxAttempts   int // 0 waits forever

	// Checks.
	CatalogFile string // optional YAML catalog; built-in catalog when empty
	ValidateSQL bool   // lenient on the trino backend, see domain.NewLenientQueryValidator

	// Output.
	ReportFormat report.Format
	LogLevel     slog.Level
	AuditLog     string // path to NDJSON audit log file

	// Transport.
	Transport  string // "scheduler" (default) or "mcp"
	StatusAddr string // optional listen address for /healthz and the latest scan

	// Observability.
	OTelEnabled bool

	// CLI-only.
	Once        bool
	ExplainOnly bool // plan every check query and exit
}

// Overrides holds CLI flag values that override environment variables.
// Pointer fields distinguish "not set" from zero values.
type Overrides struct {
	Backend      *string
	DatabaseURL  *string
	CatalogFile  *string
	LogLevel     *string
	MaxPolls     *int
	PollDelay    *time.Duration
	ScanInterval *time.Duration
	ScanCron     *string
	Transport    *string
	AuditLog     *string
	ReportFormat *string
	StatusAddr   *string
	OTelEnabled  bool
	Once         bool
	ExplainOnly  bool
}

// Load builds a Config from environment variables, then applies CLI overrides,
// then validates the result.
func Load(overrides Overrides) (*Config, error) {
	cfg := defaults()

	if err := loadEnvVars(cfg); err != nil {
		return nil, err
	}
	if err := applyOverrides(cfg, overrides); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	budget := domain.DefaultPollBudget()
	return &Config{
		Backend:              BackendTrino,
		TrinoScheme:          "http",
		TrinoHost:            "trino",
		TrinoPort:            8080,
		HTTPTimeout:          30 * time.Second,
		PoolMaxConns:         2,
		Catalog:              "iceberg",
		Schema:               "demo",
		User:                 "soda",
		Source:               "dqmon",
		MaxPolls:             budget.MaxPolls,
		PollDelay:            budget.Delay,
		ScanInterval:         300 * time.Second,
		StartupRetryInterval: 10 * time.Second,
		ValidateSQL:          true,
		ReportFormat:         report.FormatText,
		LogLevel:             slog.LevelInfo,
		Transport:            TransportScheduler,
	}
}

// loadEnvVars reads all supported environment variables into cfg.
func loadEnvVars(cfg *Config) error {
	setString(&cfg.Backend, "DQ_BACKEND")
	setString(&cfg.TrinoScheme, "TRINO_SCHEME")
	setString(&cfg.TrinoHost, "TRINO_HOST")
	setString(&cfg.Catalog, "TRINO_CATALOG")
	setString(&cfg.Schema, "TRINO_SCHEMA")
	setString(&cfg.User, "TRINO_USER")
	setString(&cfg.Source, "TRINO_SOURCE")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.ScanCron, "SCAN_CRON")
	setString(&cfg.CatalogFile, "CATALOG_FILE")
	setString(&cfg.AuditLog, "AUDIT_LOG")
	setString(&cfg.Transport, "TRANSPORT")
	setString(&cfg.StatusAddr, "STATUS_ADDR")

	if v := os.Getenv("TRINO_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 65535 {
			return fmt.Errorf("invalid TRINO_PORT value %q: must be between 1 and 65535", v)
		}
		cfg.TrinoPort = n
	}

	if v := os.Getenv("MAX_POLLS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid MAX_POLLS value %q: must be a positive integer", v)
		}
		cfg.MaxPolls = n
	}

	if v := os.Getenv("STARTUP_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid STARTUP_MAX_ATTEMPTS value %q: must be a non-negative integer", v)
		}
		cfg.StartupMaxAttempts = n
	}

	if v := os.Getenv("POOL_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid POOL_MAX_CONNS value %q: must be a positive integer", v)
		}
		cfg.PoolMaxConns = int32(n)
	}

	for _, d := range []struct {
		name string
		dst  *time.Duration
	}{
		{"POLL_DELAY", &cfg.PollDelay},
		{"HTTP_TIMEOUT", &cfg.HTTPTimeout},
		{"SCAN_INTERVAL", &cfg.ScanInterval},
		{"STARTUP_RETRY_INTERVAL", &cfg.StartupRetryInterval},
	} {
		if v := os.Getenv(d.name); v != "" {
			parsed, err := parseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s value %q: %w", d.name, v, err)
			}
			*d.dst = parsed
		}
	}

	for _, b := range []struct {
		name string
		dst  *bool
	}{
		{"VALIDATE_SQL", &cfg.ValidateSQL},
		{"OTEL_ENABLED", &cfg.OTelEnabled},
	} {
		if v := os.Getenv(b.name); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s value %q: %w", b.name, v, err)
			}
			*b.dst = parsed
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}

	if v := os.Getenv("REPORT_FORMAT"); v != "" {
		f, err := report.ParseFormat(v)
		if err != nil {
			return fmt.Errorf("invalid REPORT_FORMAT value: %w", err)
		}
		cfg.ReportFormat = f
	}

	return nil
}

func setString(dst *string, name string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}

// parseDuration accepts Go durations ("200ms", "5m") and bare integers,
// which are read as seconds ("300").
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("must be a duration like 200ms or a number of seconds")
	}
	return d, nil
}

// applyOverrides applies CLI flag values on top of the env-loaded config.
func applyOverrides(cfg *Config, o Overrides) error {
	if o.Backend != nil {
		cfg.Backend = *o.Backend
	}
	if o.DatabaseURL != nil {
		cfg.DatabaseURL = *o.DatabaseURL
	}
	if o.CatalogFile != nil {
		cfg.CatalogFile = *o.CatalogFile
	}
	if o.LogLevel != nil {
		level, err := parseLogLevel(*o.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	if o.MaxPolls != nil {
		if *o.MaxPolls <= 0 {
			return fmt.Errorf("invalid --max-polls value: must be a positive integer")
		}
		cfg.MaxPolls = *o.MaxPolls
	}
	if o.PollDelay != nil {
		cfg.PollDelay = *o.PollDelay
	}
	if o.ScanInterval != nil {
		cfg.ScanInterval = *o.ScanInterval
	}
	if o.ScanCron != nil {
		cfg.ScanCron = *o.ScanCron
	}
	if o.Transport != nil {
		cfg.Transport = *o.Transport
	}
	if o.AuditLog != nil {
		cfg.AuditLog = *o.AuditLog
	}
	if o.StatusAddr != nil {
		cfg.StatusAddr = *o.StatusAddr
	}
	if o.ReportFormat != nil {
		f, err := report.ParseFormat(*o.ReportFormat)
		if err != nil {
			return fmt.Errorf("invalid --report-format value: %w", err)
		}
		cfg.ReportFormat = f
	}

	cfg.OTelEnabled = cfg.OTelEnabled || o.OTelEnabled
	cfg.Once = o.Once
	cfg.ExplainOnly = o.ExplainOnly

	return nil
}

// validate checks cross-field constraints on the final config.
func validate(cfg *Config) error {
	switch cfg.Backend {
	case BackendTrino:
		if cfg.TrinoScheme != "http" && cfg.TrinoScheme != "https" {
			return fmt.Errorf("invalid TRINO_SCHEME value %q: must be \"http\" or \"https\"", cfg.TrinoScheme)
		}
		if cfg.HTTPTimeout <= 0 {
			return fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", cfg.HTTPTimeout)
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DQ_BACKEND is %q (set via env var or --database-url flag)", BackendPostgres)
		}
	default:
		return fmt.Errorf("invalid DQ_BACKEND value %q: must be %q or %q", cfg.Backend, BackendTrino, BackendPostgres)
	}

	switch cfg.Transport {
	case TransportScheduler, TransportMCP:
	default:
		return fmt.Errorf("invalid TRANSPORT value %q: must be %q or %q", cfg.Transport, TransportScheduler, TransportMCP)
	}

	if cfg.PollDelay < 0 {
		return fmt.Errorf("POLL_DELAY must not be negative, got %s", cfg.PollDelay)
	}
	if cfg.ScanCron == "" && cfg.ScanInterval <= 0 {
		return fmt.Errorf("SCAN_INTERVAL must be positive, got %s", cfg.ScanInterval)
	}
	if cfg.StartupRetryInterval <= 0 {
		return fmt.Errorf("STARTUP_RETRY_INTERVAL must be positive, got %s", cfg.StartupRetryInterval)
	}
	if cfg.StatusAddr != "" && cfg.Transport == TransportMCP {
		return fmt.Errorf("STATUS_ADDR is only served by the %q transport", TransportScheduler)
	}
	if cfg.Once && cfg.Transport == TransportMCP {
		return fmt.Errorf("--once cannot be combined with the %q transport", TransportMCP)
	}
	if cfg.ExplainOnly && cfg.Transport == TransportMCP {
		return fmt.Errorf("--explain-only cannot be combined with the %q transport", TransportMCP)
	}

	return nil
}

// TrinoURL is the coordinator base URL.
func (c *Config) TrinoURL() string {
	return fmt.Sprintf("%s://%s", c.TrinoScheme, net.JoinHostPort(c.TrinoHost, strconv.Itoa(c.TrinoPort)))
}

// Session is the identity every check query runs under.
func (c *Config) Session() domain.Session {
	return domain.Session{Catalog: c.Catalog, Schema: c.Schema, User: c.User, Source: c.Source}
}

// PollBudget bounds each query's polling.
func (c *Config) PollBudget() domain.PollBudget {
	return domain.PollBudget{MaxPolls: c.MaxPolls, Delay: c.PollDelay}
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q: must be debug, info, warn, or error", s)
	}
}
