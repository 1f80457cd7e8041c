package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guillermoBallester/dqmon/internal/adapter/catalog"
	"github.com/guillermoBallester/dqmon/internal/adapter/mcp"
	"github.com/guillermoBallester/dqmon/internal/adapter/postgres"
	"github.com/guillermoBallester/dqmon/internal/adapter/trino"
	"github.com/guillermoBallester/dqmon/internal/audit"
	"github.com/guillermoBallester/dqmon/internal/config"
	"github.com/guillermoBallester/dqmon/internal/core/domain"
	"github.com/guillermoBallester/dqmon/internal/core/port"
	"github.com/guillermoBallester/dqmon/internal/core/service"
	"github.com/guillermoBallester/dqmon/internal/report"
	"github.com/guillermoBallester/dqmon/internal/telemetry"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"
)

var version = "dev"

// backend is what the check service and the liveness gate need from a
// query engine adapter.
type backend interface {
	port.QueryExecutor
	port.LivenessProber
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	overrides, err := parseFlags(args)
	if err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}
	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Logs go to stderr. Stdout carries scan reports or the MCP stdio stream.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	logger.Info("starting dqmon",
		slog.String("version", version),
		slog.String("backend", cfg.Backend),
		slog.String("transport", cfg.Transport),
		slog.String("log_level", cfg.LogLevel.String()),
		slog.Int("max_polls", cfg.MaxPolls),
		slog.Duration("poll_delay", cfg.PollDelay),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var (
		tracer trace.Tracer         = telemetry.NoopTracer()
		inst   port.Instrumentation = port.NoopInstrumentation{}
	)
	if cfg.OTelEnabled {
		provider, err := telemetry.Init(ctx, "dqmon", version)
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Error("telemetry shutdown", slog.String("error", err.Error()))
			}
		}()
		tracer = telemetry.Tracer()
		inst = telemetry.NewInstruments()
		logger.Info("telemetry enabled")
	}

	engine, closeEngine, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeEngine()

	validator := newValidator(cfg)

	defs, err := loadChecks(cfg, validator, logger)
	if err != nil {
		return err
	}

	var auditor port.QueryAuditor = port.NoopAuditor{}
	if cfg.AuditLog != "" {
		fa, err := audit.NewFileAuditor(cfg.AuditLog)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		auditor = fa
		logger.Info("audit logging enabled", slog.String("path", cfg.AuditLog))
	}
	defer func() {
		if err := auditor.Close(); err != nil {
			logger.Error("closing audit log", slog.String("error", err.Error()))
		}
	}()

	checks := service.NewCheckService(engine, validator, auditor, logger, cfg.Session(), cfg.PollBudget(), tracer, inst)

	if cfg.Transport == config.TransportMCP {
		return serveMCP(ctx, checks, defs, logger, tracer, inst)
	}
	return runScheduler(ctx, cfg, checks, defs, engine, logger)
}

// openBackend connects the configured query engine. The returned func
// releases its resources.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (backend, func(), error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.PoolMaxConns)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		logger.Info("database pool created",
			slog.String("db.system", "postgresql"),
			slog.String("dsn", redactDSN(cfg.DatabaseURL)),
		)
		return postgres.NewExecutor(pool), pool.Close, nil
	default:
		client, err := trino.NewClient(cfg.TrinoURL(), cfg.HTTPTimeout, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("creating trino client: %w", err)
		}
		logger.Info("trino client created",
			slog.String("db.system", "trino"),
			slog.String("url", cfg.TrinoURL()),
			slog.String("catalog", cfg.Catalog),
			slog.String("schema", cfg.Schema),
		)
		return client, func() {}, nil
	}
}

// newValidator returns the SQL guard, or nil when it is disabled. Trino SQL
// is not always valid PostgreSQL, so the Trino backend gets the lenient guard.
func newValidator(cfg *config.Config) port.QueryValidator {
	if !cfg.ValidateSQL {
		return nil
	}
	if cfg.Backend == config.BackendTrino {
		return domain.NewLenientQueryValidator()
	}
	return domain.NewPgQueryValidator()
}

func loadChecks(cfg *config.Config, validator port.QueryValidator, logger *slog.Logger) ([]domain.CheckDefinition, error) {
	if cfg.CatalogFile == "" {
		defs, err := catalog.Build(domain.DefaultCatalog(), validator)
		if err != nil {
			return nil, fmt.Errorf("building default catalog: %w", err)
		}
		logger.Info("using built-in check catalog", slog.Int("checks", len(defs)))
		return defs, nil
	}

	_, defs, err := catalog.LoadFromFile(cfg.CatalogFile, validator)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	logger.Info("check catalog loaded",
		slog.String("file", cfg.CatalogFile),
		slog.Int("checks", len(defs)),
	)
	return defs, nil
}

func serveMCP(ctx context.Context, checks *service.CheckService, defs []domain.CheckDefinition, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) error {
	mcpServer := mcp.NewServer(version, checks, defs, logger, tracer, inst)
	stdioServer := mcpserver.NewStdioServer(mcpServer)

	logger.Info("serving MCP over stdio")
	if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		return fmt.Errorf("stdio server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func runScheduler(ctx context.Context, cfg *config.Config, checks *service.CheckService, defs []domain.CheckDefinition, engine backend, logger *slog.Logger) error {
	latest := report.NewLatest()
	reporter := report.Tee{report.NewWriter(os.Stdout, cfg.ReportFormat), latest}

	sched, err := service.NewScheduler(checks, defs, engine, reporter, service.ScheduleConfig{
		Interval:             cfg.ScanInterval,
		Cron:                 cfg.ScanCron,
		StartupRetryInterval: cfg.StartupRetryInterval,
		StartupMaxAttempts:   cfg.StartupMaxAttempts,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	if cfg.StatusAddr != "" {
		statusCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := serveStatus(statusCtx, cfg.StatusAddr, newStatusHandler(latest, logger), logger); err != nil {
				logger.Error("status server", slog.String("error", err.Error()))
			}
		}()
		defer func() {
			cancel()
			<-done
		}()
	}

	if cfg.ExplainOnly {
		return explainCatalog(ctx, sched, checks, defs)
	}

	if cfg.Once {
		res, err := sched.RunOnce(ctx)
		if err != nil {
			return err
		}
		if failed := len(res.NotPassed()); failed > 0 {
			return fmt.Errorf("%d of %d checks did not pass", failed, res.Total())
		}
		return nil
	}

	if err := sched.Run(ctx); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// explainCatalog plans every check query once the backend is up and fails if
// any of them is rejected.
func explainCatalog(ctx context.Context, sched *service.Scheduler, checks *service.CheckService, defs []domain.CheckDefinition) error {
	if err := sched.WaitForBackend(ctx); err != nil {
		return err
	}
	plans := checks.ExplainSuite(ctx, defs)
	fmt.Fprint(os.Stdout, report.RenderPlans(plans))
	for _, p := range plans {
		if !p.OK() {
			return fmt.Errorf("check %q could not be planned", p.Name)
		}
	}
	return nil
}
