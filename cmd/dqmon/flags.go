package main

import (
	"github.com/guillermoBallester/dqmon/internal/config"
	"github.com/spf13/pflag"
)

// parseFlags turns command-line arguments into config overrides. Only flags
// that were set on the command line override the environment.
func parseFlags(args []string) (config.Overrides, error) {
	fs := pflag.NewFlagSet("dqmon", pflag.ContinueOnError)

	backend := fs.String("backend", "", "query backend: trino or postgres")
	databaseURL := fs.String("database-url", "", "PostgreSQL connection string (postgres backend)")
	catalogFile := fs.String("catalog-file", "", "YAML check catalog; the built-in catalog is used when empty")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error")
	maxPolls := fs.Int("max-polls", 0, "maximum continuation requests per query")
	pollDelay := fs.Duration("poll-delay", 0, "delay before each continuation request")
	scanInterval := fs.Duration("scan-interval", 0, "pause between scans")
	scanCron := fs.String("scan-cron", "", "cron schedule for scans, replaces --scan-interval")
	transport := fs.String("transport", "", "run mode: scheduler or mcp")
	auditLog := fs.String("audit-log", "", "path to the NDJSON query audit log")
	reportFormat := fs.String("report-format", "", "scan report format: text or json")
	statusAddr := fs.String("status-addr", "", "listen address for the status endpoints")
	otelEnabled := fs.Bool("otel", false, "export traces and metrics over OTLP")
	once := fs.Bool("once", false, "run a single scan and exit")
	explainOnly := fs.Bool("explain-only", false, "ask the backend to plan every check query, then exit")

	if err := fs.Parse(args); err != nil {
		return config.Overrides{}, err
	}

	o := config.Overrides{
		OTelEnabled: *otelEnabled,
		Once:        *once,
		ExplainOnly: *explainOnly,
	}
	if fs.Changed("backend") {
		o.Backend = backend
	}
	if fs.Changed("database-url") {
		o.DatabaseURL = databaseURL
	}
	if fs.Changed("catalog-file") {
		o.CatalogFile = catalogFile
	}
	if fs.Changed("log-level") {
		o.LogLevel = logLevel
	}
	if fs.Changed("max-polls") {
		o.MaxPolls = maxPolls
	}
	if fs.Changed("poll-delay") {
		o.PollDelay = pollDelay
	}
	if fs.Changed("scan-interval") {
		o.ScanInterval = scanInterval
	}
	if fs.Changed("scan-cron") {
		o.ScanCron = scanCron
	}
	if fs.Changed("transport") {
		o.Transport = transport
	}
	if fs.Changed("audit-log") {
		o.AuditLog = auditLog
	}
	if fs.Changed("report-format") {
		o.ReportFormat = reportFormat
	}
	if fs.Changed("status-addr") {
		o.StatusAddr = statusAddr
	}
	return o, nil
}
