package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/guillermoBallester/dqmon/internal/core/domain"
	"github.com/guillermoBallester/dqmon/internal/core/port"
	"github.com/robfig/cron/v3"
)

// ScheduleConfig controls the scan loop and the startup liveness gate.
type ScheduleConfig struct {
	// Interval is the pause between the end of one scan and the start of
	// the next. Ignored when Cron is set.
	Interval time.Duration
	// Cron is an optional standard five-field spec (or @every/@hourly
	// descriptor) that replaces the fixed-delay loop.
	Cron string

	StartupRetryInterval time.Duration
	// StartupMaxAttempts bounds liveness probes; 0 waits forever.
	StartupMaxAttempts int
}

// Scheduler repeats the check suite for the lifetime of the process.
type Scheduler struct {
	checks   *CheckService
	defs     []domain.CheckDefinition
	prober   port.LivenessProber
	reporter port.ScanReporter
	cfg      ScheduleConfig
	schedule cron.Schedule
	logger   *slog.Logger
}

// NewScheduler validates cfg and returns a scheduler for defs.
func NewScheduler(checks *CheckService, defs []domain.CheckDefinition, prober port.LivenessProber, reporter port.ScanReporter, cfg ScheduleConfig, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		checks:   checks,
		defs:     defs,
		prober:   prober,
		reporter: reporter,
		cfg:      cfg,
		logger:   logger,
	}
	if cfg.Cron != "" {
		sched, err := cron.ParseStandard(cfg.Cron)
		if err != nil {
			return nil, fmt.Errorf("parsing scan cron %q: %w", cfg.Cron, err)
		}
		s.schedule = sched
	} else if cfg.Interval <= 0 {
		return nil, fmt.Errorf("scan interval must be positive, got %s", cfg.Interval)
	}
	if cfg.StartupRetryInterval <= 0 {
		return nil, fmt.Errorf("startup retry interval must be positive, got %s", cfg.StartupRetryInterval)
	}
	if cfg.StartupMaxAttempts < 0 {
		return nil, fmt.Errorf("startup max attempts must be >= 0, got %d", cfg.StartupMaxAttempts)
	}
	return s, nil
}

// WaitForBackend blocks until the backend answers its liveness probe. With
// StartupMaxAttempts 0 it only returns early when ctx is cancelled.
func (s *Scheduler) WaitForBackend(ctx context.Context) error {
	var policy backoff.BackOff = backoff.NewConstantBackOff(s.cfg.StartupRetryInterval)
	if s.cfg.StartupMaxAttempts > 0 {
		policy = backoff.WithMaxRetries(policy, uint64(s.cfg.StartupMaxAttempts-1))
	}

	attempt := 0
	probe := func() error {
		attempt++
		return s.prober.Probe(ctx)
	}
	notify := func(err error, wait time.Duration) {
		s.logger.InfoContext(ctx, "waiting for query backend",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", wait),
			slog.String("error", err.Error()),
		)
	}

	if err := backoff.RetryNotify(probe, backoff.WithContext(policy, ctx), notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("query backend not ready after %d attempts: %w", attempt, err)
	}
	s.logger.InfoContext(ctx, "query backend is ready", slog.Int("attempt", attempt))
	return nil
}

// Scan runs the suite once and hands the result to the reporter. A panic
// anywhere in the scan is recovered so the loop survives it.
func (s *Scheduler) Scan(ctx context.Context) (result domain.ScanResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "scan panicked", slog.Any("panic", r))
			err = fmt.Errorf("scan panicked: %v", r)
		}
	}()

	s.logger.InfoContext(ctx, "scan starting", slog.Int("scan.checks", len(s.defs)))
	result = s.checks.RunSuite(ctx, s.defs)

	if err := s.reporter.Report(ctx, result); err != nil {
		s.logger.ErrorContext(ctx, "publishing scan report failed",
			slog.String("scan.id", result.ID),
			slog.String("error", err.Error()),
		)
		return result, fmt.Errorf("reporting scan: %w", err)
	}
	return result, nil
}

// RunOnce waits for the backend and performs a single scan.
func (s *Scheduler) RunOnce(ctx context.Context) (domain.ScanResult, error) {
	if err := s.WaitForBackend(ctx); err != nil {
		return domain.ScanResult{}, err
	}
	return s.Scan(ctx)
}

// Run waits for the backend, then scans until ctx is cancelled. Cancellation
// is a clean stop and returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.WaitForBackend(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	}
	if s.schedule != nil {
		return s.runCron(ctx)
	}

	for {
		_, _ = s.Scan(ctx)
		if ctx.Err() != nil {
			s.logger.InfoContext(ctx, "scheduler stopped")
			return nil
		}

		s.logger.InfoContext(ctx, "next scan scheduled", slog.Duration("in", s.cfg.Interval))
		timer := time.NewTimer(s.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.InfoContext(ctx, "scheduler stopped")
			return nil
		case <-timer.C:
		}
	}
}

// runCron drives scans from the wall clock. Overlapping ticks are skipped
// while a scan is still running.
func (s *Scheduler) runCron(ctx context.Context) error {
	logger := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() {
		_, _ = s.Scan(ctx)
	}))

	c.Start()
	s.logger.InfoContext(ctx, "cron scheduler started", slog.String("cron", s.cfg.Cron))

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.InfoContext(ctx, "scheduler stopped")
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
