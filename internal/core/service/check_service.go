package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/guillermoBallester/dqmon/internal/core/domain"
	"github.com/guillermoBallester/dqmon/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// CheckService runs check definitions against a query executor and turns
// every result, including failures, into a CheckOutcome.
type CheckService struct {
	executor  port.QueryExecutor
	validator port.QueryValidator // nil disables the SQL guard
	auditor   port.QueryAuditor
	session   domain.Session
	budget    domain.PollBudget
	logger    *slog.Logger
	tracer    trace.Tracer
	inst      port.Instrumentation
	now       func() time.Time
}

func NewCheckService(executor port.QueryExecutor, validator port.QueryValidator, auditor port.QueryAuditor, logger *slog.Logger, session domain.Session, budget domain.PollBudget, tracer trace.Tracer, inst port.Instrumentation) *CheckService {
	if auditor == nil {
		auditor = port.NoopAuditor{}
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &CheckService{
		executor:  executor,
		validator: validator,
		auditor:   auditor,
		session:   session,
		budget:    budget,
		logger:    logger,
		tracer:    tracer,
		inst:      inst,
		now:       time.Now,
	}
}

// RunSuite runs defs in declaration order. A failing check never stops the
// suite; it only yields an ERROR or FAIL outcome.
func (s *CheckService) RunSuite(ctx context.Context, defs []domain.CheckDefinition) domain.ScanResult {
	result := domain.ScanResult{
		ID:        uuid.NewString(),
		StartedAt: s.now(),
		Outcomes:  make([]domain.CheckOutcome, 0, len(defs)),
	}

	ctx, span := s.tracer.Start(ctx, "CheckService.RunSuite",
		trace.WithAttributes(
			attribute.String("scan.id", result.ID),
			attribute.Int("scan.checks", len(defs)),
		),
	)
	defer span.End()

	for _, def := range defs {
		result.Outcomes = append(result.Outcomes, s.RunCheck(ctx, result.ID, def))
	}

	result.FinishedAt = s.now()
	s.inst.RecordScanDuration(ctx, float64(result.FinishedAt.Sub(result.StartedAt).Milliseconds()))

	passed := result.PassedCount()
	span.SetAttributes(
		attribute.Int("scan.passed", passed),
		attribute.Int("scan.failed", result.Count(domain.VerdictFail)),
		attribute.Int("scan.errored", result.Count(domain.VerdictError)),
	)
	if passed != result.Total() {
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d checks did not pass", result.Total()-passed, result.Total()))
	}

	s.logger.InfoContext(ctx, "scan completed",
		slog.String("scan.id", result.ID),
		slog.Int("scan.total", result.Total()),
		slog.Int("scan.passed", passed),
		slog.Duration("scan.duration", result.FinishedAt.Sub(result.StartedAt)),
	)
	return result
}

// RunCheck executes a single definition. It never returns an error: every
// failure mode is folded into the outcome's verdict.
func (s *CheckService) RunCheck(ctx context.Context, scanID string, def domain.CheckDefinition) (outcome domain.CheckOutcome) {
	ctx, span := s.tracer.Start(ctx, "CheckService.RunCheck",
		trace.WithAttributes(
			attribute.String("check.name", def.Name),
			attribute.String("check.kind", string(def.Kind)),
			attribute.String("db.statement", def.Query),
		),
	)
	start := s.now()
	outcome = domain.CheckOutcome{
		Name:     def.Name,
		Table:    def.Table,
		Severity: def.Severity,
	}

	defer func() {
		if r := recover(); r != nil {
			outcome = errored(outcome, fmt.Errorf("check panicked: %v", r))
			s.logger.ErrorContext(ctx, "check panicked",
				slog.String("check.name", def.Name),
				slog.Any("panic", r),
			)
		}
		outcome.Duration = s.now().Sub(start)
		s.inst.IncrementCheckOutcome(ctx, string(outcome.Verdict))
		span.SetAttributes(attribute.String("check.verdict", string(outcome.Verdict)))
		if outcome.Verdict == domain.VerdictError {
			span.SetStatus(codes.Error, outcome.Error)
		}
		span.End()
	}()

	if s.validator != nil {
		if err := s.validator.Validate(def.Query); err != nil {
			s.logger.WarnContext(ctx, "check query rejected",
				slog.String("check.name", def.Name),
				slog.String("db.statement", def.Query),
				slog.String("error.type", "validation_error"),
			)
			span.RecordError(err)
			s.inst.IncrementQueryErrors(ctx, "validation_error")
			return errored(outcome, fmt.Errorf("validation: %w", err))
		}
	}

	res, err := s.execute(ctx, scanID, def)
	if err != nil {
		span.RecordError(err)
		s.logger.WarnContext(ctx, "check query failed",
			slog.String("check.name", def.Name),
			slog.String("error.type", domain.ErrorType(err)),
			slog.String("error", err.Error()),
		)
		return errored(outcome, err)
	}

	extract := def.Extract
	if extract == nil {
		extract = domain.FirstScalar
	}
	observed, err := extract(res.Rows)
	if err == nil && !domain.IsFinite(observed) {
		err = fmt.Errorf("%w: %v", domain.ErrNonFinite, observed)
	}
	if err != nil {
		span.RecordError(err)
		return errored(outcome, fmt.Errorf("extracting observed value: %w", err))
	}

	outcome.Observed = &observed
	outcome.Passed = def.Predicate(observed)
	outcome.Verdict = domain.VerdictFail
	if outcome.Passed {
		outcome.Verdict = domain.VerdictPass
	}

	s.logger.DebugContext(ctx, "check evaluated",
		slog.String("check.name", def.Name),
		slog.Float64("check.observed", observed),
		slog.String("check.expect", def.Expect.String()),
		slog.String("check.verdict", string(outcome.Verdict)),
	)
	return outcome
}

// execute runs the check query and records audit and query metrics.
func (s *CheckService) execute(ctx context.Context, scanID string, def domain.CheckDefinition) (*domain.QueryResult, error) {
	start := s.now()
	res, err := s.executor.Execute(ctx, s.session.Request(def.Query), s.budget)
	durationMS := s.now().Sub(start).Milliseconds()

	s.inst.RecordQueryDuration(ctx, float64(durationMS))

	entry := port.AuditEntry{
		ScanID:     scanID,
		Check:      def.Name,
		SQL:        def.Query,
		DurationMS: durationMS,
		Err:        err,
	}
	if res != nil {
		entry.QueryID = res.QueryID
		entry.RowsReturned = len(res.Rows)
		entry.Polls = res.Polls
		s.inst.RecordQueryPolls(ctx, res.Polls)
	}
	s.auditor.Record(ctx, entry)

	if err != nil {
		s.inst.IncrementQueryErrors(ctx, domain.ErrorType(err))
		return nil, err
	}
	s.inst.IncrementQueryCount(ctx)
	return res, nil
}

func errored(o domain.CheckOutcome, err error) domain.CheckOutcome {
	o.Observed = nil
	o.Passed = false
	o.Verdict = domain.VerdictError
	o.Error = err.Error()
	return o
}
