package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/guillermoBallester/dqmon/internal/core/domain"
	"github.com/guillermoBallester/dqmon/internal/core/port"
)

var _ port.QueryExecutor = (*ExplainExecutor)(nil)

// ExplainExecutor wraps a QueryExecutor and forces every statement through
// EXPLAIN, so the backend plans the query without scanning any data.
type ExplainExecutor struct {
	inner port.QueryExecutor
}

func NewExplainExecutor(inner port.QueryExecutor) *ExplainExecutor {
	return &ExplainExecutor{inner: inner}
}

func (e *ExplainExecutor) Execute(ctx context.Context, req domain.QueryRequest, budget domain.PollBudget) (*domain.QueryResult, error) {
	if !isExplain(req.SQL) {
		req.SQL = "EXPLAIN " + req.SQL
	}
	return e.inner.Execute(ctx, req, budget)
}

func isExplain(sql string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sql)), "EXPLAIN")
}

// ExplainSuite asks the backend to plan every check query. Queries go through
// the SQL guard first, the same as in a scan. Nothing is audited.
func (s *CheckService) ExplainSuite(ctx context.Context, defs []domain.CheckDefinition) []domain.PlanOutcome {
	ctx, span := s.tracer.Start(ctx, "CheckService.ExplainSuite")
	defer span.End()

	explainer := NewExplainExecutor(s.executor)
	out := make([]domain.PlanOutcome, 0, len(defs))
	for _, def := range defs {
		p := domain.PlanOutcome{Name: def.Name, Query: def.Query}
		if s.validator != nil {
			if err := s.validator.Validate(def.Query); err != nil {
				p.Error = fmt.Sprintf("validation: %v", err)
				out = append(out, p)
				continue
			}
		}

		res, err := explainer.Execute(ctx, s.session.Request(def.Query), s.budget)
		if err != nil {
			p.Error = err.Error()
			s.logger.WarnContext(ctx, "check query could not be planned",
				slog.String("check.name", def.Name),
				slog.String("error.type", domain.ErrorType(err)),
				slog.String("error", err.Error()),
			)
		} else {
			p.Plan = planText(res)
		}
		out = append(out, p)
	}
	return out
}

// planText joins the first column of every row. Both supported backends
// return one plan line per row.
func planText(res *domain.QueryResult) string {
	lines := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		if len(row) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprint(row[0]))
	}
	return strings.Join(lines, "\n")
}
