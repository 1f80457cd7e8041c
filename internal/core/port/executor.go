package port

import (
	"context"

	"github.com/guillermoBallester/dqmon/internal/core/domain"
)

// QueryExecutor runs one statement to completion and returns its rows.
// Errors are domain.TransportError, domain.ExecutionFailedError or
// domain.TimeoutError.
type QueryExecutor interface {
	Execute(ctx context.Context, req domain.QueryRequest, budget domain.PollBudget) (*domain.QueryResult, error)
}

// LivenessProber reports whether the query backend accepts queries yet.
type LivenessProber interface {
	Probe(ctx context.Context) error
}
