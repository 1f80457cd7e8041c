package port

import "context"

// Instrumentation records application-level metrics.
type Instrumentation interface {
	RecordQueryDuration(ctx context.Context, ms float64)
	RecordQueryPolls(ctx context.Context, polls int)
	IncrementQueryCount(ctx context.Context)
	IncrementQueryErrors(ctx context.Context, errorType string)
	IncrementCheckOutcome(ctx context.Context, verdict string)
	RecordScanDuration(ctx context.Context, ms float64)
	RecordToolDuration(ctx context.Context, ms float64)
}

// NoopInstrumentation discards all metrics.
type NoopInstrumentation struct{}

func (NoopInstrumentation) RecordQueryDuration(context.Context, float64)  {}
func (NoopInstrumentation) RecordQueryPolls(context.Context, int)         {}
func (NoopInstrumentation) IncrementQueryCount(context.Context)           {}
func (NoopInstrumentation) IncrementQueryErrors(context.Context, string)  {}
func (NoopInstrumentation) IncrementCheckOutcome(context.Context, string) {}
func (NoopInstrumentation) RecordScanDuration(context.Context, float64)   {}
func (NoopInstrumentation) RecordToolDuration(context.Context, float64)   {}
