package telemetry

import (
	"context"

	"github.com/guillermoBallester/dqmon/internal/core/port"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/guillermoBallester/dqmon"

var _ port.Instrumentation = (*Instruments)(nil)

// Instruments holds pre-created OTel metric instruments.
type Instruments struct {
	QueryCount    metric.Int64Counter
	QueryDuration metric.Float64Histogram
	QueryPolls    metric.Int64Histogram
	QueryErrors   metric.Int64Counter
	CheckOutcomes metric.Int64Counter
	ScanDuration  metric.Float64Histogram
	ToolDuration  metric.Float64Histogram
}

// NewInstruments creates metric instruments from the global MeterProvider.
func NewInstruments() *Instruments {
	return newInstrumentsFromMeter(otel.Meter(meterName))
}

// NoopInstruments returns instruments that record nothing.
func NoopInstruments() *Instruments {
	return newInstrumentsFromMeter(noop.NewMeterProvider().Meter(meterName))
}

func newInstrumentsFromMeter(meter metric.Meter) *Instruments {
	// The SDK hands back noop instruments alongside any error.
	queryCount, _ := meter.Int64Counter("dqmon.query.count",
		metric.WithDescription("Check queries that completed successfully"),
	)
	queryDuration, _ := meter.Float64Histogram("dqmon.query.duration",
		metric.WithDescription("Check query wall time including polling"),
		metric.WithUnit("ms"),
	)
	queryPolls, _ := meter.Int64Histogram("dqmon.query.polls",
		metric.WithDescription("Continuation requests issued per query"),
	)
	queryErrors, _ := meter.Int64Counter("dqmon.query.errors",
		metric.WithDescription("Check queries that failed, by error.type"),
	)
	checkOutcomes, _ := meter.Int64Counter("dqmon.check.outcomes",
		metric.WithDescription("Check verdicts, by check.verdict"),
	)
	scanDuration, _ := meter.Float64Histogram("dqmon.scan.duration",
		metric.WithDescription("Duration of a full scan"),
		metric.WithUnit("ms"),
	)
	toolDuration, _ := meter.Float64Histogram("dqmon.tool.duration",
		metric.WithDescription("MCP tool call duration in milliseconds"),
		metric.WithUnit("ms"),
	)

	return &Instruments{
		QueryCount:    queryCount,
		QueryDuration: queryDuration,
		QueryPolls:    queryPolls,
		QueryErrors:   queryErrors,
		CheckOutcomes: checkOutcomes,
		ScanDuration:  scanDuration,
		ToolDuration:  toolDuration,
	}
}

func (i *Instruments) RecordQueryDuration(ctx context.Context, ms float64) {
	i.QueryDuration.Record(ctx, ms)
}

func (i *Instruments) RecordQueryPolls(ctx context.Context, polls int) {
	i.QueryPolls.Record(ctx, int64(polls))
}

func (i *Instruments) IncrementQueryCount(ctx context.Context) {
	i.QueryCount.Add(ctx, 1)
}

func (i *Instruments) IncrementQueryErrors(ctx context.Context, errorType string) {
	i.QueryErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("error.type", errorType)))
}

func (i *Instruments) IncrementCheckOutcome(ctx context.Context, verdict string) {
	i.CheckOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("check.verdict", verdict)))
}

func (i *Instruments) RecordScanDuration(ctx context.Context, ms float64) {
	i.ScanDuration.Record(ctx, ms)
}

func (i *Instruments) RecordToolDuration(ctx context.Context, ms float64) {
	i.ToolDuration.Record(ctx, ms)
}
