package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/guillermoBallester/dqmon/internal/core/port"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// inflight is the timing and span of one tool call between its hooks.
type inflight struct {
	start time.Time
	span  trace.Span
}

// callTracker pairs before/after hooks by request id.
type callTracker struct {
	calls sync.Map // id -> *inflight
}

func (c *callTracker) begin(ctx context.Context, id any, req *mcp.CallToolRequest, tracer trace.Tracer) {
	call := &inflight{start: time.Now()}
	if tracer != nil {
		attrs := []attribute.KeyValue{attribute.String("mcp.tool", req.Params.Name)}
		if name := checkName(req); name != "" {
			attrs = append(attrs, attribute.String("check.name", name))
		}
		_, call.span = tracer.Start(ctx, "mcp.tool.call", trace.WithAttributes(attrs...))
	}
	c.calls.Store(id, call)
}

// checkName is the check a run_check call targets, or "" for other tools.
func checkName(req *mcp.CallToolRequest) string {
	if req.Params.Name != "run_check" {
		return ""
	}
	name, _ := req.GetArguments()["name"].(string)
	return name
}

// end returns the elapsed time and span for id; the span may be nil.
func (c *callTracker) end(id any) (time.Duration, trace.Span) {
	v, ok := c.calls.LoadAndDelete(id)
	if !ok {
		return 0, nil
	}
	call := v.(*inflight)
	return time.Since(call.start), call.span
}

// ToolCallHooks logs every tool call and, when tracer and inst are set,
// records a span and a duration sample per call.
func ToolCallHooks(logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.Hooks {
	hooks := &server.Hooks{}
	tracker := &callTracker{}

	hooks.AddBeforeCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest) {
		tracker.begin(ctx, id, req, tracer)
	})

	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, result any) {
		duration, span := tracker.end(id)

		isErr := false
		if r, ok := result.(*mcp.CallToolResult); ok && r.IsError {
			isErr = true
		}
		level := slog.LevelInfo
		if isErr {
			level = slog.LevelWarn
		}

		attrs := []slog.Attr{
			slog.String("rpc.method", "tools/call"),
			slog.String("mcp.tool", req.Params.Name),
			slog.Duration("duration", duration),
			slog.Bool("error", isErr),
		}
		if name := checkName(req); name != "" {
			attrs = append(attrs, slog.String("check.name", name))
		}
		logger.LogAttrs(ctx, level, "tool call", attrs...)

		if inst != nil {
			inst.RecordToolDuration(ctx, float64(duration.Milliseconds()))
		}
		if span == nil {
			return
		}
		if isErr {
			span.SetStatus(codes.Error, "tool returned error")
			span.RecordError(fmt.Errorf("tool %s returned error", req.Params.Name))
		}
		span.End()
	})

	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		duration, span := tracker.end(id)

		if req, ok := message.(*mcp.CallToolRequest); ok {
			logger.LogAttrs(ctx, slog.LevelError, "tool call",
				slog.String("rpc.method", string(method)),
				slog.String("mcp.tool", req.Params.Name),
				slog.Duration("duration", duration),
				slog.Bool("error", true),
				slog.String("error.message", err.Error()),
			)
		}

		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
		}
	})

	return hooks
}
