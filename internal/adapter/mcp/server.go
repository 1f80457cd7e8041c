package mcp

import (
	"log/slog"

	"github.com/guillermoBallester/dqmon/internal/core/domain"
	"github.com/guillermoBallester/dqmon/internal/core/port"
	"github.com/guillermoBallester/dqmon/internal/core/service"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"
)

// NewServer creates an MCPServer exposing the check catalog as tools.
func NewServer(version string, checks *service.CheckService, defs []domain.CheckDefinition, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(false),
		server.WithHooks(ToolCallHooks(logger, tracer, inst)),
	)

	RegisterTools(s, checks, defs)

	return s
}
