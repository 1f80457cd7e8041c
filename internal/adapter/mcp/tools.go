package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/guillermoBallester/dqmon/internal/core/domain"
	"github.com/guillermoBallester/dqmon/internal/core/service"
	"github.com/guillermoBallester/dqmon/internal/report"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const serverName = "dqmon"

const (
	descListChecks = "List every configured data-quality check with its kind, table, column, " +
		"the SQL it runs, the expectation the observed value must meet, and its severity. " +
		"Call this first to learn check names for run_check."

	descRunScan = "Run the full check catalog once against the query backend and return the scan report. " +
		"Checks run sequentially; a check that cannot be evaluated is reported as ERROR and the scan continues."

	descRunScanFormat = "Output format: \"text\" (default) for the human-readable report, \"json\" for structured results"

	descRunCheck = "Run a single check by its exact name and return its outcome as JSON " +
		"(observed value, verdict PASS/FAIL/ERROR, error detail, duration)."

	descRunCheckName = "Exact check name as returned by list_checks"
)

// checkInfo is the list_checks view of a definition.
type checkInfo struct {
	Name     string           `json:"name"`
	Kind     domain.CheckKind `json:"kind"`
	Table    string           `json:"table,omitempty"`
	Column   string           `json:"column,omitempty"`
	Query    string           `json:"query"`
	Expect   string           `json:"expect"`
	Severity domain.Severity  `json:"severity"`
}

func RegisterTools(s *server.MCPServer, checks *service.CheckService, defs []domain.CheckDefinition) {
	s.AddTool(
		mcp.NewTool("list_checks",
			mcp.WithDescription(descListChecks),
		),
		listChecksHandler(defs),
	)

	s.AddTool(
		mcp.NewTool("run_scan",
			mcp.WithDescription(descRunScan),
			mcp.WithString("format",
				mcp.Description(descRunScanFormat),
				mcp.Enum(string(report.FormatText), string(report.FormatJSON)),
			),
		),
		runScanHandler(checks, defs),
	)

	s.AddTool(
		mcp.NewTool("run_check",
			mcp.WithDescription(descRunCheck),
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description(descRunCheckName),
			),
		),
		runCheckHandler(checks, defs),
	)
}

func listChecksHandler(defs []domain.CheckDefinition) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		infos := make([]checkInfo, len(defs))
		for i, d := range defs {
			infos[i] = checkInfo{
				Name:     d.Name,
				Kind:     d.Kind,
				Table:    d.Table,
				Column:   d.Column,
				Query:    d.Query,
				Expect:   d.Expect.String(),
				Severity: d.Severity,
			}
		}
		return jsonResult(infos)
	}
}

func runScanHandler(checks *service.CheckService, defs []domain.CheckDefinition) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rawFormat, _ := request.GetArguments()["format"].(string)
		format, err := report.ParseFormat(rawFormat)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		result := checks.RunSuite(ctx, defs)
		if format == report.FormatJSON {
			data, err := report.RenderJSON(result)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
			}
			return mcp.NewToolResultText(string(data)), nil
		}
		return mcp.NewToolResultText(report.Render(result)), nil
	}
}

func runCheckHandler(checks *service.CheckService, defs []domain.CheckDefinition) server.ToolHandlerFunc {
	byName := make(map[string]domain.CheckDefinition, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, ok := request.GetArguments()["name"].(string)
		if !ok || strings.TrimSpace(name) == "" {
			return mcp.NewToolResultError("name is required"), nil
		}

		def, ok := byName[name]
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown check %q; known checks: %s", name, knownNames(byName))), nil
		}

		outcome := checks.RunCheck(ctx, uuid.NewString(), def)
		if outcome.Verdict == domain.VerdictError {
			return mcp.NewToolResultError(sanitizeError(name, outcome.Error)), nil
		}
		return jsonResult(outcome)
	}
}

// sanitizeError turns an ERROR outcome into a message a tool caller can act on.
func sanitizeError(check, msg string) string {
	switch {
	case strings.Contains(msg, "timed out"):
		return fmt.Sprintf("check %q timed out before the backend finished; the query may still be running: %s", check, msg)
	case strings.HasPrefix(msg, "validation:"):
		return fmt.Sprintf("check %q was rejected by the SQL guard: %s", check, strings.TrimSpace(strings.TrimPrefix(msg, "validation:")))
	default:
		return fmt.Sprintf("check %q could not be evaluated: %s", check, msg)
	}
}

func knownNames(byName map[string]domain.CheckDefinition) string {
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
