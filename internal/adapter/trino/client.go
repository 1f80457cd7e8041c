package trino

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/guillermoBallester/dqmon/internal/core/domain"
	"github.com/guillermoBallester/dqmon/internal/core/port"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	statementPath = "/v1/statement"
	infoPath      = "/v1/info"

	// maxErrorBody caps how much of a non-2xx body is kept for diagnostics.
	maxErrorBody = 4 << 10
	// maxResponseBody caps a single protocol page.
	maxResponseBody = 64 << 20
)

var (
	_ port.QueryExecutor  = (*Client)(nil)
	_ port.LivenessProber = (*Client)(nil)
)

// Client drives the coordinator's statement protocol: submit, then follow
// nextUri links until the query reaches a terminal state.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client for the coordinator at baseURL
// (e.g. "http://trino:8080"). requestTimeout bounds each HTTP exchange, not
// the whole query.
func NewClient(baseURL string, requestTimeout time.Duration, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing coordinator URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("coordinator URL %q: scheme must be http or https", baseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("coordinator URL %q: missing host", baseURL)
	}

	return &Client{
		base: base,
		http: &http.Client{
			Timeout:   requestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
		sleep:  sleepContext,
	}, nil
}

// Execute submits req and polls until completion or until budget.MaxPolls
// continuation requests have been made. On timeout the query is left running
// on the coordinator.
func (c *Client) Execute(ctx context.Context, req domain.QueryRequest, budget domain.PollBudget) (*domain.QueryResult, error) {
	handle := domain.NewQueryHandle()

	resp, err := c.do(ctx, http.MethodPost, c.endpoint(statementPath), req, strings.NewReader(req.SQL))
	if err != nil {
		return nil, err
	}
	handle.Advance(resp.page())

	c.logger.DebugContext(ctx, "statement submitted",
		slog.String("query.id", handle.ID),
		slog.String("query.state", handle.State.String()),
	)

	for handle.ShouldPoll() {
		if handle.PollCount >= budget.MaxPolls {
			handle.Expire()
			c.logger.WarnContext(ctx, "poll budget exhausted",
				slog.String("query.id", handle.ID),
				slog.Int("query.polls", handle.PollCount),
			)
			return nil, &domain.TimeoutError{QueryID: handle.ID, Polls: handle.PollCount}
		}

		if err := c.sleep(ctx, budget.Delay); err != nil {
			return nil, &domain.TransportError{Err: err}
		}

		next, err := c.resolve(handle.NextURI)
		if err != nil {
			return nil, &domain.TransportError{Err: err}
		}

		handle.PollCount++
		resp, err := c.do(ctx, http.MethodGet, next, req, nil)
		if err != nil {
			return nil, err
		}
		handle.Advance(resp.page())
	}

	c.logger.DebugContext(ctx, "statement completed",
		slog.String("query.id", handle.ID),
		slog.String("query.state", handle.State.String()),
		slog.Int("query.polls", handle.PollCount),
		slog.Int("db.response.rows", len(handle.Rows)),
	)

	switch handle.State {
	case domain.StateFinished:
		return handle.Result(), nil
	case domain.StateFailed, domain.StateCanceled:
		return nil, &domain.ExecutionFailedError{
			QueryID:     handle.ID,
			State:       handle.State,
			Diagnostics: handle.Diagnostics,
		}
	default:
		// ShouldPoll only stops on a terminal state or a missing link, and a
		// missing link is folded into FINISHED by Advance.
		return nil, &domain.TransportError{Err: fmt.Errorf("query %s stopped in state %s", handle.ID, handle.State)}
	}
}

// Probe checks the coordinator's info endpoint. A coordinator that answers but
// still reports "starting" is not ready.
func (c *Client) Probe(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(infoPath), nil)
	if err != nil {
		return fmt.Errorf("building info request: %w", err)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &domain.TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode != http.StatusOK {
		return &domain.TransportError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if starting(body) {
		return fmt.Errorf("coordinator is still starting")
	}
	return nil
}

// do performs one protocol exchange and decodes the statement document.
func (c *Client) do(ctx context.Context, method, target string, req domain.QueryRequest, body io.Reader) (*statementResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &domain.TransportError{Err: fmt.Errorf("building %s request: %w", method, err)}
	}
	setSessionHeaders(httpReq, req)
	if method == http.MethodPost {
		httpReq.Header.Set("Content-Type", "text/plain")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &domain.TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &domain.TransportError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(errBody)),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &domain.TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}
	doc, err := decodeStatement(data)
	if err != nil {
		return nil, &domain.TransportError{StatusCode: resp.StatusCode, Err: err}
	}
	return doc, nil
}

func setSessionHeaders(r *http.Request, req domain.QueryRequest) {
	if req.User != "" {
		r.Header.Set(headerUser, req.User)
	}
	if req.Catalog != "" {
		r.Header.Set(headerCatalog, req.Catalog)
	}
	if req.Schema != "" {
		r.Header.Set(headerSchema, req.Schema)
	}
	if req.Source != "" {
		r.Header.Set(headerSource, req.Source)
	}
}

func (c *Client) endpoint(path string) string {
	return c.base.JoinPath(path).String()
}

// resolve turns a nextUri into an absolute URL; relative links are resolved
// against the coordinator base.
func (c *Client) resolve(next string) (string, error) {
	u, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("invalid nextUri %q: %w", next, err)
	}
	return c.base.ResolveReference(u).String(), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
