package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"

	"github.com/guillermoBallester/dqmon/internal/core/domain"
	"github.com/guillermoBallester/dqmon/internal/core/port"
	"github.com/guillermoBallester/dqmon/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- mock QueryExecutor ---

// scriptedExecutor answers by SQL text. Unknown statements return a count of 0.
type scriptedExecutor struct {
	mu      sync.Mutex
	results map[string]*domain.QueryResult
	errs    map[string]error
	calls   []domain.QueryRequest
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{
		results: map[string]*domain.QueryResult{},
		errs:    map[string]error{},
	}
}

func (m *scriptedExecutor) returns(sql string, value any) {
	m.results[sql] = &domain.QueryResult{QueryID: "q-" + sql, Rows: []domain.Row{{value}}, Polls: 2}
}

func (m *scriptedExecutor) Execute(_ context.Context, req domain.QueryRequest, _ domain.PollBudget) (*domain.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if err, ok := m.errs[req.SQL]; ok {
		return nil, err
	}
	if res, ok := m.results[req.SQL]; ok {
		return res, nil
	}
	return &domain.QueryResult{Rows: []domain.Row{{json.Number("0")}}}, nil
}

// --- recording auditor ---

type recordingAuditor struct {
	mu      sync.Mutex
	entries []port.AuditEntry
}

func (a *recordingAuditor) Record(_ context.Context, e port.AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *recordingAuditor) Close() error { return nil }

func defsFor(t *testing.T, specs ...domain.CheckSpec) []domain.CheckDefinition {
	t.Helper()
	defs, err := domain.Catalog{Checks: specs}.Build()
	require.NoError(t, err)
	return defs
}

func newTestService(exec port.QueryExecutor, validator port.QueryValidator, auditor port.QueryAuditor) *CheckService {
	session := domain.Session{Catalog: "iceberg", Schema: "demo", User: "soda", Source: "dqmon"}
	return NewCheckService(exec, validator, auditor, testLogger(), session, domain.DefaultPollBudget(), nil, nil)
}

// --- tests ---

func TestCheckService_Verdicts(t *testing.T) {
	exec := newScriptedExecutor()
	exec.returns("SELECT COUNT(*) FROM products", json.Number("5"))
	exec.returns("SELECT COUNT(*) - COUNT(DISTINCT sku) FROM products", json.Number("1"))

	defs := defsFor(t,
		domain.CheckSpec{Kind: domain.KindRowCount, Table: "products"},
		domain.CheckSpec{Kind: domain.KindUnique, Table: "products", Column: "sku"},
		domain.CheckSpec{Kind: domain.KindNotNull, Table: "products", Column: "id"},
	)
	svc := newTestService(exec, domain.NewPgQueryValidator(), nil)

	res := svc.RunSuite(context.Background(), defs)
	require.Len(t, res.Outcomes, 3)
	assert.NotEmpty(t, res.ID)
	assert.False(t, res.FinishedAt.Before(res.StartedAt))

	assert.Equal(t, domain.VerdictPass, res.Outcomes[0].Verdict)
	assert.Equal(t, 5.0, *res.Outcomes[0].Observed)

	assert.Equal(t, domain.VerdictFail, res.Outcomes[1].Verdict, "duplicates make the uniqueness check fail")
	assert.Equal(t, 1.0, *res.Outcomes[1].Observed)
	assert.False(t, res.Outcomes[1].Passed)

	assert.Equal(t, domain.VerdictPass, res.Outcomes[2].Verdict)
	assert.Equal(t, 2, res.PassedCount())
}

func TestCheckService_SessionIdentity(t *testing.T) {
	exec := newScriptedExecutor()
	svc := newTestService(exec, nil, nil)

	svc.RunSuite(context.Background(), defsFor(t, domain.CheckSpec{Kind: domain.KindNotNull, Table: "sales", Column: "qty"}))
	require.Len(t, exec.calls, 1)
	assert.Equal(t, domain.QueryRequest{
		SQL:     "SELECT COUNT(*) FROM sales WHERE qty IS NULL",
		Catalog: "iceberg",
		Schema:  "demo",
		User:    "soda",
		Source:  "dqmon",
	}, exec.calls[0])
}

func TestCheckService_ErrorIsolation(t *testing.T) {
	exec := newScriptedExecutor()
	exec.returns("SELECT COUNT(*) FROM products", json.Number("5"))
	exec.returns("SELECT COUNT(*) FROM sales", json.Number("8"))
	exec.errs["SELECT COUNT(*) FROM sales WHERE qty IS NULL"] = &domain.TransportError{StatusCode: 503, Body: "unavailable"}

	defs := defsFor(t,
		domain.CheckSpec{Kind: domain.KindRowCount, Table: "products"},
		domain.CheckSpec{Kind: domain.KindNotNull, Table: "sales", Column: "qty"},
		domain.CheckSpec{Kind: domain.KindRowCount, Table: "sales"},
	)
	svc := newTestService(exec, nil, nil)

	res := svc.RunSuite(context.Background(), defs)
	require.Len(t, res.Outcomes, 3)

	bad := res.Outcomes[1]
	assert.Equal(t, domain.VerdictError, bad.Verdict)
	assert.Nil(t, bad.Observed)
	assert.False(t, bad.Passed)
	assert.Contains(t, bad.Error, "503")

	assert.Equal(t, domain.VerdictPass, res.Outcomes[0].Verdict)
	assert.Equal(t, domain.VerdictPass, res.Outcomes[2].Verdict)
	assert.Len(t, exec.calls, 3, "the suite continues after an error")
}

func TestCheckService_ErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"timeout", &domain.TimeoutError{QueryID: "q", Polls: 50}, "timed out after 50 polls"},
		{"execution failed", &domain.ExecutionFailedError{QueryID: "q", State: domain.StateFailed, Diagnostics: "TABLE_NOT_FOUND"}, "FAILED: TABLE_NOT_FOUND"},
		{"transport", &domain.TransportError{Err: context.DeadlineExceeded}, "transport error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := newScriptedExecutor()
			exec.errs["SELECT COUNT(*) FROM t"] = tt.err
			svc := newTestService(exec, nil, nil)

			out := svc.RunCheck(context.Background(), "scan", defsFor(t, domain.CheckSpec{Kind: domain.KindRowCount, Table: "t"})[0])
			assert.Equal(t, domain.VerdictError, out.Verdict)
			assert.Contains(t, out.Error, tt.want)
		})
	}
}

func TestCheckService_ValidationRejectionSkipsExecutor(t *testing.T) {
	exec := newScriptedExecutor()
	svc := newTestService(exec, domain.NewPgQueryValidator(), nil)

	def := domain.CheckDefinition{
		Name:   "sneaky",
		Query:  "DELETE FROM sales",
		Expect: domain.ExpectZero(),
	}
	out := svc.RunCheck(context.Background(), "scan", def)
	assert.Equal(t, domain.VerdictError, out.Verdict)
	assert.Contains(t, out.Error, "validation")
	assert.Empty(t, exec.calls, "executor should not be called for rejected queries")
}

func TestCheckService_ExtractionErrors(t *testing.T) {
	exec := newScriptedExecutor()
	exec.results["SELECT COUNT(*) FROM empty"] = &domain.QueryResult{Rows: []domain.Row{}}
	exec.returns("SELECT COUNT(*) FROM text", "many")
	svc := newTestService(exec, nil, nil)

	out := svc.RunCheck(context.Background(), "scan", defsFor(t, domain.CheckSpec{Kind: domain.KindRowCount, Table: "empty"})[0])
	assert.Equal(t, domain.VerdictError, out.Verdict)
	assert.Contains(t, out.Error, "no rows")

	out = svc.RunCheck(context.Background(), "scan", defsFor(t, domain.CheckSpec{Kind: domain.KindRowCount, Table: "text"})[0])
	assert.Equal(t, domain.VerdictError, out.Verdict)
	assert.Contains(t, out.Error, "not numeric")
}

func TestCheckService_NonFiniteObservedIsError(t *testing.T) {
	const ratio = "SELECT CAST(SUM(refunds) AS DOUBLE) / SUM(sales) FROM daily"
	exec := newScriptedExecutor()
	exec.returns(ratio, "NaN")
	svc := newTestService(exec, nil, nil)

	defs := []domain.CheckDefinition{
		{Name: "daily: refund ratio", Query: ratio, Expect: domain.Expectation{Op: domain.OpLe, Value: 0.1}},
		{
			Name:    "daily: custom extractor",
			Query:   "SELECT 1",
			Expect:  domain.ExpectZero(),
			Extract: func([]domain.Row) (float64, error) { return math.Inf(1), nil },
		},
		{Name: "daily: row count", Query: "SELECT COUNT(*) FROM daily", Expect: domain.ExpectZero()},
	}
	res := svc.RunSuite(context.Background(), defs)

	require.Len(t, res.Outcomes, 3)
	for _, o := range res.Outcomes[:2] {
		assert.Equal(t, domain.VerdictError, o.Verdict, o.Name)
		assert.Nil(t, o.Observed, o.Name)
		assert.Contains(t, o.Error, "not a finite number", o.Name)
	}
	assert.Equal(t, domain.VerdictPass, res.Outcomes[2].Verdict)

	data, err := report.RenderJSON(res)
	require.NoError(t, err)
	assert.Contains(t, string(data), "daily: refund ratio")
}

func TestCheckService_PanicInExtractorIsContained(t *testing.T) {
	exec := newScriptedExecutor()
	svc := newTestService(exec, nil, nil)

	boom := domain.CheckDefinition{
		Name:    "boom",
		Query:   "SELECT 1",
		Expect:  domain.ExpectZero(),
		Extract: func([]domain.Row) (float64, error) { panic("index out of range") },
	}
	ok := defsFor(t, domain.CheckSpec{Kind: domain.KindNotNull, Table: "t", Column: "c"})[0]

	res := svc.RunSuite(context.Background(), []domain.CheckDefinition{boom, ok})
	require.Len(t, res.Outcomes, 2)
	assert.Equal(t, domain.VerdictError, res.Outcomes[0].Verdict)
	assert.Contains(t, res.Outcomes[0].Error, "panicked")
	assert.Equal(t, domain.VerdictPass, res.Outcomes[1].Verdict)
}

func TestCheckService_TenPassingChecks(t *testing.T) {
	exec := newScriptedExecutor()
	specs := make([]domain.CheckSpec, 0, 10)
	for _, col := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		specs = append(specs, domain.CheckSpec{Kind: domain.KindNotNull, Table: "t", Column: col})
	}
	svc := newTestService(exec, domain.NewPgQueryValidator(), nil)

	res := svc.RunSuite(context.Background(), defsFor(t, specs...))
	assert.Equal(t, 10, res.Total())
	assert.Equal(t, 10, res.PassedCount())
	assert.Empty(t, res.NotPassed())
}

func TestCheckService_Audit(t *testing.T) {
	exec := newScriptedExecutor()
	exec.returns("SELECT COUNT(*) FROM products", json.Number("3"))
	exec.errs["SELECT COUNT(*) FROM sales"] = &domain.TimeoutError{Polls: 50}
	auditor := &recordingAuditor{}
	svc := newTestService(exec, nil, auditor)

	res := svc.RunSuite(context.Background(), defsFor(t,
		domain.CheckSpec{Kind: domain.KindRowCount, Table: "products"},
		domain.CheckSpec{Kind: domain.KindRowCount, Table: "sales"},
	))

	require.Len(t, auditor.entries, 2)
	first := auditor.entries[0]
	assert.Equal(t, res.ID, first.ScanID)
	assert.Equal(t, "products: row count", first.Check)
	assert.Equal(t, "q-SELECT COUNT(*) FROM products", first.QueryID)
	assert.Equal(t, 1, first.RowsReturned)
	assert.Equal(t, 2, first.Polls)
	assert.NoError(t, first.Err)

	assert.ErrorIs(t, auditor.entries[1].Err, domain.ErrTimeout)
}

func TestCheckService_NilExtractorDefaultsToFirstScalar(t *testing.T) {
	exec := newScriptedExecutor()
	exec.returns("SELECT 1", json.Number("1"))
	svc := newTestService(exec, nil, nil)

	out := svc.RunCheck(context.Background(), "scan", domain.CheckDefinition{
		Name:   "one",
		Query:  "SELECT 1",
		Expect: domain.Expectation{Op: domain.OpEq, Value: 1},
	})
	assert.Equal(t, domain.VerdictPass, out.Verdict)
}
