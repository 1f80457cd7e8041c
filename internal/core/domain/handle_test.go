package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQueryState(t *testing.T) {
	t.Parallel()
	tests := map[string]QueryState{
		"":                      StateQueued,
		"QUEUED":                StateQueued,
		"WAITING_FOR_RESOURCES": StateQueued,
		"DISPATCHING":           StateQueued,
		"PLANNING":              StateRunning,
		"STARTING":              StateRunning,
		"RUNNING":               StateRunning,
		"FINISHING":             StateRunning,
		"running":               StateRunning,
		"FINISHED":              StateFinished,
		" finished ":            StateFinished,
		"FAILED":                StateFailed,
		"CANCELED":              StateCanceled,
		"CANCELLED":             StateCanceled,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseQueryState(in), "ParseQueryState(%q)", in)
	}
}

func TestQueryState_Terminal(t *testing.T) {
	t.Parallel()
	assert.False(t, StateQueued.Terminal())
	assert.False(t, StateRunning.Terminal())
	assert.True(t, StateFinished.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.True(t, StateCanceled.Terminal())
	assert.True(t, StateTimedOut.Terminal())

	assert.Equal(t, "TIMED_OUT", StateTimedOut.String())
	assert.Equal(t, "UNKNOWN", QueryState(42).String())
}

func TestQueryHandle_AdvanceAccumulatesRows(t *testing.T) {
	t.Parallel()
	h := NewQueryHandle()
	assert.Equal(t, StateQueued, h.State)

	h.Advance(Page{ID: "q1", NextURI: "/v1/statement/q1/1", State: StateQueued})
	assert.True(t, h.ShouldPoll())
	assert.Equal(t, "q1", h.ID)

	h.Advance(Page{NextURI: "/v1/statement/q1/2", State: StateRunning, Columns: []string{"n"}, Rows: []Row{{1}}})
	h.Advance(Page{NextURI: "/v1/statement/q1/3", State: StateRunning, Rows: []Row{{2}, {3}}})
	h.Advance(Page{State: StateFinished, Columns: []string{"ignored"}})

	assert.Equal(t, StateFinished, h.State)
	assert.False(t, h.ShouldPoll())
	assert.Empty(t, h.NextURI)
	assert.Equal(t, []string{"n"}, h.Columns)
	assert.Equal(t, []Row{{1}, {2}, {3}}, h.Rows)
}

func TestQueryHandle_StateNeverRegresses(t *testing.T) {
	t.Parallel()
	h := NewQueryHandle()
	h.Advance(Page{ID: "q", NextURI: "/n/1", State: StateRunning})
	h.Advance(Page{NextURI: "/n/2", State: StateQueued})

	assert.Equal(t, StateRunning, h.State)
	assert.Equal(t, "/n/2", h.NextURI, "the link still advances")
}

func TestQueryHandle_MissingNextURIMeansFinished(t *testing.T) {
	t.Parallel()
	h := NewQueryHandle()
	h.Advance(Page{ID: "q", State: StateRunning, Rows: []Row{{7}}})

	assert.Equal(t, StateFinished, h.State)
	assert.False(t, h.ShouldPoll())
}

func TestQueryHandle_TerminalIgnoresLaterPages(t *testing.T) {
	t.Parallel()
	h := NewQueryHandle()
	h.Advance(Page{ID: "q", State: StateFailed, Diagnostics: "SYNTAX_ERROR: boom"})
	h.Advance(Page{ID: "other", State: StateFinished, Rows: []Row{{1}}})

	assert.Equal(t, StateFailed, h.State)
	assert.Equal(t, "q", h.ID)
	assert.Empty(t, h.Rows)
	assert.Equal(t, "SYNTAX_ERROR: boom", h.Diagnostics)
}

func TestQueryHandle_Expire(t *testing.T) {
	t.Parallel()
	h := NewQueryHandle()
	h.Advance(Page{ID: "q", NextURI: "/n/1", State: StateRunning})
	h.Expire()
	assert.Equal(t, StateTimedOut, h.State)
	assert.False(t, h.ShouldPoll())

	done := NewQueryHandle()
	done.Advance(Page{ID: "q", State: StateFinished})
	done.Expire()
	assert.Equal(t, StateFinished, done.State, "a terminal handle does not expire")
}

func TestQueryHandle_ResultNeverNilRows(t *testing.T) {
	t.Parallel()
	h := NewQueryHandle()
	h.Advance(Page{ID: "q", State: StateFinished})
	h.PollCount = 3

	res := h.Result()
	require.NotNil(t, res.Rows)
	assert.Empty(t, res.Rows)
	assert.Equal(t, "q", res.QueryID)
	assert.Equal(t, 3, res.Polls)
}

func TestPollBudget(t *testing.T) {
	t.Parallel()
	b := DefaultPollBudget()
	assert.Equal(t, 50, b.MaxPolls)
	assert.Equal(t, "10s", b.Window().String())
}

func TestSession_Request(t *testing.T) {
	t.Parallel()
	s := Session{Catalog: "iceberg", Schema: "demo", User: "soda", Source: "dqmon"}
	req := s.Request("SELECT 1")
	assert.Equal(t, QueryRequest{SQL: "SELECT 1", Catalog: "iceberg", Schema: "demo", User: "soda", Source: "dqmon"}, req)
}
