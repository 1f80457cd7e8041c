package domain

// QueryHandle tracks one in-flight query across continuation pages.
//
// State only moves forward (QUEUED -> RUNNING -> terminal). Once terminal the
// continuation link is cleared and further pages are ignored.
type QueryHandle struct {
	ID        string
	NextURI   string
	State     QueryState
	Columns   []string
	Rows      []Row
	PollCount int

	// Diagnostics carries the coordinator's error text for FAILED/CANCELED.
	Diagnostics string
}

// Page is one coordinator response, already decoded.
type Page struct {
	ID          string
	NextURI     string
	State       QueryState
	Columns     []string
	Rows        []Row
	Diagnostics string
}

// NewQueryHandle creates a handle in the QUEUED state.
func NewQueryHandle() *QueryHandle {
	return &QueryHandle{State: StateQueued}
}

// Advance folds a page into the handle. Rows are appended in arrival order.
// A page that carries no continuation link and no terminal state is treated as
// completion, since the absence of nextUri is how the protocol signals the end.
func (h *QueryHandle) Advance(p Page) {
	if h.State.Terminal() {
		return
	}

	if h.ID == "" {
		h.ID = p.ID
	}
	if len(h.Columns) == 0 && len(p.Columns) > 0 {
		h.Columns = p.Columns
	}
	h.Rows = append(h.Rows, p.Rows...)

	next := p.State
	if p.NextURI == "" && !next.Terminal() {
		next = StateFinished
	}
	if next.rank() >= h.State.rank() {
		h.State = next
	}

	if h.State.Terminal() {
		h.NextURI = ""
		if p.Diagnostics != "" {
			h.Diagnostics = p.Diagnostics
		}
		return
	}
	h.NextURI = p.NextURI
}

// Expire marks the handle TIMED_OUT after the poll budget ran out.
func (h *QueryHandle) Expire() {
	if h.State.Terminal() {
		return
	}
	h.State = StateTimedOut
	h.NextURI = ""
}

// ShouldPoll reports whether another continuation request is required.
func (h *QueryHandle) ShouldPoll() bool {
	return !h.State.Terminal() && h.NextURI != ""
}

// Result converts a FINISHED handle into a QueryResult.
func (h *QueryHandle) Result() *QueryResult {
	rows := h.Rows
	if rows == nil {
		rows = []Row{}
	}
	return &QueryResult{
		QueryID: h.ID,
		Columns: h.Columns,
		Rows:    rows,
		Polls:   h.PollCount,
	}
}
