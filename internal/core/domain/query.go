package domain

import (
	"strings"
	"time"
)

// QueryState is the lifecycle state of one submitted statement.
type QueryState int

const (
	StateQueued QueryState = iota
	StateRunning
	StateFinished
	StateFailed
	StateCanceled
	StateTimedOut
)

var stateNames = [...]string{
	StateQueued:   "QUEUED",
	StateRunning:  "RUNNING",
	StateFinished: "FINISHED",
	StateFailed:   "FAILED",
	StateCanceled: "CANCELED",
	StateTimedOut: "TIMED_OUT",
}

func (s QueryState) String() string {
	if int(s) < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Terminal reports whether no further polling can change the state.
func (s QueryState) Terminal() bool {
	return s >= StateFinished
}

// rank orders states for the monotone-advance rule. All terminal states share
// the highest rank so one terminal state never replaces another.
func (s QueryState) rank() int {
	switch {
	case s.Terminal():
		return 2
	case s == StateRunning:
		return 1
	default:
		return 0
	}
}

// ParseQueryState maps a coordinator state string onto the closed enumeration.
// Intermediate coordinator phases (PLANNING, STARTING, FINISHING, BLOCKED, ...)
// all collapse to RUNNING. TIMED_OUT is client-side only and never parsed.
func ParseQueryState(s string) QueryState {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "QUEUED", "WAITING_FOR_RESOURCES", "DISPATCHING":
		return StateQueued
	case "FINISHED":
		return StateFinished
	case "FAILED":
		return StateFailed
	case "CANCELED", "CANCELLED":
		return StateCanceled
	default:
		return StateRunning
	}
}

// Row is one result row, positional in column order.
type Row []any

// Session is the identity every query of a scan is submitted under.
type Session struct {
	Catalog string
	Schema  string
	User    string
	Source  string
}

// QueryRequest is a single statement submission.
type QueryRequest struct {
	SQL     string
	Catalog string
	Schema  string
	User    string
	Source  string
}

// Request builds a QueryRequest for sql under this session.
func (s Session) Request(sql string) QueryRequest {
	return QueryRequest{
		SQL:     sql,
		Catalog: s.Catalog,
		Schema:  s.Schema,
		User:    s.User,
		Source:  s.Source,
	}
}

// PollBudget bounds how long a client may follow continuation links.
type PollBudget struct {
	MaxPolls int
	Delay    time.Duration
}

// DefaultPollBudget is 50 polls at 200ms, i.e. at most ~10s of polling.
func DefaultPollBudget() PollBudget {
	return PollBudget{MaxPolls: 50, Delay: 200 * time.Millisecond}
}

// Window is the total wall time the budget allows for polling.
func (b PollBudget) Window() time.Duration {
	return time.Duration(b.MaxPolls) * b.Delay
}

// QueryResult is the successful outcome of a query.
type QueryResult struct {
	QueryID string
	Columns []string
	Rows    []Row
	Polls   int
}
