package domain

import (
	"fmt"
	"time"
)

// Severity labels how urgent a failing check is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Valid returns true for a known severity, including the zero value.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityWarning, "":
		return true
	}
	return false
}

// Verdict is the result of one check in one scan.
type Verdict string

const (
	VerdictPass  Verdict = "PASS"
	VerdictFail  Verdict = "FAIL"
	VerdictError Verdict = "ERROR"
)

// Op is a comparison operator used by an Expectation.
type Op string

const (
	OpEq Op = "eq"
	OpNe Op = "ne"
	OpGt Op = "gt"
	OpGe Op = "ge"
	OpLt Op = "lt"
	OpLe Op = "le"
)

var opSymbols = map[Op]string{
	OpEq: "=", OpNe: "!=", OpGt: ">", OpGe: ">=", OpLt: "<", OpLe: "<=",
}

// Valid returns true if o is a recognised operator.
func (o Op) Valid() bool {
	_, ok := opSymbols[o]
	return ok
}

// Expectation is a pass predicate expressed as data: "observed <op> value".
type Expectation struct {
	Op    Op      `yaml:"op" json:"op"`
	Value float64 `yaml:"value" json:"value"`
}

// Holds evaluates the expectation against an observed value.
func (e Expectation) Holds(v float64) bool {
	switch e.Op {
	case OpEq:
		return v == e.Value
	case OpNe:
		return v != e.Value
	case OpGt:
		return v > e.Value
	case OpGe:
		return v >= e.Value
	case OpLt:
		return v < e.Value
	case OpLe:
		return v <= e.Value
	default:
		return false
	}
}

func (e Expectation) String() string {
	sym, ok := opSymbols[e.Op]
	if !ok {
		sym = string(e.Op)
	}
	return fmt.Sprintf("%s %s", sym, formatNumber(e.Value))
}

// ExpectZero is the expectation used by every "count of bad rows" check.
func ExpectZero() Expectation { return Expectation{Op: OpEq, Value: 0} }

// ExpectPositive is the expectation used by "there must be rows" checks.
func ExpectPositive() Expectation { return Expectation{Op: OpGt, Value: 0} }

// Extractor turns a query's rows into the scalar a check judges.
type Extractor func(rows []Row) (float64, error)

// CheckDefinition is one declarative data-quality rule. Definitions are built
// once at startup and shared read-only by every scan.
type CheckDefinition struct {
	Name     string
	Kind     CheckKind
	Table    string
	Column   string
	Query    string
	Extract  Extractor
	Expect   Expectation
	Severity Severity
}

// Predicate reports whether an observed value passes the check.
func (d CheckDefinition) Predicate(v float64) bool {
	return d.Expect.Holds(v)
}

// CheckOutcome is the immutable result of running one definition.
type CheckOutcome struct {
	Name     string        `json:"name"`
	Table    string        `json:"table,omitempty"`
	Severity Severity      `json:"severity,omitempty"`
	Observed *float64      `json:"observed"`
	Passed   bool          `json:"passed"`
	Verdict  Verdict       `json:"verdict"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// ScanResult aggregates the outcomes of one full pass over the catalog.
type ScanResult struct {
	ID         string         `json:"id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Outcomes   []CheckOutcome `json:"outcomes"`
}

// Total is the number of checks in the scan.
func (r ScanResult) Total() int { return len(r.Outcomes) }

// PassedCount is the number of outcomes with a PASS verdict.
func (r ScanResult) PassedCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Verdict == VerdictPass {
			n++
		}
	}
	return n
}

// NotPassed returns the outcomes whose verdict is FAIL or ERROR, in order.
func (r ScanResult) NotPassed() []CheckOutcome {
	var out []CheckOutcome
	for _, o := range r.Outcomes {
		if o.Verdict != VerdictPass {
			out = append(out, o)
		}
	}
	return out
}

// Count returns the number of outcomes with verdict v.
func (r ScanResult) Count(v Verdict) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Verdict == v {
			n++
		}
	}
	return n
}

// PlanOutcome reports whether the backend could plan one check's query.
type PlanOutcome struct {
	Name  string `json:"name"`
	Query string `json:"query"`
	Plan  string `json:"plan,omitempty"`
	Error string `json:"error,omitempty"`
}

// OK reports whether the query was planned.
func (p PlanOutcome) OK() bool { return p.Error == "" }
