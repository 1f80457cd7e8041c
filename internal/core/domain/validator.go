package domain

import (
	"errors"
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

var (
	ErrEmptyQuery     = errors.New("empty query")
	ErrNotAllowed     = errors.New("only SELECT queries are allowed in checks")
	ErrMultiStatement = errors.New("multiple statements are not allowed")
	ErrParseFailed    = errors.New("failed to parse SQL")
	ErrSideEffect     = errors.New("check queries must not write or lock rows")
)

// PgQueryValidator guards check queries with PostgreSQL's parser. A check is
// exactly one plain SELECT: no SELECT INTO and no FOR UPDATE/SHARE.
//
// A lenient validator accepts statements the PostgreSQL grammar cannot parse
// (ROW types, other engine-specific syntax) as long as they lexically look
// like a single SELECT or WITH query.
type PgQueryValidator struct {
	lenient bool
}

func NewPgQueryValidator() *PgQueryValidator {
	return &PgQueryValidator{}
}

// NewLenientQueryValidator is for backends whose SQL dialect is not
// PostgreSQL's.
func NewLenientQueryValidator() *PgQueryValidator {
	return &PgQueryValidator{lenient: true}
}

func (v *PgQueryValidator) Validate(sql string) error {
	stmt, err := singleStatement(sql)
	if v.lenient && errors.Is(err, ErrParseFailed) {
		return lexicalSelect(sql, err)
	}
	if err != nil {
		return err
	}

	sel, ok := stmt.Node.(*pg_query.Node_SelectStmt)
	if !ok {
		return ErrNotAllowed
	}
	if sel.SelectStmt.GetIntoClause() != nil {
		return fmt.Errorf("%w: SELECT INTO creates a table", ErrSideEffect)
	}
	if len(sel.SelectStmt.GetLockingClause()) > 0 {
		return fmt.Errorf("%w: locking clause", ErrSideEffect)
	}
	return nil
}

// singleStatement parses sql and returns its only statement.
func singleStatement(sql string) (*pg_query.Node, error) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return nil, ErrEmptyQuery
	}

	tree, err := pg_query.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	switch len(tree.GetStmts()) {
	case 0:
		return nil, ErrEmptyQuery
	case 1:
	default:
		return nil, ErrMultiStatement
	}

	stmt := tree.GetStmts()[0].GetStmt()
	if stmt == nil || stmt.Node == nil {
		return nil, ErrEmptyQuery
	}
	return stmt, nil
}

// lexicalSelect is the fallback for SQL the parser rejected: one statement
// whose first keyword is SELECT or WITH. Any semicolon other than trailing
// ones is refused, even inside a string literal.
func lexicalSelect(sql string, parseErr error) error {
	body := strings.TrimRight(strings.TrimSpace(sql), "; \t\r\n")
	if strings.Contains(body, ";") {
		return ErrMultiStatement
	}
	fields := strings.Fields(strings.TrimLeft(body, "( \t\r\n"))
	if len(fields) == 0 {
		return ErrEmptyQuery
	}
	first := strings.ToUpper(fields[0])
	if i := strings.IndexAny(first, "(*"); i > 0 {
		first = first[:i]
	}
	switch first {
	case "SELECT", "WITH":
		return nil
	default:
		return fmt.Errorf("%w: %w", ErrNotAllowed, parseErr)
	}
}
