package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/guillermoBallester/dqmon/internal/core/domain"
	"github.com/guillermoBallester/dqmon/internal/core/port"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// sqlstateQueryCanceled is raised when statement_timeout fires.
const sqlstateQueryCanceled = "57014"

var (
	_ port.QueryExecutor  = (*Executor)(nil)
	_ port.LivenessProber = (*Executor)(nil)
)

// Executor runs check queries against a PostgreSQL-wire backend. It has no
// continuation protocol, so the poll budget is turned into a statement timeout.
type Executor struct {
	pool *pgxpool.Pool
}

func NewExecutor(pool *pgxpool.Pool) *Executor {
	return &Executor{pool: pool}
}

func (e *Executor) Execute(ctx context.Context, req domain.QueryRequest, budget domain.PollBudget) (*domain.QueryResult, error) {
	timeout := budget.Window()
	if timeout <= 0 {
		timeout = domain.DefaultPollBudget().Window()
	}
	// Leave the server a moment to cancel on its own before the client gives up.
	ctx, cancel := context.WithTimeout(ctx, timeout+time.Second)
	defer cancel()

	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, mapError(fmt.Errorf("beginning transaction: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// SET LOCAL only lasts until the transaction ends.
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%d'", timeout.Milliseconds())); err != nil {
		return nil, mapError(fmt.Errorf("setting statement timeout: %w", err))
	}
	if req.Schema != "" {
		if _, err := tx.Exec(ctx, "SELECT set_config('search_path', $1, true)", req.Schema); err != nil {
			return nil, mapError(fmt.Errorf("setting search_path: %w", err))
		}
	}

	rows, err := tx.Query(ctx, req.SQL)
	if err != nil {
		return nil, mapError(fmt.Errorf("executing query: %w", err))
	}
	defer rows.Close()

	cols, data, err := collectRows(rows)
	if err != nil {
		return nil, mapError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapError(fmt.Errorf("committing transaction: %w", err))
	}

	return &domain.QueryResult{Columns: cols, Rows: data}, nil
}

// Probe pings the pool.
func (e *Executor) Probe(ctx context.Context) error {
	if err := e.pool.Ping(ctx); err != nil {
		return &domain.TransportError{Err: err}
	}
	return nil
}

// mapError sorts pgx errors into the domain's query error taxonomy.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == sqlstateQueryCanceled {
			return &domain.TimeoutError{}
		}
		return &domain.ExecutionFailedError{
			State:       domain.StateFailed,
			Diagnostics: fmt.Sprintf("%s (SQLSTATE %s)", pgErr.Message, pgErr.Code),
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.TimeoutError{}
	}
	return &domain.TransportError{Err: err}
}
