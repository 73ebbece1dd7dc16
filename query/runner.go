package query

import (
	"context"
	"database/sql"

	"github.com/VictoriaMetrics/metrics"
	"go.uber.org/zap"
)

// Querier is the narrow execution interface the core requires from its
// connection collaborator.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

var (
	queriesTotal     = metrics.NewCounter("marrow_queries_total")
	queryErrorsTotal = metrics.NewCounter("marrow_query_errors_total")

	// EagerLoadQueries counts batched relation loads issued by eager loading.
	EagerLoadQueries = metrics.NewCounter("marrow_eager_load_queries_total")
)

// Runner executes compiled statements with debug logging and counters.
type Runner struct {
	db  Querier
	log *zap.Logger
}

// NewRunner wraps a Querier. A nil logger disables logging.
func NewRunner(db Querier, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{db: db, log: log}
}

// DB returns the underlying Querier.
func (r *Runner) DB() Querier { return r.db }

// Query executes a select and scans every row.
func (r *Runner) Query(ctx context.Context, sqlStr string, args []interface{}) ([]Row, error) {
	queriesTotal.Inc()
	r.log.Debug("executing query", zap.String("sql", sqlStr), zap.Int("args", len(args)))

	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		queryErrorsTotal.Inc()
		r.log.Error("query failed", zap.String("sql", sqlStr), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	return ScanRows(rows)
}

// QueryOne executes a select and returns the first row, or nil if none.
func (r *Runner) QueryOne(ctx context.Context, sqlStr string, args []interface{}) (Row, error) {
	results, err := r.Query(ctx, sqlStr, args)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

// Exec executes a write statement and returns the affected row count.
func (r *Runner) Exec(ctx context.Context, sqlStr string, args []interface{}) (int64, error) {
	queriesTotal.Inc()
	r.log.Debug("executing statement", zap.String("sql", sqlStr), zap.Int("args", len(args)))

	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		queryErrorsTotal.Inc()
		r.log.Error("statement failed", zap.String("sql", sqlStr), zap.Error(err))
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return affected, nil
}
