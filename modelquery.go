package marrow

import (
	"context"
	"fmt"

	"github.com/marrow-orm/marrow/dialect"
	"github.com/marrow-orm/marrow/query"
)

// ModelQuery is a select builder bound to a model type: conditions are named
// by property, results hydrate into instances, and requested relations are
// batch-loaded over the whole result set.
type ModelQuery struct {
	reg       *Registry
	structure *Structure
	builder   *query.Builder
	err       error

	with    []string
	without []string
	trashed bool
}

// Err returns the first error accumulated while building the query.
func (q *ModelQuery) Err() error { return q.err }

// Where adds an equality condition on a property.
func (q *ModelQuery) Where(name string, value interface{}) *ModelQuery {
	if q.err != nil {
		return q
	}
	col, err := q.structure.Column(name)
	if err != nil {
		q.err = err
		return q
	}
	q.builder.Where(col, value)
	return q
}

// WhereIn adds a batched membership condition on a property.
func (q *ModelQuery) WhereIn(name string, values []interface{}) *ModelQuery {
	if q.err != nil {
		return q
	}
	col, err := q.structure.Column(name)
	if err != nil {
		q.err = err
		return q
	}
	q.builder.WhereIn(col, values)
	return q
}

// WhereNull adds an IS NULL condition on a property.
func (q *ModelQuery) WhereNull(name string) *ModelQuery {
	if q.err != nil {
		return q
	}
	col, err := q.structure.Column(name)
	if err != nil {
		q.err = err
		return q
	}
	q.builder.WhereNull(col)
	return q
}

// OrderBy appends an ordering term on a property.
func (q *ModelQuery) OrderBy(name string, desc bool) *ModelQuery {
	if q.err != nil {
		return q
	}
	col, err := q.structure.Column(name)
	if err != nil {
		q.err = err
		return q
	}
	q.builder.OrderBy(col, desc)
	return q
}

// Limit caps the number of returned instances.
func (q *ModelQuery) Limit(n int) *ModelQuery {
	if q.err != nil {
		return q
	}
	q.builder.Limit(n)
	return q
}

// With requests the named relations to be eager-loaded over the result set.
func (q *ModelQuery) With(names ...string) *ModelQuery {
	q.with = append(q.with, names...)
	return q
}

// Without suppresses eager loading for the named relations, including ones
// declared always-eager.
func (q *ModelQuery) Without(names ...string) *ModelQuery {
	q.without = append(q.without, names...)
	return q
}

// WithTrashed includes soft-deleted rows in the results.
func (q *ModelQuery) WithTrashed() *ModelQuery {
	q.trashed = true
	return q
}

// All executes the query, hydrates every row and batch-loads the requested
// relations before returning.
func (q *ModelQuery) All(ctx context.Context) ([]*Model, error) {
	if q.err != nil {
		return nil, q.err
	}

	// The soft-delete column need not be a declared property, so the literal
	// is built against the table directly.
	if col := q.structure.softDelete(); col != "" && !q.trashed {
		q.builder.WhereNull(dialect.Col(q.structure.Table, col))
	}

	runner, err := q.reg.runnerFor(q.structure)
	if err != nil {
		return nil, err
	}
	sqlStr, args := q.builder.SQL()
	rows, err := runner.Query(ctx, sqlStr, args)
	if err != nil {
		return nil, ConvertDBError(err)
	}

	models := make([]*Model, 0, len(rows))
	for _, row := range rows {
		m, err := q.reg.hydrate(q.structure, row)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}

	if err := q.structure.EagerLoadRelations(ctx, models, q.with, q.without); err != nil {
		return nil, err
	}
	return models, nil
}

// First executes the query with a limit of one. Returns ErrNotFound when no
// row matches.
func (q *ModelQuery) First(ctx context.Context) (*Model, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.builder.Limit(1)
	models, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, q.structure.Name)
	}
	return models[0], nil
}
