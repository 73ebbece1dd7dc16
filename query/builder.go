// Package query provides the SQL building and execution collaborator for the
// marrow core: fluent select/insert/update/delete builders, a narrow Querier
// interface over database/sql, and an instrumented Runner.
package query

import (
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/marrow-orm/marrow/dialect"
)

// Row is a scanned result row keyed by column name.
type Row = map[string]interface{}

type whereClause struct {
	col      dialect.ColumnLiteral
	value    interface{}
	values   []interface{}
	right    dialect.ColumnLiteral
	isColumn bool
	isIn     bool
	isNull   bool
}

type joinClause struct {
	table string
	left  dialect.ColumnLiteral
	right dialect.ColumnLiteral
}

type orderClause struct {
	col  dialect.ColumnLiteral
	desc bool
}

// Builder assembles a SELECT statement.
type Builder struct {
	grammar dialect.Grammar
	table   string
	columns []string
	joins   []joinClause
	wheres  []whereClause
	orders  []orderClause
	limit   *int
}

// NewBuilder creates a select builder for the given table.
func NewBuilder(g dialect.Grammar, table string) *Builder {
	return &Builder{grammar: g, table: table}
}

// Clone returns an independent copy of the builder. Unbound relation query
// templates are cloned before being bound to concrete values.
func (b *Builder) Clone() *Builder {
	c := &Builder{grammar: b.grammar, table: b.table, limit: b.limit}
	c.columns = append(c.columns, b.columns...)
	c.joins = append(c.joins, b.joins...)
	c.wheres = append(c.wheres, b.wheres...)
	c.orders = append(c.orders, b.orders...)
	return c
}

// Grammar returns the builder's grammar.
func (b *Builder) Grammar() dialect.Grammar { return b.grammar }

// Table returns the builder's base table.
func (b *Builder) Table() string { return b.table }

// SelectAll selects every column of the given table.
func (b *Builder) SelectAll(table string) *Builder {
	b.columns = append(b.columns, b.grammar.QuoteIdentifier(table)+".*")
	return b
}

// SelectColumn selects a single column literal, honoring its alias.
func (b *Builder) SelectColumn(c dialect.ColumnLiteral) *Builder {
	b.columns = append(b.columns, c.SQL(b.grammar))
	return b
}

// Join adds an inner join on the equality of two column literals.
func (b *Builder) Join(table string, left, right dialect.ColumnLiteral) *Builder {
	b.joins = append(b.joins, joinClause{table: table, left: left, right: right})
	return b
}

// Where adds an equality condition against a bound value.
func (b *Builder) Where(c dialect.ColumnLiteral, value interface{}) *Builder {
	b.wheres = append(b.wheres, whereClause{col: c, value: value})
	return b
}

// WhereColumn adds an equality condition between two column literals. Used by
// unbound relation query templates where the right side is the declaring key.
func (b *Builder) WhereColumn(left, right dialect.ColumnLiteral) *Builder {
	b.wheres = append(b.wheres, whereClause{col: left, right: right, isColumn: true})
	return b
}

// WhereIn adds a batched membership condition compiled as = ANY($n).
func (b *Builder) WhereIn(c dialect.ColumnLiteral, values []interface{}) *Builder {
	b.wheres = append(b.wheres, whereClause{col: c, values: values, isIn: true})
	return b
}

// WhereNull adds an IS NULL condition.
func (b *Builder) WhereNull(c dialect.ColumnLiteral) *Builder {
	b.wheres = append(b.wheres, whereClause{col: c, isNull: true})
	return b
}

// OrderBy appends an ordering term.
func (b *Builder) OrderBy(c dialect.ColumnLiteral, desc bool) *Builder {
	b.orders = append(b.orders, orderClause{col: c, desc: desc})
	return b
}

// Limit caps the number of returned rows.
func (b *Builder) Limit(n int) *Builder {
	b.limit = &n
	return b
}

// SQL compiles the statement and its bind arguments. Placeholders are
// numbered left to right at compile time so cloned builders stay composable.
func (b *Builder) SQL() (string, []interface{}) {
	g := b.grammar
	var sb strings.Builder
	var args []interface{}
	n := 0

	sb.WriteString("SELECT ")
	if len(b.columns) == 0 {
		sb.WriteString(g.QuoteIdentifier(b.table) + ".*")
	} else {
		sb.WriteString(strings.Join(b.columns, ", "))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(g.QuoteIdentifier(b.table))

	for _, j := range b.joins {
		sb.WriteString(" INNER JOIN ")
		sb.WriteString(g.QuoteIdentifier(j.table))
		sb.WriteString(" ON ")
		sb.WriteString(j.left.Ref(g))
		sb.WriteString(" = ")
		sb.WriteString(j.right.Ref(g))
	}

	if len(b.wheres) > 0 {
		sb.WriteString(" WHERE ")
		for i, w := range b.wheres {
			if i > 0 {
				sb.WriteString(" AND ")
			}
			switch {
			case w.isColumn:
				sb.WriteString(w.col.Ref(g) + " = " + w.right.Ref(g))
			case w.isNull:
				sb.WriteString(w.col.Ref(g) + " IS NULL")
			case w.isIn:
				n++
				sb.WriteString(w.col.Ref(g) + " = ANY(" + g.Placeholder(n) + ")")
				args = append(args, pq.Array(w.values))
			default:
				n++
				sb.WriteString(w.col.Ref(g) + " = " + g.Placeholder(n))
				args = append(args, w.value)
			}
		}
	}

	if len(b.orders) > 0 {
		sb.WriteString(" ORDER BY ")
		for i, o := range b.orders {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(o.col.Ref(g))
			if o.desc {
				sb.WriteString(" DESC")
			} else {
				sb.WriteString(" ASC")
			}
		}
	}

	if b.limit != nil {
		sb.WriteString(" LIMIT " + strconv.Itoa(*b.limit))
	}

	return sb.String(), args
}
