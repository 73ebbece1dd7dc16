package query

import (
	"strings"

	"github.com/marrow-orm/marrow/dialect"
)

// serverDefault is the marker compiled to the DEFAULT keyword so the database
// applies its own column default or auto-increment.
type serverDefault struct{}

// ServerDefault is the value marker for server-side defaults.
var ServerDefault = serverDefault{}

// IsServerDefault reports whether v is the server-default marker.
func IsServerDefault(v interface{}) bool {
	_, ok := v.(serverDefault)
	return ok
}

type assignment struct {
	column string
	value  interface{}
}

// InsertBuilder assembles an INSERT ... RETURNING statement.
type InsertBuilder struct {
	grammar     dialect.Grammar
	table       string
	sets        []assignment
	conflictOn  []string
	conflictSet []string
	returning   []string
}

// Insert creates an insert builder for the given table.
func Insert(g dialect.Grammar, table string) *InsertBuilder {
	return &InsertBuilder{grammar: g, table: table}
}

// Set assigns a column value. Pass ServerDefault to compile DEFAULT.
func (b *InsertBuilder) Set(column string, value interface{}) *InsertBuilder {
	b.sets = append(b.sets, assignment{column: column, value: value})
	return b
}

// OnConflictUpdate adds an ON CONFLICT (target) DO UPDATE clause assigning
// each update column from its excluded value.
func (b *InsertBuilder) OnConflictUpdate(target []string, update []string) *InsertBuilder {
	b.conflictOn = target
	b.conflictSet = update
	return b
}

// Returning appends columns to the RETURNING clause.
func (b *InsertBuilder) Returning(columns ...string) *InsertBuilder {
	b.returning = append(b.returning, columns...)
	return b
}

// SQL compiles the statement and its bind arguments.
func (b *InsertBuilder) SQL() (string, []interface{}) {
	g := b.grammar
	var args []interface{}
	n := 0

	cols := make([]string, 0, len(b.sets))
	vals := make([]string, 0, len(b.sets))
	for _, s := range b.sets {
		cols = append(cols, g.QuoteIdentifier(s.column))
		if IsServerDefault(s.value) {
			vals = append(vals, "DEFAULT")
			continue
		}
		n++
		vals = append(vals, g.Placeholder(n))
		args = append(args, s.value)
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(g.QuoteIdentifier(b.table))
	sb.WriteString(" (" + strings.Join(cols, ", ") + ")")
	sb.WriteString(" VALUES (" + strings.Join(vals, ", ") + ")")

	if len(b.conflictOn) > 0 && len(b.conflictSet) > 0 {
		targets := make([]string, 0, len(b.conflictOn))
		for _, c := range b.conflictOn {
			targets = append(targets, g.QuoteIdentifier(c))
		}
		updates := make([]string, 0, len(b.conflictSet))
		for _, c := range b.conflictSet {
			q := g.QuoteIdentifier(c)
			updates = append(updates, q+" = EXCLUDED."+q)
		}
		sb.WriteString(" ON CONFLICT (" + strings.Join(targets, ", ") + ")")
		sb.WriteString(" DO UPDATE SET " + strings.Join(updates, ", "))
	}

	if len(b.returning) > 0 {
		rets := make([]string, 0, len(b.returning))
		for _, c := range b.returning {
			rets = append(rets, g.QuoteIdentifier(c))
		}
		sb.WriteString(" RETURNING " + strings.Join(rets, ", "))
	}

	return sb.String(), args
}

// UpdateBuilder assembles an UPDATE statement.
type UpdateBuilder struct {
	grammar dialect.Grammar
	table   string
	sets    []assignment
	wheres  []assignment
}

// Update creates an update builder for the given table.
func Update(g dialect.Grammar, table string) *UpdateBuilder {
	return &UpdateBuilder{grammar: g, table: table}
}

// Set assigns a column value. Pass ServerDefault to compile DEFAULT.
func (b *UpdateBuilder) Set(column string, value interface{}) *UpdateBuilder {
	b.sets = append(b.sets, assignment{column: column, value: value})
	return b
}

// Where adds an equality condition.
func (b *UpdateBuilder) Where(column string, value interface{}) *UpdateBuilder {
	b.wheres = append(b.wheres, assignment{column: column, value: value})
	return b
}

// SQL compiles the statement and its bind arguments.
func (b *UpdateBuilder) SQL() (string, []interface{}) {
	g := b.grammar
	var args []interface{}
	n := 0

	sets := make([]string, 0, len(b.sets))
	for _, s := range b.sets {
		if IsServerDefault(s.value) {
			sets = append(sets, g.QuoteIdentifier(s.column)+" = DEFAULT")
			continue
		}
		n++
		sets = append(sets, g.QuoteIdentifier(s.column)+" = "+g.Placeholder(n))
		args = append(args, s.value)
	}

	wheres := make([]string, 0, len(b.wheres))
	for _, w := range b.wheres {
		n++
		wheres = append(wheres, g.QuoteIdentifier(w.column)+" = "+g.Placeholder(n))
		args = append(args, w.value)
	}

	sql := "UPDATE " + g.QuoteIdentifier(b.table) + " SET " + strings.Join(sets, ", ")
	if len(wheres) > 0 {
		sql += " WHERE " + strings.Join(wheres, " AND ")
	}
	return sql, args
}

// DeleteBuilder assembles a DELETE statement.
type DeleteBuilder struct {
	grammar dialect.Grammar
	table   string
	wheres  []assignment
}

// Delete creates a delete builder for the given table.
func Delete(g dialect.Grammar, table string) *DeleteBuilder {
	return &DeleteBuilder{grammar: g, table: table}
}

// Where adds an equality condition.
func (b *DeleteBuilder) Where(column string, value interface{}) *DeleteBuilder {
	b.wheres = append(b.wheres, assignment{column: column, value: value})
	return b
}

// SQL compiles the statement and its bind arguments.
func (b *DeleteBuilder) SQL() (string, []interface{}) {
	g := b.grammar
	var args []interface{}
	wheres := make([]string, 0, len(b.wheres))
	for i, w := range b.wheres {
		wheres = append(wheres, g.QuoteIdentifier(w.column)+" = "+g.Placeholder(i+1))
		args = append(args, w.value)
	}
	sql := "DELETE FROM " + g.QuoteIdentifier(b.table)
	if len(wheres) > 0 {
		sql += " WHERE " + strings.Join(wheres, " AND ")
	}
	return sql, args
}
