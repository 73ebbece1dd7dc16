// Package dialect compiles column and table references into dialect-correct
// SQL fragments. The core consumes it through the narrow Grammar interface;
// only identifier quoting, value quoting and placeholder syntax vary per
// database vendor.
package dialect

// Grammar produces escaped, dialect-correct SQL fragments.
type Grammar interface {
	// QuoteIdentifier escapes a table or column name.
	QuoteIdentifier(name string) string
	// QuoteValue renders a scalar as a dialect-safe literal for inline
	// embedding in unbound query templates.
	QuoteValue(v interface{}) string
	// Placeholder renders the nth (1-based) bind placeholder.
	Placeholder(n int) string
}

// ColumnLiteral is a resolved (table, column) reference, optionally aliased.
// Literals are cheap values computed once per relation resolver since table
// and column names never change after structure generation.
type ColumnLiteral struct {
	Table  string
	Column string
	Alias  string
}

// Col builds a column literal bound to a table.
func Col(table, column string) ColumnLiteral {
	return ColumnLiteral{Table: table, Column: column}
}

// As returns a copy of the literal with an output alias.
func (c ColumnLiteral) As(alias string) ColumnLiteral {
	c.Alias = alias
	return c
}

// Ref compiles the quoted table-qualified reference without any alias.
func (c ColumnLiteral) Ref(g Grammar) string {
	if c.Table == "" {
		return g.QuoteIdentifier(c.Column)
	}
	return g.QuoteIdentifier(c.Table) + "." + g.QuoteIdentifier(c.Column)
}

// SQL compiles the reference including the output alias if one is set.
func (c ColumnLiteral) SQL(g Grammar) string {
	if c.Alias == "" {
		return c.Ref(g)
	}
	return c.Ref(g) + " AS " + g.QuoteIdentifier(c.Alias)
}

// String returns the unquoted table.column form, usable as a memo key.
func (c ColumnLiteral) String() string {
	if c.Table == "" {
		return c.Column
	}
	return c.Table + "." + c.Column
}
