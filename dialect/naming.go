package dialect

import (
	"sort"

	"github.com/go-openapi/inflect"
)

// ForeignKeyFor returns the conventional foreign-key column name for a table,
// following the {owningTable}_{owningPrimaryKeyColumn} pattern.
func ForeignKeyFor(table, column string) string {
	return table + "_" + column
}

// TableName derives a table name from a model name: snake_case, pluralized.
func TableName(model string) string {
	return inflect.Pluralize(inflect.Underscore(model))
}

// SnakeCase converts a model or property name to snake_case.
func SnakeCase(s string) string {
	return inflect.Underscore(s)
}

// LinkTableName derives the default linking table for a many-to-many
// relation: the two base table names sorted lexicographically, joined by "_".
func LinkTableName(a, b string) string {
	tables := []string{a, b}
	sort.Strings(tables)
	return tables[0] + "_" + tables[1]
}
