// Package schema provides the declarative surface for describing marrow models.
// A model is declared once as a Definition: its table, connection, columns,
// macros and relations. Definitions are plain values with no behavior; the
// marrow registry resolves them into immutable Structures at first use.
package schema
