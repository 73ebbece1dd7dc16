package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColumnLiteral(t *testing.T) {
	g := Postgres{}

	c := Col("users", "email")
	assert.Equal(t, `"users"."email"`, c.Ref(g))
	assert.Equal(t, `"users"."email"`, c.SQL(g))
	assert.Equal(t, "users.email", c.String())

	aliased := c.As("__linking")
	assert.Equal(t, `"users"."email" AS "__linking"`, aliased.SQL(g))
	assert.Equal(t, `"users"."email"`, aliased.Ref(g), "the alias never leaks into references")

	bare := Col("", "count")
	assert.Equal(t, `"count"`, bare.Ref(g))
	assert.Equal(t, "count", bare.String())
}

func TestPostgresQuoting(t *testing.T) {
	g := Postgres{}

	assert.Equal(t, `"users"`, g.QuoteIdentifier("users"))
	assert.Equal(t, "$3", g.Placeholder(3))
	assert.Equal(t, "NULL", g.QuoteValue(nil))
	assert.Equal(t, "TRUE", g.QuoteValue(true))
	assert.Equal(t, "42", g.QuoteValue(42))
	assert.Equal(t, `'it''s'`, g.QuoteValue("it's"))
}

func TestForeignKeyFor(t *testing.T) {
	assert.Equal(t, "users_id", ForeignKeyFor("users", "id"))
	assert.Equal(t, "countries_code", ForeignKeyFor("countries", "code"))
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "users", TableName("User"))
	assert.Equal(t, "blog_posts", TableName("BlogPost"))
}

func TestLinkTableName(t *testing.T) {
	assert.Equal(t, "tags_users", LinkTableName("users", "tags"))
	assert.Equal(t, "tags_users", LinkTableName("tags", "users"))
}
