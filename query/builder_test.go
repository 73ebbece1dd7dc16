package query

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marrow-orm/marrow/dialect"
)

var g = dialect.Postgres{}

func TestSelectCompilation(t *testing.T) {
	b := NewBuilder(g, "users").SelectAll("users")
	b.Where(dialect.Col("users", "email"), "a@example.com")
	b.OrderBy(dialect.Col("users", "name"), true)
	b.Limit(5)

	sql, args := b.SQL()
	assert.Equal(t, `SELECT "users".* FROM "users" WHERE "users"."email" = $1 ORDER BY "users"."name" DESC LIMIT 5`, sql)
	assert.Equal(t, []interface{}{"a@example.com"}, args)
}

func TestSelectDefaultsToAllColumns(t *testing.T) {
	sql, _ := NewBuilder(g, "users").SQL()
	assert.Equal(t, `SELECT "users".* FROM "users"`, sql)
}

func TestWhereInCompilesToAny(t *testing.T) {
	b := NewBuilder(g, "posts").SelectAll("posts")
	b.WhereIn(dialect.Col("posts", "users_id"), []interface{}{1, 2, 3})

	sql, args := b.SQL()
	assert.Equal(t, `SELECT "posts".* FROM "posts" WHERE "posts"."users_id" = ANY($1)`, sql)
	require.Len(t, args, 1)
	assert.Equal(t, pq.Array([]interface{}{1, 2, 3}), args[0])
}

func TestJoinAndAliasedColumn(t *testing.T) {
	b := NewBuilder(g, "tags").SelectAll("tags")
	b.SelectColumn(dialect.Col("tags_users", "users_id").As("__linking"))
	b.Join("tags_users", dialect.Col("tags_users", "tags_id"), dialect.Col("tags", "id"))
	b.Where(dialect.Col("tags_users", "users_id"), 1)

	sql, args := b.SQL()
	assert.Equal(t, `SELECT "tags".*, "tags_users"."users_id" AS "__linking" FROM "tags" INNER JOIN "tags_users" ON "tags_users"."tags_id" = "tags"."id" WHERE "tags_users"."users_id" = $1`, sql)
	assert.Equal(t, []interface{}{1}, args)
}

func TestWhereColumnBindsNoArgs(t *testing.T) {
	b := NewBuilder(g, "posts")
	b.WhereColumn(dialect.Col("posts", "users_id"), dialect.Col("users", "id"))

	sql, args := b.SQL()
	assert.Equal(t, `SELECT "posts".* FROM "posts" WHERE "posts"."users_id" = "users"."id"`, sql)
	assert.Empty(t, args)
}

func TestCloneIsIndependent(t *testing.T) {
	base := NewBuilder(g, "posts").SelectAll("posts")
	base.Where(dialect.Col("posts", "title"), "hello")

	clone := base.Clone()
	clone.Limit(1)

	_, baseArgs := base.SQL()
	cloneSQL, _ := clone.SQL()
	assert.Len(t, baseArgs, 1)
	assert.Contains(t, cloneSQL, "LIMIT 1")
	baseSQL, _ := base.SQL()
	assert.NotContains(t, baseSQL, "LIMIT")
}

func TestInsertWithServerDefaultsAndReturning(t *testing.T) {
	b := Insert(g, "users")
	b.Set("email", "a@example.com")
	b.Set("active", ServerDefault)
	b.Returning("id", "email", "active")

	sql, args := b.SQL()
	assert.Equal(t, `INSERT INTO "users" ("email", "active") VALUES ($1, DEFAULT) RETURNING "id", "email", "active"`, sql)
	assert.Equal(t, []interface{}{"a@example.com"}, args)
}

func TestInsertOnConflictUpdate(t *testing.T) {
	b := Insert(g, "users")
	b.Set("email", "a@example.com")
	b.Set("name", "Alice")
	b.OnConflictUpdate([]string{"email"}, []string{"name"})

	sql, _ := b.SQL()
	assert.Equal(t, `INSERT INTO "users" ("email", "name") VALUES ($1, $2) ON CONFLICT ("email") DO UPDATE SET "name" = EXCLUDED."name"`, sql)
}

func TestUpdateCompilation(t *testing.T) {
	b := Update(g, "users")
	b.Set("name", "Bob")
	b.Set("active", ServerDefault)
	b.Where("id", 1)

	sql, args := b.SQL()
	assert.Equal(t, `UPDATE "users" SET "name" = $1, "active" = DEFAULT WHERE "id" = $2`, sql)
	assert.Equal(t, []interface{}{"Bob", 1}, args)
}

func TestDeleteCompilation(t *testing.T) {
	b := Delete(g, "users")
	b.Where("id", 1)

	sql, args := b.SQL()
	assert.Equal(t, `DELETE FROM "users" WHERE "id" = $1`, sql)
	assert.Equal(t, []interface{}{1}, args)
}

func TestIsServerDefault(t *testing.T) {
	assert.True(t, IsServerDefault(ServerDefault))
	assert.False(t, IsServerDefault(nil))
	assert.False(t, IsServerDefault("DEFAULT"))
}
