package marrow

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectFiltersSoftDeletedRows(t *testing.T) {
	reg, mock := newTestRegistry(t)

	mock.ExpectQuery(`SELECT "sessions".* FROM "sessions" WHERE "sessions"."deleted_at" IS NULL`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "token"}).AddRow(1, "abc"))

	sessions, err := reg.Select("Session").All(context.Background())
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectWithTrashedSkipsFilter(t *testing.T) {
	reg, mock := newTestRegistry(t)

	mock.ExpectQuery(`SELECT "sessions".* FROM "sessions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "token"}))

	_, err := reg.Select("Session").WithTrashed().All(context.Background())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDestroySoftDeletes(t *testing.T) {
	reg, mock := newTestRegistry(t)

	mock.ExpectQuery(`SELECT "sessions".* FROM "sessions" WHERE "sessions"."id" = $1 LIMIT 1`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "token"}).AddRow(1, "abc"))
	s, err := reg.Find(context.Background(), "Session", 1)
	require.NoError(t, err)

	mock.ExpectExec(`UPDATE "sessions" SET "deleted_at" = $1 WHERE "id" = $2`).
		WithArgs(sqlmock.AnyArg(), 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Destroy(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWhereCompilesAgainstPhysicalColumns(t *testing.T) {
	reg, mock := newTestRegistry(t)

	mock.ExpectQuery(`SELECT "users".* FROM "users" WHERE "users"."email" = $1 ORDER BY "users"."name" ASC LIMIT 10`).
		WithArgs("a@example.com").
		WillReturnRows(mockUserRows(userRow(1, "a@example.com", "Alice")))

	users, err := reg.Select("User").
		Where("email", "a@example.com").
		OrderBy("name", false).
		Limit(10).
		All(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFirstReturnsNotFound(t *testing.T) {
	reg, mock := newTestRegistry(t)

	mock.ExpectQuery(`SELECT "users".* FROM "users" WHERE "users"."email" = $1 LIMIT 1`).
		WithArgs("nobody@example.com").
		WillReturnRows(mockUserRows())

	_, err := reg.Select("User").Where("email", "nobody@example.com").First(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWhereUnknownPropertyFailsTheQuery(t *testing.T) {
	reg, _ := newTestRegistry(t)

	q := reg.Select("User").Where("no_such_property", 1)
	require.Error(t, q.Err())

	_, err := q.All(context.Background())
	assert.ErrorIs(t, err, ErrMissingProperty)
}

func TestFindValidatesKeyArity(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Find(context.Background(), "User", 1, 2)
	assert.ErrorIs(t, err, ErrInvalidColumn)
}

func TestFindReturnsNotFound(t *testing.T) {
	reg, mock := newTestRegistry(t)

	mock.ExpectQuery(`SELECT "users".* FROM "users" WHERE "users"."id" = $1 LIMIT 1`).
		WithArgs(404).
		WillReturnRows(mockUserRows())

	_, err := reg.Find(context.Background(), "User", 404)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsNotFound(err))
}
