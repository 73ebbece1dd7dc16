package query

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMockRunner(t *testing.T) (*Runner, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRunner(db, zap.NewNop()), mock
}

func TestQueryScansRowsIntoMaps(t *testing.T) {
	r, mock := newMockRunner(t)

	mock.ExpectQuery(`SELECT "users".* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).
			AddRow(1, []byte("a@example.com")).
			AddRow(2, "b@example.com"))

	rows, err := r.Query(context.Background(), `SELECT "users".* FROM "users"`, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.EqualValues(t, 1, rows[0]["id"])
	assert.Equal(t, "a@example.com", rows[0]["email"], "byte slices scan to strings")
	assert.Equal(t, "b@example.com", rows[1]["email"])
}

func TestQueryOneReturnsNilWhenEmpty(t *testing.T) {
	r, mock := newMockRunner(t)

	mock.ExpectQuery(`SELECT "users".* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	row, err := r.QueryOne(context.Background(), `SELECT "users".* FROM "users"`, nil)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestExecReportsAffectedRows(t *testing.T) {
	r, mock := newMockRunner(t)

	mock.ExpectExec(`DELETE FROM "users" WHERE "id" = $1`).
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := r.Exec(context.Background(), `DELETE FROM "users" WHERE "id" = $1`, []interface{}{1})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestExecPropagatesRowsAffectedError(t *testing.T) {
	r, mock := newMockRunner(t)

	mock.ExpectExec(`DELETE FROM "users" WHERE "id" = $1`).
		WithArgs(1).
		WillReturnResult(sqlmock.NewErrorResult(errors.New("affected rows unavailable")))

	n, err := r.Exec(context.Background(), `DELETE FROM "users" WHERE "id" = $1`, []interface{}{1})
	assert.EqualError(t, err, "affected rows unavailable")
	assert.Zero(t, n)
}
