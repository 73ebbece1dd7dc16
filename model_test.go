package marrow

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapSerializesVisibleProperties(t *testing.T) {
	reg, mock := newTestRegistry(t)

	m := mustFindUser(t, reg, mock, 1)

	out, err := m.Map()
	require.NoError(t, err)

	assert.EqualValues(t, 1, out["id"])
	assert.Equal(t, "Alice", out["name"])
	assert.Equal(t, "~Alice~", out["display_name"], "macros serialize through Get")
	assert.Equal(t, true, out["active"])
	assert.NotContains(t, out, "settings", "declared hidden properties are excluded")
	assert.NotContains(t, out, "posts", "unloaded relations are excluded")
}

func TestMapVisibilityOverrides(t *testing.T) {
	reg, mock := newTestRegistry(t)

	m := mustFindUser(t, reg, mock, 1)

	out, err := m.MakeVisible("settings").MakeHidden("email").Map()
	require.NoError(t, err)
	assert.Contains(t, out, "settings")
	assert.NotContains(t, out, "email")

	only, err := m.Only("id", "name").Map()
	require.NoError(t, err)
	assert.Len(t, only, 2)
	assert.Contains(t, only, "id")
	assert.Contains(t, only, "name")

	// The overrides fork a view; the original façade is untouched.
	base, err := m.Map()
	require.NoError(t, err)
	assert.NotContains(t, base, "settings")
	assert.Contains(t, base, "email")
}

func TestMapNestsLoadedRelations(t *testing.T) {
	reg, mock := newTestRegistry(t)

	mock.ExpectQuery(`SELECT "users".* FROM "users"`).
		WillReturnRows(mockUserRows(userRow(1, "a@example.com", "Alice")))
	mock.ExpectQuery(`SELECT "posts".* FROM "posts" WHERE "posts"."users_id" = ANY($1)`).
		WithArgs(pq.Array([]interface{}{1})).
		WillReturnRows(sqlmock.NewRows(postColumns()).AddRow(10, "hello", 1))

	users, err := reg.Select("User").With("posts").All(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)

	out, err := users[0].Map()
	require.NoError(t, err)

	posts, ok := out["posts"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, posts, 1)
	assert.Equal(t, "hello", posts[0]["title"])
}

func TestPolymorphicHydrationDispatchesOnDiscriminator(t *testing.T) {
	reg, mock := newTestRegistry(t)

	mock.ExpectQuery(`SELECT "animals".* FROM "animals"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "name"}).
			AddRow(1, "dog", "Rex").
			AddRow(2, "cat", "Misu"))

	animals, err := reg.Select("Animal").All(context.Background())
	require.NoError(t, err)
	require.Len(t, animals, 2)

	assert.Equal(t, "Dog", animals[0].Structure().Name)
	assert.Equal(t, "Cat", animals[1].Structure().Name)

	// Subtype defaults apply to hydrated parents.
	lives, err := animals[1].Get("lives")
	require.NoError(t, err)
	assert.Equal(t, 9, lives)

	// A subtype fetch shares the base keyspace in the identity cache.
	found, err := reg.Find(context.Background(), "Animal", 1)
	require.NoError(t, err)
	assert.Same(t, animals[0].Backbone(), found.Backbone())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPolymorphicHydrationRejectsUnknownDiscriminator(t *testing.T) {
	reg, mock := newTestRegistry(t)

	mock.ExpectQuery(`SELECT "animals".* FROM "animals"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "name"}).
			AddRow(1, "ferret", "Slinky"))

	_, err := reg.Select("Animal").All(context.Background())
	assert.ErrorIs(t, err, ErrMissingDiscriminator)
}

func TestPolymorphicEagerLoadSpansSubtypes(t *testing.T) {
	reg, mock := newTestRegistry(t)

	mock.ExpectQuery(`SELECT "animals".* FROM "animals"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "name"}).
			AddRow(1, "dog", "Rex").
			AddRow(2, "cat", "Misu"))
	mock.ExpectQuery(`SELECT "toys".* FROM "toys" WHERE "toys"."animals_id" = ANY($1)`).
		WithArgs(pq.Array([]interface{}{1, 2})).
		WillReturnRows(sqlmock.NewRows([]string{"id", "animals_id", "label"}).
			AddRow(50, 1, "ball").
			AddRow(51, 2, "mouse"))

	animals, err := reg.Select("Animal").With("toys").All(context.Background())
	require.NoError(t, err)
	require.Len(t, animals, 2)

	for _, a := range animals {
		v, err := a.Get("toys")
		require.NoError(t, err)
		assert.Len(t, v.([]*Model), 1)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubtypeSelectBatchesOwnRelationOnce(t *testing.T) {
	reg, mock := newTestRegistry(t)

	// Exactly one batched query: the per-subtype pass and the subtype's own
	// pass must not both load the same relation.
	mock.ExpectQuery(`SELECT "animals".* FROM "animals"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "name", "breed"}).
			AddRow(1, "dog", "Rex", "corgi"))
	mock.ExpectQuery(`SELECT "bones".* FROM "bones" WHERE "bones"."animals_id" = ANY($1)`).
		WithArgs(pq.Array([]interface{}{1})).
		WillReturnRows(sqlmock.NewRows([]string{"id", "animals_id", "flavor"}).
			AddRow(70, 1, "beef"))

	dogs, err := reg.Select("Dog").With("bones").All(context.Background())
	require.NoError(t, err)
	require.Len(t, dogs, 1)

	v, err := dogs[0].Get("bones")
	require.NoError(t, err)
	assert.Len(t, v.([]*Model), 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubtypeSelectRejectsSiblingRows(t *testing.T) {
	reg, mock := newTestRegistry(t)

	mock.ExpectQuery(`SELECT "animals".* FROM "animals"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "name"}).
			AddRow(3, "cat", "Misu"))

	_, err := reg.Select("Dog").All(context.Background())
	assert.ErrorIs(t, err, ErrMissingDiscriminator)
}
