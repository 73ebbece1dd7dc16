package marrow

import (
	"context"
	"database/sql/driver"
	"fmt"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/marrow-orm/marrow/conn"
	"github.com/marrow-orm/marrow/schema"
)

// newTestRegistry wires a registry to a sqlmock database under the default
// connection, with the fixture models registered. The mock matches SQL by
// exact string since the builders compile deterministically.
func newTestRegistry(t *testing.T) (*Registry, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mgr := conn.NewManager()
	mgr.Put(conn.DefaultConnection, db)

	reg := NewRegistry(WithConnections(mgr))
	require.NoError(t, reg.Register(testDefinitions()...))
	return reg, mock
}

func testDefinitions() []*schema.Definition {
	return []*schema.Definition{
		schema.Define("User", "users",
			schema.Column("id", schema.TypeInt).Primary(),
			schema.Column("email", schema.TypeString),
			schema.Column("name", schema.TypeString),
			schema.Column("active", schema.TypeBool),
			schema.Column("role", schema.TypeString).Enum("admin", "member").Nullable(),
			schema.Column("settings", schema.TypeJSON).Caster(JSONCasterName).Nullable().Hidden(),
			schema.Column("nickname", schema.TypeString).Default("anon"),
			schema.Column("countries_id", schema.TypeInt).ForeignKey().Nullable(),
			schema.Macro("display_name", func(o schema.Owner) (interface{}, error) {
				v, err := o.Get("name")
				if err != nil {
					return nil, err
				}
				return fmt.Sprintf("~%v~", v), nil
			}).Cached(),
			schema.Belongs("country", "Country"),
			schema.Many("posts", "Post"),
			schema.One("profile", "Profile"),
			schema.ManyToMany("tags", "Tag"),
		),

		schema.Define("Post", "posts",
			schema.Column("id", schema.TypeInt).Primary(),
			schema.Column("title", schema.TypeString),
			schema.Column("users_id", schema.TypeInt).ForeignKey().Nullable(),
			schema.Belongs("author", "User"),
		),

		schema.Define("Profile", "profiles",
			schema.Column("id", schema.TypeInt).Primary(),
			schema.Column("users_id", schema.TypeInt).ForeignKey().Nullable(),
			schema.Column("bio", schema.TypeText).Nullable(),
		),

		schema.Define("Tag", "tags",
			schema.Column("id", schema.TypeInt).Primary(),
			schema.Column("name", schema.TypeString),
		),

		schema.Define("Country", "countries",
			schema.Column("id", schema.TypeInt).Primary(),
			schema.Column("name", schema.TypeString),
			schema.ManyThrough("posts", "Post", "User"),
			schema.OneThrough("latest_post", "Post", "User"),
		),

		schema.Define("Session", "sessions",
			schema.Column("id", schema.TypeInt).Primary(),
			schema.Column("token", schema.TypeString),
		).WithSoftDelete("deleted_at"),

		schema.Define("Animal", "animals",
			schema.Column("id", schema.TypeInt).Primary(),
			schema.Column("kind", schema.TypeString),
			schema.Column("name", schema.TypeString),
			schema.Many("toys", "Toy"),
		).WithDiscriminator("kind", map[string]string{"dog": "Dog", "cat": "Cat"}),

		schema.Define("Dog", "",
			schema.Column("breed", schema.TypeString).Nullable(),
			schema.Many("bones", "Bone"),
		).WithParent("Animal"),

		schema.Define("Cat", "",
			schema.Column("lives", schema.TypeInt).Default(9),
		).WithParent("Animal"),

		schema.Define("Toy", "toys",
			schema.Column("id", schema.TypeInt).Primary(),
			schema.Column("animals_id", schema.TypeInt).ForeignKey().Nullable(),
			schema.Column("label", schema.TypeString),
		),

		schema.Define("Bone", "bones",
			schema.Column("id", schema.TypeInt).Primary(),
			schema.Column("animals_id", schema.TypeInt).ForeignKey().Nullable(),
			schema.Column("flavor", schema.TypeString),
		),
	}
}

// userColumns lists the physical columns of the User fixture in declaration
// order, matching the RETURNING clause the save path compiles.
func userColumns() []string {
	return []string{"id", "email", "name", "active", "role", "settings", "nickname", "countries_id"}
}

func userRow(id int, email, name string) []driverValue {
	return []driverValue{id, email, name, true, "member", nil, "anon", nil}
}

type driverValue = driver.Value

func mockUserRows(users ...[]driverValue) *sqlmock.Rows {
	rows := sqlmock.NewRows(userColumns())
	for _, u := range users {
		rows.AddRow(u...)
	}
	return rows
}

// mustFindUser primes one select and fetches the user through Find.
func mustFindUser(t *testing.T, reg *Registry, mock sqlmock.Sqlmock, id int) *Model {
	t.Helper()
	mock.ExpectQuery(`SELECT "users".* FROM "users" WHERE "users"."id" = $1 LIMIT 1`).
		WithArgs(id).
		WillReturnRows(mockUserRows(userRow(id, "a@example.com", "Alice")))
	m, err := reg.Find(context.Background(), "User", id)
	require.NoError(t, err)
	return m
}
