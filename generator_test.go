package marrow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marrow-orm/marrow/schema"
)

func newDefRegistry(t *testing.T, defs ...*schema.Definition) *Registry {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.Register(defs...))
	return reg
}

func TestStructureForBuildsUserStructure(t *testing.T) {
	reg := newDefRegistry(t, testDefinitions()...)

	s, err := reg.StructureFor("User")
	require.NoError(t, err)

	assert.Equal(t, "User", s.Name)
	assert.Equal(t, "users", s.Table)
	assert.Equal(t, "default", s.Connection)
	assert.Len(t, s.Properties, 13)

	require.Len(t, s.PrimaryKey, 1)
	assert.Equal(t, "id", s.PrimaryKey[0].Key)
	assert.True(t, s.PrimaryKey[0].Immutable, "primary implies immutable")

	active, err := s.Property("active")
	require.NoError(t, err)
	assert.Equal(t, BoolCasterName, active.Caster, "bool columns get the implicit caster")

	role, err := s.Property("role")
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "member"}, role.EnumValues)

	display, err := s.Property("display_name")
	require.NoError(t, err)
	assert.Equal(t, schema.KindMacro, display.Kind)
	assert.True(t, display.MacroCached)

	posts, err := s.Property("posts")
	require.NoError(t, err)
	assert.Equal(t, schema.KindRelation, posts.Kind)
	assert.Equal(t, schema.HasMany, posts.Rel.Kind)
}

func TestStructureForIsMemoized(t *testing.T) {
	reg := newDefRegistry(t, testDefinitions()...)

	a, err := reg.StructureFor("User")
	require.NoError(t, err)
	b, err := reg.StructureFor("User")
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestStructureForUnknownModel(t *testing.T) {
	reg := newDefRegistry(t)

	_, err := reg.StructureFor("Ghost")
	assert.ErrorIs(t, err, ErrNotAModel)
}

func TestStructureForDerivesTableFromName(t *testing.T) {
	reg := newDefRegistry(t, schema.Define("BlogPost", "",
		schema.Column("id", schema.TypeInt).Primary(),
	))

	s, err := reg.StructureFor("BlogPost")
	require.NoError(t, err)
	assert.Equal(t, "blog_posts", s.Table, "table derived from the model name")
}

func TestPropertyLookupByNameAliasAndKey(t *testing.T) {
	reg := newDefRegistry(t, schema.Define("Doc", "docs",
		schema.Column("id", schema.TypeInt).Primary(),
		schema.Column("body", schema.TypeText).Key("body_text").Aliased(),
	))

	s, err := reg.StructureFor("Doc")
	require.NoError(t, err)

	body, err := s.Property("body")
	require.NoError(t, err)
	assert.Equal(t, "body_text", body.Key)
	assert.Equal(t, "body_text", body.Alias, "unnamed alias defaults to the key")

	byKey, err := s.Property("body_text")
	require.NoError(t, err)
	assert.Same(t, body, byKey)

	_, err = s.Property("missing")
	assert.ErrorIs(t, err, ErrMissingProperty)
}

func TestCollisionBetweenNameAndAlias(t *testing.T) {
	reg := newDefRegistry(t, schema.Define("Clash", "clashes",
		schema.Column("status", schema.TypeString),
		schema.Column("state", schema.TypeString).Alias("status"),
	))

	_, err := reg.StructureFor("Clash")
	assert.ErrorIs(t, err, ErrInvalidColumn)
}

func TestClassifyRelationWinsOverColumn(t *testing.T) {
	d := &schema.Descriptor{
		Name:       "owner",
		IsColumn:   true,
		IsRelation: true,
		Relation:   &schema.RelationDescriptor{Kind: schema.BelongsTo, Target: "User"},
	}

	p, ok, err := classify(d)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, schema.KindRelation, p.Kind)
}

func TestClassifyMacroWithoutCallback(t *testing.T) {
	_, _, err := classify(&schema.Descriptor{Name: "broken", IsMacro: true})
	assert.ErrorIs(t, err, ErrInvalidMacro)
}

func TestClassifySkipsUnmarkedDescriptor(t *testing.T) {
	_, ok, err := classify(&schema.Descriptor{Name: "phantom"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPolymorphicStructure(t *testing.T) {
	reg := newDefRegistry(t, testDefinitions()...)

	animal, err := reg.StructureFor("Animal")
	require.NoError(t, err)
	require.NotNil(t, animal.Polymorphic)
	assert.Equal(t, "kind", animal.Polymorphic.Column)
	assert.Len(t, animal.Polymorphic.Subtypes, 2)

	dog, err := reg.StructureFor("Dog")
	require.NoError(t, err)
	assert.Same(t, animal.Polymorphic.Subtypes["dog"], dog)
	assert.Equal(t, "animals", dog.Table, "table inherited from the base")
	assert.Same(t, animal, dog.Parent)
	assert.Same(t, animal, dog.base())

	// Parent properties come first, own properties after.
	require.Len(t, dog.Properties, 6)
	assert.Equal(t, "id", dog.Properties[0].Name)
	own := dog.ownProperties()
	require.Len(t, own, 2)
	assert.Equal(t, "breed", own[0].Name)
	assert.Equal(t, "bones", own[1].Name)

	col, value, ok := dog.discriminatorFor("Dog")
	require.True(t, ok)
	assert.Equal(t, "kind", col)
	assert.Equal(t, "dog", value)
}

func TestColumnLiteralResolution(t *testing.T) {
	reg := newDefRegistry(t, testDefinitions()...)

	s, err := reg.StructureFor("User")
	require.NoError(t, err)

	lit, err := s.Column("email")
	require.NoError(t, err)
	assert.Equal(t, "users", lit.Table)
	assert.Equal(t, "email", lit.Column)

	joined, err := s.Column("email", "u2")
	require.NoError(t, err)
	assert.Equal(t, "u2", joined.Table)

	_, err = s.Column("display_name")
	assert.ErrorIs(t, err, ErrInvalidColumn, "macros do not compile to columns")

	pk, err := s.RelationPrimaryKey()
	require.NoError(t, err)
	assert.Equal(t, "users.id", pk.String())
}
