package schema

// RelationKind identifies a relation resolution strategy. The seven built-in
// kinds form a closed set; values at or above KindCustomBase dispatch to a
// factory registered on the marrow registry.
type RelationKind int

const (
	BelongsTo RelationKind = iota
	HasOne
	HasMany
	BelongsToMany
	BelongsToThrough
	HasManyThrough
	HasOneThrough

	// KindCustomBase is the first value available for user-defined kinds.
	KindCustomBase RelationKind = 100
)

// String returns the string representation of the relation kind.
func (k RelationKind) String() string {
	switch k {
	case BelongsTo:
		return "belongs_to"
	case HasOne:
		return "has_one"
	case HasMany:
		return "has_many"
	case BelongsToMany:
		return "belongs_to_many"
	case BelongsToThrough:
		return "belongs_to_through"
	case HasManyThrough:
		return "has_many_through"
	case HasOneThrough:
		return "has_one_through"
	default:
		return "custom"
	}
}

// RelationDescriptor configures one relation property.
type RelationDescriptor struct {
	Kind   RelationKind
	Target string

	// ForeignKey overrides the declaring-side key column; OwnerKey overrides
	// the reference-side key column. Both default to the conventional
	// foreign-key name derived from the relevant table and primary key.
	ForeignKey string
	OwnerKey   string

	// Through names the linking model for the three-hop kinds.
	Through string

	// LinkTable, LinkForeignKey and LinkOwnerKey configure the linking table
	// of a belongs-to-many relation. The table defaults to the two base table
	// names sorted lexicographically and joined with "_".
	LinkTable      string
	LinkForeignKey string
	LinkOwnerKey   string

	OrderBy   string
	OrderDesc bool

	// Eager marks the relation for automatic batch loading on select.
	Eager bool
}

// RelationBuilder declares a relation property.
type RelationBuilder struct {
	d Descriptor
}

func newRelation(name, target string, kind RelationKind) *RelationBuilder {
	return &RelationBuilder{d: Descriptor{
		Name:       name,
		IsRelation: true,
		Relation: &RelationDescriptor{
			Kind:   kind,
			Target: target,
		},
	}}
}

// Belongs declares a many-to-one relation; the declaring side holds the
// foreign key.
func Belongs(name, target string) *RelationBuilder {
	return newRelation(name, target, BelongsTo)
}

// One declares a one-to-one relation; the reference side holds the foreign
// key pointing back at the declaring model.
func One(name, target string) *RelationBuilder {
	return newRelation(name, target, HasOne)
}

// Many declares a one-to-many relation.
func Many(name, target string) *RelationBuilder {
	return newRelation(name, target, HasMany)
}

// ManyToMany declares a many-to-many relation through a linking table.
func ManyToMany(name, target string) *RelationBuilder {
	return newRelation(name, target, BelongsToMany)
}

// BelongsThrough declares a three-hop many-to-one relation via a linking model.
func BelongsThrough(name, target, through string) *RelationBuilder {
	b := newRelation(name, target, BelongsToThrough)
	b.d.Relation.Through = through
	return b
}

// ManyThrough declares a three-hop one-to-many relation via a linking model.
func ManyThrough(name, target, through string) *RelationBuilder {
	b := newRelation(name, target, HasManyThrough)
	b.d.Relation.Through = through
	return b
}

// OneThrough declares a three-hop one-to-one relation via a linking model.
func OneThrough(name, target, through string) *RelationBuilder {
	b := newRelation(name, target, HasOneThrough)
	b.d.Relation.Through = through
	return b
}

// Custom declares a relation resolved by a factory registered for kind.
func Custom(name, target string, kind RelationKind) *RelationBuilder {
	return newRelation(name, target, kind)
}

// ForeignKey overrides the declaring-side key column.
func (b *RelationBuilder) ForeignKey(column string) *RelationBuilder {
	b.d.Relation.ForeignKey = column
	return b
}

// OwnerKey overrides the reference-side key column.
func (b *RelationBuilder) OwnerKey(column string) *RelationBuilder {
	b.d.Relation.OwnerKey = column
	return b
}

// LinkTable overrides the linking table of a belongs-to-many relation.
func (b *RelationBuilder) LinkTable(table string) *RelationBuilder {
	b.d.Relation.LinkTable = table
	return b
}

// LinkForeignKey overrides the declaring-linking key column.
func (b *RelationBuilder) LinkForeignKey(column string) *RelationBuilder {
	b.d.Relation.LinkForeignKey = column
	return b
}

// LinkOwnerKey overrides the reference-linking key column.
func (b *RelationBuilder) LinkOwnerKey(column string) *RelationBuilder {
	b.d.Relation.LinkOwnerKey = column
	return b
}

// OrderBy applies an ordering to relation queries and eager loads.
func (b *RelationBuilder) OrderBy(column string, desc bool) *RelationBuilder {
	b.d.Relation.OrderBy = column
	b.d.Relation.OrderDesc = desc
	return b
}

// Eager marks the relation for automatic batch loading on select.
func (b *RelationBuilder) Eager() *RelationBuilder {
	b.d.Relation.Eager = true
	return b
}

// Hidden excludes the relation from serialization by default.
func (b *RelationBuilder) Hidden() *RelationBuilder {
	b.d.Hidden = true
	return b
}

// VisibleOnly restricts nested serialization of the related instances to the
// named properties.
func (b *RelationBuilder) VisibleOnly(names ...string) *RelationBuilder {
	b.d.VisibleOnly = names
	return b
}

// Descriptor returns the built descriptor.
func (b *RelationBuilder) Descriptor() *Descriptor {
	d := b.d
	rel := *b.d.Relation
	d.Relation = &rel
	return &d
}
