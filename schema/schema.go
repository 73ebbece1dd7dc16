package schema

// Owner is the minimal view of a model instance handed to macros and casters.
// Passing the owner explicitly keeps callbacks reentrancy-safe: a macro may
// read other properties of the same instance through it.
type Owner interface {
	Get(name string) (interface{}, error)
}

// MacroFunc computes a derived property value from the owning instance.
type MacroFunc func(owner Owner) (interface{}, error)

// PropertyBuilder is implemented by the fluent column/macro/relation builders.
type PropertyBuilder interface {
	Descriptor() *Descriptor
}

// Definition is the declarative description of one model type.
type Definition struct {
	Name              string
	Table             string
	Connection        string
	SoftDelete        string
	OnDuplicateUpdate []string

	// Polymorphism: Discriminator names the column whose per-row value selects
	// the concrete subtype via the Subtypes map (value -> model name).
	Discriminator string
	Subtypes      map[string]string

	// Parent names the base model for polymorphic subtypes.
	Parent string

	Properties []*Descriptor
}

// Define declares a model with its table and ordered properties.
func Define(name, table string, props ...PropertyBuilder) *Definition {
	d := &Definition{
		Name:  name,
		Table: table,
	}
	for _, p := range props {
		d.Properties = append(d.Properties, p.Descriptor())
	}
	return d
}

// WithConnection sets the named connection the model is bound to.
// The default connection id is "default".
func (d *Definition) WithConnection(name string) *Definition {
	d.Connection = name
	return d
}

// WithSoftDelete declares the soft-delete timestamp column.
func (d *Definition) WithSoftDelete(column string) *Definition {
	d.SoftDelete = column
	return d
}

// WithOnDuplicateUpdate declares the field list used for the insert's
// on-conflict update clause. An empty list is treated as absent.
func (d *Definition) WithOnDuplicateUpdate(fields ...string) *Definition {
	d.OnDuplicateUpdate = fields
	return d
}

// WithDiscriminator declares the model polymorphic: column holds the
// per-row discriminator and subtypes maps each value to a model name.
func (d *Definition) WithDiscriminator(column string, subtypes map[string]string) *Definition {
	d.Discriminator = column
	d.Subtypes = subtypes
	return d
}

// WithParent declares the base model this subtype extends. Parent properties
// are prepended in declaration order when the structure is generated.
func (d *Definition) WithParent(name string) *Definition {
	d.Parent = name
	return d
}

// Kind tags a classified property.
type Kind int

const (
	KindColumn Kind = iota
	KindMacro
	KindRelation
)

// String returns the string representation of the property kind.
func (k Kind) String() string {
	switch k {
	case KindColumn:
		return "column"
	case KindMacro:
		return "macro"
	case KindRelation:
		return "relation"
	default:
		return "unknown"
	}
}

// Descriptor is the raw declaration of a single property before
// classification. The generator classifies each descriptor into a column,
// macro or relation; when more than one kind marker is present, relation
// wins, then macro, then column.
type Descriptor struct {
	Name        string
	Alias       string
	AliasSet    bool
	Hidden      bool
	VisibleOnly []string

	// Column markers.
	IsColumn   bool
	Key        string
	Type       ColType
	Nullable   bool
	Default    interface{}
	HasDefault bool
	EnumValues []string
	Caster     string
	Primary    bool
	Foreign    bool
	Computed   bool
	Immutable  bool

	// Macro markers.
	IsMacro     bool
	Macro       MacroFunc
	MacroCached bool

	// Relation marker.
	IsRelation bool
	Relation   *RelationDescriptor
}

// Descriptor implements PropertyBuilder so hand-built descriptors can be
// passed to Define directly.
func (d *Descriptor) Descriptor() *Descriptor { return d }
