package schema

// ColType represents the storage type of a column.
type ColType int

const (
	TypeString ColType = iota
	TypeText
	TypeInt
	TypeBigInt
	TypeFloat
	TypeBool
	TypeTimestamp
	TypeDate
	TypeUUID
	TypeJSON
	TypeEnum
)

// String returns the string representation of the column type.
func (t ColType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeText:
		return "text"
	case TypeInt:
		return "int"
	case TypeBigInt:
		return "bigint"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeTimestamp:
		return "timestamp"
	case TypeDate:
		return "date"
	case TypeUUID:
		return "uuid"
	case TypeJSON:
		return "json"
	case TypeEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// ColumnBuilder declares a persisted column property.
type ColumnBuilder struct {
	d Descriptor
}

// Column declares a column with its logical name and storage type.
// The physical key defaults to the name; override it with Key.
func Column(name string, t ColType) *ColumnBuilder {
	return &ColumnBuilder{d: Descriptor{
		Name:     name,
		IsColumn: true,
		Type:     t,
	}}
}

// Key overrides the physical storage key.
func (b *ColumnBuilder) Key(key string) *ColumnBuilder {
	b.d.Key = key
	return b
}

// Alias sets an external-facing alias for the property.
func (b *ColumnBuilder) Alias(alias string) *ColumnBuilder {
	b.d.Alias = alias
	b.d.AliasSet = true
	return b
}

// Aliased marks the property aliased without naming the alias; the alias
// then defaults to the physical key.
func (b *ColumnBuilder) Aliased() *ColumnBuilder {
	b.d.AliasSet = true
	return b
}

// Nullable marks the column nullable.
func (b *ColumnBuilder) Nullable() *ColumnBuilder {
	b.d.Nullable = true
	return b
}

// Default sets the in-memory default returned before any value is present.
func (b *ColumnBuilder) Default(v interface{}) *ColumnBuilder {
	b.d.Default = v
	b.d.HasDefault = true
	return b
}

// Enum restricts the column to the given backing values. A raw value outside
// the set reads back as nil rather than erroring.
func (b *ColumnBuilder) Enum(values ...string) *ColumnBuilder {
	b.d.Type = TypeEnum
	b.d.EnumValues = values
	return b
}

// Caster names the encode/decode transformer applied to the column.
func (b *ColumnBuilder) Caster(name string) *ColumnBuilder {
	b.d.Caster = name
	return b
}

// Primary marks the column part of the primary key. Primary implies immutable
// once the instance is persisted.
func (b *ColumnBuilder) Primary() *ColumnBuilder {
	b.d.Primary = true
	return b
}

// ForeignKey marks the column a foreign key.
func (b *ColumnBuilder) ForeignKey() *ColumnBuilder {
	b.d.Foreign = true
	return b
}

// Computed marks the column server-computed; it is excluded from writes.
func (b *ColumnBuilder) Computed() *ColumnBuilder {
	b.d.Computed = true
	return b
}

// Immutable marks the column writable only while the instance is new.
func (b *ColumnBuilder) Immutable() *ColumnBuilder {
	b.d.Immutable = true
	return b
}

// Hidden excludes the property from serialization by default.
func (b *ColumnBuilder) Hidden() *ColumnBuilder {
	b.d.Hidden = true
	return b
}

// VisibleOnly restricts nested serialization to the named properties.
func (b *ColumnBuilder) VisibleOnly(names ...string) *ColumnBuilder {
	b.d.VisibleOnly = names
	return b
}

// Descriptor returns the built descriptor.
func (b *ColumnBuilder) Descriptor() *Descriptor {
	d := b.d
	return &d
}
