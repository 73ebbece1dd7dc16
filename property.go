package marrow

import "github.com/marrow-orm/marrow/schema"

// Property is one classified entry of a Structure: a persisted column, a
// computed macro, or a relation. Exactly one property exists per logical
// name within a structure.
type Property struct {
	Name        string
	Alias       string
	Hidden      bool
	VisibleOnly []string
	Kind        schema.Kind

	// Column fields.
	Key        string
	Type       schema.ColType
	Nullable   bool
	Default    interface{}
	HasDefault bool
	EnumValues []string
	Caster     string
	PrimaryKey bool
	ForeignKey bool
	Computed   bool
	Immutable  bool

	// Macro fields.
	Macro       schema.MacroFunc
	MacroCached bool

	// Relation configuration.
	Rel *schema.RelationDescriptor
}

// matches reports whether the property answers to the given key: its name,
// its alias, or (for columns) its physical storage key.
func (p *Property) matches(key string) bool {
	if p.Name == key {
		return true
	}
	if p.Alias != "" && p.Alias == key {
		return true
	}
	return p.Kind == schema.KindColumn && p.Key == key
}

// enumValue applies try-from semantics: a raw value outside the declared set
// reads back as nil rather than erroring.
func (p *Property) enumValue(raw interface{}) interface{} {
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return nil
	}
	for _, val := range p.EnumValues {
		if val == s {
			return val
		}
	}
	return nil
}
