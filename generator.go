package marrow

import (
	"fmt"

	"github.com/marrow-orm/marrow/conn"
	"github.com/marrow-orm/marrow/dialect"
	"github.com/marrow-orm/marrow/schema"
)

// StructureFor resolves the immutable structure for a model type, building
// it on first reference and memoizing it for the registry's lifetime.
// Building a polymorphic base eagerly builds every declared subtype.
func (r *Registry) StructureFor(name string) (*Structure, error) {
	if s, ok := r.structures.Load(name); ok {
		return s, nil
	}

	def, ok := r.definition(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAModel, name)
	}

	s, err := r.buildStructure(def, nil)
	if err != nil {
		return nil, err
	}

	actual, _ := r.structures.LoadOrStore(name, s)
	return actual, nil
}

// buildStructure generates a structure from its definition. When the
// definition declares a parent and none was supplied, the parent structure
// is built first and the build restarted with it, so parent properties can
// be prepended in declaration order.
func (r *Registry) buildStructure(def *schema.Definition, parent *Structure) (*Structure, error) {
	if parent == nil && def.Parent != "" {
		ps, err := r.StructureFor(def.Parent)
		if err != nil {
			return nil, fmt.Errorf("failed to build parent of %s: %w", def.Name, err)
		}
		return r.buildStructure(def, ps)
	}

	table := def.Table
	if table == "" && parent != nil {
		table = parent.Table
	}
	if table == "" {
		table = dialect.TableName(def.Name)
	}
	if table == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingTable, def.Name)
	}

	connection := def.Connection
	if connection == "" {
		if parent != nil {
			connection = parent.Connection
		} else {
			connection = conn.DefaultConnection
		}
	}

	s := &Structure{
		Name:              def.Name,
		Connection:        connection,
		Table:             table,
		SoftDeleteColumn:  def.SoftDelete,
		OnDuplicateUpdate: normalizeFieldList(def.OnDuplicateUpdate),
		Parent:            parent,
		reg:               r,
	}

	if parent != nil {
		s.Properties = append(s.Properties, parent.Properties...)
	}
	s.ownStart = len(s.Properties)

	for _, d := range def.Properties {
		p, ok, err := classify(d)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", def.Name, err)
		}
		if !ok {
			continue
		}
		if err := checkCollision(s, p); err != nil {
			return nil, fmt.Errorf("model %s: %w", def.Name, err)
		}
		s.Properties = append(s.Properties, p)
	}

	for _, p := range s.Properties {
		if p.Kind == schema.KindColumn && p.PrimaryKey {
			s.PrimaryKey = append(s.PrimaryKey, p)
		}
	}

	if def.Discriminator != "" {
		poly := &Polymorphic{
			Column:   def.Discriminator,
			Subtypes: make(map[string]*Structure, len(def.Subtypes)),
		}
		s.Polymorphic = poly
		for value, subName := range def.Subtypes {
			subDef, ok := r.definition(subName)
			if !ok {
				return nil, fmt.Errorf("%w: subtype %s of %s", ErrNotAModel, subName, def.Name)
			}
			sub, err := r.buildStructure(subDef, s)
			if err != nil {
				return nil, fmt.Errorf("failed to build subtype %s of %s: %w", subName, def.Name, err)
			}
			poly.Subtypes[value] = sub
			r.structures.Store(subName, sub)
		}
	}

	return s, nil
}

// classify turns a raw descriptor into a property. When more than one kind
// marker is present, relation wins, then macro, then column. Descriptors
// with no marker are skipped.
func classify(d *schema.Descriptor) (*Property, bool, error) {
	switch {
	case d.IsRelation:
		if d.Relation == nil {
			return nil, false, fmt.Errorf("%w: %s", ErrInvalidRelation, d.Name)
		}
		rel := *d.Relation
		return &Property{
			Name:        d.Name,
			Alias:       d.Alias,
			Hidden:      d.Hidden,
			VisibleOnly: d.VisibleOnly,
			Kind:        schema.KindRelation,
			Rel:         &rel,
		}, true, nil

	case d.IsMacro:
		if d.Macro == nil {
			return nil, false, fmt.Errorf("%w: %s has no callback", ErrInvalidMacro, d.Name)
		}
		return &Property{
			Name:        d.Name,
			Alias:       d.Alias,
			Hidden:      d.Hidden,
			VisibleOnly: d.VisibleOnly,
			Kind:        schema.KindMacro,
			Macro:       d.Macro,
			MacroCached: d.MacroCached,
		}, true, nil

	case d.IsColumn:
		key := d.Key
		if key == "" {
			key = d.Name
		}
		alias := d.Alias
		if d.AliasSet && alias == "" {
			alias = key
		}
		caster := d.Caster
		if caster == "" && d.Type == schema.TypeBool {
			caster = BoolCasterName
		}
		return &Property{
			Name:        d.Name,
			Alias:       alias,
			Hidden:      d.Hidden,
			VisibleOnly: d.VisibleOnly,
			Kind:        schema.KindColumn,
			Key:         key,
			Type:        d.Type,
			Nullable:    d.Nullable,
			Default:     d.Default,
			HasDefault:  d.HasDefault,
			EnumValues:  d.EnumValues,
			Caster:      caster,
			PrimaryKey:  d.Primary,
			ForeignKey:  d.Foreign,
			Computed:    d.Computed,
			Immutable:   d.Immutable || d.Primary,
		}, true, nil

	default:
		return nil, false, nil
	}
}

// checkCollision enforces the alias invariant: a property's name, alias and
// physical key must not collide with any other property in the structure.
func checkCollision(s *Structure, p *Property) error {
	keys := []string{p.Name}
	if p.Alias != "" {
		keys = append(keys, p.Alias)
	}
	if p.Kind == schema.KindColumn && p.Key != p.Name {
		keys = append(keys, p.Key)
	}
	for _, k := range keys {
		for _, existing := range s.Properties {
			if existing.matches(k) {
				return fmt.Errorf("%w: %q collides with property %q", ErrInvalidColumn, k, existing.Name)
			}
		}
	}
	return nil
}

func normalizeFieldList(fields []string) []string {
	out := fields[:0:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
