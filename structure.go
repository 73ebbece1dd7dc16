package marrow

import (
	"context"
	"fmt"
	"sync"

	"github.com/marrow-orm/marrow/dialect"
	"github.com/marrow-orm/marrow/schema"
)

// Polymorphic holds the discriminator column and the per-value subtype
// structures of a polymorphic base model.
type Polymorphic struct {
	Column   string
	Subtypes map[string]*Structure
}

// Structure is the immutable per-model-type metadata: table, classified
// properties (inherited parent-first), primary key, polymorphism, soft
// delete. Structures are built once per model type and memoized by the
// registry for the registry's lifetime.
type Structure struct {
	Name              string
	Connection        string
	Table             string
	Properties        []*Property
	PrimaryKey        []*Property
	Polymorphic       *Polymorphic
	SoftDeleteColumn  string
	OnDuplicateUpdate []string
	Parent            *Structure

	reg      *Registry
	ownStart int // index of the first property declared by this type

	mu         sync.Mutex
	relations  map[string]Relation
	columns    map[string]dialect.ColumnLiteral
	relationPK *dialect.ColumnLiteral
}

// Property resolves a property by name, alias or physical column key.
func (s *Structure) Property(key string) (*Property, error) {
	for _, p := range s.Properties {
		if p.matches(key) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrMissingProperty, s.Name, key)
}

// HasProperty reports whether any property answers to the key.
func (s *Structure) HasProperty(key string) bool {
	for _, p := range s.Properties {
		if p.matches(key) {
			return true
		}
	}
	return false
}

// Column compiles a column literal for the property resolved by key, bound
// to the structure's table unless another table is given. Literals are
// memoized per (table, key).
func (s *Structure) Column(key string, table ...string) (dialect.ColumnLiteral, error) {
	t := s.Table
	if len(table) > 0 && table[0] != "" {
		t = table[0]
	}

	memoKey := t + "." + key
	s.mu.Lock()
	if lit, ok := s.columns[memoKey]; ok {
		s.mu.Unlock()
		return lit, nil
	}
	s.mu.Unlock()

	p, err := s.Property(key)
	if err != nil {
		return dialect.ColumnLiteral{}, err
	}
	if p.Kind != schema.KindColumn {
		return dialect.ColumnLiteral{}, fmt.Errorf("%w: %s.%s is a %s", ErrInvalidColumn, s.Name, key, p.Kind)
	}

	lit := dialect.Col(t, p.Key)
	s.mu.Lock()
	if s.columns == nil {
		s.columns = make(map[string]dialect.ColumnLiteral)
	}
	s.columns[memoKey] = lit
	s.mu.Unlock()
	return lit, nil
}

// Relation returns the resolver for a relation property, constructing it on
// first access and memoizing it per property name.
func (s *Structure) Relation(p *Property) (Relation, error) {
	if p.Kind != schema.KindRelation || p.Rel == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrInvalidRelation, s.Name, p.Name)
	}

	s.mu.Lock()
	if rel, ok := s.relations[p.Name]; ok {
		s.mu.Unlock()
		return rel, nil
	}
	s.mu.Unlock()

	rel, err := s.reg.newRelation(p, s)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.relations == nil {
		s.relations = make(map[string]Relation)
	}
	s.relations[p.Name] = rel
	s.mu.Unlock()
	return rel, nil
}

// RelationPrimaryKey compiles the first primary-key column bound to this
// structure's table. Memoized.
func (s *Structure) RelationPrimaryKey() (dialect.ColumnLiteral, error) {
	s.mu.Lock()
	if s.relationPK != nil {
		lit := *s.relationPK
		s.mu.Unlock()
		return lit, nil
	}
	s.mu.Unlock()

	if len(s.PrimaryKey) == 0 {
		return dialect.ColumnLiteral{}, fmt.Errorf("%w: %s declares no primary key", ErrInvalidColumn, s.Name)
	}

	lit := dialect.Col(s.Table, s.PrimaryKey[0].Key)
	s.mu.Lock()
	s.relationPK = &lit
	s.mu.Unlock()
	return lit, nil
}

// base walks to the root of a polymorphic chain. Identity-cache keys use the
// base name so subtype and base fetches share one keyspace.
func (s *Structure) base() *Structure {
	b := s
	for b.Parent != nil {
		b = b.Parent
	}
	return b
}

// ownProperties returns the properties declared by this type itself,
// excluding those inherited from the parent.
func (s *Structure) ownProperties() []*Property {
	return s.Properties[s.ownStart:]
}

// discriminatorFor reverse-looks-up the discriminator value for a concrete
// type name in the polymorphic map of this structure or its parents.
func (s *Structure) discriminatorFor(concrete string) (column string, value string, ok bool) {
	for b := s; b != nil; b = b.Parent {
		if b.Polymorphic == nil {
			continue
		}
		for v, sub := range b.Polymorphic.Subtypes {
			if sub.Name == concrete {
				return b.Polymorphic.Column, v, true
			}
		}
	}
	return "", "", false
}

// softDelete returns the soft-delete column declared by this structure or
// inherited from a parent.
func (s *Structure) softDelete() string {
	for b := s; b != nil; b = b.Parent {
		if b.SoftDeleteColumn != "" {
			return b.SoftDeleteColumn
		}
	}
	return ""
}

// shouldEagerLoad applies the enable/disable rules: a relation loads when its
// eager flag is set or its name is requested, unless its name is disabled.
func shouldEagerLoad(p *Property, enabled, disabled []string) bool {
	for _, d := range disabled {
		if d == p.Name {
			return false
		}
	}
	if p.Rel != nil && p.Rel.Eager {
		return true
	}
	for _, e := range enabled {
		if e == p.Name {
			return true
		}
	}
	return false
}

// EagerLoadRelations batch-loads relations for the given instances. A
// polymorphic leaf delegates to its parent first so shared relations load
// once across mixed-subtype batches; a polymorphic base follows the common
// pass with a per-subtype pass for subtype-specific relations.
func (s *Structure) EagerLoadRelations(ctx context.Context, instances []*Model, enabled, disabled []string) error {
	return s.eagerLoadRelations(ctx, instances, enabled, disabled, make(map[string]bool))
}

func (s *Structure) eagerLoadRelations(ctx context.Context, instances []*Model, enabled, disabled []string, loaded map[string]bool) error {
	if len(instances) == 0 {
		return nil
	}

	if s.Parent != nil {
		if err := s.Parent.eagerLoadRelations(ctx, instances, enabled, disabled, loaded); err != nil {
			return err
		}
	}

	for _, p := range s.ownProperties() {
		if p.Kind != schema.KindRelation || loaded[s.Name+"."+p.Name] {
			continue
		}
		if !shouldEagerLoad(p, enabled, disabled) {
			continue
		}
		rel, err := s.Relation(p)
		if err != nil {
			return err
		}
		if err := rel.EagerLoad(ctx, instances); err != nil {
			return fmt.Errorf("failed to eager load %s.%s: %w", s.Name, p.Name, err)
		}
		loaded[s.Name+"."+p.Name] = true
	}

	if s.Polymorphic == nil {
		return nil
	}

	// Per-subtype pass: group the batch by concrete runtime type and load any
	// subtype-specific relations the common pass did not cover.
	groups := make(map[*Structure][]*Model)
	for _, inst := range instances {
		cs := inst.Structure()
		if cs == s {
			continue
		}
		groups[cs] = append(groups[cs], inst)
	}
	for sub, group := range groups {
		for _, p := range sub.ownProperties() {
			if p.Kind != schema.KindRelation || loaded[sub.Name+"."+p.Name] {
				continue
			}
			if !shouldEagerLoad(p, enabled, disabled) {
				continue
			}
			rel, err := sub.Relation(p)
			if err != nil {
				return err
			}
			if err := rel.EagerLoad(ctx, group); err != nil {
				return fmt.Errorf("failed to eager load %s.%s: %w", sub.Name, p.Name, err)
			}
			loaded[sub.Name+"."+p.Name] = true
		}
	}
	return nil
}

// CreateInstance materializes a row into a model, dispatching to the
// concrete polymorphic subtype and consulting the identity cache.
func (s *Structure) CreateInstance(row map[string]interface{}) (*Model, error) {
	return s.reg.hydrate(s, row)
}
