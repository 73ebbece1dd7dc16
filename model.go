package marrow

import (
	"context"
	"fmt"
	"time"

	"github.com/marrow-orm/marrow/query"
	"github.com/marrow-orm/marrow/schema"
)

// Model is the façade over a backbone: property access, persistence and
// serialization. Several façades may share one backbone after a re-fetch hits
// the identity cache; per-façade state is limited to serialization overrides.
type Model struct {
	backbone *Backbone

	only    []string
	hidden  map[string]bool
	visible map[string]bool
}

// Structure returns the model's structure.
func (m *Model) Structure() *Structure { return m.backbone.structure }

// Backbone returns the shared instance state.
func (m *Model) Backbone() *Backbone { return m.backbone }

// IsNew reports whether the instance has never been saved.
func (m *Model) IsNew() bool { return m.backbone.IsNew() }

// IsModified reports pending changes, optionally narrowed to property names.
func (m *Model) IsModified(keys ...string) bool { return m.backbone.IsModified(keys...) }

// Get resolves a property value. Relations that are not memoized yet issue a
// query with a background context; use GetContext to bound them.
func (m *Model) Get(name string) (interface{}, error) {
	return m.backbone.Get(context.Background(), m, name)
}

// GetContext resolves a property value under the given context.
func (m *Model) GetContext(ctx context.Context, name string) (interface{}, error) {
	return m.backbone.Get(ctx, m, name)
}

// Set assigns a property value.
func (m *Model) Set(name string, value interface{}) error {
	return m.backbone.Set(context.Background(), m, name, value)
}

// SetContext assigns a property value under the given context.
func (m *Model) SetContext(ctx context.Context, name string, value interface{}) error {
	return m.backbone.Set(ctx, m, name, value)
}

// Unset removes a column's raw value so a later read falls back to its
// declared default.
func (m *Model) Unset(name string) error { return m.backbone.Unset(name) }

// Save persists the instance and runs any deferred relation writes.
func (m *Model) Save(ctx context.Context) error { return m.backbone.Save(ctx, m) }

// Reload re-fetches the canonical row, keeping pending edits marked so the
// next save still writes them.
func (m *Model) Reload(ctx context.Context) error { return m.backbone.Reload(ctx) }

// Destroy removes the instance: a soft-delete update when the model declares
// a soft-delete column, a hard delete otherwise. The identity-cache entry is
// forgotten either way.
func (m *Model) Destroy(ctx context.Context) error {
	b := m.backbone
	s := b.structure

	pkValues, ok := b.primaryKeyValues()
	if !ok {
		return fmt.Errorf("%w: %s has no primary key values", ErrNotFound, s.Name)
	}

	runner, err := b.reg.runnerFor(s)
	if err != nil {
		return err
	}

	if col := s.softDelete(); col != "" {
		now := time.Now().UTC()
		ub := query.Update(b.reg.grammar, s.Table)
		ub.Set(col, now)
		for i, p := range s.PrimaryKey {
			ub.Where(p.Key, pkValues[i])
		}
		sqlStr, args := ub.SQL()
		if _, err := runner.Exec(ctx, sqlStr, args); err != nil {
			return ConvertDBError(err)
		}
		b.data[col] = now
	} else {
		db := query.Delete(b.reg.grammar, s.Table)
		for i, p := range s.PrimaryKey {
			db.Where(p.Key, pkValues[i])
		}
		sqlStr, args := db.SQL()
		if _, err := runner.Exec(ctx, sqlStr, args); err != nil {
			return ConvertDBError(err)
		}
	}

	if key, ok := b.identityKey(); ok {
		b.reg.cache.Forget(key)
	}
	return nil
}

// clone copies the façade with its visibility overrides. The backbone is
// shared; only the serialization view forks.
func (m *Model) clone() *Model {
	c := &Model{backbone: m.backbone}
	c.only = append(c.only, m.only...)
	if len(m.hidden) > 0 {
		c.hidden = make(map[string]bool, len(m.hidden))
		for k, v := range m.hidden {
			c.hidden[k] = v
		}
	}
	if len(m.visible) > 0 {
		c.visible = make(map[string]bool, len(m.visible))
		for k, v := range m.visible {
			c.visible[k] = v
		}
	}
	return c
}

// Only returns a view restricted to the named properties. The underlying
// instance state is shared with the receiver.
func (m *Model) Only(names ...string) *Model {
	c := m.clone()
	c.only = names
	return c
}

// MakeHidden returns a view with the named properties hidden.
func (m *Model) MakeHidden(names ...string) *Model {
	c := m.clone()
	if c.hidden == nil {
		c.hidden = make(map[string]bool, len(names))
	}
	for _, n := range names {
		c.hidden[n] = true
	}
	return c
}

// MakeVisible returns a view overriding a declared or runtime hidden flag for
// the named properties.
func (m *Model) MakeVisible(names ...string) *Model {
	c := m.clone()
	if c.visible == nil {
		c.visible = make(map[string]bool, len(names))
	}
	for _, n := range names {
		c.visible[n] = true
	}
	return c
}

// serializable applies the visibility rules for one property.
func (m *Model) serializable(p *Property) bool {
	if len(m.only) > 0 {
		found := false
		for _, n := range m.only {
			if p.matches(n) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if m.visible[p.Name] {
		return true
	}
	if m.hidden[p.Name] {
		return false
	}
	return !p.Hidden
}

// Map serializes the instance into a plain map keyed by output name (the
// alias when one is declared). Columns and macros resolve through Get;
// relations serialize only when already memoized, so serialization never
// issues queries.
func (m *Model) Map() (map[string]interface{}, error) {
	out := make(map[string]interface{})
	for _, p := range m.backbone.structure.Properties {
		if !m.serializable(p) {
			continue
		}
		key := p.Name
		if p.Alias != "" {
			key = p.Alias
		}

		if p.Kind == schema.KindRelation {
			memo, ok := m.backbone.relationMemoValue(p.Name)
			if !ok {
				continue
			}
			nested, err := serializeRelation(memo, p.VisibleOnly)
			if err != nil {
				return nil, readFailed(p.Name, err)
			}
			out[key] = nested
			continue
		}

		v, err := m.Get(p.Name)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

// serializeRelation maps a relation memo, restricting nested output to the
// declared visible-only list when one is set.
func serializeRelation(memo interface{}, visibleOnly []string) (interface{}, error) {
	restrict := func(n *Model) *Model {
		if len(visibleOnly) == 0 {
			return n
		}
		return (&Model{backbone: n.backbone}).Only(visibleOnly...)
	}

	switch v := memo.(type) {
	case nil:
		return nil, nil
	case *Model:
		if v == nil {
			return nil, nil
		}
		return restrict(v).Map()
	case []*Model:
		nested := make([]map[string]interface{}, 0, len(v))
		for _, n := range v {
			mp, err := restrict(n).Map()
			if err != nil {
				return nil, err
			}
			nested = append(nested, mp)
		}
		return nested, nil
	default:
		return v, nil
	}
}
