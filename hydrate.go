package marrow

import (
	"fmt"

	"github.com/marrow-orm/marrow/identity"
	"github.com/marrow-orm/marrow/query"
)

// hydrate materializes a scanned row into a model instance. Polymorphic
// structures dispatch on the row's discriminator value first; the identity
// cache is consulted so a re-fetched row reuses the existing backbone instead
// of forking instance state.
func (r *Registry) hydrate(s *Structure, row query.Row) (*Model, error) {
	concrete := s
	if poly := polymorphicOf(s); poly != nil {
		raw, ok := row[poly.Column]
		if !ok || raw == nil {
			return nil, fmt.Errorf("%w: %s row carries no %s value", ErrMissingDiscriminator, s.Name, poly.Column)
		}
		value := matchValue(raw)
		sub, ok := poly.Subtypes[value]
		if !ok {
			return nil, fmt.Errorf("%w: %s value %q maps to no subtype", ErrMissingDiscriminator, s.Name, value)
		}
		// Hydrating through a subtype requires the row to actually be of that
		// subtype. Base tables hold every subtype's rows, so a fetch bound to
		// one concrete type can still scan a sibling's row.
		if s.Polymorphic == nil && sub != s {
			return nil, fmt.Errorf("%w: %s value %q selects %s, not %s", ErrMissingDiscriminator, poly.Column, value, sub.Name, s.Name)
		}
		concrete = sub
	}

	if key, ok := identityKeyFromRow(concrete, row); ok {
		if cached, hit := r.cache.Get(key); hit {
			b := cached.(*Backbone)
			// The cached backbone keeps its state; only the reserved linking
			// helpers of the fresh row are carried over.
			b.mergeInternal(row)
			return rebind(b), nil
		}
	}

	b := newBackbone(r, concrete, row, false)
	if key, ok := b.identityKey(); ok {
		r.cache.Put(key, b)
	}
	return rebind(b), nil
}

// polymorphicOf returns the discriminator mapping governing a structure,
// declared by the structure itself or inherited from its base.
func polymorphicOf(s *Structure) *Polymorphic {
	for b := s; b != nil; b = b.Parent {
		if b.Polymorphic != nil {
			return b.Polymorphic
		}
	}
	return nil
}

// identityKeyFromRow computes the identity-cache key for a raw row, keyed by
// the polymorphic base name.
func identityKeyFromRow(s *Structure, row query.Row) (identity.Key, bool) {
	if len(s.PrimaryKey) == 0 {
		return identity.Key{}, false
	}
	values := make([]interface{}, 0, len(s.PrimaryKey))
	for _, p := range s.PrimaryKey {
		v, ok := row[p.Key]
		if !ok {
			return identity.Key{}, false
		}
		values = append(values, v)
	}
	return identity.KeyFor(s.base().Name, values)
}

// rebind wraps a backbone in a fresh façade and records it as the backbone's
// current wrapper.
func rebind(b *Backbone) *Model {
	m := &Model{backbone: b}
	b.current = m
	return m
}
