package marrow

import (
	"context"
	"fmt"

	"github.com/marrow-orm/marrow/dialect"
	"github.com/marrow-orm/marrow/query"
	"github.com/marrow-orm/marrow/schema"
)

// linkingAlias is the reserved output column carrying the owner-matching
// value when it is not a column of the target table (link tables, through
// hops). Raw keys with this prefix never collide with declared properties.
const linkingAlias = "__linking"

// Relation resolves a relation property: bound and unbound queries, per-owner
// fetch, and batched eager loading.
type Relation interface {
	// DeclaringKey is the column on the declaring table whose raw value
	// identifies the owner side of the match.
	DeclaringKey() dialect.ColumnLiteral
	// ReferenceKey is the column the declaring key is matched against.
	ReferenceKey() dialect.ColumnLiteral
	// RawQuery returns an unbound query template with the owner condition
	// expressed as a column equality against the declaring key.
	RawQuery() *query.Builder
	// Query returns the bound query for one owner instance.
	Query(owner *Model) (*query.Builder, error)
	// Fetch resolves the relation value for one owner: a *Model or nil for
	// single cardinality, a []*Model for many cardinality.
	Fetch(ctx context.Context, owner *Model) (interface{}, error)
	// EagerLoad batch-resolves the relation for many owners in one query and
	// sets every owner's relation memo.
	EagerLoad(ctx context.Context, owners []*Model) error
}

// WritableRelation is a relation that accepts assignment through Set.
type WritableRelation interface {
	Relation
	Write(ctx context.Context, owner *Model, value interface{}) error
}

// newRelation constructs the resolver for a relation property. Built-in kinds
// dispatch directly; kinds at or above schema.KindCustomBase dispatch to a
// registered factory.
func (r *Registry) newRelation(p *Property, declaring *Structure) (Relation, error) {
	rd := p.Rel

	if rd.Kind >= schema.KindCustomBase {
		r.mu.RLock()
		factory, ok := r.factories[rd.Kind]
		r.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: kind %d for %s.%s", ErrMissingRelationImplementation, rd.Kind, declaring.Name, p.Name)
		}
		return factory(r, p, declaring)
	}

	target, err := r.StructureFor(rd.Target)
	if err != nil {
		return nil, fmt.Errorf("%w: target %s of %s.%s", ErrReferenceModelMissing, rd.Target, declaring.Name, p.Name)
	}

	switch rd.Kind {
	case schema.BelongsTo:
		return newBelongsTo(r, p, declaring, target)
	case schema.HasOne:
		return newHasOne(r, p, declaring, target)
	case schema.HasMany:
		return newHasMany(r, p, declaring, target)
	case schema.BelongsToMany:
		return newBelongsToMany(r, p, declaring, target)
	case schema.BelongsToThrough, schema.HasManyThrough, schema.HasOneThrough:
		return newThrough(r, p, declaring, target)
	default:
		return nil, fmt.Errorf("%w: kind %d for %s.%s", ErrMissingRelationImplementation, rd.Kind, declaring.Name, p.Name)
	}
}

// relationBase carries the state every built-in resolver shares. The column
// literals are computed once at construction; resolvers are stateless after
// that and safe for concurrent use.
type relationBase struct {
	reg       *Registry
	name      string
	declaring *Structure
	target    *Structure
	declKey   dialect.ColumnLiteral
	refKey    dialect.ColumnLiteral
	orderBy   dialect.ColumnLiteral
	orderDesc bool
	hasOrder  bool
}

func (b *relationBase) DeclaringKey() dialect.ColumnLiteral { return b.declKey }
func (b *relationBase) ReferenceKey() dialect.ColumnLiteral { return b.refKey }

// applyOrder appends the configured ordering term, if any.
func (b *relationBase) applyOrder(qb *query.Builder) *query.Builder {
	if b.hasOrder {
		qb.OrderBy(b.orderBy, b.orderDesc)
	}
	return qb
}

// resolveOrder compiles the OrderBy property name against the target table.
func (b *relationBase) resolveOrder(rd *schema.RelationDescriptor) error {
	if rd.OrderBy == "" {
		return nil
	}
	col, err := b.target.Column(rd.OrderBy)
	if err != nil {
		return err
	}
	b.orderBy = col
	b.orderDesc = rd.OrderDesc
	b.hasOrder = true
	return nil
}

// runner returns the execution runner for the target's connection.
func (b *relationBase) runner() (*query.Runner, error) {
	return b.reg.runnerFor(b.target)
}

// ownerValue reads the owner's raw declaring-key value. ok is false when the
// value is absent or an empty reference, in which case the relation
// short-circuits without querying.
func (b *relationBase) ownerValue(owner *Model) (interface{}, bool) {
	v, present := owner.backbone.rawByKey(b.declKey.Column)
	if !present || isEmptyReference(v) {
		return nil, false
	}
	return v, true
}

// isEmptyReference reports whether a raw foreign-key value can never match a
// real row: nil, numeric zero, or an empty or zero string.
func isEmptyReference(v interface{}) bool {
	switch n := v.(type) {
	case nil:
		return true
	case int:
		return n == 0
	case int32:
		return n == 0
	case int64:
		return n == 0
	case uint:
		return n == 0
	case uint32:
		return n == 0
	case uint64:
		return n == 0
	case float32:
		return n == 0
	case float64:
		return n == 0
	case string:
		return n == "" || n == "0"
	case []byte:
		s := string(n)
		return s == "" || s == "0"
	default:
		return false
	}
}

// matchValue normalizes a raw value into a comparable bucket key for eager
// result distribution. Driver scans may return []byte where the owner holds
// string, so both normalize to the same key.
func matchValue(v interface{}) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(v)
}

// foreignKeyName applies the conventional foreign-key naming: the singular of
// the owning table joined to its key column with an underscore.
func foreignKeyName(table, keyColumn string) string {
	return dialect.ForeignKeyFor(table, keyColumn)
}

// relationKeyPair resolves the declaring and reference key columns for the
// two-table kinds. fkOnDeclaring selects which side carries the foreign key.
func relationKeyPair(rd *schema.RelationDescriptor, declaring, target *Structure, fkOnDeclaring bool) (declKey, refKey dialect.ColumnLiteral, err error) {
	if fkOnDeclaring {
		// belongs-to: the declaring row points at the target primary key.
		ownerCol := rd.OwnerKey
		if ownerCol == "" {
			pk, err := target.RelationPrimaryKey()
			if err != nil {
				return declKey, refKey, err
			}
			ownerCol = pk.Column
		}
		refKey = dialect.Col(target.Table, ownerCol)

		fkCol := rd.ForeignKey
		if fkCol == "" {
			fkCol = foreignKeyName(target.Table, ownerCol)
		}
		declKey = dialect.Col(declaring.Table, fkCol)
		return declKey, refKey, nil
	}

	// has-one / has-many: the target row points back at the declaring key.
	ownerCol := rd.OwnerKey
	if ownerCol == "" {
		pk, err := declaring.RelationPrimaryKey()
		if err != nil {
			return declKey, refKey, err
		}
		ownerCol = pk.Column
	}
	declKey = dialect.Col(declaring.Table, ownerCol)

	fkCol := rd.ForeignKey
	if fkCol == "" {
		fkCol = foreignKeyName(declaring.Table, ownerCol)
	}
	refKey = dialect.Col(target.Table, fkCol)
	return declKey, refKey, nil
}

// hydrateRows materializes a batch of related rows, pulling the linking value
// out of each row before hydration so link-table and through matches survive
// identity-cache reuse.
func (b *relationBase) hydrateRows(rows []query.Row, linkCol string) ([]*Model, []string, error) {
	models := make([]*Model, 0, len(rows))
	links := make([]string, 0, len(rows))
	for _, row := range rows {
		link := ""
		if linkCol != "" {
			link = matchValue(row[linkCol])
		}
		m, err := b.reg.hydrate(b.target, row)
		if err != nil {
			return nil, nil, err
		}
		models = append(models, m)
		links = append(links, link)
	}
	return models, links, nil
}
