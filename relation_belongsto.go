package marrow

import (
	"context"
	"fmt"

	"github.com/marrow-orm/marrow/identity"
	"github.com/marrow-orm/marrow/query"
)

// belongsToRelation resolves a many-to-one relation: the declaring row holds
// a foreign key pointing at the target's key column.
type belongsToRelation struct {
	relationBase
}

func newBelongsTo(reg *Registry, p *Property, declaring, target *Structure) (Relation, error) {
	rel := &belongsToRelation{relationBase{
		reg:       reg,
		name:      p.Name,
		declaring: declaring,
		target:    target,
	}}
	declKey, refKey, err := relationKeyPair(p.Rel, declaring, target, true)
	if err != nil {
		return nil, err
	}
	rel.declKey, rel.refKey = declKey, refKey
	if err := rel.resolveOrder(p.Rel); err != nil {
		return nil, err
	}
	return rel, nil
}

func (r *belongsToRelation) RawQuery() *query.Builder {
	qb := query.NewBuilder(r.reg.grammar, r.target.Table).SelectAll(r.target.Table)
	qb.WhereColumn(r.refKey, r.declKey)
	return r.applyOrder(qb)
}

func (r *belongsToRelation) Query(owner *Model) (*query.Builder, error) {
	v, ok := r.ownerValue(owner)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s has no reference value", ErrInvalidRelation, r.declaring.Name, r.name)
	}
	qb := query.NewBuilder(r.reg.grammar, r.target.Table).SelectAll(r.target.Table)
	qb.Where(r.refKey, v)
	r.applyOrder(qb)
	qb.Limit(1)
	return qb, nil
}

// Fetch short-circuits on empty references and consults the identity cache
// directly when the reference column is the target's sole primary key, since
// the cache key can then be computed without touching the database.
func (r *belongsToRelation) Fetch(ctx context.Context, owner *Model) (interface{}, error) {
	v, ok := r.ownerValue(owner)
	if !ok {
		return nil, nil
	}

	if r.referencesPrimaryKey() {
		if key, ok := identity.KeyFor(r.target.base().Name, []interface{}{v}); ok {
			if cached, hit := r.reg.cache.Get(key); hit {
				return rebind(cached.(*Backbone)), nil
			}
		}
	}

	qb, err := r.Query(owner)
	if err != nil {
		return nil, err
	}
	runner, err := r.runner()
	if err != nil {
		return nil, err
	}
	sqlStr, args := qb.SQL()
	row, err := runner.QueryOne(ctx, sqlStr, args)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	if row == nil {
		return nil, nil
	}
	return r.reg.hydrate(r.target, row)
}

func (r *belongsToRelation) referencesPrimaryKey() bool {
	return len(r.target.PrimaryKey) == 1 && r.target.PrimaryKey[0].Key == r.refKey.Column
}

func (r *belongsToRelation) EagerLoad(ctx context.Context, owners []*Model) error {
	values, groups, unmatched := collectBatch(owners, r.declKey.Column)

	// References already resolved by the identity cache are partitioned out
	// of the batch so the query only covers the misses.
	cached := make(map[string]*Model)
	if r.referencesPrimaryKey() {
		missing := values[:0]
		for _, v := range values {
			key, ok := identity.KeyFor(r.target.base().Name, []interface{}{v})
			if !ok {
				missing = append(missing, v)
				continue
			}
			if hit, found := r.reg.cache.Get(key); found {
				cached[matchValue(v)] = rebind(hit.(*Backbone))
				continue
			}
			missing = append(missing, v)
		}
		values = missing
	}

	if len(values) == 0 {
		assignSingle(r.name, groups, unmatched, cached)
		return nil
	}

	qb := query.NewBuilder(r.reg.grammar, r.target.Table).SelectAll(r.target.Table)
	qb.WhereIn(r.refKey, values)
	r.applyOrder(qb)

	runner, err := r.runner()
	if err != nil {
		return err
	}
	sqlStr, args := qb.SQL()
	rows, err := runner.Query(ctx, sqlStr, args)
	if err != nil {
		return ConvertDBError(err)
	}
	query.EagerLoadQueries.Inc()

	models, links, err := r.hydrateRows(rows, r.refKey.Column)
	if err != nil {
		return err
	}
	results := groupSingle(models, links)
	for k, v := range cached {
		results[k] = v
	}
	assignSingle(r.name, groups, unmatched, results)
	return nil
}

// Write re-points the foreign key at the given instance, or clears it on nil.
func (r *belongsToRelation) Write(ctx context.Context, owner *Model, value interface{}) error {
	if value == nil {
		return owner.backbone.writeRaw(r.declKey.Column, nil)
	}
	m, ok := value.(*Model)
	if !ok {
		return fmt.Errorf("%w: %s expects a %s instance", ErrInvalidRelation, r.name, r.target.Name)
	}
	v, present := m.backbone.rawByKey(r.refKey.Column)
	if !present || v == nil {
		return fmt.Errorf("%w: %s has no %s value to reference", ErrInvalidRelation, r.target.Name, r.refKey.Column)
	}
	return owner.backbone.writeRaw(r.declKey.Column, v)
}
