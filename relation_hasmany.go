package marrow

import (
	"context"
	"fmt"

	"github.com/marrow-orm/marrow/query"
)

// hasManyRelation resolves a one-to-many relation: every target row holding
// the owner's key in its foreign-key column belongs to the collection.
type hasManyRelation struct {
	relationBase
}

func newHasMany(reg *Registry, p *Property, declaring, target *Structure) (Relation, error) {
	rel := &hasManyRelation{relationBase{
		reg:       reg,
		name:      p.Name,
		declaring: declaring,
		target:    target,
	}}
	declKey, refKey, err := relationKeyPair(p.Rel, declaring, target, false)
	if err != nil {
		return nil, err
	}
	rel.declKey, rel.refKey = declKey, refKey
	if err := rel.resolveOrder(p.Rel); err != nil {
		return nil, err
	}
	return rel, nil
}

func (r *hasManyRelation) RawQuery() *query.Builder {
	qb := query.NewBuilder(r.reg.grammar, r.target.Table).SelectAll(r.target.Table)
	qb.WhereColumn(r.refKey, r.declKey)
	return r.applyOrder(qb)
}

func (r *hasManyRelation) Query(owner *Model) (*query.Builder, error) {
	v, ok := r.ownerValue(owner)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s has no key value", ErrInvalidRelation, r.declaring.Name, r.name)
	}
	qb := query.NewBuilder(r.reg.grammar, r.target.Table).SelectAll(r.target.Table)
	qb.Where(r.refKey, v)
	return r.applyOrder(qb), nil
}

func (r *hasManyRelation) Fetch(ctx context.Context, owner *Model) (interface{}, error) {
	if _, ok := r.ownerValue(owner); !ok {
		return []*Model{}, nil
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
	rows, err := runner.Query(ctx, sqlStr, args)
	if err != nil {
		return nil, ConvertDBError(err)
	}

	models := make([]*Model, 0, len(rows))
	for _, row := range rows {
		m, err := r.reg.hydrate(r.target, row)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}

func (r *hasManyRelation) EagerLoad(ctx context.Context, owners []*Model) error {
	values, groups, unmatched := collectBatch(owners, r.declKey.Column)
	if len(values) == 0 {
		assignMany(r.name, groups, unmatched, nil)
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
	assignMany(r.name, groups, unmatched, groupMany(models, links))
	return nil
}
