package marrow

import (
	"context"
	"fmt"

	"github.com/marrow-orm/marrow/query"
)

// hasOneRelation resolves a one-to-one relation: the target row holds the
// foreign key pointing back at the declaring key. Writes are deferred to the
// save-task queue since the declaring key may not exist until the owner is
// persisted.
type hasOneRelation struct {
	relationBase
}

func newHasOne(reg *Registry, p *Property, declaring, target *Structure) (Relation, error) {
	rel := &hasOneRelation{relationBase{
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

func (r *hasOneRelation) RawQuery() *query.Builder {
	qb := query.NewBuilder(r.reg.grammar, r.target.Table).SelectAll(r.target.Table)
	qb.WhereColumn(r.refKey, r.declKey)
	return r.applyOrder(qb)
}

func (r *hasOneRelation) Query(owner *Model) (*query.Builder, error) {
	v, ok := r.ownerValue(owner)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s has no key value", ErrInvalidRelation, r.declaring.Name, r.name)
	}
	qb := query.NewBuilder(r.reg.grammar, r.target.Table).SelectAll(r.target.Table)
	qb.Where(r.refKey, v)
	r.applyOrder(qb)
	qb.Limit(1)
	return qb, nil
}

func (r *hasOneRelation) Fetch(ctx context.Context, owner *Model) (interface{}, error) {
	if _, ok := r.ownerValue(owner); !ok {
		return nil, nil
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

func (r *hasOneRelation) EagerLoad(ctx context.Context, owners []*Model) error {
	values, groups, unmatched := collectBatch(owners, r.declKey.Column)
	if len(values) == 0 {
		assignSingle(r.name, groups, unmatched, nil)
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
	assignSingle(r.name, groups, unmatched, groupSingle(models, links))
	return nil
}

// Write queues the reassignment: first a detach clearing the foreign key of
// any current holder, then an attach pointing the new instance back at the
// owner. Assigning nil queues only the detach. The tasks run after the
// owner's own save so the declaring key is guaranteed to exist.
func (r *hasOneRelation) Write(ctx context.Context, owner *Model, value interface{}) error {
	owner.backbone.queueTask(&detachRelationTask{rel: r, owner: owner})

	if value == nil {
		return nil
	}
	m, ok := value.(*Model)
	if !ok {
		return fmt.Errorf("%w: %s expects a %s instance", ErrInvalidRelation, r.name, r.target.Name)
	}
	owner.backbone.queueTask(&attachRelationTask{rel: r, owner: owner, target: m})
	return nil
}
