package marrow

import (
	"context"
	"fmt"

	"github.com/marrow-orm/marrow/dialect"
	"github.com/marrow-orm/marrow/query"
	"github.com/marrow-orm/marrow/schema"
)

// throughRelation resolves the three-hop kinds via an intermediate model:
//
//	belongs-to-through: declaring -> through -> target, single cardinality,
//	the declaring row holds the foreign key to the through row.
//	has-many-through / has-one-through: declaring <- through <- target, the
//	through row points back at the declaring row and the target row points
//	at the through row.
type throughRelation struct {
	relationBase
	kind    schema.RelationKind
	through *Structure

	// joinLeft = joinRight is the join condition between the through and
	// target tables; matchKey is the through-side column the owner value is
	// compared against.
	joinLeft  dialect.ColumnLiteral
	joinRight dialect.ColumnLiteral
	matchKey  dialect.ColumnLiteral
}

func newThrough(reg *Registry, p *Property, declaring, target *Structure) (Relation, error) {
	rd := p.Rel
	if rd.Through == "" {
		return nil, fmt.Errorf("%w: %s.%s declares no through model", ErrReferenceModelMissing, declaring.Name, p.Name)
	}
	through, err := reg.StructureFor(rd.Through)
	if err != nil {
		return nil, fmt.Errorf("%w: through %s of %s.%s", ErrReferenceModelMissing, rd.Through, declaring.Name, p.Name)
	}

	rel := &throughRelation{
		relationBase: relationBase{
			reg:       reg,
			name:      p.Name,
			declaring: declaring,
			target:    target,
		},
		kind:    rd.Kind,
		through: through,
	}

	throughPK, err := through.RelationPrimaryKey()
	if err != nil {
		return nil, err
	}

	switch rd.Kind {
	case schema.BelongsToThrough:
		// The declaring row points at the through row, the through row points
		// at the target row.
		declCol := rd.ForeignKey
		if declCol == "" {
			declCol = foreignKeyName(through.Table, throughPK.Column)
		}
		rel.declKey = dialect.Col(declaring.Table, declCol)
		rel.matchKey = throughPK

		targetPK, err := target.RelationPrimaryKey()
		if err != nil {
			return nil, err
		}
		rel.refKey = targetPK

		throughFK := rd.OwnerKey
		if throughFK == "" {
			throughFK = foreignKeyName(target.Table, targetPK.Column)
		}
		rel.joinLeft = dialect.Col(through.Table, throughFK)
		rel.joinRight = targetPK

	default:
		// The through row points at the declaring row, the target row points
		// at the through row.
		declPK, err := declaring.RelationPrimaryKey()
		if err != nil {
			return nil, err
		}
		rel.declKey = declPK

		throughFK := rd.ForeignKey
		if throughFK == "" {
			throughFK = foreignKeyName(declaring.Table, declPK.Column)
		}
		rel.matchKey = dialect.Col(through.Table, throughFK)

		targetFK := rd.OwnerKey
		if targetFK == "" {
			targetFK = foreignKeyName(through.Table, throughPK.Column)
		}
		rel.refKey = dialect.Col(target.Table, targetFK)
		rel.joinLeft = throughPK
		rel.joinRight = rel.refKey
	}

	if err := rel.resolveOrder(rd); err != nil {
		return nil, err
	}
	return rel, nil
}

func (r *throughRelation) single() bool {
	return r.kind == schema.BelongsToThrough || r.kind == schema.HasOneThrough
}

// baseQuery selects the target joined through the intermediate table.
func (r *throughRelation) baseQuery() *query.Builder {
	qb := query.NewBuilder(r.reg.grammar, r.target.Table).SelectAll(r.target.Table)
	qb.Join(r.through.Table, r.joinLeft, r.joinRight)
	return qb
}

func (r *throughRelation) RawQuery() *query.Builder {
	qb := r.baseQuery()
	qb.WhereColumn(r.matchKey, r.declKey)
	return r.applyOrder(qb)
}

func (r *throughRelation) Query(owner *Model) (*query.Builder, error) {
	v, ok := r.ownerValue(owner)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s has no key value", ErrInvalidRelation, r.declaring.Name, r.name)
	}
	qb := r.baseQuery()
	qb.Where(r.matchKey, v)
	r.applyOrder(qb)
	if r.single() {
		qb.Limit(1)
	}
	return qb, nil
}

func (r *throughRelation) Fetch(ctx context.Context, owner *Model) (interface{}, error) {
	if _, ok := r.ownerValue(owner); !ok {
		if r.single() {
			return nil, nil
		}
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

	if r.single() {
		row, err := runner.QueryOne(ctx, sqlStr, args)
		if err != nil {
			return nil, ConvertDBError(err)
		}
		if row == nil {
			return nil, nil
		}
		return r.reg.hydrate(r.target, row)
	}

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

// EagerLoad batches on the owner key and carries the through-side matching
// column under the reserved linking alias.
func (r *throughRelation) EagerLoad(ctx context.Context, owners []*Model) error {
	values, groups, unmatched := collectBatch(owners, r.declKey.Column)
	if len(values) == 0 {
		if r.single() {
			assignSingle(r.name, groups, unmatched, nil)
		} else {
			assignMany(r.name, groups, unmatched, nil)
		}
		return nil
	}

	qb := r.baseQuery()
	qb.SelectColumn(r.matchKey.As(linkingAlias))
	qb.WhereIn(r.matchKey, values)
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

	models, links, err := r.hydrateRows(rows, linkingAlias)
	if err != nil {
		return err
	}
	if r.single() {
		assignSingle(r.name, groups, unmatched, groupSingle(models, links))
	} else {
		assignMany(r.name, groups, unmatched, groupMany(models, links))
	}
	return nil
}
