package marrow

import (
	"context"
	"fmt"

	"github.com/marrow-orm/marrow/dialect"
	"github.com/marrow-orm/marrow/query"
)

// belongsToManyRelation resolves a many-to-many relation through a linking
// table. The linking table defaults to the two base table names sorted
// lexicographically and joined with an underscore; its two columns default
// to the conventional foreign-key names of either side.
type belongsToManyRelation struct {
	relationBase
	linkTable string
	linkFK    dialect.ColumnLiteral // linking column pointing at the declaring side
	linkOK    dialect.ColumnLiteral // linking column pointing at the target side
}

func newBelongsToMany(reg *Registry, p *Property, declaring, target *Structure) (Relation, error) {
	rd := p.Rel
	rel := &belongsToManyRelation{relationBase: relationBase{
		reg:       reg,
		name:      p.Name,
		declaring: declaring,
		target:    target,
	}}

	declCol := rd.ForeignKey
	if declCol == "" {
		pk, err := declaring.RelationPrimaryKey()
		if err != nil {
			return nil, err
		}
		declCol = pk.Column
	}
	rel.declKey = dialect.Col(declaring.Table, declCol)

	refCol := rd.OwnerKey
	if refCol == "" {
		pk, err := target.RelationPrimaryKey()
		if err != nil {
			return nil, err
		}
		refCol = pk.Column
	}
	rel.refKey = dialect.Col(target.Table, refCol)

	rel.linkTable = rd.LinkTable
	if rel.linkTable == "" {
		rel.linkTable = dialect.LinkTableName(declaring.Table, target.Table)
	}

	linkFK := rd.LinkForeignKey
	if linkFK == "" {
		linkFK = foreignKeyName(declaring.Table, declCol)
	}
	rel.linkFK = dialect.Col(rel.linkTable, linkFK)

	linkOK := rd.LinkOwnerKey
	if linkOK == "" {
		linkOK = foreignKeyName(target.Table, refCol)
	}
	rel.linkOK = dialect.Col(rel.linkTable, linkOK)

	if err := rel.resolveOrder(rd); err != nil {
		return nil, err
	}
	return rel, nil
}

// baseQuery selects the target joined through the linking table.
func (r *belongsToManyRelation) baseQuery() *query.Builder {
	qb := query.NewBuilder(r.reg.grammar, r.target.Table).SelectAll(r.target.Table)
	qb.Join(r.linkTable, r.linkOK, r.refKey)
	return qb
}

func (r *belongsToManyRelation) RawQuery() *query.Builder {
	qb := r.baseQuery()
	qb.WhereColumn(r.linkFK, r.declKey)
	return r.applyOrder(qb)
}

func (r *belongsToManyRelation) Query(owner *Model) (*query.Builder, error) {
	v, ok := r.ownerValue(owner)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s has no key value", ErrInvalidRelation, r.declaring.Name, r.name)
	}
	qb := r.baseQuery()
	qb.Where(r.linkFK, v)
	return r.applyOrder(qb), nil
}

func (r *belongsToManyRelation) Fetch(ctx context.Context, owner *Model) (interface{}, error) {
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

// EagerLoad selects the linking foreign key under a reserved alias so results
// can be distributed back to their owners after hydration.
func (r *belongsToManyRelation) EagerLoad(ctx context.Context, owners []*Model) error {
	values, groups, unmatched := collectBatch(owners, r.declKey.Column)
	if len(values) == 0 {
		assignMany(r.name, groups, unmatched, nil)
		return nil
	}

	qb := r.baseQuery()
	qb.SelectColumn(r.linkFK.As(linkingAlias))
	qb.WhereIn(r.linkFK, values)
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
	assignMany(r.name, groups, unmatched, groupMany(models, links))
	return nil
}
