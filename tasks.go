package marrow

import (
	"context"
	"fmt"

	"github.com/marrow-orm/marrow/query"
)

// saveTask is a deferred write queued by a relation assignment and executed
// after the owner's own save, in FIFO order.
type saveTask interface {
	run(ctx context.Context) error
}

// detachRelationTask clears the foreign key of every target row currently
// pointing at the owner. A missing owner key is a no-op: an instance that was
// never persisted cannot have holders.
type detachRelationTask struct {
	rel   *hasOneRelation
	owner *Model
}

func (t *detachRelationTask) run(ctx context.Context) error {
	v, ok := t.rel.ownerValue(t.owner)
	if !ok {
		return nil
	}

	ub := query.Update(t.rel.reg.grammar, t.rel.target.Table)
	ub.Set(t.rel.refKey.Column, nil)
	ub.Where(t.rel.refKey.Column, v)

	runner, err := t.rel.runner()
	if err != nil {
		return err
	}
	sqlStr, args := ub.SQL()
	if _, err := runner.Exec(ctx, sqlStr, args); err != nil {
		return ConvertDBError(err)
	}
	return nil
}

// attachRelationTask points the target instance's foreign key at the owner
// and saves the target, so its own dirty state is written in the same pass.
type attachRelationTask struct {
	rel    *hasOneRelation
	owner  *Model
	target *Model
}

func (t *attachRelationTask) run(ctx context.Context) error {
	v, ok := t.rel.ownerValue(t.owner)
	if !ok {
		return fmt.Errorf("%w: cannot attach %s, owner %s has no %s value",
			ErrInvalidRelation, t.rel.name, t.rel.declaring.Name, t.rel.declKey.Column)
	}
	if err := t.target.backbone.writeRaw(t.rel.refKey.Column, v); err != nil {
		return err
	}
	return t.target.Save(ctx)
}
