package marrow

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/marrow-orm/marrow/dialect"
	"github.com/marrow-orm/marrow/identity"
	"github.com/marrow-orm/marrow/query"
	"github.com/marrow-orm/marrow/schema"
)

// Backbone is the per-instance mutable state container: raw column data,
// decode/macro/relation memos, the modified set, the deferred save-task
// queue and the read/write/save/reload protocol. A backbone may be shared by
// several Model façades after a refetch reuses a cached instance; façades
// hold a handle, not a copy.
type Backbone struct {
	reg       *Registry
	structure *Structure

	data         map[string]interface{}
	castMemo     map[string]interface{}
	macroMemo    map[string]interface{}
	relationMemo map[string]interface{}
	modified     map[string]struct{}
	tasks        []saveTask
	isNew        bool

	// current is the façade most recently bound to this backbone, kept so a
	// refetch can report which wrapper owns the shared state.
	current *Model
}

func newBackbone(reg *Registry, s *Structure, data map[string]interface{}, isNew bool) *Backbone {
	return &Backbone{
		reg:          reg,
		structure:    s,
		data:         data,
		castMemo:     make(map[string]interface{}),
		macroMemo:    make(map[string]interface{}),
		relationMemo: make(map[string]interface{}),
		modified:     make(map[string]struct{}),
		isNew:        isNew,
	}
}

// IsNew reports whether the instance has never been saved.
func (b *Backbone) IsNew() bool { return b.isNew }

// Structure returns the instance's structure.
func (b *Backbone) Structure() *Structure { return b.structure }

// rawByKey returns the raw value stored under a physical column key.
func (b *Backbone) rawByKey(key string) (interface{}, bool) {
	v, ok := b.data[key]
	return v, ok
}

// relationMemoValue returns the memoized relation value with presence.
func (b *Backbone) relationMemoValue(name string) (interface{}, bool) {
	v, ok := b.relationMemo[name]
	return v, ok
}

// setRelationMemo assigns the relation memo for a property name.
func (b *Backbone) setRelationMemo(name string, v interface{}) {
	b.relationMemo[name] = v
}

// primaryKeyValues collects the current primary-key values. ok is false when
// any component is missing or nil.
func (b *Backbone) primaryKeyValues() ([]interface{}, bool) {
	if len(b.structure.PrimaryKey) == 0 {
		return nil, false
	}
	values := make([]interface{}, 0, len(b.structure.PrimaryKey))
	for _, p := range b.structure.PrimaryKey {
		v, ok := b.data[p.Key]
		if !ok || v == nil {
			return nil, false
		}
		values = append(values, v)
	}
	return values, true
}

// identityKey builds the identity-cache key for this instance, using the
// polymorphic base name so mixed-subtype fetches share one keyspace.
func (b *Backbone) identityKey() (identity.Key, bool) {
	values, ok := b.primaryKeyValues()
	if !ok {
		return identity.Key{}, false
	}
	return identity.KeyFor(b.structure.base().Name, values)
}

// Get resolves a property value, dispatching on its kind. Failures from the
// structure, relation or query layer are wrapped with the property name.
func (b *Backbone) Get(ctx context.Context, owner *Model, name string) (interface{}, error) {
	p, err := b.structure.Property(name)
	if err != nil {
		return nil, readFailed(name, err)
	}

	switch p.Kind {
	case schema.KindColumn:
		v, err := b.getColumn(p, owner)
		if err != nil {
			return nil, readFailed(name, err)
		}
		return v, nil

	case schema.KindMacro:
		v, err := b.getMacro(p, owner)
		if err != nil {
			return nil, readFailed(name, err)
		}
		return v, nil

	case schema.KindRelation:
		v, err := b.getRelation(ctx, p, owner)
		if err != nil {
			return nil, readFailed(name, err)
		}
		return v, nil

	default:
		return nil, readFailed(name, fmt.Errorf("unknown property kind %d", p.Kind))
	}
}

func (b *Backbone) getColumn(p *Property, owner *Model) (interface{}, error) {
	raw, present := b.data[p.Key]
	if !present && p.HasDefault {
		// Defaults are returned uncached so a later raw value wins.
		return p.Default, nil
	}

	if p.Caster != "" {
		if memo, ok := b.castMemo[p.Name]; ok {
			return memo, nil
		}
		caster, err := b.reg.caster(p.Caster)
		if err != nil {
			return nil, err
		}
		decoded, err := caster.Decode(raw, owner)
		if err != nil {
			return nil, err
		}
		b.castMemo[p.Name] = decoded
		return decoded, nil
	}

	if raw == nil && p.Nullable {
		return nil, nil
	}
	if len(p.EnumValues) > 0 {
		return p.enumValue(raw), nil
	}
	return raw, nil
}

func (b *Backbone) getMacro(p *Property, owner *Model) (interface{}, error) {
	if memo, ok := b.macroMemo[p.Name]; ok {
		return memo, nil
	}
	v, err := p.Macro(owner)
	if err != nil {
		return nil, err
	}
	if p.MacroCached {
		b.macroMemo[p.Name] = v
	}
	return v, nil
}

func (b *Backbone) getRelation(ctx context.Context, p *Property, owner *Model) (interface{}, error) {
	if memo, ok := b.relationMemo[p.Name]; ok {
		return memo, nil
	}

	rel, err := b.structure.Relation(p)
	if err != nil {
		return nil, err
	}
	v, err := rel.Fetch(ctx, owner)
	if err != nil {
		return nil, err
	}
	// Memoize unconditionally, nil and empty results included, so repeated
	// access never re-queries.
	b.relationMemo[p.Name] = v
	return v, nil
}

// Set applies a property write, dispatching on its kind. Macros are never
// writable; relations must support writes; primary-key and immutable columns
// reject writes once persisted.
func (b *Backbone) Set(ctx context.Context, owner *Model, name string, value interface{}) error {
	p, err := b.structure.Property(name)
	if err != nil {
		return writeFailed(name, err)
	}

	switch p.Kind {
	case schema.KindColumn:
		if err := b.setColumn(p, owner, value); err != nil {
			return writeFailed(name, err)
		}
		return nil

	case schema.KindMacro:
		return writeFailed(name, fmt.Errorf("%w: macro is not writable", ErrImmutableViolation))

	case schema.KindRelation:
		if err := b.setRelation(ctx, p, owner, value); err != nil {
			return writeFailed(name, err)
		}
		return nil

	default:
		return writeFailed(name, fmt.Errorf("unknown property kind %d", p.Kind))
	}
}

func (b *Backbone) setColumn(p *Property, owner *Model, value interface{}) error {
	if p.PrimaryKey && !b.isNew {
		return fmt.Errorf("%w: primary key column %s", ErrImmutableViolation, p.Name)
	}
	if p.Immutable && !b.isNew {
		return fmt.Errorf("%w: immutable column %s", ErrImmutableViolation, p.Name)
	}

	if p.Caster != "" {
		caster, err := b.reg.caster(p.Caster)
		if err != nil {
			return err
		}
		delete(b.castMemo, p.Name)
		encoded, err := caster.Encode(value, owner)
		if err != nil {
			return err
		}
		value = encoded
	} else if len(p.EnumValues) > 0 {
		if s, ok := value.(fmt.Stringer); ok {
			value = s.String()
		}
	}

	b.data[p.Key] = value
	b.modified[p.Name] = struct{}{}
	b.invalidateForColumn(p)
	return nil
}

func (b *Backbone) setRelation(ctx context.Context, p *Property, owner *Model, value interface{}) error {
	rel, err := b.structure.Relation(p)
	if err != nil {
		return err
	}
	w, ok := rel.(WritableRelation)
	if !ok {
		return fmt.Errorf("%w: relation %s is not writable", ErrImmutableViolation, p.Name)
	}
	if err := w.Write(ctx, owner, value); err != nil {
		return err
	}
	b.relationMemo[p.Name] = value
	return nil
}

// invalidateForColumn drops memos derived from a column's raw value: its
// cast memo and the memo of any built relation keyed on it. Resolvers of
// inherited relations live on the parent structures, so the whole chain is
// walked.
func (b *Backbone) invalidateForColumn(p *Property) {
	delete(b.castMemo, p.Name)

	for s := b.structure; s != nil; s = s.Parent {
		s.mu.Lock()
		for name, rel := range s.relations {
			if rel.DeclaringKey().Column == p.Key {
				delete(b.relationMemo, name)
			}
		}
		s.mu.Unlock()
	}
}

// writeRaw assigns a raw value by physical column key, honoring the
// immutability rules, and marks the property modified. Relation writes use
// this to move foreign keys without re-encoding through a caster.
func (b *Backbone) writeRaw(key string, value interface{}) error {
	p, err := b.structure.Property(key)
	if err != nil {
		return writeFailed(key, err)
	}
	if (p.PrimaryKey || p.Immutable) && !b.isNew {
		return writeFailed(key, fmt.Errorf("%w: column %s", ErrImmutableViolation, p.Name))
	}
	b.data[p.Key] = value
	b.modified[p.Name] = struct{}{}
	b.invalidateForColumn(p)
	return nil
}

// Unset removes the raw value of a column. Macros and relations reject unset.
func (b *Backbone) Unset(name string) error {
	p, err := b.structure.Property(name)
	if err != nil {
		return writeFailed(name, err)
	}
	if p.Kind != schema.KindColumn {
		return writeFailed(name, fmt.Errorf("%w: %s is not a column", ErrImmutableViolation, p.Kind))
	}
	delete(b.data, p.Key)
	delete(b.castMemo, p.Name)
	return nil
}

// IsModified reports pending changes. With keys, true only if one of those
// exact property names is in the modified set.
func (b *Backbone) IsModified(keys ...string) bool {
	if len(b.modified) == 0 {
		return false
	}
	if len(keys) == 0 {
		return true
	}
	for _, k := range keys {
		if _, ok := b.modified[k]; ok {
			return true
		}
	}
	return false
}

type persistPair struct {
	key   string
	value interface{}
}

// collectValues computes the ordered (physical key -> value) pairs to
// persist. Unmodified columns of persisted instances are skipped; columns
// with no raw value fall back to a server-side default marker unless they
// are computed or primary keys.
func (b *Backbone) collectValues() []persistPair {
	var pairs []persistPair
	for _, p := range b.structure.Properties {
		if p.Kind != schema.KindColumn {
			continue
		}
		if !b.isNew {
			if _, ok := b.modified[p.Name]; !ok {
				continue
			}
		}
		if raw, ok := b.data[p.Key]; ok {
			pairs = append(pairs, persistPair{key: p.Key, value: raw})
			continue
		}
		if p.Computed || p.PrimaryKey {
			continue
		}
		pairs = append(pairs, persistPair{key: p.Key, value: query.ServerDefault})
	}
	return pairs
}

// appendLifecycle back-fills the polymorphic discriminator and the
// soft-delete column when the structure declares them and the current data
// carries no value yet.
func (b *Backbone) appendLifecycle(pairs []persistPair) []persistPair {
	if col, value, ok := b.structure.discriminatorFor(b.structure.Name); ok {
		if _, present := b.data[col]; !present {
			pairs = append(pairs, persistPair{key: col, value: value})
			b.data[col] = value
		}
	}
	if col := b.structure.softDelete(); col != "" {
		if _, present := b.data[col]; !present {
			pairs = append(pairs, persistPair{key: col, value: nil})
		}
	}
	return pairs
}

// Save persists the instance: insert with generated-key return for new
// instances, update by primary key for persisted ones. Deferred save tasks
// run afterwards in FIFO order; all memos and the modified set are cleared
// on success since the server may coerce values.
func (b *Backbone) Save(ctx context.Context, owner *Model) error {
	pairs := b.collectValues()
	if len(pairs) == 0 && len(b.tasks) == 0 {
		return nil
	}

	if len(pairs) > 0 {
		pairs = b.appendLifecycle(pairs)
		if b.isNew {
			if err := b.insert(ctx, pairs); err != nil {
				return err
			}
		} else {
			if err := b.update(ctx, pairs); err != nil {
				return err
			}
		}
	}

	if err := b.runTasks(ctx); err != nil {
		return err
	}

	// Wholesale memo invalidation after commit: simplicity over fine-grained
	// tracking, since RETURNING may have coerced any value.
	b.clearMemos()
	b.modified = make(map[string]struct{})
	return nil
}

// insert writes a new row and replaces the raw data with the canonical
// server row from the RETURNING clause, then registers the instance in the
// identity cache.
func (b *Backbone) insert(ctx context.Context, pairs []persistPair) error {
	s := b.structure
	b.generateKeys()
	pairs = b.refreshKeyPairs(pairs)

	ib := query.Insert(b.reg.grammar, s.Table)
	for _, pair := range pairs {
		ib.Set(pair.key, pair.value)
	}
	if len(s.OnDuplicateUpdate) > 0 && len(s.PrimaryKey) > 0 {
		target := make([]string, 0, len(s.PrimaryKey))
		for _, p := range s.PrimaryKey {
			target = append(target, p.Key)
		}
		ib.OnConflictUpdate(target, s.OnDuplicateUpdate)
	}
	ib.Returning(b.columnKeys()...)

	runner, err := b.reg.runnerFor(s)
	if err != nil {
		return err
	}
	sqlStr, args := ib.SQL()
	row, err := runner.QueryOne(ctx, sqlStr, args)
	if err != nil {
		return ConvertDBError(err)
	}
	if row == nil {
		return fmt.Errorf("%w: insert returned no row", ErrNotFound)
	}

	b.data = row
	b.isNew = false

	if key, ok := b.identityKey(); ok {
		b.reg.cache.Put(key, b)
	}
	return nil
}

// generateKeys populates absent uuid primary keys client-side so the
// instance has an identity even before the server echoes the row back.
func (b *Backbone) generateKeys() {
	for _, p := range b.structure.PrimaryKey {
		if p.Type != schema.TypeUUID {
			continue
		}
		if v, ok := b.data[p.Key]; !ok || v == nil {
			b.data[p.Key] = uuid.NewString()
		}
	}
}

// refreshKeyPairs re-reads primary-key pairs after client-side generation.
func (b *Backbone) refreshKeyPairs(pairs []persistPair) []persistPair {
	for i, pair := range pairs {
		if !query.IsServerDefault(pair.value) {
			continue
		}
		if v, ok := b.data[pair.key]; ok && v != nil {
			pairs[i].value = v
		}
	}
	for _, p := range b.structure.PrimaryKey {
		v, ok := b.data[p.Key]
		if !ok || v == nil {
			continue
		}
		found := false
		for _, pair := range pairs {
			if pair.key == p.Key {
				found = true
				break
			}
		}
		if !found {
			pairs = append(pairs, persistPair{key: p.Key, value: v})
		}
	}
	return pairs
}

// update writes the collected values by primary key.
func (b *Backbone) update(ctx context.Context, pairs []persistPair) error {
	s := b.structure
	pkValues, ok := b.primaryKeyValues()
	if !ok {
		return fmt.Errorf("%w: %s has no primary key values", ErrNotFound, s.Name)
	}

	ub := query.Update(b.reg.grammar, s.Table)
	for _, pair := range pairs {
		ub.Set(pair.key, pair.value)
	}
	for i, p := range s.PrimaryKey {
		ub.Where(p.Key, pkValues[i])
	}

	runner, err := b.reg.runnerFor(s)
	if err != nil {
		return err
	}
	sqlStr, args := ub.SQL()
	if _, err := runner.Exec(ctx, sqlStr, args); err != nil {
		return ConvertDBError(err)
	}
	return nil
}

// runTasks executes the deferred save tasks in FIFO order. The first failure
// aborts the remaining tasks and propagates.
func (b *Backbone) runTasks(ctx context.Context) error {
	for len(b.tasks) > 0 {
		task := b.tasks[0]
		b.tasks = b.tasks[1:]
		if err := task.run(ctx); err != nil {
			return err
		}
	}
	b.tasks = nil
	return nil
}

func (b *Backbone) queueTask(t saveTask) {
	b.tasks = append(b.tasks, t)
}

func (b *Backbone) clearMemos() {
	b.castMemo = make(map[string]interface{})
	b.macroMemo = make(map[string]interface{})
	b.relationMemo = make(map[string]interface{})
}

// Reload re-selects the canonical row by primary key, replaces the raw data
// wholesale and clears all memos. The modified set is deliberately kept, so
// pending edits survive a reload and are written by the next save.
func (b *Backbone) Reload(ctx context.Context) error {
	s := b.structure
	pkValues, ok := b.primaryKeyValues()
	if !ok {
		return fmt.Errorf("%w: %s has no primary key values", ErrNotFound, s.Name)
	}

	qb := query.NewBuilder(b.reg.grammar, s.Table).SelectAll(s.Table)
	for i, p := range s.PrimaryKey {
		qb.Where(dialect.Col(s.Table, p.Key), pkValues[i])
	}
	qb.Limit(1)

	runner, err := b.reg.runnerFor(s)
	if err != nil {
		return err
	}
	sqlStr, args := qb.SQL()
	row, err := runner.QueryOne(ctx, sqlStr, args)
	if err != nil {
		return ConvertDBError(err)
	}
	if row == nil {
		return fmt.Errorf("%w: %s %v", ErrNotFound, s.Name, pkValues)
	}

	b.data = row
	b.isNew = false
	b.clearMemos()
	return nil
}

// columnKeys returns every physical column key in declaration order.
func (b *Backbone) columnKeys() []string {
	var keys []string
	seen := make(map[string]bool)
	for _, p := range b.structure.Properties {
		if p.Kind != schema.KindColumn || seen[p.Key] {
			continue
		}
		seen[p.Key] = true
		keys = append(keys, p.Key)
	}
	return keys
}

// mergeInternal copies only internal linking helper keys (the "__" prefix)
// from a freshly decoded row into a reused backbone.
func (b *Backbone) mergeInternal(row map[string]interface{}) {
	for k, v := range row {
		if len(k) >= 2 && k[0] == '_' && k[1] == '_' {
			b.data[k] = v
		}
	}
}
