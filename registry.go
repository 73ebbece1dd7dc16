// Package marrow is a declarative object-relational mapper core: it resolves
// model definitions into immutable structures, materializes rows into
// identity-cached instances, tracks per-instance state, and resolves the
// seven relation kinds with batched eager loading.
package marrow

import (
	"context"
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/marrow-orm/marrow/conn"
	"github.com/marrow-orm/marrow/dialect"
	"github.com/marrow-orm/marrow/identity"
	"github.com/marrow-orm/marrow/query"
	"github.com/marrow-orm/marrow/schema"
)

// RelationFactory constructs a resolver for a custom relation kind.
type RelationFactory func(reg *Registry, prop *Property, declaring *Structure) (Relation, error)

// Registry owns the model definitions, the memoized structure map, the
// identity cache and the collaborators (connections, grammar, casters).
// All shared state is synchronized internally; registries are safe to share
// across goroutines.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*schema.Definition

	structures *xsync.MapOf[string, *Structure]
	runners    *xsync.MapOf[string, *query.Runner]

	casters   map[string]Caster
	factories map[schema.RelationKind]RelationFactory

	conns   *conn.Manager
	cache   *identity.Cache
	grammar dialect.Grammar
	log     *zap.Logger
}

// Option configures a registry.
type Option func(*Registry)

// WithConnections sets the connection manager.
func WithConnections(m *conn.Manager) Option {
	return func(r *Registry) { r.conns = m }
}

// WithGrammar sets the SQL grammar. Defaults to Postgres.
func WithGrammar(g dialect.Grammar) Option {
	return func(r *Registry) { r.grammar = g }
}

// WithLogger sets the logger used for query logging.
func WithLogger(log *zap.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// WithCaster registers a named caster.
func WithCaster(name string, c Caster) Option {
	return func(r *Registry) { r.casters[name] = c }
}

// WithRelationKind registers a factory for a custom relation kind.
func WithRelationKind(kind schema.RelationKind, f RelationFactory) Option {
	return func(r *Registry) { r.factories[kind] = f }
}

// NewRegistry creates a registry with the built-in casters registered.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		defs:       make(map[string]*schema.Definition),
		structures: xsync.NewMapOf[string, *Structure](),
		runners:    xsync.NewMapOf[string, *query.Runner](),
		casters: map[string]Caster{
			BoolCasterName: boolCaster{},
			JSONCasterName: jsonCaster{},
		},
		factories: make(map[schema.RelationKind]RelationFactory),
		conns:     conn.NewManager(),
		cache:     identity.NewCache(),
		grammar:   dialect.Postgres{},
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds model definitions to the registry.
func (r *Registry) Register(defs ...*schema.Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range defs {
		if d.Name == "" {
			return fmt.Errorf("%w: definition has no name", ErrNotAModel)
		}
		if _, exists := r.defs[d.Name]; exists {
			return fmt.Errorf("model %s is already registered", d.Name)
		}
		r.defs[d.Name] = d
	}
	return nil
}

// Connections returns the connection manager.
func (r *Registry) Connections() *conn.Manager { return r.conns }

// Grammar returns the SQL grammar.
func (r *Registry) Grammar() dialect.Grammar { return r.grammar }

// Cache returns the identity cache.
func (r *Registry) Cache() *identity.Cache { return r.cache }

// Flush removes every identity-cache entry for a model type.
func (r *Registry) Flush(model string) { r.cache.Flush(model) }

// FlushAll empties the identity cache.
func (r *Registry) FlushAll() { r.cache.FlushAll() }

// caster resolves a caster by name.
func (r *Registry) caster(name string) (Caster, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.casters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCaster, name)
	}
	return c, nil
}

// definition returns the registered definition for a model name.
func (r *Registry) definition(name string) (*schema.Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[name]
	return d, ok
}

// runner resolves the instrumented runner for a named connection,
// memoizing per connection id.
func (r *Registry) runner(connection string) (*query.Runner, error) {
	if runner, ok := r.runners.Load(connection); ok {
		return runner, nil
	}

	db, err := r.conns.Get(connection)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	runner := query.NewRunner(db, r.log)
	actual, _ := r.runners.LoadOrStore(connection, runner)
	return actual, nil
}

// runnerFor resolves the runner for a structure's connection.
func (r *Registry) runnerFor(s *Structure) (*query.Runner, error) {
	return r.runner(s.Connection)
}

// Find fetches a model by primary key, consulting the identity cache before
// issuing a query. Returns ErrNotFound when no row matches.
func (r *Registry) Find(ctx context.Context, model string, pk ...interface{}) (*Model, error) {
	s, err := r.StructureFor(model)
	if err != nil {
		return nil, err
	}
	if len(s.PrimaryKey) == 0 || len(pk) != len(s.PrimaryKey) {
		return nil, fmt.Errorf("%w: %s expects %d primary key values", ErrInvalidColumn, model, len(s.PrimaryKey))
	}

	if key, ok := identity.KeyFor(s.base().Name, pk); ok {
		if cached, hit := r.cache.Get(key); hit {
			return rebind(cached.(*Backbone)), nil
		}
	}

	b := query.NewBuilder(r.grammar, s.Table).SelectAll(s.Table)
	for i, p := range s.PrimaryKey {
		b.Where(dialect.Col(s.Table, p.Key), pk[i])
	}
	b.Limit(1)

	runner, err := r.runnerFor(s)
	if err != nil {
		return nil, err
	}
	sqlStr, args := b.SQL()
	row, err := runner.QueryOne(ctx, sqlStr, args)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	if row == nil {
		return nil, fmt.Errorf("%w: %s %v", ErrNotFound, model, pk)
	}
	return r.hydrate(s, row)
}

// Hydrate materializes a raw row into an instance of a model type.
func (r *Registry) Hydrate(model string, row query.Row) (*Model, error) {
	s, err := r.StructureFor(model)
	if err != nil {
		return nil, err
	}
	return r.hydrate(s, row)
}

// Select starts a bound query for a model type.
func (r *Registry) Select(model string) *ModelQuery {
	q := &ModelQuery{reg: r}
	s, err := r.StructureFor(model)
	if err != nil {
		q.err = err
		return q
	}
	q.structure = s
	q.builder = query.NewBuilder(r.grammar, s.Table).SelectAll(s.Table)
	return q
}

// New constructs an unsaved instance of a model type.
func (r *Registry) New(model string) (*Model, error) {
	s, err := r.StructureFor(model)
	if err != nil {
		return nil, err
	}
	b := newBackbone(r, s, make(map[string]interface{}), true)
	return rebind(b), nil
}
