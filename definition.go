package molecule

import "sync/atomic"

var moleculeIDCounter atomic.Uint64

// Molecule is a factory definition producing a scoped, shared instance
type Molecule[T any] struct {
	id      uint64
	factory func(*MoleculeCtx) (T, error)
	tags    map[any]any
}

// AnyMolecule is a type-erased interface for cache keys and graph plumbing
type AnyMolecule interface {
	GetTag(tag any) (any, bool)
	SetTag(tag any, val any)

	moleculeID() uint64
	resolveAny(ctx *MoleculeCtx) (any, error)
}

// MoleculeOption is a modifier for molecule definitions
type MoleculeOption func(AnyMolecule)

// WithMoleculeTag returns an option that sets a tag on a molecule
func WithMoleculeTag[T any](tag Tag[T], val T) MoleculeOption {
	return func(mol AnyMolecule) {
		tag.Set(mol, val)
	}
}

// New creates a molecule definition from a factory function. The factory
// runs at most once per (molecule, scope path) cache entry; scope reads and
// child resolutions during that single run determine the entry's identity.
func New[T any](factory func(*MoleculeCtx) (T, error), opts ...MoleculeOption) *Molecule[T] {
	mol := &Molecule[T]{
		id:      moleculeIDCounter.Add(1),
		factory: factory,
		tags:    make(map[any]any),
	}

	for _, opt := range opts {
		opt(mol)
	}

	return mol
}

func (m *Molecule[T]) moleculeID() uint64 {
	return m.id
}

func (m *Molecule[T]) resolveAny(ctx *MoleculeCtx) (any, error) {
	return m.factory(ctx)
}

func (m *Molecule[T]) GetTag(tag any) (any, bool) {
	val, ok := m.tags[tag]
	return val, ok
}

func (m *Molecule[T]) SetTag(tag any, val any) {
	m.tags[tag] = val
}

// MoleculeCtx provides context for a factory's single evaluation
type MoleculeCtx struct {
	injector *Injector
	resolver *scopeResolver
	entry    *entry
	molecule AnyMolecule
	creating []AnyMolecule
}

// OnMount registers a callback invoked synchronously when the entry's
// reference count first transitions 0 to 1. The returned teardown (may be
// nil) runs when the entry is destroyed, before OnUnmount callbacks.
func (ctx *MoleculeCtx) OnMount(fn func() func() error) {
	ctx.entry.mounts = append(ctx.entry.mounts, fn)
}

// OnUnmount registers a callback invoked when the entry is destroyed
func (ctx *MoleculeCtx) OnUnmount(fn func() error) {
	ctx.entry.unmounts = append(ctx.entry.unmounts, fn)
}

// AmbientPath returns the ambient scope bindings visible to this
// resolution. Reading the path is introspection, not a scope read: it does
// not affect the entry's cache identity.
func (ctx *MoleculeCtx) AmbientPath() ScopePath {
	return ctx.resolver.ambientPath()
}

// Injector returns the injector driving this evaluation
func (ctx *MoleculeCtx) Injector() *Injector {
	return ctx.injector
}

// GetTag retrieves a tag value from the injector
func (ctx *MoleculeCtx) GetTag(tag any) (any, bool) {
	return ctx.injector.GetTag(tag)
}

// ScopeValue reads the value of a scope token. The read is recorded, so the
// token becomes part of the entry's cache identity.
func ScopeValue[T any](ctx *MoleculeCtx, tok *ScopeToken[T]) (T, error) {
	val, err := ctx.resolver.resolve(tok)
	if err != nil {
		var zero T
		return zero, err
	}
	return SafeTypeAssertion[T](val)
}

// Mol resolves a child molecule through the same injector. The parent's
// entry holds the child subscription, so the child stays alive while the
// parent does, and the child's scope reads count toward the parent's
// cache identity.
func Mol[T any](ctx *MoleculeCtx, child *Molecule[T]) (T, error) {
	val, sub, err := ctx.injector.useAny(child, ctx.resolver, ctx.creating)
	if err != nil {
		var zero T
		return zero, err
	}
	ctx.entry.children = append(ctx.entry.children, sub)
	return SafeTypeAssertion[T](val)
}
