package molecule

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Injector is the central registry mapping (molecule, scope path) to a
// cached instance, its reference count, and its lifecycle callbacks. All
// creation, reuse, and teardown goes through it.
//
// The injector is designed for cooperative, host-driven use: the host calls
// Use when a consumer starts depending on an instance and releases the
// subscription when it stops. Transient extra use/release pairs (duplicate
// invocation, deferred cleanup) are absorbed by reference counting plus the
// deferred-teardown window.
type Injector struct {
	mu         sync.Mutex
	cache      *entryCache
	deps       map[AnyMolecule][]AnyScopeToken
	graph      *MoleculeGraph
	scheduler  Scheduler
	extensions []Extension
	extMu      sync.RWMutex
	tags       sync.Map
	seqCounter atomic.Uint64
	genCounter atomic.Uint64
	disposed   bool
}

// InjectorOption is a modifier for injectors
type InjectorOption func(*Injector)

// WithScheduler sets the scheduler used for deferred teardown checks
func WithScheduler(s Scheduler) InjectorOption {
	return func(inj *Injector) {
		inj.scheduler = s
	}
}

// WithExtension returns an option that registers an extension
func WithExtension(ext Extension) InjectorOption {
	return func(inj *Injector) {
		if err := inj.UseExtension(ext); err != nil {
			panic(err)
		}
	}
}

// WithInjectorTag returns an option that sets a tag on an injector
func WithInjectorTag[T any](tag Tag[T], val T) InjectorOption {
	return func(inj *Injector) {
		tag.SetOnInjector(inj, val)
	}
}

// NewInjector creates a new injector with optional configuration
func NewInjector(opts ...InjectorOption) *Injector {
	inj := &Injector{
		cache:      newEntryCache(),
		deps:       make(map[AnyMolecule][]AnyScopeToken),
		graph:      NewMoleculeGraph(),
		scheduler:  NewTimerScheduler(0),
		extensions: []Extension{},
	}

	for _, opt := range opts {
		opt(inj)
	}

	return inj
}

// Use resolves or creates the instance of mol for the scope path described
// by opts, increments its reference count, and returns the value with a
// subscription handle. Releasing the handle decrements the count; when it
// reaches zero a deferred teardown check is armed.
func Use[T any](inj *Injector, mol *Molecule[T], opts ...UseOption) (T, *Subscription, error) {
	var zero T

	ro := newResolveOptions()
	for _, opt := range opts {
		opt(&ro)
	}
	resolver := newScopeResolver(ro)

	op := &Operation{
		Kind:     OpUse,
		Molecule: mol,
		Injector: inj,
	}

	exts := inj.snapshotExtensions()

	var sub *Subscription
	next := func() (any, error) {
		val, s, err := inj.useAny(mol, resolver, nil)
		sub = s
		return val, err
	}

	// Apply extensions in reverse order (last registered wraps first)
	for i := len(exts) - 1; i >= 0; i-- {
		ext := exts[i]
		currentNext := next
		next = func() (any, error) {
			return ext.Wrap(context.Background(), currentNext, op)
		}
	}

	result, err := next()
	if err != nil {
		// An extension may fail after next() succeeded; drop the reference
		// it acquired so the entry is not pinned forever.
		sub.Release()
		for _, ext := range exts {
			ext.OnError(err, op, inj)
		}
		return zero, nil, err
	}

	typed, err := SafeTypeAssertion[T](result)
	if err != nil {
		sub.Release()
		return zero, nil, err
	}
	return typed, sub, nil
}

// useAny is the untyped resolution path shared by Use and Mol. creating is
// the stack of molecules whose factories are currently running, used for
// cycle detection.
func (inj *Injector) useAny(mol AnyMolecule, resolver *scopeResolver, creating []AnyMolecule) (any, *Subscription, error) {
	inj.mu.Lock()
	if inj.disposed {
		inj.mu.Unlock()
		return nil, nil, ErrInjectorDisposed
	}
	depTokens, known := inj.deps[mol]
	inj.mu.Unlock()

	if known {
		// Peek the known dep tokens to derive the key. The set is grow-only
		// and may include tokens a past evaluation read conditionally; if one
		// has no binding here, fall through and let the factory's actual
		// reads decide the key instead.
		values := make(map[AnyScopeToken]any, len(depTokens))
		derivable := true
		for _, tok := range depTokens {
			val, err := resolver.peek(tok)
			if err != nil {
				derivable = false
				break
			}
			values[tok] = val
		}
		if derivable {
			key := keyFor(mol, depTokens, values)

			inj.mu.Lock()
			if e, ok := inj.cache.Load(key); ok && e.state != stateDestroyed {
				sub := inj.addRefLocked(e)
				inj.mu.Unlock()
				// Record the reads backing the hit so a parent mid-creation
				// still sees them transitively.
				for _, tok := range depTokens {
					resolver.recordRead(tok, values[tok])
				}
				return e.value, sub, nil
			}
			inj.mu.Unlock()
		}
	}

	return inj.createEntry(mol, resolver, creating)
}

// createEntry evaluates the factory exactly once, derives the minimal
// scope path key from the tokens actually read, stores the entry, and runs
// mount callbacks before handing the value to the first consumer.
func (inj *Injector) createEntry(mol AnyMolecule, resolver *scopeResolver, creating []AnyMolecule) (any, *Subscription, error) {
	for _, inFlight := range creating {
		if inFlight == mol {
			stack := make([]AnyMolecule, len(creating))
			copy(stack, creating)
			return nil, nil, &CycleError{Molecule: mol, Stack: stack}
		}
	}
	if len(creating) > 0 {
		inj.graph.AddUseEdge(creating[len(creating)-1], mol)
	}

	frame := resolver.pushFrame()
	e := &entry{
		molecule: mol,
		seq:      inj.seqCounter.Add(1),
	}
	ctx := &MoleculeCtx{
		injector: inj,
		resolver: resolver,
		entry:    e,
		molecule: mol,
		creating: append(creating, mol),
	}

	val, err := mol.resolveAny(ctx)
	resolver.popFrame()
	if err != nil {
		e.releaseChildren()
		if _, ok := err.(*CycleError); ok {
			return nil, nil, err
		}
		return nil, nil, CreateResolveError(mol, err, "create")
	}
	e.value = val

	inj.mu.Lock()
	inj.mergeDepsLocked(mol, frame.order)
	key := keyFor(mol, frame.order, frame.values)

	// A conditional read can widen the dep set mid-flight and land on a key
	// that already has a live entry. Prefer the live entry; the fresh
	// evaluation is discarded unmounted.
	if existing, ok := inj.cache.Load(key); ok && existing.state != stateDestroyed {
		sub := inj.addRefLocked(existing)
		inj.mu.Unlock()
		e.releaseChildren()
		return existing.value, sub, nil
	}

	e.key = key
	e.refs = 1
	e.state = stateMounted
	inj.cache.Store(key, e)
	sub := newSubscription(inj, e)
	inj.mu.Unlock()

	e.runMounts()

	return val, sub, nil
}

// addRefLocked increments an entry's reference count, cancelling a pending
// teardown check if one is armed. Caller holds inj.mu.
func (inj *Injector) addRefLocked(e *entry) *Subscription {
	if e.state == statePendingTeardown {
		if e.cancelTeardown != nil {
			e.cancelTeardown()
			e.cancelTeardown = nil
		}
		e.teardownGen = 0
		e.state = stateMounted
	}
	e.refs++
	return newSubscription(inj, e)
}

// mergeDepsLocked grows the per-injector dep set for mol. Grow-only: tokens
// observed in any evaluation stay in the set. Caller holds inj.mu.
func (inj *Injector) mergeDepsLocked(mol AnyMolecule, tokens []AnyScopeToken) {
	existing := inj.deps[mol]
	for _, tok := range tokens {
		existing = appendUnique(existing, tok)
	}
	inj.deps[mol] = existing
}

// releaseEntry decrements the reference count; at zero it arms the
// deferred teardown check instead of tearing down synchronously.
func (inj *Injector) releaseEntry(e *entry) {
	inj.mu.Lock()
	defer inj.mu.Unlock()

	if e.state == stateDestroyed {
		return
	}
	if e.refs > 0 {
		e.refs--
	}
	if e.refs > 0 || e.state != stateMounted {
		return
	}

	e.state = statePendingTeardown
	gen := inj.genCounter.Add(1)
	e.teardownGen = gen
	e.cancelTeardown = inj.scheduler.Schedule(func() {
		inj.teardownCheck(e, gen)
	})
}

// teardownCheck runs as the deferred unit of work. If the entry is still
// unreferenced it is destroyed; otherwise the check is a no-op (a new
// subscriber arrived, or the check was superseded).
func (inj *Injector) teardownCheck(e *entry, gen uint64) {
	inj.mu.Lock()
	if e.state != statePendingTeardown || e.teardownGen != gen || e.refs != 0 {
		inj.mu.Unlock()
		return
	}
	e.state = stateDestroyed
	e.cancelTeardown = nil
	inj.cache.Delete(e.key)
	inj.mu.Unlock()

	if err := e.runTeardown(); err != nil {
		inj.notifyTeardownError(e, err, "deferred")
	}
	e.releaseChildren()
}

func (inj *Injector) notifyTeardownError(e *entry, err error, context string) {
	teardownErr := &TeardownError{
		Molecule: e.molecule,
		Err:      err,
		Context:  context,
	}

	for _, ext := range inj.snapshotExtensions() {
		if ext.OnTeardownError(teardownErr) {
			return
		}
	}
}

// UseExtension registers an extension to the injector
func (inj *Injector) UseExtension(ext Extension) error {
	inj.extMu.Lock()
	inj.extensions = append(inj.extensions, ext)
	sort.Slice(inj.extensions, func(i, j int) bool {
		return inj.extensions[i].Order() < inj.extensions[j].Order()
	})
	inj.extMu.Unlock()

	return ext.Init(inj)
}

func (inj *Injector) snapshotExtensions() []Extension {
	inj.extMu.RLock()
	defer inj.extMu.RUnlock()
	exts := make([]Extension, len(inj.extensions))
	copy(exts, inj.extensions)
	return exts
}

// Graph returns the molecule dependency graph for introspection
func (inj *Injector) Graph() *MoleculeGraph {
	return inj.graph
}

// GetTag retrieves a tag value from the injector
func (inj *Injector) GetTag(tag any) (any, bool) {
	return inj.tags.Load(tag)
}

// SetTag stores a tag value on the injector
func (inj *Injector) SetTag(tag any, val any) {
	inj.tags.Store(tag, val)
}

// Live reports the number of live cache entries
func (inj *Injector) Live() int {
	return inj.cache.Size()
}

// Dispose tears down all live entries, newest first, then disposes
// extensions. Pending teardown checks are cancelled; their entries are
// torn down here instead. Subsequent Use calls fail with
// ErrInjectorDisposed; releasing outstanding subscriptions is a no-op.
func (inj *Injector) Dispose() error {
	inj.mu.Lock()
	if inj.disposed {
		inj.mu.Unlock()
		return nil
	}
	inj.disposed = true

	entries := make([]*entry, 0, inj.cache.Size())
	inj.cache.Range(func(key cacheKey, e *entry) bool {
		entries = append(entries, e)
		return true
	})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq > entries[j].seq
	})
	for _, e := range entries {
		if e.cancelTeardown != nil {
			e.cancelTeardown()
			e.cancelTeardown = nil
		}
		e.state = stateDestroyed
		inj.cache.Delete(e.key)
	}
	inj.mu.Unlock()

	var firstErr error
	for _, e := range entries {
		if err := e.runTeardown(); err != nil {
			inj.notifyTeardownError(e, err, "dispose")
			if firstErr == nil {
				firstErr = err
			}
		}
		e.releaseChildren()
	}

	for _, ext := range inj.snapshotExtensions() {
		if err := ext.Dispose(inj); err != nil {
			return fmt.Errorf("disposing extension %s: %w", ext.Name(), err)
		}
	}

	return firstErr
}
