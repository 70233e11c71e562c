// Package molecule provides scoped dependency injection with reference
// counting and deferred lifecycle teardown.
//
// # Overview
//
// Molecule organizes code around three core concepts:
//
//  1. Molecules: factory definitions producing scoped, shared instances
//  2. Scope tokens: identities for one axis of scoping, with optional defaults
//  3. Injector: the cache and lifecycle engine mapping (molecule, scope path)
//     to a single live instance with a reference count
//
// # Basic Usage
//
// Declare scope tokens and molecules:
//
//	userScope := molecule.NewScopeTokenWithDefault("user", "user@example.com")
//
//	userMol := molecule.New(func(ctx *molecule.MoleculeCtx) (*UserService, error) {
//	    userID, err := molecule.ScopeValue(ctx, userScope)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return NewUserService(userID), nil
//	})
//
// Resolve through an injector:
//
//	inj := molecule.NewInjector()
//	svc, sub, err := molecule.Use(inj, userMol,
//	    molecule.WithScope(userScope, "jeffrey@example.com"))
//	defer sub.Release()
//
// Two Use calls resolving to the same scope path share one instance; the
// factory runs once. Distinct scope values get distinct instances.
//
// # Scope Resolution
//
// A token's value resolves by precedence, highest first:
//
//	// Exclusive: ignore ambient bindings entirely for this token
//	molecule.WithExclusiveScope(userScope, "admin@example.com")
//
//	// Explicit: layer over the ambient path (still visible to introspection)
//	molecule.WithScope(userScope, "jeffrey@example.com")
//
//	// Unique: fresh opaque value per call, never cached across calls
//	molecule.WithUniqueScope(formScope)
//
//	// Ambient: bindings supplied by the enclosing structure
//	molecule.WithAmbient(path)          // or molecule.FromContext(ctx)
//
// With no options at all, every token read falls back to ambient bindings
// and token defaults. Only tokens a factory actually reads become part of
// the cache identity; unread ambient bindings never fragment the cache.
//
// # Lifecycle
//
// Factories register lifecycle callbacks during their single evaluation:
//
//	connMol := molecule.New(func(ctx *molecule.MoleculeCtx) (*Conn, error) {
//	    conn := dial()
//	    ctx.OnMount(func() func() error {
//	        conn.Start()
//	        return conn.Stop // teardown, runs before OnUnmount callbacks
//	    })
//	    ctx.OnUnmount(conn.Close)
//	    return conn, nil
//	})
//
// Mount callbacks run synchronously when the reference count first goes
// 0 to 1, before the value reaches the first consumer. When the count
// returns to zero, teardown is not run synchronously: a deferred check is
// armed through the injector's Scheduler. A new subscriber arriving before
// the check fires cancels it and reuses the still-mounted entry; otherwise
// the entry is destroyed and a later Use creates a fresh one.
//
// This absorbs host frameworks that set up twice and tear down twice in
// immediate succession: correct counting plus the deferred window yields
// exactly one mount and one eventual teardown per steady-state entry.
//
// # Concurrency Model
//
// The engine is cooperative and host-driven: Use, Release, and teardown
// checks are expected to run from a single goroutine (or be externally
// serialized). Internal locking keeps the maps coherent, but two truly
// parallel first resolutions of the same key may each run the factory.
//
// # Composition
//
// Factories read other molecules with Mol; the parent subscription keeps
// children alive transitively:
//
//	appMol := molecule.New(func(ctx *molecule.MoleculeCtx) (*App, error) {
//	    db, err := molecule.Mol(ctx, dbMol)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return &App{DB: db}, nil
//	})
//
// A molecule that transitively resolves itself fails with CycleError.
package molecule
