package molecule

type entryState int

const (
	stateMounted entryState = iota
	statePendingTeardown
	stateDestroyed
)

func (s entryState) String() string {
	switch s {
	case stateMounted:
		return "mounted"
	case statePendingTeardown:
		return "pending-teardown"
	case stateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// entry is one cached (molecule, scope path) instance, owned exclusively by
// the injector. Lifecycle: mounted (count>0) -> pending-teardown (count==0,
// check armed) -> mounted again (check cancelled) or destroyed (terminal).
type entry struct {
	key      cacheKey
	molecule AnyMolecule
	value    any
	refs     int
	seq      uint64
	state    entryState

	mounts    []func() func() error
	unmounts  []func() error
	teardowns []func() error
	children  []*Subscription

	teardownGen    uint64
	cancelTeardown func()
}

// runMounts invokes the captured mount callbacks in registration order,
// collecting returned teardowns. Runs at most once per entry lifetime.
func (e *entry) runMounts() {
	for _, fn := range e.mounts {
		if teardown := fn(); teardown != nil {
			e.teardowns = append(e.teardowns, teardown)
		}
	}
}

// runTeardown invokes mount-returned teardowns first, most recently
// mounted first, then explicit unmount callbacks, most recently registered
// first. The first error aborts the remaining callbacks.
func (e *entry) runTeardown() error {
	for i := len(e.teardowns) - 1; i >= 0; i-- {
		if err := e.teardowns[i](); err != nil {
			return err
		}
	}
	for i := len(e.unmounts) - 1; i >= 0; i-- {
		if err := e.unmounts[i](); err != nil {
			return err
		}
	}
	return nil
}

// releaseChildren releases subscriptions this entry holds on child
// molecules, most recently acquired first.
func (e *entry) releaseChildren() {
	for i := len(e.children) - 1; i >= 0; i-- {
		e.children[i].Release()
	}
	e.children = nil
}
