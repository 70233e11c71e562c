package molecule

// Tag is a type-safe key for metadata on molecules and injectors
type Tag[T any] struct {
	key string
}

// NewTag creates a new tag with the given key
func NewTag[T any](key string) Tag[T] {
	return Tag[T]{key: key}
}

// Key returns the tag's key (for debugging)
func (t Tag[T]) Key() string {
	return t.key
}

// Get retrieves the tag value from a molecule
func (t Tag[T]) Get(mol AnyMolecule) (T, bool) {
	val, ok := mol.GetTag(t)
	if !ok {
		var zero T
		return zero, false
	}
	return val.(T), true
}

// GetOrDefault retrieves the tag value or returns a default
func (t Tag[T]) GetOrDefault(mol AnyMolecule, defaultVal T) T {
	if val, ok := t.Get(mol); ok {
		return val
	}
	return defaultVal
}

// Set stores the tag value on a molecule
func (t Tag[T]) Set(mol AnyMolecule, val T) {
	mol.SetTag(t, val)
}

// GetFromInjector retrieves the tag value from an injector
func (t Tag[T]) GetFromInjector(inj *Injector) (T, bool) {
	val, ok := inj.GetTag(t)
	if !ok {
		var zero T
		return zero, false
	}
	return val.(T), true
}

// SetOnInjector stores the tag value on an injector
func (t Tag[T]) SetOnInjector(inj *Injector, val T) {
	inj.SetTag(t, val)
}
