package molecule

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
)

var tokenIDCounter atomic.Uint64

// AnyScopeToken is a type-erased scope token used in paths and tuples
type AnyScopeToken interface {
	// Label returns the human-readable debug label
	Label() string

	// DefaultValue returns the token's default value, if one was declared
	DefaultValue() (any, bool)

	tokenID() uint64
	internValue(val any) uint64
}

// ScopeToken identifies one axis of scoping (e.g. "user", "tenant").
// Two tokens are never equal, even with the same label and default.
type ScopeToken[T any] struct {
	id         uint64
	label      string
	defaultVal T
	hasDefault bool

	internMu sync.Mutex
	interned map[any]uint64
	ordinal  uint64
}

// NewScopeToken creates a fresh token with no default value
func NewScopeToken[T any](label string) *ScopeToken[T] {
	return &ScopeToken[T]{
		id:       tokenIDCounter.Add(1),
		label:    label,
		interned: make(map[any]uint64),
	}
}

// NewScopeTokenWithDefault creates a fresh token that falls back to def
// when no explicit or ambient binding is present
func NewScopeTokenWithDefault[T any](label string, def T) *ScopeToken[T] {
	tok := NewScopeToken[T](label)
	tok.defaultVal = def
	tok.hasDefault = true
	return tok
}

// Label returns the token's debug label
func (t *ScopeToken[T]) Label() string {
	return t.label
}

// Default returns the typed default value
func (t *ScopeToken[T]) Default() (T, bool) {
	return t.defaultVal, t.hasDefault
}

// DefaultValue implements AnyScopeToken
func (t *ScopeToken[T]) DefaultValue() (any, bool) {
	if !t.hasDefault {
		return nil, false
	}
	return t.defaultVal, true
}

func (t *ScopeToken[T]) tokenID() uint64 {
	return t.id
}

// internValue maps values that compare equal to a stable ordinal, so a
// (token, value) binding always contributes the same cache-key component.
// Values of non-comparable dynamic types get a fresh ordinal per call and
// therefore never share an instance.
func (t *ScopeToken[T]) internValue(val any) uint64 {
	t.internMu.Lock()
	defer t.internMu.Unlock()

	if val == nil {
		return 0
	}
	if !reflect.TypeOf(val).Comparable() {
		t.ordinal++
		return t.ordinal
	}
	if ord, ok := t.interned[val]; ok {
		return ord
	}
	t.ordinal++
	t.interned[val] = t.ordinal
	return t.ordinal
}

func (t *ScopeToken[T]) String() string {
	return fmt.Sprintf("scope(%s)", t.label)
}
