package molecule

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// ScopeTuple binds a scope token to a concrete value
type ScopeTuple struct {
	Token AnyScopeToken
	Value any
}

// ScopePath is an ordered list of scope bindings. Earlier tuples are more
// specific: the first binding for a token wins resolution.
type ScopePath []ScopeTuple

// Lookup returns the first value bound to tok in the path
func (p ScopePath) Lookup(tok AnyScopeToken) (any, bool) {
	for _, tuple := range p {
		if tuple.Token == tok {
			return tuple.Value, true
		}
	}
	return nil, false
}

// With returns a copy of the path with the binding layered on top
func (p ScopePath) With(tok AnyScopeToken, val any) ScopePath {
	next := make(ScopePath, 0, len(p)+1)
	next = append(next, ScopeTuple{Token: tok, Value: val})
	next = append(next, p...)
	return next
}

func (p ScopePath) String() string {
	parts := make([]string, 0, len(p))
	for _, tuple := range p {
		parts = append(parts, fmt.Sprintf("%s=%v", tuple.Token.Label(), tuple.Value))
	}
	return "[" + strings.Join(parts, " ") + "]"
}

type resolveOptions struct {
	ambient   ScopePath
	explicit  map[AnyScopeToken]any
	exclusive map[AnyScopeToken]any
	unique    map[AnyScopeToken]any
}

func newResolveOptions() resolveOptions {
	return resolveOptions{
		explicit:  make(map[AnyScopeToken]any),
		exclusive: make(map[AnyScopeToken]any),
		unique:    make(map[AnyScopeToken]any),
	}
}

// UseOption is a modifier for a single Use call
type UseOption func(*resolveOptions)

// WithScope layers an explicit binding over the ambient path. The ambient
// path stays visible to introspection; resolution of tok uses val.
func WithScope[T any](tok *ScopeToken[T], val T) UseOption {
	return func(o *resolveOptions) {
		o.explicit[tok] = val
	}
}

// WithExclusiveScope binds tok to val ignoring ambient bindings entirely
// for that token
func WithExclusiveScope[T any](tok *ScopeToken[T], val T) UseOption {
	return func(o *resolveOptions) {
		o.exclusive[tok] = val
	}
}

// WithUniqueScope binds tok to a fresh opaque value, never reused across
// calls, so every Use call produces a distinct instance. The generated
// value is a string; factories reading the token must accept one.
func WithUniqueScope(tok AnyScopeToken) UseOption {
	return func(o *resolveOptions) {
		o.unique[tok] = uuid.NewString()
	}
}

// WithAmbient supplies the ambient scope path for this call
func WithAmbient(path ScopePath) UseOption {
	return func(o *resolveOptions) {
		o.ambient = append(o.ambient, path...)
	}
}

// depFrame records the tokens one molecule evaluation actually read
type depFrame struct {
	order  []AnyScopeToken
	values map[AnyScopeToken]any
}

func newDepFrame() *depFrame {
	return &depFrame{values: make(map[AnyScopeToken]any)}
}

func (f *depFrame) record(tok AnyScopeToken, val any) {
	if _, ok := f.values[tok]; ok {
		return
	}
	f.order = append(f.order, tok)
	f.values[tok] = val
}

// scopeResolver resolves token values for one Use call, applying the
// precedence exclusive > explicit > unique > ambient > default, and records
// every read into the active dep frames (one frame per molecule currently
// being created, so parents see their children's reads transitively).
type scopeResolver struct {
	opts   resolveOptions
	frames []*depFrame
}

func newScopeResolver(opts resolveOptions) *scopeResolver {
	return &scopeResolver{opts: opts}
}

func (r *scopeResolver) pushFrame() *depFrame {
	frame := newDepFrame()
	r.frames = append(r.frames, frame)
	return frame
}

func (r *scopeResolver) popFrame() {
	r.frames = r.frames[:len(r.frames)-1]
}

func (r *scopeResolver) recordRead(tok AnyScopeToken, val any) {
	for _, frame := range r.frames {
		frame.record(tok, val)
	}
}

// peek resolves tok without recording the read. Used for key derivation,
// where a lookup must not count as a factory read.
func (r *scopeResolver) peek(tok AnyScopeToken) (any, error) {
	if val, ok := r.opts.exclusive[tok]; ok {
		return val, nil
	}
	if val, ok := r.opts.explicit[tok]; ok {
		return val, nil
	}
	if val, ok := r.opts.unique[tok]; ok {
		return val, nil
	}
	if val, ok := r.opts.ambient.Lookup(tok); ok {
		return val, nil
	}
	if val, ok := tok.DefaultValue(); ok {
		return val, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnresolvedScope, tok.Label())
}

func (r *scopeResolver) resolve(tok AnyScopeToken) (any, error) {
	val, err := r.peek(tok)
	if err != nil {
		return nil, err
	}
	r.recordRead(tok, val)
	return val, nil
}

// ambientPath returns the ambient bindings for introspection. Explicit and
// exclusive bindings do not appear here.
func (r *scopeResolver) ambientPath() ScopePath {
	return r.opts.ambient
}

type cacheKey string

// keyFor derives the cache key for a molecule over the resolved values of
// the tokens it reads. Tokens are ordered by identity so the key does not
// depend on read order.
func keyFor(mol AnyMolecule, tokens []AnyScopeToken, values map[AnyScopeToken]any) cacheKey {
	sorted := make([]AnyScopeToken, len(tokens))
	copy(sorted, tokens)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].tokenID() < sorted[j].tokenID()
	})

	var b strings.Builder
	fmt.Fprintf(&b, "m%d", mol.moleculeID())
	for _, tok := range sorted {
		fmt.Fprintf(&b, "|%d:%d", tok.tokenID(), tok.internValue(values[tok]))
	}
	return cacheKey(b.String())
}
