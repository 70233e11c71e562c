package molecule

import "context"

// scopePathContextKey is the context key for ambient scope bindings
type scopePathContextKey struct{}

// WithScopeValue returns a context carrying the binding layered over any
// bindings already present. Hosts thread this through their own
// context-propagation machinery so nested consumers see the ambient path.
func WithScopeValue[T any](ctx context.Context, tok *ScopeToken[T], val T) context.Context {
	path := AmbientFromContext(ctx)
	return context.WithValue(ctx, scopePathContextKey{}, path.With(tok, val))
}

// AmbientFromContext returns the ambient scope path carried by ctx, or nil
func AmbientFromContext(ctx context.Context) ScopePath {
	if path, ok := ctx.Value(scopePathContextKey{}).(ScopePath); ok {
		return path
	}
	return nil
}

// FromContext is a UseOption sourcing the ambient path from a context
func FromContext(ctx context.Context) UseOption {
	return func(o *resolveOptions) {
		o.ambient = append(o.ambient, AmbientFromContext(ctx)...)
	}
}
