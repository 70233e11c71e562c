package molecule

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

// ErrUnresolvedScope indicates a factory read a token with no explicit
// binding, no ambient binding, and no default value.
var ErrUnresolvedScope = errors.New("molecule: scope token has no binding and no default")

// ErrInjectorDisposed indicates a Use call on a disposed injector.
var ErrInjectorDisposed = errors.New("molecule: injector already disposed")

type ResolveError struct {
	Molecule   AnyMolecule
	Cause      error
	Context    string
	StackTrace []byte
}

func (e *ResolveError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("resolve error in molecule m%d during %s: %v", e.Molecule.moleculeID(), e.Context, e.Cause)
	}
	return fmt.Sprintf("resolve error in molecule m%d: %v", e.Molecule.moleculeID(), e.Cause)
}

func (e *ResolveError) Unwrap() error {
	return e.Cause
}

func CreateResolveError(mol AnyMolecule, cause error, context string) *ResolveError {
	return &ResolveError{
		Molecule:   mol,
		Cause:      cause,
		Context:    context,
		StackTrace: debug.Stack(),
	}
}

// CycleError indicates a molecule transitively depends on itself through
// child resolution.
type CycleError struct {
	Molecule AnyMolecule
	Stack    []AnyMolecule
}

func (e *CycleError) Error() string {
	ids := make([]string, 0, len(e.Stack)+1)
	for _, mol := range e.Stack {
		ids = append(ids, fmt.Sprintf("m%d", mol.moleculeID()))
	}
	ids = append(ids, fmt.Sprintf("m%d", e.Molecule.moleculeID()))
	return "molecule: creation cycle: " + strings.Join(ids, " -> ")
}

// TeardownError contains information about a teardown callback failure
type TeardownError struct {
	Molecule AnyMolecule
	Err      error
	Context  string // "deferred" or "dispose"
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("teardown error in molecule m%d during %s: %v", e.Molecule.moleculeID(), e.Context, e.Err)
}

func (e *TeardownError) Unwrap() error {
	return e.Err
}

// SafeTypeAssertion performs safe type assertion with proper error
func SafeTypeAssertion[T any](value any) (T, error) {
	if value == nil {
		var zero T
		return zero, nil
	}

	typed, ok := value.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("type assertion error: expected %T, got %T (value: %v)", zero, value, value)
	}

	return typed, nil
}
