package molecule

import "context"

// Extension provides hooks into the injector's lifecycle
type Extension interface {
	// Name returns the extension's name
	Name() string

	// Order determines extension execution order (lower = earlier)
	Order() int

	// Init is called when the extension is registered to an injector
	Init(inj *Injector) error

	// Wrap intercepts use operations
	Wrap(ctx context.Context, next func() (any, error), op *Operation) (any, error)

	// OnError handles errors during resolution
	OnError(err error, op *Operation, inj *Injector)

	// OnTeardownError handles teardown callback failures
	// Returns true if the error was handled, false to use default behavior
	OnTeardownError(err *TeardownError) bool

	// Dispose is called when the injector is disposed
	Dispose(inj *Injector) error
}

// BaseExtension provides default implementations for Extension methods
type BaseExtension struct {
	name string
}

// NewBaseExtension creates a new base extension with the given name
func NewBaseExtension(name string) BaseExtension {
	return BaseExtension{name: name}
}

func (e *BaseExtension) Name() string {
	return e.name
}

func (e *BaseExtension) Order() int {
	return 100
}

func (e *BaseExtension) Init(inj *Injector) error {
	return nil
}

func (e *BaseExtension) Wrap(ctx context.Context, next func() (any, error), op *Operation) (any, error) {
	return next()
}

func (e *BaseExtension) OnError(err error, op *Operation, inj *Injector) {
}

func (e *BaseExtension) OnTeardownError(err *TeardownError) bool {
	return false
}

func (e *BaseExtension) Dispose(inj *Injector) error {
	return nil
}

// Operation describes what operation is happening
type Operation struct {
	Kind     OperationKind
	Molecule AnyMolecule
	Injector *Injector
}

// OperationKind represents the type of operation
type OperationKind string

const (
	// OpUse indicates a molecule resolution through Use
	OpUse OperationKind = "use"
	// OpTeardown indicates entry teardown
	OpTeardown OperationKind = "teardown"
)
