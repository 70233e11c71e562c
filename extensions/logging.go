package extensions

import (
	"context"
	"log/slog"
	"time"

	molecule "github.com/pumped-fn/molecule-go"
)

// LoggingExtension logs use operations and teardown failures through slog
type LoggingExtension struct {
	molecule.BaseExtension
	nameTag molecule.Tag[string]
	logger  *slog.Logger
}

// NewLoggingExtension creates a new logging extension.
// logHandler: any slog.Handler (use NewSilentHandler for tests)
func NewLoggingExtension(logHandler slog.Handler) *LoggingExtension {
	return &LoggingExtension{
		BaseExtension: molecule.NewBaseExtension("logging"),
		nameTag:       molecule.NewTag[string]("molecule.name"),
		logger:        slog.New(logHandler),
	}
}

// MoleculeNameTag returns the tag this extension reads molecule names from
func (e *LoggingExtension) MoleculeNameTag() molecule.Tag[string] {
	return e.nameTag
}

func (e *LoggingExtension) Wrap(ctx context.Context, next func() (any, error), op *molecule.Operation) (any, error) {
	start := time.Now()
	result, err := next()

	duration := time.Since(start)
	if err != nil {
		e.logger.Error("operation failed",
			"operation", string(op.Kind),
			"molecule", e.moleculeName(op.Molecule),
			"duration", duration,
			"error", err.Error(),
		)
	} else {
		e.logger.Debug("operation completed",
			"operation", string(op.Kind),
			"molecule", e.moleculeName(op.Molecule),
			"duration", duration,
		)
	}

	return result, err
}

// OnTeardownError logs the failure; it does not mark it handled, so other
// extensions still see it
func (e *LoggingExtension) OnTeardownError(err *molecule.TeardownError) bool {
	e.logger.Error("teardown failed",
		"molecule", e.moleculeName(err.Molecule),
		"context", err.Context,
		"error", err.Err.Error(),
	)
	return false
}

func (e *LoggingExtension) moleculeName(mol molecule.AnyMolecule) string {
	if mol == nil {
		return "unknown"
	}
	return e.nameTag.GetOrDefault(mol, "unnamed")
}
