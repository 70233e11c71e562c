package extensions

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/m1gwings/treedrawer/tree"
	molecule "github.com/pumped-fn/molecule-go"
)

// MoleculeTreeExtension renders the molecule dependency tree when
// resolution fails, and on demand through Render.
//
// Usage:
//
//	// Human-readable output
//	ext := extensions.NewMoleculeTreeExtension(extensions.NewHumanHandler(os.Stdout, slog.LevelError))
//
//	// Silent (for testing)
//	ext := extensions.NewMoleculeTreeExtension(extensions.NewSilentHandler())
//
// Molecules are labelled by the "molecule.name" tag when present.
type MoleculeTreeExtension struct {
	molecule.BaseExtension
	nameTag molecule.Tag[string]
	logger  *slog.Logger
}

// NewMoleculeTreeExtension creates a new tree rendering extension
func NewMoleculeTreeExtension(logHandler slog.Handler) *MoleculeTreeExtension {
	return &MoleculeTreeExtension{
		BaseExtension: molecule.NewBaseExtension("molecule-tree"),
		nameTag:       molecule.NewTag[string]("molecule.name"),
		logger:        slog.New(logHandler),
	}
}

// MoleculeNameTag returns the tag this extension reads molecule names from
func (e *MoleculeTreeExtension) MoleculeNameTag() molecule.Tag[string] {
	return e.nameTag
}

// OnError logs the dependency tree rooted at the failed molecule
func (e *MoleculeTreeExtension) OnError(err error, op *molecule.Operation, inj *molecule.Injector) {
	e.logger.Error("molecule resolution failed",
		"molecule", e.moleculeName(op.Molecule),
		"operation", string(op.Kind),
		"error", err.Error(),
		"dependency_tree", e.Render(inj, op.Molecule),
	)
}

// Render draws the dependency tree rooted at mol as recorded by the
// injector's graph
func (e *MoleculeTreeExtension) Render(inj *molecule.Injector, mol molecule.AnyMolecule) string {
	t := tree.NewTree(tree.NodeString(e.moleculeName(mol)))
	visited := map[molecule.AnyMolecule]bool{mol: true}
	e.addChildren(t, inj.Graph(), mol, visited)
	return "\n" + t.String()
}

func (e *MoleculeTreeExtension) addChildren(t *tree.Tree, g *molecule.MoleculeGraph, mol molecule.AnyMolecule, visited map[molecule.AnyMolecule]bool) {
	for i, child := range g.Children(mol) {
		label := e.moleculeName(child)
		if visited[child] {
			t.AddChild(tree.NodeString(label + " (cycle)"))
			continue
		}
		visited[child] = true
		t.AddChild(tree.NodeString(label))
		subtree, err := t.Child(i)
		if err != nil {
			continue
		}
		e.addChildren(subtree, g, child, visited)
	}
}

func (e *MoleculeTreeExtension) moleculeName(mol molecule.AnyMolecule) string {
	if mol == nil {
		return "unknown"
	}
	if name, ok := e.nameTag.Get(mol); ok {
		return name
	}
	return fmt.Sprintf("Molecule_%p", mol)
}

// SilentHandler is a slog.Handler that discards all log output.
// Useful for testing when you don't want log output.
type SilentHandler struct{}

// NewSilentHandler creates a new silent log handler
func NewSilentHandler() *SilentHandler {
	return &SilentHandler{}
}

func (h *SilentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return false
}

func (h *SilentHandler) Handle(ctx context.Context, record slog.Record) error {
	return nil
}

func (h *SilentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *SilentHandler) WithGroup(name string) slog.Handler {
	return h
}

// HumanHandler is a slog.Handler that formats logs for human readability,
// with proper line breaks for rendered dependency trees
type HumanHandler struct {
	writer io.Writer
	level  slog.Level
}

// NewHumanHandler creates a new human-readable log handler
func NewHumanHandler(writer io.Writer, level slog.Level) *HumanHandler {
	return &HumanHandler{
		writer: writer,
		level:  level,
	}
}

func (h *HumanHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *HumanHandler) Handle(ctx context.Context, record slog.Record) error {
	if _, err := fmt.Fprintf(h.writer, "[%s] %s\n", record.Level, record.Message); err != nil {
		return err
	}
	var writeErr error
	record.Attrs(func(a slog.Attr) bool {
		if _, err := fmt.Fprintf(h.writer, "  %s: %v\n", a.Key, a.Value); err != nil {
			writeErr = err
			return false
		}
		return true
	})
	return writeErr
}

func (h *HumanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *HumanHandler) WithGroup(name string) slog.Handler {
	return h
}
