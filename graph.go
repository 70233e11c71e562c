package molecule

import (
	"sync"
)

// MoleculeGraph records which molecules resolve which children, built up as
// factories call Mol. It backs debug tooling and cycle reporting.
type MoleculeGraph struct {
	// Adjacency list representation for better memory efficiency
	children map[AnyMolecule][]AnyMolecule
	parents  map[AnyMolecule][]AnyMolecule
	mu       sync.RWMutex
}

// NewMoleculeGraph creates an empty molecule dependency graph
func NewMoleculeGraph() *MoleculeGraph {
	return &MoleculeGraph{
		children: make(map[AnyMolecule][]AnyMolecule),
		parents:  make(map[AnyMolecule][]AnyMolecule),
	}
}

// AddUseEdge records that parent resolved child during its evaluation
func (g *MoleculeGraph) AddUseEdge(parent AnyMolecule, child AnyMolecule) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.children[parent] = appendUnique(g.children[parent], child)
	g.parents[child] = appendUnique(g.parents[child], parent)
}

// Children returns the molecules parent directly resolves
func (g *MoleculeGraph) Children(parent AnyMolecule) []AnyMolecule {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if kids, exists := g.children[parent]; exists {
		// Return a copy to prevent external modification
		result := make([]AnyMolecule, len(kids))
		copy(result, kids)
		return result
	}
	return nil
}

// Dependencies performs iterative traversal to find everything mol
// transitively resolves. Iterative to avoid stack overflow on deep graphs.
func (g *MoleculeGraph) Dependencies(mol AnyMolecule) []AnyMolecule {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stack := make([]AnyMolecule, 0, 32)
	stack = append(stack, mol)

	deps := make([]AnyMolecule, 0, 32)
	visited := make(map[AnyMolecule]bool, 32)

	for len(stack) > 0 {
		// Pop from stack
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[current] {
			continue
		}
		visited[current] = true

		if current != mol {
			deps = append(deps, current)
		}

		for _, child := range g.children[current] {
			if !visited[child] {
				stack = append(stack, child)
			}
		}
	}

	return deps
}

func appendUnique[T comparable](slice []T, item T) []T {
	for _, existing := range slice {
		if existing == item {
			return slice
		}
	}
	return append(slice, item)
}
