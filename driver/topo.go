package driver

import (
	"github.com/alta-lang/altac-codegen/diag"
	"github.com/alta-lang/altac-codegen/tree"
)

// visitState tracks a depth-first-search node's tri-state status so a
// cycle in Root.Requires is detected rather than looping forever.
type visitState int

const (
	unvisited visitState = iota
	visiting
	visited
)

// topoSort orders roots so that every root's Requires are compiled before
// it, per §4.9 ("Depth-first walk the program-tree dependency graph,
// compiling each unique root exactly once, dependencies before
// dependents. Cycle-guard by a set of visited root identifiers.").
func topoSort(roots []*tree.Root) ([]*tree.Root, error) {
	byID := make(map[string]*tree.Root, len(roots))
	for _, r := range roots {
		byID[r.ID] = r
	}

	state := make(map[string]visitState, len(roots))
	var order []*tree.Root

	var visit func(r *tree.Root) error
	visit = func(r *tree.Root) error {
		switch state[r.ID] {
		case visited:
			return nil
		case visiting:
			return diag.New(diag.SubsystemDriver, diag.Position{}, "dependency cycle detected at root %q", r.ID)
		}
		state[r.ID] = visiting
		for _, dep := range r.Requires {
			depRoot, ok := byID[dep]
			if !ok {
				return diag.New(diag.SubsystemDriver, diag.Position{}, "root %q requires unknown root %q", r.ID, dep)
			}
			if err := visit(depRoot); err != nil {
				return err
			}
		}
		state[r.ID] = visited
		order = append(order, r)
		return nil
	}

	for _, r := range roots {
		if err := visit(r); err != nil {
			return nil, err
		}
	}
	return order, nil
}
