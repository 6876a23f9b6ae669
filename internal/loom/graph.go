package loom

import (
	"fmt"

	"github.com/loomwire/loom/internal/pkg/collection"
)

// nodeColor represents the color of a node during DFS for cycle detection
type nodeColor int

const (
	white nodeColor = iota // unvisited
	gray                   // currently being processed
	black                  // completely processed
)

// CycleError reports a dependency cycle among factory providers.
type CycleError struct {
	Cycle []*FactoryProvider
}

func (e *CycleError) Error() string {
	if len(e.Cycle) == 0 {
		return "circular dependency detected"
	}

	cyclePath := e.Cycle[0].Name
	for _, f := range e.Cycle[1:] {
		cyclePath += fmt.Sprintf(" -> %s", f.Name)
	}
	cyclePath += fmt.Sprintf(" -> %s", e.Cycle[0].Name)

	return fmt.Sprintf("circular dependency detected: %s", cyclePath)
}

// graph is the dependency graph over factory providers. References to
// external and config providers are leaves and never appear as nodes.
type graph struct {
	factories []*FactoryProvider
	// edges maps a dependency to its dependents, one entry per referencing
	// parameter; reverseEdges maps a dependent to its dependencies.
	edges        map[*FactoryProvider][]*FactoryProvider
	reverseEdges map[*FactoryProvider][]*FactoryProvider
}

func newGraph(factories []*FactoryProvider) *graph {
	g := &graph{
		factories:    factories,
		edges:        make(map[*FactoryProvider][]*FactoryProvider),
		reverseEdges: make(map[*FactoryProvider][]*FactoryProvider),
	}

	byName := make(map[string]*FactoryProvider, len(factories))
	for _, f := range factories {
		byName[f.Name] = f
	}

	for _, f := range factories {
		for _, param := range f.Params {
			ref, ok := param.Source.(*RefSource)
			if !ok {
				continue
			}

			dep, ok := byName[ref.Target]
			if !ok {
				continue
			}

			g.edges[dep] = append(g.edges[dep], f)
			g.reverseEdges[f] = append(g.reverseEdges[f], dep)
		}
	}

	return g
}

// Order returns factories sorted so every provider appears after the
// providers it depends on, or a CycleError. Zero-dependency providers seed
// the order in input order, so output is stable run to run.
func Order(factories []*FactoryProvider) ([]*FactoryProvider, error) {
	g := newGraph(factories)

	if err := g.detectCycles(); err != nil {
		return nil, err
	}

	ordered := make([]*FactoryProvider, 0, len(factories))
	for f := range g.topologicalSortIter() {
		ordered = append(ordered, f)
	}

	return ordered, nil
}

// detectCycles detects cycles in the dependency graph using DFS
func (g *graph) detectCycles() error {
	colors := make(map[*FactoryProvider]nodeColor, len(g.factories))
	parent := make(map[*FactoryProvider]*FactoryProvider, len(g.factories))

	for _, f := range g.factories {
		colors[f] = white
	}

	for _, f := range g.factories {
		if colors[f] == white {
			if cycle := g.dfsCycleDetection(f, colors, parent); cycle != nil {
				return &CycleError{Cycle: cycle}
			}
		}
	}

	return nil
}

// dfsCycleDetection performs DFS and returns the cycle if found
func (g *graph) dfsCycleDetection(f *FactoryProvider, colors map[*FactoryProvider]nodeColor, parent map[*FactoryProvider]*FactoryProvider) []*FactoryProvider {
	colors[f] = gray

	for _, dep := range g.reverseEdges[f] {
		switch colors[dep] {
		case gray:
			// Back edge found - cycle detected
			parent[dep] = f
			return g.buildCyclePath(dep, f, parent)
		case white:
			parent[dep] = f
			if cycle := g.dfsCycleDetection(dep, colors, parent); cycle != nil {
				return cycle
			}
		}
	}

	colors[f] = black
	return nil
}

// buildCyclePath builds the cycle path from the detected back edge
func (g *graph) buildCyclePath(cycleStart, cycleEnd *FactoryProvider, parent map[*FactoryProvider]*FactoryProvider) []*FactoryProvider {
	var cycle []*FactoryProvider

	current := cycleEnd
	for current != cycleStart {
		cycle = append([]*FactoryProvider{current}, cycle...)
		current = parent[current]
		if current == nil {
			break
		}
	}

	return append([]*FactoryProvider{cycleStart}, cycle...)
}

// topologicalSortIter yields factories dependencies-first using in-degree
// counting over a FIFO frontier.
func (g *graph) topologicalSortIter() func(yield func(*FactoryProvider) bool) {
	waitNodes := collection.NewQueue[*FactoryProvider]()
	requireCounts := make(map[*FactoryProvider]int, len(g.factories))
	visited := make(map[*FactoryProvider]struct{}, len(g.factories))

	for _, f := range g.factories {
		requireCounts[f] = len(g.reverseEdges[f])

		if requireCounts[f] == 0 {
			waitNodes.Push(f)
		}
	}

	return func(yield func(*FactoryProvider) bool) {
		for f := range waitNodes.Iter {
			if _, ok := visited[f]; ok {
				continue
			}
			visited[f] = struct{}{}

			for _, dependent := range g.edges[f] {
				requireCounts[dependent]--
				if requireCounts[dependent] == 0 {
					waitNodes.Push(dependent)
				}
			}

			if !yield(f) {
				break
			}
		}
	}
}
