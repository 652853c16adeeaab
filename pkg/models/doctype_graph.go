package models

import (
	"errors"
	"fmt"
	"sort"
)

// ErrCyclicDependencyGraph indicates the static document-type dependency
// graph contains a cycle. This is a fatal configuration error, never a
// runtime one.
var ErrCyclicDependencyGraph = errors.New("cyclic document type dependency graph")

// DocTypeGraph is the static mapping from a document type to the types it
// depends upon. It is consulted only by the staleness propagator.
type DocTypeGraph struct {
	dependsOn  map[string][]string
	dependents map[string][]string
}

// NewDocTypeGraph builds and validates a dependency graph. dependsOn maps a
// document type to the types it depends upon.
func NewDocTypeGraph(dependsOn map[string][]string) (*DocTypeGraph, error) {
	graph := &DocTypeGraph{
		dependsOn:  make(map[string][]string, len(dependsOn)),
		dependents: make(map[string][]string),
	}

	for docType, deps := range dependsOn {
		graph.dependsOn[docType] = append([]string(nil), deps...)
		for _, dep := range deps {
			graph.dependents[dep] = append(graph.dependents[dep], docType)
		}
	}

	if cycle := graph.findCycle(); cycle != "" {
		return nil, fmt.Errorf("%w: through type %q", ErrCyclicDependencyGraph, cycle)
	}

	return graph, nil
}

func (g *DocTypeGraph) findCycle() string {
	const (
		white = iota
		grey
		black
	)

	color := make(map[string]int, len(g.dependsOn))

	var cycleAt string

	var visit func(docType string) bool

	visit = func(docType string) bool {
		color[docType] = grey

		for _, dep := range g.dependsOn[docType] {
			switch color[dep] {
			case grey:
				cycleAt = dep

				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}

		color[docType] = black

		return false
	}

	for _, docType := range g.Types() {
		if color[docType] == white && visit(docType) {
			return cycleAt
		}
	}

	return ""
}

// Types returns every document type the graph knows about, sorted for
// deterministic traversal.
func (g *DocTypeGraph) Types() []string {
	seen := make(map[string]bool, len(g.dependsOn))

	for docType, deps := range g.dependsOn {
		seen[docType] = true
		for _, dep := range deps {
			seen[dep] = true
		}
	}

	types := make([]string, 0, len(seen))
	for docType := range seen {
		types = append(types, docType)
	}

	sort.Strings(types)

	return types
}

// DependsOn returns the direct dependencies of a document type.
func (g *DocTypeGraph) DependsOn(docType string) []string {
	return append([]string(nil), g.dependsOn[docType]...)
}

// Dependents returns every document type that transitively depends on the
// given type, in breadth-first order from the changed type outward.
func (g *DocTypeGraph) Dependents(docType string) []string {
	visited := map[string]bool{docType: true}
	queue := append([]string(nil), g.sortedDependents(docType)...)

	var result []string

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if visited[current] {
			continue
		}

		visited[current] = true
		result = append(result, current)
		queue = append(queue, g.sortedDependents(current)...)
	}

	return result
}

func (g *DocTypeGraph) sortedDependents(docType string) []string {
	deps := append([]string(nil), g.dependents[docType]...)
	sort.Strings(deps)

	return deps
}
