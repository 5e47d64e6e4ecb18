package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/lexcache/internal/ir"
)

// CycleError reports classes whose base chain loops back on itself.
type CycleError struct {
	Path []ir.ClassName `json:"path"` // e.g. ["A", "B", "A"]
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	names := make([]string, len(e.Path))
	for i, c := range e.Path {
		names[i] = string(c)
	}
	return fmt.Sprintf("class: inheritance cycle: %s", strings.Join(names, " → "))
}

// CheckInheritance returns a *CycleError for the first inheritance cycle
// among classes, or nil if the hierarchy is a forest.
func CheckInheritance(classes []ir.ClassSpec) error {
	cycles := InheritanceCycles(classes)
	if len(cycles) == 0 {
		return nil
	}
	return &cycles[0]
}

// InheritanceCycles finds every inheritance cycle.
//
// The algorithm:
//  1. Build the class → base graph
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-loop (a class that is its own base)
//
// Cycles come out sorted by their first class so results are deterministic.
func InheritanceCycles(classes []ir.ClassSpec) []CycleError {
	graph := make(inheritanceGraph, len(classes))
	for _, c := range classes {
		if graph[c.Name] == nil {
			graph[c.Name] = []ir.ClassName{}
		}
		if c.Base != "" {
			graph[c.Name] = append(graph[c.Name], c.Base)
		}
	}

	var cycles []CycleError
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			cycles = append(cycles, CycleError{Path: reconstructCyclePath(scc, graph)})
		}
	}
	slices.SortFunc(cycles, func(a, b CycleError) int {
		return strings.Compare(string(a.Path[0]), string(b.Path[0]))
	})
	return cycles
}

// inheritanceGraph maps class → base classes (zero or one).
type inheritanceGraph map[ir.ClassName][]ir.ClassName

func hasSelfLoop(node ir.ClassName, graph inheritanceGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order.
func tarjanSCC(graph inheritanceGraph) [][]ir.ClassName {
	var (
		index   = 0
		stack   []ir.ClassName
		indices = make(map[ir.ClassName]int)
		lowlink = make(map[ir.ClassName]int)
		onStack = make(map[ir.ClassName]bool)
		sccs    [][]ir.ClassName
	)

	var strongConnect func(ir.ClassName)
	strongConnect = func(v ir.ClassName) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// Root node: pop the component.
		if lowlink[v] == indices[v] {
			var scc []ir.ClassName
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]ir.ClassName, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// reconstructCyclePath walks the SCC from its smallest member back to it.
func reconstructCyclePath(scc []ir.ClassName, graph inheritanceGraph) []ir.ClassName {
	members := make(map[ir.ClassName]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	start := slices.Min(scc)
	path := []ir.ClassName{start}
	visited := map[ir.ClassName]bool{start: true}
	current := start
	for {
		var next ir.ClassName
		for _, neighbor := range graph[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		visited[next] = true
		current = next
	}
	return path
}
