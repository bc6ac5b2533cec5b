package compiler

import (
	"slices"
)

// CyclicComponents returns every group of records that depend on each other,
// for diagnostics. Schedule stops at the first cycle; this reports all of them.
//
// The algorithm:
//  1. Walk "depends on" edges with Tarjan's algorithm, visiting nodes in input order
//  2. Keep each strongly connected component with more than one node
//  3. Sort members by input position, and components by their first member
//
// An acyclic graph returns an empty list. Self-references never reach the
// graph: BuildGraph rejects them.
func CyclicComponents(g *Graph) [][]string {
	sccs := tarjanSCC(g)

	var out [][]int
	for _, scc := range sccs {
		if len(scc) > 1 {
			slices.Sort(scc)
			out = append(out, scc)
		}
	}
	slices.SortFunc(out, func(a, b []int) int { return a[0] - b[0] })

	result := make([][]string, len(out))
	for i, scc := range out {
		ids := make([]string, len(scc))
		for k, n := range scc {
			ids[k] = g.Nodes[n]
		}
		result[i] = ids
	}
	return result
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Returns a list of SCCs, where each SCC is a list of node indices.
func tarjanSCC(g *Graph) [][]int {
	n := g.Len()
	var (
		index   = 0
		stack   []int
		indices = make([]int, n)
		lowlink = make([]int, n)
		onStack = make([]bool, n)
		sccs    [][]int
	)
	for i := range indices {
		indices[i] = -1
	}

	var strongConnect func(int)
	strongConnect = func(v int) {
		// Set the depth index for v
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		// Consider the records v depends on
		for _, w := range g.Predecessors[v] {
			if indices[w] < 0 {
				// w has not yet been visited; recurse on it
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				// w is on stack and hence in the current SCC
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// If v is a root node, pop the stack and create an SCC
		if lowlink[v] == indices[v] {
			var scc []int
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

	// Visit all nodes in input order
	for v := range n {
		if indices[v] < 0 {
			strongConnect(v)
		}
	}

	return sccs
}
