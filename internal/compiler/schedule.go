package compiler

import (
	"slices"

	"github.com/roach88/basicio/internal/ir"
)

// CommitOrder is the scheduler's output.
//
// Waves partitions the nodes: every node of wave k has all its predecessors
// in waves before k. Within a wave nodes are ascending by input position.
// Sequence is the waves concatenated, a total order for callers that commit
// one record at a time.
type CommitOrder struct {
	Waves    [][]int
	Sequence []int
}

// Schedule orders the graph with Kahn's algorithm, one wave per round of
// in-degree reduction. Ties break on input position, so identical input
// always yields the identical order.
//
// If nodes remain with a positive in-degree, the batch is cyclic and Schedule
// returns a CYCLE_DETECTED *ir.ImportError naming one concrete cycle.
func Schedule(g *Graph) (*CommitOrder, error) {
	n := g.Len()
	indegree := make([]int, n)
	var wave []int
	for i := range n {
		indegree[i] = len(g.Predecessors[i])
		if indegree[i] == 0 {
			wave = append(wave, i)
		}
	}

	order := &CommitOrder{
		Waves:    [][]int{},
		Sequence: make([]int, 0, n),
	}
	for len(wave) > 0 {
		order.Waves = append(order.Waves, wave)
		order.Sequence = append(order.Sequence, wave...)

		var next []int
		for _, i := range wave {
			for _, j := range g.Dependents[i] {
				indegree[j]--
				if indegree[j] == 0 {
					next = append(next, j)
				}
			}
		}
		slices.Sort(next)
		wave = next
	}

	if len(order.Sequence) < n {
		return nil, ir.NewCycleError(findCycle(g, indegree))
	}
	return order, nil
}

// findCycle extracts one cycle among the nodes Kahn's algorithm left behind.
//
// Every remaining node has at least one remaining predecessor, so walking
// predecessors from any remaining node must revisit a node. The walk starts
// at the lowest remaining position and always takes the lowest remaining
// predecessor. The returned path follows "depends on" edges, starts at the
// cycle member with the lowest position and repeats it at the end.
func findCycle(g *Graph, indegree []int) []string {
	start := -1
	for i, d := range indegree {
		if d > 0 {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}

	visitedAt := make(map[int]int)
	var path []int
	cur := start
	for {
		if at, seen := visitedAt[cur]; seen {
			path = path[at:]
			break
		}
		visitedAt[cur] = len(path)
		path = append(path, cur)
		for _, p := range g.Predecessors[cur] {
			if indegree[p] > 0 {
				cur = p
				break
			}
		}
	}

	// Rotate so the lowest position leads.
	lowest := 0
	for k := range path {
		if path[k] < path[lowest] {
			lowest = k
		}
	}
	path = slices.Concat(path[lowest:], path[:lowest])

	ids := make([]string, 0, len(path)+1)
	for _, i := range path {
		ids = append(ids, g.Nodes[i])
	}
	return append(ids, g.Nodes[path[0]])
}
