package compiler

import (
	"slices"

	"github.com/roach88/basicio/internal/ir"
)

// Graph is the intra-batch dependency graph.
//
// Nodes are addressed by index into Nodes, which holds original ids in input
// order, so node index equals input position. Edges are stored twice:
// Predecessors[i] lists the nodes record i depends on, Dependents[i] the nodes
// that depend on record i. Both lists are sorted ascending and deduplicated.
type Graph struct {
	Nodes        []string
	Predecessors [][]int
	Dependents   [][]int

	index map[string]int
}

// BuildGraph links records whose references carry a batch id naming another
// record of the same batch. References whose batch id is not in the batch
// produce no edge; the resolver handles them externally.
//
// A record whose reference names itself is rejected as a cycle of length 1.
func BuildGraph(records []ir.Record) (*Graph, error) {
	g := &Graph{
		Nodes:        make([]string, len(records)),
		Predecessors: make([][]int, len(records)),
		Dependents:   make([][]int, len(records)),
		index:        make(map[string]int, len(records)),
	}
	for i, r := range records {
		g.Nodes[i] = r.OriginalID
		g.index[r.OriginalID] = i
	}

	for i, r := range records {
		for _, ref := range r.References {
			if ref.BatchID == "" {
				continue
			}
			if ref.BatchID == r.OriginalID {
				return nil, ir.NewCycleError([]string{r.OriginalID, r.OriginalID})
			}
			j, ok := g.index[ref.BatchID]
			if !ok {
				continue
			}
			g.Predecessors[i] = appendUnique(g.Predecessors[i], j)
			g.Dependents[j] = appendUnique(g.Dependents[j], i)
		}
	}
	for i := range g.Nodes {
		slices.Sort(g.Predecessors[i])
		slices.Sort(g.Dependents[i])
	}

	return g, nil
}

// Contains reports whether originalID names a record of the batch.
func (g *Graph) Contains(originalID string) bool {
	_, ok := g.index[originalID]
	return ok
}

// IndexOf returns the node index of originalID.
func (g *Graph) IndexOf(originalID string) (int, bool) {
	i, ok := g.index[originalID]
	return i, ok
}

// Edges returns the adjacency as original id -> dependent original ids.
// Nodes without dependents map to an empty list.
func (g *Graph) Edges() map[string][]string {
	out := make(map[string][]string, len(g.Nodes))
	for i, id := range g.Nodes {
		deps := make([]string, len(g.Dependents[i]))
		for k, j := range g.Dependents[i] {
			deps[k] = g.Nodes[j]
		}
		out[id] = deps
	}
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.Nodes) }

func appendUnique(s []int, v int) []int {
	if slices.Contains(s, v) {
		return s
	}
	return append(s, v)
}
