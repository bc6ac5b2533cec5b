package compiler

import "github.com/roach88/basicio/internal/ir"

// Plan is a normalized, acyclic, scheduled batch. It is the only input the
// committer needs besides the collaborators.
type Plan struct {
	Records []ir.Record
	Graph   *Graph
	Order   *CommitOrder
}

// Compile normalizes entries and plans the result.
func Compile(entries []map[string]any, opts NormalizeOptions) (*Plan, error) {
	records, err := Normalize(entries, opts)
	if err != nil {
		return nil, err
	}
	return NewPlan(records)
}

// NewPlan builds the dependency graph for records and schedules it.
func NewPlan(records []ir.Record) (*Plan, error) {
	g, err := BuildGraph(records)
	if err != nil {
		return nil, err
	}
	order, err := Schedule(g)
	if err != nil {
		return nil, err
	}
	return &Plan{Records: records, Graph: g, Order: order}, nil
}

// WaveIDs returns the commit waves as original ids.
func (p *Plan) WaveIDs() [][]string {
	out := make([][]string, len(p.Order.Waves))
	for i, wave := range p.Order.Waves {
		ids := make([]string, len(wave))
		for k, n := range wave {
			ids[k] = p.Graph.Nodes[n]
		}
		out[i] = ids
	}
	return out
}

// SequenceIDs returns the flattened commit order as original ids.
func (p *Plan) SequenceIDs() []string {
	ids := make([]string, len(p.Order.Sequence))
	for k, n := range p.Order.Sequence {
		ids[k] = p.Graph.Nodes[n]
	}
	return ids
}
