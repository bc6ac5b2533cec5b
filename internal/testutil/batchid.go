package testutil

// FixedBatchID returns the same batch id every time.
//
// Reports produced with it are byte-identical across runs, which golden
// snapshots rely on. Implements engine.BatchIDGenerator.
//
// Thread-safety: FixedBatchID is stateless and safe for concurrent use.
type FixedBatchID struct {
	id string
}

// NewFixedBatchID creates the generator. An empty id becomes "test-batch".
func NewFixedBatchID(id string) *FixedBatchID {
	if id == "" {
		id = "test-batch"
	}
	return &FixedBatchID{id: id}
}

// Generate returns the fixed id.
func (g *FixedBatchID) Generate() string {
	return g.id
}
