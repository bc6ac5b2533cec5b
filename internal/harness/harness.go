package harness

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/roach88/basicio/internal/engine"
	"github.com/roach88/basicio/internal/logging"
	"github.com/roach88/basicio/internal/testutil"
)

// DefaultBatchID is used when a scenario does not fix one.
const DefaultBatchID = "scenario-batch"

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory repository with one worker,
// so persisted ids follow commit order and the report is reproducible.
//
// Execution flow:
//  1. Seed the repository and install the faults
//  2. Import the batch
//  3. Collect the commit log
//  4. Evaluate the assertions
//
// An import that fails as a batch (rejection, atomic abort) is a normal
// outcome and is reported through Result.Report. Run returns an error only
// when the scenario could not be executed.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	if scenario == nil {
		return nil, errors.New("nil scenario")
	}

	repo := testutil.NewMemRepo()
	for _, r := range scenario.Seed {
		repo.Seed(r.ResourceType, r.ID, r.Fields)
	}
	for _, f := range scenario.Faults.Persist {
		repo.FailPersistWhen(f.ResourceType, f.Field, f.Value, errors.New(f.Error))
	}
	for _, f := range scenario.Faults.Lookup {
		repo.FailLookup(f.ResourceType, errors.New(f.Error))
	}

	batchID := scenario.BatchID
	if batchID == "" {
		batchID = DefaultBatchID
	}
	eng := engine.New(repo,
		engine.WithBatchIDGenerator(testutil.NewFixedBatchID(batchID)),
		engine.WithWorkers(1),
		engine.WithLogger(logging.Discard()),
	)

	entries := make([]map[string]any, len(scenario.Entries))
	for i, e := range scenario.Entries {
		entries[i] = maps.Clone(e)
	}

	report, err := eng.Import(ctx, engine.Batch{
		Entries:      entries,
		ResourceType: scenario.ResourceType,
		Config:       scenario.Config,
		Profile:      scenario.Profile,
		AllowEmpty:   scenario.AllowEmpty,
	})
	if report == nil {
		return nil, fmt.Errorf("import produced no report: %w", err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, ctxErr)
	}

	result := NewResult(report)
	for _, c := range repo.Commits() {
		result.AddCommit(CommitEvent{
			Seq:          c.Seq,
			ResourceType: c.ResourceType,
			ID:           c.ID,
			Fields:       c.Fields,
		})
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}
