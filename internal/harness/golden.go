package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/basicio/internal/ir"
)

// Snapshot is the part of a scenario result compared against golden files.
// Timing, the batch digest and the detailed resolution log are left out:
// timing varies between runs and the others are covered by unit tests.
type Snapshot struct {
	ScenarioName      string               `json:"scenario_name"`
	Outcome           ir.BatchOutcome      `json:"outcome"`
	PartialCommit     bool                 `json:"partial_commit"`
	Counts            ir.Counts            `json:"counts"`
	CommitWaves       [][]string           `json:"commit_waves"`
	Records           []ir.RecordResult    `json:"records"`
	IDMapping         map[string]string    `json:"id_mapping"`
	Errors            []*ir.ImportError    `json:"errors"`
	Warnings          []ir.Warning         `json:"warnings"`
	ResolutionSummary ir.ResolutionSummary `json:"resolution_summary"`
	Commits           []CommitEvent        `json:"commits"`
}

// NewSnapshot extracts the golden snapshot of a result.
func NewSnapshot(name string, result *Result) Snapshot {
	r := result.Report
	s := Snapshot{
		ScenarioName:      name,
		Outcome:           r.Outcome,
		PartialCommit:     r.PartialCommit,
		Counts:            r.Counts,
		CommitWaves:       r.CommitWaves,
		Records:           r.Records,
		IDMapping:         r.IDMapping,
		Errors:            r.Errors,
		Warnings:          r.Warnings,
		ResolutionSummary: r.ResolutionSummary,
		Commits:           result.Commits,
	}
	if s.CommitWaves == nil {
		s.CommitWaves = [][]string{}
	}
	if s.IDMapping == nil {
		s.IDMapping = map[string]string{}
	}
	return s
}

// SnapshotJSON renders the snapshot of a result as canonical JSON, the
// golden file format.
func SnapshotJSON(name string, result *Result) ([]byte, error) {
	return ir.MarshalCanonical(NewSnapshot(name, result))
}

// RunWithGolden executes a scenario, fails t on any assertion error, and
// compares the canonical JSON snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(t.Context(), scenario)
	if err != nil {
		return nil, err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := SnapshotJSON(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
