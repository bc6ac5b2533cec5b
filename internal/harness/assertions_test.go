package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/basicio/internal/ir"
)

// fixture is a finished best-effort batch: a and b committed, c failed.
func fixture() *Result {
	r := NewResult(&ir.Report{
		Outcome: ir.OutcomePartial,
		Counts:  ir.Counts{Attempted: 3, Succeeded: 2, Failed: 1},
		Records: []ir.RecordResult{
			{OriginalID: "a", ResourceType: "units", State: ir.StateCommitted, PersistedID: "units-1"},
			{OriginalID: "b", ResourceType: "units", State: ir.StateCommitted, PersistedID: "units-2"},
			{OriginalID: "c", ResourceType: "units", State: ir.StateFailed, ErrorCode: ir.ErrCodeMissingReference},
		},
		IDMapping: map[string]string{"a": "units-1", "b": "units-2"},
		Errors: []*ir.ImportError{
			{Code: ir.ErrCodeMissingReference, Message: `missing units.name="X": on_missing=fail`, OriginalID: "c", Field: "parent_id", Stage: ir.StageResolve},
		},
		Warnings: []ir.Warning{{OriginalID: "b", Field: "owner_id", Message: "field set to null (on_missing=skip)"}},
	})
	r.AddCommit(CommitEvent{Seq: 1, ResourceType: "units", ID: "units-1", Fields: map[string]any{"name": "A", "size": 3}})
	r.AddCommit(CommitEvent{Seq: 2, ResourceType: "units", ID: "units-2", Fields: map[string]any{"name": "B", "parent_id": "units-1", "owner_id": nil}})
	return r
}

func boolPtr(b bool) *bool { return &b }

func TestEvaluateAssertions(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{"outcome", Assertion{Type: AssertOutcome, Outcome: ir.OutcomePartial}, ""},
		{"outcome mismatch", Assertion{Type: AssertOutcome, Outcome: ir.OutcomeSucceeded}, "Expected: succeeded"},
		{"partial commit", Assertion{Type: AssertOutcome, Outcome: ir.OutcomePartial, PartialCommit: boolPtr(true)}, "partial_commit=true"},
		{"counts", Assertion{Type: AssertCounts, Counts: &ir.Counts{Attempted: 3, Succeeded: 2, Failed: 1}}, ""},
		{"counts mismatch", Assertion{Type: AssertCounts, Counts: &ir.Counts{Attempted: 3, Succeeded: 3}}, "Succeeded:3"},
		{"record", Assertion{Type: AssertRecord, OriginalID: "c", State: ir.StateFailed, Code: ir.ErrCodeMissingReference}, ""},
		{"record wrong code", Assertion{Type: AssertRecord, OriginalID: "c", State: ir.StateFailed, Code: ir.ErrCodePersistence}, "state failed MISSING_REFERENCE"},
		{"record unknown", Assertion{Type: AssertRecord, OriginalID: "zz", State: ir.StateCommitted}, "not found"},
		{"commit order", Assertion{Type: AssertCommitOrder, Order: []string{"a", "b"}}, ""},
		{"commit order reversed", Assertion{Type: AssertCommitOrder, Order: []string{"b", "a"}}, "b (seq 2) should be before a (seq 1)"},
		{"commit order uncommitted", Assertion{Type: AssertCommitOrder, Order: []string{"a", "c"}}, "c not committed"},
		{"error", Assertion{Type: AssertError, OriginalID: "c", Field: "parent_id", Code: ir.ErrCodeMissingReference, Contains: "on_missing=fail"}, ""},
		{"error wrong field", Assertion{Type: AssertError, OriginalID: "c", Field: "owner_id", Code: ir.ErrCodeMissingReference}, "MISSING_REFERENCE error"},
		{"warning", Assertion{Type: AssertWarning, OriginalID: "b", Field: "owner_id", Contains: "skip"}, ""},
		{"warning missing", Assertion{Type: AssertWarning, OriginalID: "a"}, "0 warnings"},
		{"stored", Assertion{Type: AssertStored, OriginalID: "b", Fields: map[string]any{"parent_id": "${a}", "owner_id": nil}}, ""},
		{"stored numbers", Assertion{Type: AssertStored, OriginalID: "a", Fields: map[string]any{"size": 3.0}}, ""},
		{"stored mismatch", Assertion{Type: AssertStored, OriginalID: "a", Fields: map[string]any{"name": "Z"}}, "a.name = Z"},
		{"stored absent field", Assertion{Type: AssertStored, OriginalID: "a", Fields: map[string]any{"color": "red"}}, "a.color to exist"},
		{"stored uncommitted", Assertion{Type: AssertStored, OriginalID: "c", Fields: map[string]any{"name": "C"}}, "not committed"},
		{"unknown type", Assertion{Type: "nope"}, `unknown assertion type "nope"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(fixture(), []Assertion{tt.assertion})
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.wantErr)
		})
	}
}

func TestAssertionError_IncludesCommitLog(t *testing.T) {
	r := fixture()
	errs := EvaluateAssertions(r, []Assertion{{Type: AssertCommitOrder, Order: []string{"b", "a"}}})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Commit log:")
	assert.Contains(t, errs[0], "[2] units units-2")
}

func TestExpandPlaceholder(t *testing.T) {
	ids := map[string]string{"root": "units-1"}
	assert.Equal(t, "units-1", expandPlaceholder("${root}", ids))
	assert.Equal(t, "${other}", expandPlaceholder("${other}", ids))
	assert.Equal(t, "prefix ${root}", expandPlaceholder("prefix ${root}", ids))
	assert.Equal(t, 7, expandPlaceholder(7, ids))
}
