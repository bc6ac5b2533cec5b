package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/basicio/internal/ir"
	"github.com/roach88/basicio/internal/testutil"
)

func newTestEngine(repo Repository, opts ...Option) *Engine {
	base := []Option{
		WithBatchIDGenerator(testutil.NewFixedBatchID("batch-1")),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithWorkers(1),
	}
	return New(repo, append(base, opts...)...)
}

// lookupRef builds a _references descriptor resolved by external lookup.
func lookupRef(target, field, value string) map[string]any {
	return map[string]any{"resource_type": target, "lookup_field": field, "lookup_value": value}
}

// batchRef builds a _references descriptor naming another batch record.
func batchRef(target, originalID string) map[string]any {
	return map[string]any{"resource_type": target, "original_id": originalID}
}

func stateOf(t *testing.T, r *ir.Report, originalID string) ir.RecordResult {
	t.Helper()
	for _, rr := range r.Records {
		if rr.OriginalID == originalID {
			return rr
		}
	}
	t.Fatalf("record %s not in report", originalID)
	return ir.RecordResult{}
}

func TestImport_OrderIndependence(t *testing.T) {
	task := map[string]any{
		"_original_id":   "t1",
		"_resource_type": "tasks",
		"title":          "Write report",
		"_references":    map[string]any{"owner_id": batchRef("users", "u1")},
	}
	user := map[string]any{"_original_id": "u1", "_resource_type": "users", "name": "Ada"}

	var mappings []map[string]string
	for _, entries := range [][]map[string]any{{task, user}, {user, task}} {
		repo := testutil.NewMemRepo()
		report, err := newTestEngine(repo).Import(context.Background(), Batch{Entries: entries})
		require.NoError(t, err)
		assert.Equal(t, ir.OutcomeSucceeded, report.Outcome)

		commits := repo.Commits()
		require.Len(t, commits, 2)
		assert.Equal(t, "users", commits[0].ResourceType, "the referenced user commits first")
		assert.Equal(t, "users-1", commits[1].Fields["owner_id"], "persisted id substituted into the task")
		mappings = append(mappings, report.IDMapping)
	}

	assert.Equal(t, map[string]string{"u1": "users-1", "t1": "tasks-1"}, mappings[0])
	assert.Equal(t, mappings[0], mappings[1])
}

func TestImport_CycleRejectedBeforeAnySideEffect(t *testing.T) {
	repo := testutil.NewMemRepo()
	entries := []map[string]any{
		{"_original_id": "a", "_references": map[string]any{"parent_id": batchRef("units", "b")}},
		{"_original_id": "b", "_references": map[string]any{"parent_id": batchRef("units", "a")}},
		{"_original_id": "free"},
	}

	report, err := newTestEngine(repo).Import(context.Background(), Batch{Entries: entries, ResourceType: "units"})
	require.Error(t, err)
	assert.True(t, ir.IsCycleError(err))
	assert.Equal(t, ir.OutcomeRejected, report.Outcome)
	assert.Empty(t, repo.Commits(), "a cyclic batch commits nothing")
	assert.Equal(t, 0, repo.LookupCalls())
	assert.Empty(t, report.IDMapping)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, []string{"a", "b", "a"}, report.Errors[0].Cycle)
}

func TestImport_SelfReferenceIsCycle(t *testing.T) {
	repo := testutil.NewMemRepo()
	entries := []map[string]any{
		{"_original_id": "a", "_references": map[string]any{"parent_id": batchRef("units", "a")}},
	}

	_, err := newTestEngine(repo).Import(context.Background(), Batch{Entries: entries, ResourceType: "units"})
	require.Error(t, err)

	var ie *ir.ImportError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, ir.ErrCodeCycleDetected, ie.Code)
	assert.Equal(t, []string{"a", "a"}, ie.Cycle)
	assert.Empty(t, repo.Commits())
}

func TestImport_PolicyMatrix(t *testing.T) {
	tests := []struct {
		name     string
		seed     int // users seeded with the looked-up email
		cfg      ir.BatchConfig
		optional bool
		state    ir.RecordState
		code     ir.ErrorCode
		warning  bool
		batchErr bool
	}{
		{name: "ambiguous fail", seed: 2, cfg: ir.BatchConfig{OnAmbiguous: ir.PolicyFail}, state: ir.StateFailed, code: ir.ErrCodeAmbiguousReference},
		{name: "ambiguous skip optional", seed: 2, cfg: ir.BatchConfig{OnAmbiguous: ir.PolicySkip}, optional: true, state: ir.StateCommitted, warning: true},
		{name: "ambiguous skip required", seed: 2, cfg: ir.BatchConfig{OnAmbiguous: ir.PolicySkip}, state: ir.StateFailed, code: ir.ErrCodeAmbiguousReference},
		{name: "ambiguous fail atomic", seed: 2, cfg: ir.BatchConfig{OnAmbiguous: ir.PolicyFail, Mode: ir.ModeAtomic}, state: ir.StateFailed, code: ir.ErrCodeAmbiguousReference, batchErr: true},
		{name: "missing fail", seed: 0, cfg: ir.BatchConfig{OnMissing: ir.PolicyFail}, state: ir.StateFailed, code: ir.ErrCodeMissingReference},
		{name: "missing skip optional", seed: 0, cfg: ir.BatchConfig{OnMissing: ir.PolicySkip}, optional: true, state: ir.StateCommitted, warning: true},
		{name: "missing skip required", seed: 0, cfg: ir.BatchConfig{OnMissing: ir.PolicySkip}, state: ir.StateFailed, code: ir.ErrCodeMissingReference},
		{name: "missing fail atomic", seed: 0, cfg: ir.BatchConfig{OnMissing: ir.PolicyFail, Mode: ir.ModeAtomic}, state: ir.StateFailed, code: ir.ErrCodeMissingReference, batchErr: true},
		{name: "resolved", seed: 1, cfg: ir.BatchConfig{}, state: ir.StateCommitted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := testutil.NewMemRepo()
			for i := range tt.seed {
				repo.Seed("users", fmt.Sprintf("u-%d", i), map[string]any{"email": "dup@example.com"})
			}
			desc := lookupRef("users", "email", "dup@example.com")
			desc["optional"] = tt.optional
			entries := []map[string]any{
				{"_original_id": "t1", "title": "A", "_references": map[string]any{"reviewer_id": desc}},
				{"_original_id": "t2", "title": "B"},
			}

			report, err := newTestEngine(repo).Import(context.Background(), Batch{
				Entries: entries, ResourceType: "tasks", Config: tt.cfg,
			})

			rr := stateOf(t, report, "t1")
			assert.Equal(t, tt.state, rr.State)
			assert.Equal(t, tt.code, rr.ErrorCode)

			if tt.batchErr {
				require.Error(t, err)
				assert.Equal(t, tt.code, ir.CodeOf(err))
				assert.Equal(t, ir.OutcomeAborted, report.Outcome)
				assert.Equal(t, ir.StateSkipped, stateOf(t, report, "t2").State)
				assert.Empty(t, repo.Commits(), "atomic abort in the resolve pass commits nothing")
				assert.False(t, report.PartialCommit)
			} else {
				require.NoError(t, err)
				assert.Equal(t, ir.StateCommitted, stateOf(t, report, "t2").State)
			}

			if tt.warning {
				require.Len(t, report.Warnings, 1)
				assert.Equal(t, "reviewer_id", report.Warnings[0].Field)
				assert.Contains(t, report.Warnings[0].Message, "field set to null")
				var task testutil.Commit
				for _, c := range repo.Commits() {
					if c.Fields["title"] == "A" {
						task = c
					}
				}
				assert.Contains(t, task.Fields, "reviewer_id")
				assert.Nil(t, task.Fields["reviewer_id"])
			}

			require.Len(t, report.Resolutions, 1, "every outcome is logged")
			assert.Equal(t, tt.seed, report.Resolutions[0].Outcome.CandidateCount)
		})
	}
}

func TestImport_PartialSuccessAccounting(t *testing.T) {
	repo := testutil.NewMemRepo()
	repo.Seed("positions", "pos-1", map[string]any{"title": "Engineer"})

	var entries []map[string]any
	for i := range 50 {
		title := "Engineer"
		if i%10 == 3 {
			title = "Astronaut"
		}
		entries = append(entries, map[string]any{
			"_original_id": fmt.Sprintf("u%02d", i),
			"name":         fmt.Sprintf("User %d", i),
			"_references":  map[string]any{"position_id": lookupRef("positions", "title", title)},
		})
	}

	report, err := newTestEngine(repo, WithWorkers(8)).Import(context.Background(), Batch{Entries: entries, ResourceType: "users"})
	require.NoError(t, err, "best-effort record failures are not batch errors")

	assert.Equal(t, ir.Counts{Attempted: 50, Succeeded: 45, Failed: 5}, report.Counts)
	assert.Len(t, report.IDMapping, 45)
	assert.Equal(t, ir.OutcomePartial, report.Outcome)
	assert.Len(t, report.Errors, 5)
	for _, e := range report.Errors {
		assert.Equal(t, ir.ErrCodeMissingReference, e.Code)
		assert.Equal(t, "position_id", e.Field)
		assert.Equal(t, ir.StageResolve, e.Stage)
	}
}

func TestImport_BestEffortDependentsFail(t *testing.T) {
	repo := testutil.NewMemRepo()
	repo.FailPersistWhen("units", "name", "Broken", errors.New("constraint violation"))
	entries := []map[string]any{
		{"_original_id": "root", "name": "Broken"},
		{"_original_id": "child", "name": "Child", "_references": map[string]any{"parent_id": batchRef("units", "root")}},
		{"_original_id": "grandchild", "name": "GC", "_references": map[string]any{"parent_id": batchRef("units", "child")}},
		{"_original_id": "other", "name": "Other"},
	}

	report, err := newTestEngine(repo).Import(context.Background(), Batch{Entries: entries, ResourceType: "units"})
	require.NoError(t, err)

	assert.Equal(t, ir.ErrCodePersistence, stateOf(t, report, "root").ErrorCode)
	for _, id := range []string{"child", "grandchild"} {
		rr := stateOf(t, report, id)
		assert.Equal(t, ir.StateFailed, rr.State, id)
		assert.Equal(t, ir.ErrCodeDependencyAborted, rr.ErrorCode, id)
		errs := report.RecordErrors(id)
		require.Len(t, errs, 1)
		assert.Equal(t, "dependency not committed", errs[0].Message)
		assert.Equal(t, "parent_id", errs[0].Field)
	}
	assert.Equal(t, ir.StateCommitted, stateOf(t, report, "other").State)
	assert.Equal(t, ir.Counts{Attempted: 4, Succeeded: 1, Failed: 3}, report.Counts)
	assert.Equal(t, ir.OutcomePartial, report.Outcome)
}

func TestImport_AtomicAbortIsPartialCommit(t *testing.T) {
	repo := testutil.NewMemRepo()
	repo.FailPersistWhen("units", "name", "B", errors.New("disk full"))
	entries := []map[string]any{
		{"_original_id": "a", "name": "A"},
		{"_original_id": "b", "name": "B"},
		{"_original_id": "c", "name": "C", "_references": map[string]any{"parent_id": batchRef("units", "a")}},
	}

	report, err := newTestEngine(repo).Import(context.Background(), Batch{
		Entries: entries, ResourceType: "units", Config: ir.BatchConfig{Mode: ir.ModeAtomic},
	})
	require.Error(t, err)
	assert.True(t, ir.IsPersistenceError(err))

	assert.Equal(t, ir.OutcomeAborted, report.Outcome)
	assert.True(t, report.PartialCommit, "a committed before b failed and is not rolled back")
	assert.Equal(t, ir.StateCommitted, stateOf(t, report, "a").State)
	assert.Equal(t, ir.StateFailed, stateOf(t, report, "b").State)
	assert.Equal(t, ir.StateSkipped, stateOf(t, report, "c").State)
	assert.Equal(t, ir.Counts{Attempted: 3, Succeeded: 1, Failed: 1, Skipped: 1}, report.Counts)
	assert.Equal(t, map[string]string{"a": "units-1"}, report.IDMapping)
	assert.Len(t, repo.Commits(), 1)
}

func TestImport_LookupTimeoutIsMissingButLoggedDistinctly(t *testing.T) {
	repo := testutil.NewMemRepo()
	repo.SetLookupDelay(500 * time.Millisecond)
	entries := []map[string]any{
		{"_original_id": "t1", "_references": map[string]any{"owner_id": lookupRef("users", "email", "a@x")}},
	}

	report, err := newTestEngine(repo, WithLookupTimeout(20*time.Millisecond)).Import(context.Background(), Batch{
		Entries: entries, ResourceType: "tasks",
	})
	require.NoError(t, err)

	require.Len(t, report.Resolutions, 1)
	out := report.Resolutions[0].Outcome
	assert.Equal(t, ir.StatusMissing, out.Status)
	assert.Equal(t, ir.FailureTimeout, out.Failure)
	assert.Equal(t, 1, report.ResolutionSummary.TimedOut)
	assert.Equal(t, 0, report.ResolutionSummary.Missing)
	assert.Equal(t, ir.ErrCodeMissingReference, stateOf(t, report, "t1").ErrorCode)
}

func TestImport_LookupUnavailable(t *testing.T) {
	repo := testutil.NewMemRepo()
	repo.FailLookup("users", errors.New("connection refused"))
	entries := []map[string]any{{
		"_original_id": "t1",
		"_references":  map[string]any{"owner_id": map[string]any{"resource_type": "users", "lookup_field": "email", "lookup_value": "a@x", "optional": true}},
	}}

	report, err := newTestEngine(repo).Import(context.Background(), Batch{
		Entries: entries, ResourceType: "tasks", Config: ir.BatchConfig{OnMissing: ir.PolicySkip},
	})
	require.NoError(t, err)
	assert.Equal(t, ir.ErrCodeLookupUnavailable, stateOf(t, report, "t1").ErrorCode, "skip never hides an outage")
	assert.Equal(t, 1, report.ResolutionSummary.Unavailable)
	assert.Equal(t, ir.OutcomeFailed, report.Outcome)
}

func TestImport_TreeWithProfile(t *testing.T) {
	repo := testutil.NewMemRepo()
	repo.Seed("organization_units", "ou-existing", map[string]any{"name": "Existing"})
	profile := &ir.Profile{Resources: map[string]ir.ResourceSchema{
		"organization_units": {References: map[string]ir.ReferenceRule{
			"parent_id": {ResourceType: "organization_units", LookupField: "name", SameBatch: true, Optional: true},
		}},
	}}
	entries := []map[string]any{
		{"_original_id": "leaf", "name": "Leaf", "parent_id": "mid"},
		{"_original_id": "mid", "name": "Mid", "parent_id": "root"},
		{"_original_id": "root", "name": "Root", "parent_id": nil},
		{"_original_id": "adopted", "name": "Adopted", "parent_id": "Existing"},
	}

	report, err := newTestEngine(repo).Import(context.Background(), Batch{
		Entries: entries, ResourceType: "organization_units", Profile: profile,
	})
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeSucceeded, report.Outcome)
	assert.Equal(t, [][]string{{"root", "adopted"}, {"mid"}, {"leaf"}}, report.CommitWaves)

	byName := map[string]testutil.Commit{}
	for _, c := range repo.Commits() {
		byName[c.Fields["name"].(string)] = c
	}
	assert.Nil(t, byName["Root"].Fields["parent_id"])
	assert.Equal(t, "ou-existing", byName["Adopted"].Fields["parent_id"], "parent outside the batch resolves by lookup")
	assert.Equal(t, byName["Root"].ID, byName["Mid"].Fields["parent_id"])
	assert.Equal(t, byName["Mid"].ID, byName["Leaf"].Fields["parent_id"])
	assert.Less(t, byName["Mid"].Seq, byName["Leaf"].Seq)

	// Deferred references are logged when they are substituted.
	var commitStage int
	for _, r := range report.Resolutions {
		if r.Stage == ir.StageCommit {
			commitStage++
			assert.Equal(t, ir.StatusResolved, r.Outcome.Status)
		}
	}
	assert.Equal(t, 2, commitStage)
	for i := 1; i < len(report.Resolutions); i++ {
		assert.Greater(t, report.Resolutions[i].Seq, report.Resolutions[i-1].Seq)
	}
}

func TestImport_ConcurrentWavesRespectDependencies(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	repo := testutil.NewMemRepo()
	repo.SetPersistDelay(time.Millisecond)

	const n = 120
	entries := make([]map[string]any, n)
	parent := make(map[string]string)
	for i := range n {
		id := fmt.Sprintf("n%03d", i)
		e := map[string]any{"_original_id": id, "name": id}
		if i > 0 {
			p := fmt.Sprintf("n%03d", rng.Intn(i))
			parent[id] = p
			e["_references"] = map[string]any{"parent_id": batchRef("nodes", p)}
		}
		entries[i] = e
	}
	rng.Shuffle(n, func(i, j int) { entries[i], entries[j] = entries[j], entries[i] })

	report, err := newTestEngine(repo, WithWorkers(8)).Import(context.Background(), Batch{Entries: entries, ResourceType: "nodes"})
	require.NoError(t, err)
	assert.Equal(t, n, report.Counts.Succeeded)

	seq := map[string]int64{}
	for _, c := range repo.Commits() {
		seq[c.Fields["name"].(string)] = c.Seq
	}
	for child, p := range parent {
		assert.Less(t, seq[p], seq[child], "%s committed before its parent %s", child, p)
		assert.Equal(t, report.IDMapping[p], findCommit(repo, child).Fields["parent_id"])
	}
}

func findCommit(repo *testutil.MemRepo, name string) testutil.Commit {
	for _, c := range repo.Commits() {
		if c.Fields["name"] == name {
			return c
		}
	}
	return testutil.Commit{}
}

func TestImport_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		batch Batch
		opts  []Option
		code  ir.ErrorCode
	}{
		{name: "empty", batch: Batch{ResourceType: "users"}, code: ir.ErrCodeValidation},
		{name: "duplicate", batch: Batch{ResourceType: "users", Entries: []map[string]any{{"_original_id": "a"}, {"_original_id": "a"}}}, code: ir.ErrCodeValidation},
		{name: "too large", batch: Batch{ResourceType: "users", Entries: []map[string]any{{"_original_id": "a"}, {"_original_id": "b"}, {"_original_id": "c"}}}, opts: []Option{WithMaxBatchSize(2)}, code: ir.ErrCodeBatchTooLarge},
		{name: "bad policy", batch: Batch{ResourceType: "users", Entries: []map[string]any{{"_original_id": "a"}}, Config: ir.BatchConfig{OnMissing: "ignore"}}, code: ir.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := testutil.NewMemRepo()
			report, err := newTestEngine(repo, tt.opts...).Import(context.Background(), tt.batch)
			require.Error(t, err)
			assert.Equal(t, tt.code, ir.CodeOf(err))
			require.NotNil(t, report)
			assert.Equal(t, ir.OutcomeRejected, report.Outcome)
			assert.Empty(t, repo.Commits())
		})
	}
}

func TestImport_EmptyBatchAllowed(t *testing.T) {
	report, err := newTestEngine(testutil.NewMemRepo()).Import(context.Background(), Batch{ResourceType: "users", AllowEmpty: true})
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeSucceeded, report.Outcome)
	assert.Equal(t, ir.Counts{}, report.Counts)
}

type memReportLog struct {
	reports []*ir.Report
}

func (l *memReportLog) SaveReport(_ context.Context, r *ir.Report) error {
	l.reports = append(l.reports, r)
	return nil
}

func TestImport_SavesReportAndDigest(t *testing.T) {
	log := &memReportLog{}
	entries := []map[string]any{{"_original_id": "a", "name": "A"}}

	report, err := newTestEngine(testutil.NewMemRepo(), WithReportLog(log)).Import(context.Background(), Batch{Entries: entries, ResourceType: "users"})
	require.NoError(t, err)

	require.Len(t, log.reports, 1)
	assert.Equal(t, "batch-1", log.reports[0].BatchID)
	assert.Equal(t, ir.MustBatchDigest(entries), report.BatchDigest)
	assert.Positive(t, report.Timing.Total)
}

func TestImport_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newTestEngine(testutil.NewMemRepo()).Import(ctx, Batch{
		Entries: []map[string]any{{"_original_id": "a"}}, ResourceType: "users",
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ir.StateSkipped, stateOf(t, report, "a").State)
	assert.Equal(t, report.Counts.Attempted, report.Counts.Succeeded+report.Counts.Failed+report.Counts.Skipped)
}

func TestImport_PersistTimeout(t *testing.T) {
	repo := testutil.NewMemRepo()
	repo.SetPersistDelay(500 * time.Millisecond)
	entries := []map[string]any{
		{"_original_id": "a", "name": "A"},
		{"_original_id": "b", "name": "B", "_references": map[string]any{"parent_id": batchRef("units", "a")}},
	}

	t.Run("best effort", func(t *testing.T) {
		report, err := newTestEngine(repo, WithPersistTimeout(20*time.Millisecond)).Import(context.Background(), Batch{
			Entries: entries, ResourceType: "units",
		})
		require.NoError(t, err)
		assert.Equal(t, ir.OutcomeFailed, report.Outcome)

		a := stateOf(t, report, "a")
		assert.Equal(t, ir.StateFailed, a.State)
		assert.Equal(t, ir.ErrCodePersistence, a.ErrorCode)
		errs := report.RecordErrors("a")
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], context.DeadlineExceeded)

		b := stateOf(t, report, "b")
		assert.Equal(t, ir.ErrCodeDependencyAborted, b.ErrorCode)
	})

	t.Run("atomic", func(t *testing.T) {
		report, err := newTestEngine(repo, WithPersistTimeout(20*time.Millisecond)).Import(context.Background(), Batch{
			Entries: entries, ResourceType: "units", Config: ir.BatchConfig{Mode: ir.ModeAtomic},
		})
		require.Error(t, err)
		assert.True(t, ir.IsPersistenceError(err))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, ir.OutcomeAborted, report.Outcome)
		assert.False(t, report.PartialCommit)

		b := report.RecordErrors("b")
		require.Len(t, b, 1)
		assert.Equal(t, "batch aborted", b[0].Message)
	})
}

func TestImport_CancelledDuringCommit(t *testing.T) {
	repo := testutil.NewMemRepo()
	repo.SetPersistDelay(500 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	report, err := newTestEngine(repo, WithWorkers(2), WithPersistTimeout(0)).Import(ctx, Batch{
		ResourceType: "units",
		Entries: []map[string]any{
			{"_original_id": "a"},
			{"_original_id": "b"},
			{"_original_id": "c", "_references": map[string]any{"parent_id": batchRef("units", "a")}},
		},
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, ir.Counts{Attempted: 3, Skipped: 3}, report.Counts)
	for _, e := range report.Errors {
		assert.Equal(t, ir.ErrCodeDependencyAborted, e.Code, e.OriginalID)
		assert.Equal(t, "import cancelled", e.Message, e.OriginalID)
	}
	assert.Empty(t, repo.Commits())
}

func TestImport_CancelledDuringLookup(t *testing.T) {
	repo := testutil.NewMemRepo()
	repo.Seed("users", "user-1", map[string]any{"email": "ada@example.com"})
	repo.SetLookupDelay(500 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	report, err := newTestEngine(repo, WithLookupTimeout(time.Second)).Import(ctx, Batch{
		ResourceType: "tasks",
		Entries: []map[string]any{
			{"_original_id": "t1", "_references": map[string]any{"owner_id": lookupRef("users", "email", "ada@example.com")}},
		},
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	t1 := stateOf(t, report, "t1")
	assert.Equal(t, ir.StateSkipped, t1.State, "cancellation is not a lookup outage")
	errs := report.RecordErrors("t1")
	require.Len(t, errs, 1)
	assert.Equal(t, "import cancelled", errs[0].Message)
	assert.Zero(t, report.ResolutionSummary.Unavailable)
}

func TestEngine_Plan(t *testing.T) {
	plan, err := newTestEngine(testutil.NewMemRepo()).Plan(Batch{
		ResourceType: "units",
		Entries: []map[string]any{
			{"_original_id": "b", "_references": map[string]any{"parent_id": batchRef("units", "a")}},
			{"_original_id": "a"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a"}, {"b"}}, plan.WaveIDs())
}
