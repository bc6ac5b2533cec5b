package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/basicio/internal/ir"
	"github.com/roach88/basicio/internal/testutil"
)

var unitsProfile = &ir.Profile{Resources: map[string]ir.ResourceSchema{
	"units": {References: map[string]ir.ReferenceRule{
		"parent_id": {ResourceType: "units", LookupField: "name", SameBatch: true, Optional: true},
	}},
}}

func importUnits(t *testing.T, repo *testutil.MemRepo, entries []map[string]any) *ir.Report {
	t.Helper()
	report, err := newTestEngine(repo).Import(context.Background(), Batch{
		Entries: entries, ResourceType: "units", Profile: unitsProfile,
	})
	require.NoError(t, err)
	require.Equal(t, ir.OutcomeSucceeded, report.Outcome)
	return report
}

func TestExport_Plain(t *testing.T) {
	repo := testutil.NewMemRepo()
	importUnits(t, repo, []map[string]any{
		{"_original_id": "root", "name": "Root"},
		{"_original_id": "child", "name": "Child", "parent_id": "root"},
	})

	entries, err := NewExporter(repo).Export(context.Background(), "units", unitsProfile, false)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, map[string]any{"_original_id": "units-1", "name": "Root"}, entries[0])
	assert.Equal(t, map[string]any{"_original_id": "units-2", "name": "Child", "parent_id": "units-1"}, entries[1])
}

func TestExport_EnrichedRoundTrip(t *testing.T) {
	source := testutil.NewMemRepo()
	importUnits(t, source, []map[string]any{
		{"_original_id": "leaf", "name": "Leaf", "parent_id": "mid"},
		{"_original_id": "mid", "name": "Mid", "parent_id": "root"},
		{"_original_id": "root", "name": "Root"},
	})

	entries, err := NewExporter(source).Export(context.Background(), "units", unitsProfile, true)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	mid := entries[1]
	assert.Equal(t, "Mid", mid["name"])
	assert.Equal(t, map[string]any{
		"parent_id": map[string]any{
			"resource_type": "units",
			"lookup_field":  "name",
			"lookup_value":  "Root",
			"original_id":   "units-1",
		},
	}, mid["_references"])
	assert.NotContains(t, entries[0], "_references", "root has no parent")

	t.Run("into an empty repository", func(t *testing.T) {
		target := testutil.NewMemRepo()
		report := importUnits(t, target, entries)
		assert.Len(t, report.IDMapping, 3)

		byName := map[string]testutil.Commit{}
		for _, c := range target.Commits() {
			byName[c.Fields["name"].(string)] = c
		}
		assert.Equal(t, byName["Root"].ID, byName["Mid"].Fields["parent_id"])
		assert.Equal(t, byName["Mid"].ID, byName["Leaf"].Fields["parent_id"])
	})

	t.Run("subset resolves by lookup value", func(t *testing.T) {
		target := testutil.NewMemRepo()
		target.Seed("units", "other-7", map[string]any{"name": "Mid"})

		var leaf map[string]any
		for _, e := range entries {
			if e["name"] == "Leaf" {
				leaf = e
			}
		}
		require.NotNil(t, leaf)
		importUnits(t, target, []map[string]any{leaf})

		commits := target.Commits()
		require.Len(t, commits, 1)
		assert.Equal(t, "other-7", commits[0].Fields["parent_id"])
	})
}

func TestExport_LeavesDanglingValues(t *testing.T) {
	repo := testutil.NewMemRepo()
	repo.Seed("units", "u-1", map[string]any{"name": "Orphan", "parent_id": "gone"})

	entries, err := NewExporter(repo).Export(context.Background(), "units", unitsProfile, true)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "gone", entries[0]["parent_id"])
	assert.NotContains(t, entries[0], "_references")
}
