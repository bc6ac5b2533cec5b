package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/basicio/internal/ir"
	"github.com/roach88/basicio/internal/testutil"
)

type batchSet map[string]bool

func (b batchSet) Contains(id string) bool { return b[id] }

func TestResolver_Classification(t *testing.T) {
	repo := testutil.NewMemRepo()
	repo.Seed("users", "u-1", map[string]any{"email": "one@x"})
	repo.Seed("users", "u-2", map[string]any{"email": "two@x"})
	repo.Seed("users", "u-3", map[string]any{"email": "two@x"})

	r := NewResolver(repo, nil, ResolverOptions{})
	ctx := context.Background()

	tests := []struct {
		value string
		want  ir.Outcome
	}{
		{"one@x", ir.Outcome{Status: ir.StatusResolved, ResolvedID: "u-1", CandidateCount: 1}},
		{"two@x", ir.Outcome{Status: ir.StatusAmbiguous, CandidateCount: 2}},
		{"none@x", ir.Outcome{Status: ir.StatusMissing}},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			out, deferred := r.Resolve(ctx, ir.Reference{Field: "owner_id", TargetType: "users", LookupField: "email", LookupValue: tt.value})
			assert.False(t, deferred)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestResolver_BatchHint(t *testing.T) {
	repo := testutil.NewMemRepo()
	repo.Seed("units", "ou-9", map[string]any{"name": "Sales"})
	r := NewResolver(repo, batchSet{"sales": true}, ResolverOptions{})
	ctx := context.Background()

	_, deferred := r.Resolve(ctx, ir.Reference{Field: "parent_id", TargetType: "units", LookupField: "name", LookupValue: "Sales", BatchID: "sales"})
	assert.True(t, deferred, "an in-batch hint wins over the lookup pair")
	assert.Equal(t, 0, repo.LookupCalls())

	out, deferred := r.Resolve(ctx, ir.Reference{Field: "parent_id", TargetType: "units", LookupField: "name", LookupValue: "Sales", BatchID: "elsewhere"})
	assert.False(t, deferred)
	assert.Equal(t, "ou-9", out.ResolvedID, "a hint outside the batch falls back to lookup")

	out, deferred = r.Resolve(ctx, ir.Reference{Field: "parent_id", TargetType: "units", BatchID: "elsewhere"})
	assert.False(t, deferred)
	assert.Equal(t, ir.Outcome{Status: ir.StatusMissing}, out)
}

func TestResolver_CachesPerKey(t *testing.T) {
	repo := testutil.NewMemRepo()
	repo.Seed("users", "u-1", map[string]any{"email": "a@x"})
	r := NewResolver(repo, nil, ResolverOptions{CacheSize: 16})
	ctx := context.Background()

	ref := ir.Reference{Field: "owner_id", TargetType: "users", LookupField: "email", LookupValue: "a@x"}
	for range 3 {
		out, _ := r.Resolve(ctx, ref)
		assert.Equal(t, "u-1", out.ResolvedID)
	}
	assert.Equal(t, 1, repo.LookupCalls())

	ref.LookupField = "id"
	ref.LookupValue = "u-1"
	out, _ := r.Resolve(ctx, ref)
	assert.Equal(t, "u-1", out.ResolvedID)
	assert.Equal(t, 2, repo.LookupCalls())
}

func TestResolver_NoCache(t *testing.T) {
	repo := testutil.NewMemRepo()
	r := NewResolver(repo, nil, ResolverOptions{})
	ref := ir.Reference{Field: "owner_id", TargetType: "users", LookupField: "email", LookupValue: "a@x"}
	r.Resolve(context.Background(), ref)
	r.Resolve(context.Background(), ref)
	assert.Equal(t, 2, repo.LookupCalls())
}

func TestResolver_Failures(t *testing.T) {
	ref := ir.Reference{Field: "owner_id", TargetType: "users", LookupField: "email", LookupValue: "a@x"}

	t.Run("timeout", func(t *testing.T) {
		repo := testutil.NewMemRepo()
		repo.SetLookupDelay(time.Second)
		r := NewResolver(repo, nil, ResolverOptions{Timeout: 10 * time.Millisecond})

		out, _ := r.Resolve(context.Background(), ref)
		assert.Equal(t, ir.Outcome{Status: ir.StatusMissing, Failure: ir.FailureTimeout}, out)
	})

	t.Run("unavailable", func(t *testing.T) {
		repo := testutil.NewMemRepo()
		repo.FailLookup("users", errors.New("connection refused"))
		r := NewResolver(repo, nil, ResolverOptions{CacheSize: 4})

		out, _ := r.Resolve(context.Background(), ref)
		assert.Equal(t, ir.Outcome{Status: ir.StatusMissing, Failure: ir.FailureUnavailable}, out)

		// Failures are not cached.
		r.Resolve(context.Background(), ref)
		assert.Equal(t, 2, repo.LookupCalls())
	})

	t.Run("caller cancelled is not a timeout", func(t *testing.T) {
		repo := testutil.NewMemRepo()
		repo.SetLookupDelay(time.Second)
		r := NewResolver(repo, nil, ResolverOptions{Timeout: time.Minute})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		out, _ := r.Resolve(ctx, ref)
		assert.Equal(t, ir.FailureUnavailable, out.Failure)
	})
}

type dupLookup struct{}

func (dupLookup) Lookup(context.Context, string, string, string) ([]string, error) {
	return []string{"b", "a", "b"}, nil
}

func TestResolver_DedupesCandidates(t *testing.T) {
	r := NewResolver(dupLookup{}, nil, ResolverOptions{})
	out, _ := r.Resolve(context.Background(), ir.Reference{Field: "f", TargetType: "t", LookupField: "k", LookupValue: "v"})
	require.Equal(t, ir.StatusAmbiguous, out.Status)
	assert.Equal(t, 2, out.CandidateCount)
}
