package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roach88/basicio/internal/ir"
)

// BatchIndex answers whether an original id belongs to the current batch.
// *compiler.Graph implements it.
type BatchIndex interface {
	Contains(originalID string) bool
}

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	// Timeout bounds each external lookup. Zero means no timeout.
	Timeout time.Duration

	// CacheSize is the number of distinct lookups remembered for the batch.
	// Zero or less disables caching.
	CacheSize int

	Logger *slog.Logger
}

type lookupKey struct {
	resourceType string
	field        string
	value        string
}

// Resolver turns reference descriptors into resolution outcomes.
//
// It never applies policy and never touches the report. One Resolver serves
// one batch; its cache must not outlive the batch because later batches can
// create new candidates.
//
// Thread-safety: Resolve is safe for concurrent use.
type Resolver struct {
	lookup  Lookup
	batch   BatchIndex
	timeout time.Duration
	cache   *lru.Cache[lookupKey, []string]
	logger  *slog.Logger
}

// NewResolver creates a resolver over lookup for one batch.
func NewResolver(lookup Lookup, batch BatchIndex, opts ResolverOptions) *Resolver {
	r := &Resolver{
		lookup:  lookup,
		batch:   batch,
		timeout: opts.Timeout,
		logger:  opts.Logger,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if opts.CacheSize > 0 {
		// lru.New only fails for a non-positive size.
		r.cache, _ = lru.New[lookupKey, []string](opts.CacheSize)
	}
	return r
}

// Resolve resolves one reference.
//
// If the reference's batch id names a record of this batch, Resolve returns
// deferred=true and no outcome: the committer substitutes the persisted id
// once that record commits. Otherwise the external lookup is authoritative:
// zero candidates is missing, one is resolved, more than one is ambiguous.
//
// A lookup that exceeds the timeout yields missing with Failure=timeout. Any
// other lookup error yields missing with Failure=unavailable.
func (r *Resolver) Resolve(ctx context.Context, ref ir.Reference) (out ir.Outcome, deferred bool) {
	if ref.BatchID != "" && r.batch != nil && r.batch.Contains(ref.BatchID) {
		return ir.Outcome{}, true
	}
	if !ref.HasLookup() {
		// A batch id that is not in the batch and no lookup pair to fall back on.
		return ir.Outcome{Status: ir.StatusMissing}, false
	}

	key := lookupKey{ref.TargetType, ref.LookupField, ref.LookupValue}
	if r.cache != nil {
		if ids, ok := r.cache.Get(key); ok {
			return classify(ids), false
		}
	}

	ids, err := r.callLookup(ctx, key)
	if err != nil {
		failure := ir.FailureUnavailable
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			failure = ir.FailureTimeout
		}
		r.logger.Warn("lookup failed",
			"resource_type", key.resourceType,
			"field", key.field,
			"value", key.value,
			"failure", failure,
			"error", err,
		)
		return ir.Outcome{Status: ir.StatusMissing, Failure: failure}, false
	}

	if r.cache != nil {
		r.cache.Add(key, ids)
	}
	return classify(ids), false
}

func (r *Resolver) callLookup(ctx context.Context, key lookupKey) ([]string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	ids, err := r.lookup.Lookup(ctx, key.resourceType, key.field, key.value)
	if err != nil {
		return nil, fmt.Errorf("lookup %s.%s: %w", key.resourceType, key.field, err)
	}
	// Some drivers return rows after the deadline passed; trust the context.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("lookup %s.%s: %w", key.resourceType, key.field, err)
	}
	return dedupe(ids), nil
}

func classify(ids []string) ir.Outcome {
	switch len(ids) {
	case 0:
		return ir.Outcome{Status: ir.StatusMissing}
	case 1:
		return ir.Outcome{Status: ir.StatusResolved, ResolvedID: ids[0], CandidateCount: 1}
	default:
		return ir.Outcome{Status: ir.StatusAmbiguous, CandidateCount: len(ids)}
	}
}

func dedupe(ids []string) []string {
	if len(ids) < 2 {
		return ids
	}
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
