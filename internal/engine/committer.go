package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/basicio/internal/compiler"
	"github.com/roach88/basicio/internal/ir"
)

// committer runs the resolve pass and the commit waves of one planned batch.
//
// Workers never touch the graph or the aggregator. Each worker fills its own
// slot; after the wave barrier the scheduler goroutine applies the slots in
// input-position order. The IDMap is the only structure workers share.
type committer struct {
	plan           *compiler.Plan
	persister      Persister
	resolver       *Resolver
	agg            *Aggregator
	ids            *IDMap
	cfg            ir.BatchConfig
	workers        int
	persistTimeout time.Duration
	logger         *slog.Logger

	// values holds each record's field map after the resolve pass.
	values []map[string]any

	// abort is the record error that halted an atomic batch.
	abort *ir.ImportError
}

type resolution struct {
	ref ir.Reference
	out ir.Outcome
}

// slot is what one worker reports for one record.
type slot struct {
	resolutions []resolution
	warnings    []ir.Warning
	errs        []*ir.ImportError
	persistedID string
	cancelled   bool
}

// run executes both passes and returns the batch-fatal error, if any:
// the first record error of an aborted atomic batch, or the caller's
// context error.
func (c *committer) run(ctx context.Context) error {
	c.values = make([]map[string]any, len(c.plan.Records))

	start := time.Now()
	c.resolvePass(ctx)
	c.agg.SetTiming(ir.StageResolve, time.Since(start))

	start = time.Now()
	err := c.commitWaves(ctx)
	c.agg.SetTiming(ir.StageCommit, time.Since(start))
	return err
}

// resolvePass resolves every external reference of every record.
// Intra-batch references are deferred to the commit waves.
func (c *committer) resolvePass(ctx context.Context) {
	records := c.plan.Records
	slots := make([]slot, len(records))

	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, rec := range records {
		c.agg.Transition(rec.OriginalID, ir.StateResolving)
		g.Go(func() error {
			slots[i] = c.resolveRecord(ctx, i)
			return nil
		})
	}
	_ = g.Wait()

	// Lookups that ran into the caller's cancellation say nothing about the
	// data. Leave the records to be skipped by the commit pass.
	if ctx.Err() != nil {
		return
	}

	for i, rec := range records {
		s := slots[i]
		for _, r := range s.resolutions {
			c.agg.LogResolution(rec.OriginalID, r.ref, ir.StageResolve, r.out)
		}
		for _, w := range s.warnings {
			c.agg.AddWarning(w)
		}
		if len(s.errs) == 0 {
			c.agg.Transition(rec.OriginalID, ir.StateReady)
			continue
		}
		for _, err := range s.errs {
			c.fail(err)
		}
	}

	if c.abort != nil {
		c.skipRemaining("batch aborted")
	}
}

func (c *committer) resolveRecord(ctx context.Context, i int) slot {
	rec := c.plan.Records[i]
	fields := maps.Clone(rec.Fields)
	if fields == nil {
		fields = make(map[string]any)
	}

	var s slot
	for _, ref := range rec.References {
		out, deferred := c.resolver.Resolve(ctx, ref)
		if deferred {
			continue
		}
		s.resolutions = append(s.resolutions, resolution{ref: ref, out: out})

		value, warning, err := ApplyPolicy(c.cfg, rec.OriginalID, ref, out)
		if err != nil {
			s.errs = append(s.errs, err)
			continue
		}
		fields[ref.Field] = value
		if warning != "" {
			s.warnings = append(s.warnings, ir.Warning{OriginalID: rec.OriginalID, Field: ref.Field, Message: warning})
		}
	}
	c.values[i] = fields
	return s
}

// commitWaves walks the scheduler's waves. A wave starts only after every
// record of the previous wave reached a terminal state.
func (c *committer) commitWaves(ctx context.Context) error {
	nodes := c.plan.Graph.Nodes

	for w, wave := range c.plan.Order.Waves {
		if c.abort != nil {
			break
		}
		if err := ctx.Err(); err != nil {
			c.skipRemaining("import cancelled")
			return err
		}

		var eligible []int
		for _, i := range wave {
			id := nodes[i]
			if c.agg.State(id) != ir.StateReady {
				continue
			}
			if field, ok := c.uncommittedDependency(i); ok {
				c.fail(ir.NewDependencyAbortedError(id, field, "dependency not committed"))
				continue
			}
			eligible = append(eligible, i)
		}

		slots := make([]slot, len(eligible))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.workers)
		for k, i := range eligible {
			g.Go(func() error {
				slots[k] = c.commitRecord(gctx, i)
				if len(slots[k].errs) > 0 && c.cfg.Mode == ir.ModeAtomic {
					// Cancels the rest of the wave.
					return slots[k].errs[0]
				}
				return nil
			})
		}
		_ = g.Wait()

		committed, failed := 0, 0
		for k, i := range eligible {
			id := nodes[i]
			s := slots[k]
			for _, r := range s.resolutions {
				c.agg.LogResolution(id, r.ref, ir.StageCommit, r.out)
			}
			switch {
			case s.cancelled:
				c.agg.Skipped(ir.NewDependencyAbortedError(id, "", c.skipReason(ctx)))
			case len(s.errs) > 0:
				failed++
				for _, err := range s.errs {
					c.fail(err)
				}
			default:
				committed++
				c.agg.Committed(id, s.persistedID)
			}
		}

		c.logger.Debug("wave committed",
			"wave", w,
			"size", len(wave),
			"committed", committed,
			"failed", failed,
		)
	}

	if err := ctx.Err(); err != nil {
		c.skipRemaining("import cancelled")
		return err
	}
	if c.abort != nil {
		c.skipRemaining("batch aborted")
		return c.abort
	}
	return nil
}

// commitRecord substitutes intra-batch ids and persists one record.
func (c *committer) commitRecord(ctx context.Context, i int) slot {
	rec := c.plan.Records[i]
	var s slot
	if ctx.Err() != nil {
		s.cancelled = true
		return s
	}

	fields := maps.Clone(c.values[i])
	for _, ref := range rec.References {
		if ref.BatchID == "" || !c.plan.Graph.Contains(ref.BatchID) {
			continue
		}
		id, ok := c.ids.Get(ref.BatchID)
		if !ok {
			s.errs = append(s.errs, ir.NewDependencyAbortedError(rec.OriginalID, ref.Field, "dependency not committed"))
			return s
		}
		s.resolutions = append(s.resolutions, resolution{
			ref: ref,
			out: ir.Outcome{Status: ir.StatusResolved, ResolvedID: id, CandidateCount: 1},
		})
		fields[ref.Field] = id
	}

	pctx := ctx
	if c.persistTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, c.persistTimeout)
		defer cancel()
	}
	persistedID, err := c.persister.Persist(pctx, rec.ResourceType, fields)
	if err != nil {
		if ctx.Err() != nil {
			// The wave was cancelled, not the persist call timed out.
			s.cancelled = true
			return s
		}
		s.errs = append(s.errs, ir.NewPersistenceError(rec.OriginalID, err))
		return s
	}
	if persistedID == "" {
		s.errs = append(s.errs, ir.NewPersistenceError(rec.OriginalID, fmt.Errorf("persister returned an empty id")))
		return s
	}

	c.ids.Set(rec.OriginalID, persistedID)
	s.persistedID = persistedID
	return s
}

// uncommittedDependency returns the field of the first reference whose
// intra-batch target has not committed.
func (c *committer) uncommittedDependency(i int) (string, bool) {
	rec := c.plan.Records[i]
	for _, ref := range rec.References {
		if ref.BatchID == "" || !c.plan.Graph.Contains(ref.BatchID) {
			continue
		}
		if _, ok := c.ids.Get(ref.BatchID); !ok {
			return ref.Field, true
		}
	}
	return "", false
}

// fail marks a record failed. In atomic mode the first failure aborts the batch.
func (c *committer) fail(err *ir.ImportError) {
	c.agg.Failed(err)
	c.logger.Warn("record failed",
		"original_id", err.OriginalID,
		"field", err.Field,
		"stage", err.Stage,
		"code", err.Code,
		"error", err.Message,
	)
	if c.cfg.Mode == ir.ModeAtomic && c.abort == nil {
		c.abort = err
	}
}

// skipReason tells a caller cancellation apart from an atomic abort.
func (c *committer) skipReason(ctx context.Context) string {
	if ctx.Err() != nil {
		return "import cancelled"
	}
	return "batch aborted"
}

// skipRemaining marks every record that is not terminal yet as skipped.
func (c *committer) skipRemaining(reason string) {
	for _, rec := range c.plan.Records {
		if !c.agg.State(rec.OriginalID).Terminal() {
			c.agg.Skipped(ir.NewDependencyAbortedError(rec.OriginalID, "", reason))
		}
	}
}
