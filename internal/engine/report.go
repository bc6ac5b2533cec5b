package engine

import (
	"slices"
	"sync"
	"time"

	"github.com/roach88/basicio/internal/ir"
)

// Aggregator accumulates the import report of one batch.
//
// It only collects what the other stages hand it and never re-derives
// anything, apart from the counts and the batch outcome computed in Report.
// The engine feeds it from the scheduler goroutine, in input-position order
// after each wave barrier, so two runs over identical input produce identical
// reports (timing aside).
//
// Thread-safety: all methods are safe for concurrent use.
type Aggregator struct {
	mu       sync.Mutex
	clock    *Clock
	ids      *IDMap
	report   ir.Report
	index    map[string]int
	rejected bool
}

// NewAggregator starts the report for batchID. ids is the batch's id table;
// Report reads the id mapping from it.
func NewAggregator(batchID string, cfg ir.BatchConfig, ids *IDMap) *Aggregator {
	return &Aggregator{
		clock: NewClock(),
		ids:   ids,
		index: make(map[string]int),
		report: ir.Report{
			BatchID:     batchID,
			Config:      cfg,
			Records:     []ir.RecordResult{},
			Resolutions: []ir.ResolutionEntry{},
			Errors:      []*ir.ImportError{},
			Warnings:    []ir.Warning{},
		},
	}
}

// SetDigest records the batch content digest.
func (a *Aggregator) SetDigest(digest string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.report.BatchDigest = digest
}

// SetWaves records the scheduler's commit waves.
func (a *Aggregator) SetWaves(waves [][]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.report.CommitWaves = waves
}

// AddRecords registers records as pending, in the given order.
func (a *Aggregator) AddRecords(records []ir.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range records {
		a.index[r.OriginalID] = len(a.report.Records)
		a.report.Records = append(a.report.Records, ir.RecordResult{
			OriginalID:   r.OriginalID,
			ResourceType: r.ResourceType,
			State:        ir.StatePending,
		})
	}
}

// Transition moves a record to a non-terminal state.
// Terminal records are left alone.
func (a *Aggregator) Transition(originalID string, state ir.RecordState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if rr := a.record(originalID); rr != nil && !rr.State.Terminal() {
		rr.State = state
	}
}

// State returns the current state of a record.
func (a *Aggregator) State(originalID string) ir.RecordState {
	a.mu.Lock()
	defer a.mu.Unlock()
	if rr := a.record(originalID); rr != nil {
		return rr.State
	}
	return ""
}

// LogResolution appends one entry to the resolution log.
func (a *Aggregator) LogResolution(originalID string, ref ir.Reference, stage ir.Stage, out ir.Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.report.Resolutions = append(a.report.Resolutions, ir.ResolutionEntry{
		Seq:         a.clock.Next(),
		OriginalID:  originalID,
		Field:       ref.Field,
		TargetType:  ref.TargetType,
		LookupField: ref.LookupField,
		LookupValue: ref.LookupValue,
		BatchID:     ref.BatchID,
		Stage:       stage,
		Outcome:     out,
	})

	s := &a.report.ResolutionSummary
	switch {
	case out.Failure == ir.FailureTimeout:
		s.TimedOut++
	case out.Failure == ir.FailureUnavailable:
		s.Unavailable++
	case out.Status == ir.StatusResolved:
		s.Resolved++
	case out.Status == ir.StatusAmbiguous:
		s.Ambiguous++
	default:
		s.Missing++
	}
}

// AddWarning appends a non-fatal warning.
func (a *Aggregator) AddWarning(w ir.Warning) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.report.Warnings = append(a.report.Warnings, w)
}

// Committed marks a record committed with its persisted id.
func (a *Aggregator) Committed(originalID, persistedID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if rr := a.record(originalID); rr != nil {
		rr.State = ir.StateCommitted
		rr.PersistedID = persistedID
	}
}

// Failed marks the error's record failed and records the error.
func (a *Aggregator) Failed(err *ir.ImportError) {
	a.terminate(err, ir.StateFailed)
}

// Skipped marks the error's record skipped_due_to_abort and records the error.
func (a *Aggregator) Skipped(err *ir.ImportError) {
	a.terminate(err, ir.StateSkipped)
}

func (a *Aggregator) terminate(err *ir.ImportError, state ir.RecordState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.report.Errors = append(a.report.Errors, err)
	if rr := a.record(err.OriginalID); rr != nil && !rr.State.Terminal() {
		rr.State = state
		rr.ErrorCode = err.Code
	}
}

// Reject records a batch-fatal error raised before any record ran.
func (a *Aggregator) Reject(err *ir.ImportError) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejected = true
	a.report.Errors = append(a.report.Errors, err)
}

// SetTiming records the wall duration of a stage.
func (a *Aggregator) SetTiming(stage ir.Stage, d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch stage {
	case ir.StageNormalize:
		a.report.Timing.Normalize = d
	case ir.StagePlan:
		a.report.Timing.Plan = d
	case ir.StageResolve:
		a.report.Timing.Resolve = d
	case ir.StageCommit:
		a.report.Timing.Commit = d
	}
}

// SetTotal records the wall duration of the whole import.
func (a *Aggregator) SetTotal(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.report.Timing.Total = d
}

// Report returns a snapshot of the report with counts and outcome filled in.
func (a *Aggregator) Report() *ir.Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := a.report
	r.Records = slices.Clone(a.report.Records)
	r.Resolutions = slices.Clone(a.report.Resolutions)
	r.Errors = slices.Clone(a.report.Errors)
	r.Warnings = slices.Clone(a.report.Warnings)
	r.IDMapping = a.ids.Snapshot()

	r.Counts = ir.Counts{Attempted: len(r.Records)}
	for _, rr := range r.Records {
		switch rr.State {
		case ir.StateCommitted:
			r.Counts.Succeeded++
		case ir.StateFailed:
			r.Counts.Failed++
		case ir.StateSkipped:
			r.Counts.Skipped++
		}
	}

	c := r.Counts
	switch {
	case a.rejected:
		r.Outcome = ir.OutcomeRejected
	case c.Failed == 0 && c.Skipped == 0:
		r.Outcome = ir.OutcomeSucceeded
	case r.Config.Mode == ir.ModeAtomic:
		r.Outcome = ir.OutcomeAborted
		r.PartialCommit = c.Succeeded > 0
	case c.Succeeded == 0:
		r.Outcome = ir.OutcomeFailed
	default:
		r.Outcome = ir.OutcomePartial
	}
	return &r
}

// record returns the mutable result for originalID. Caller holds a.mu.
func (a *Aggregator) record(originalID string) *ir.RecordResult {
	i, ok := a.index[originalID]
	if !ok {
		return nil
	}
	return &a.report.Records[i]
}
