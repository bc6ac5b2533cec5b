package ir

import "time"

// Record is the normalized form of one batch entry.
//
// Records are created by the normalizer and never mutated afterwards. The
// committer works on a copy of Fields when it substitutes resolved ids.
type Record struct {
	OriginalID   string         `json:"original_id"`
	ResourceType string         `json:"resource_type"`
	Position     int            `json:"position"` // index in the submitted batch, the scheduler tie-break key
	Fields       map[string]any `json:"fields"`
	References   []Reference    `json:"references,omitempty"`
}

// Reference is a symbolic foreign-key pointer resolved by lookup value.
//
// BatchID is the intra-batch hint. When it names another record of the same
// batch the reference becomes a dependency edge and LookupField/LookupValue
// are ignored; otherwise the external lookup is authoritative.
type Reference struct {
	Field       string `json:"field"`
	TargetType  string `json:"target_type"`
	LookupField string `json:"lookup_field,omitempty"`
	LookupValue string `json:"lookup_value,omitempty"`
	BatchID     string `json:"batch_id,omitempty"`
	Optional    bool   `json:"optional,omitempty"`
}

// HasLookup reports whether the reference carries an external lookup pair.
func (r Reference) HasLookup() bool {
	return r.LookupField != "" && r.LookupValue != ""
}

// Policy decides what happens to a reference that is missing or ambiguous.
type Policy string

const (
	PolicyFail Policy = "fail"
	PolicySkip Policy = "skip"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	switch p {
	case PolicyFail, PolicySkip:
		return true
	}
	return false
}

// Mode is the batch commit policy.
type Mode string

const (
	// ModeAtomic halts the batch on the first record failure.
	ModeAtomic Mode = "atomic"
	// ModeBestEffort keeps committing records that do not depend on a failure.
	ModeBestEffort Mode = "best_effort"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeAtomic, ModeBestEffort:
		return true
	}
	return false
}

// BatchConfig carries the caller-supplied policy matrix for one batch.
type BatchConfig struct {
	OnMissing   Policy `json:"on_missing" yaml:"on_missing"`
	OnAmbiguous Policy `json:"on_ambiguous" yaml:"on_ambiguous"`
	Mode        Mode   `json:"mode" yaml:"mode"`
}

// DefaultBatchConfig fails on unresolved references and commits best-effort.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		OnMissing:   PolicyFail,
		OnAmbiguous: PolicyFail,
		Mode:        ModeBestEffort,
	}
}

// WithDefaults fills unset fields from DefaultBatchConfig.
func (c BatchConfig) WithDefaults() BatchConfig {
	d := DefaultBatchConfig()
	if c.OnMissing == "" {
		c.OnMissing = d.OnMissing
	}
	if c.OnAmbiguous == "" {
		c.OnAmbiguous = d.OnAmbiguous
	}
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	return c
}

// ResolutionStatus is the result class of one resolution attempt.
type ResolutionStatus string

const (
	StatusResolved  ResolutionStatus = "resolved"
	StatusAmbiguous ResolutionStatus = "ambiguous"
	StatusMissing   ResolutionStatus = "missing"
)

// LookupFailure distinguishes infrastructure failures from data absence.
type LookupFailure string

const (
	FailureNone        LookupFailure = ""
	FailureTimeout     LookupFailure = "timeout"
	FailureUnavailable LookupFailure = "unavailable"
)

// Outcome is produced once per reference per resolution attempt.
type Outcome struct {
	Status         ResolutionStatus `json:"status"`
	ResolvedID     string           `json:"resolved_id,omitempty"`
	CandidateCount int              `json:"candidate_count"`
	Failure        LookupFailure    `json:"failure,omitempty"`
}

// RecordState tracks a record through the committer.
type RecordState string

const (
	StatePending   RecordState = "pending"
	StateResolving RecordState = "resolving"
	StateReady     RecordState = "ready"
	StateCommitted RecordState = "committed"
	StateFailed    RecordState = "failed"
	StateSkipped   RecordState = "skipped_due_to_abort"
)

// Terminal reports whether no further transition is possible.
func (s RecordState) Terminal() bool {
	return s == StateCommitted || s == StateFailed || s == StateSkipped
}

// Stage names the pipeline step at which something happened.
type Stage string

const (
	StageNormalize Stage = "normalize"
	StagePlan      Stage = "plan"
	StageResolve   Stage = "resolve"
	StageCommit    Stage = "commit"
)

// ResolutionEntry is one line of the append-only resolution log.
type ResolutionEntry struct {
	Seq         int64   `json:"seq"`
	OriginalID  string  `json:"original_id"`
	Field       string  `json:"field"`
	TargetType  string  `json:"target_type"`
	LookupField string  `json:"lookup_field,omitempty"`
	LookupValue string  `json:"lookup_value,omitempty"`
	BatchID     string  `json:"batch_id,omitempty"`
	Stage       Stage   `json:"stage"`
	Outcome     Outcome `json:"outcome"`
}

// RecordResult is the terminal state of one record.
type RecordResult struct {
	OriginalID   string      `json:"original_id"`
	ResourceType string      `json:"resource_type"`
	State        RecordState `json:"state"`
	PersistedID  string      `json:"persisted_id,omitempty"`
	ErrorCode    ErrorCode   `json:"error_code,omitempty"`
}

// Counts summarizes record outcomes. Attempted always equals
// Succeeded + Failed + Skipped.
type Counts struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// ResolutionSummary counts resolution log entries by status.
type ResolutionSummary struct {
	Resolved    int `json:"resolved"`
	Ambiguous   int `json:"ambiguous"`
	Missing     int `json:"missing"`
	TimedOut    int `json:"timed_out"`
	Unavailable int `json:"unavailable"`
}

// Timing records per-phase wall durations.
type Timing struct {
	Normalize time.Duration `json:"normalize"`
	Plan      time.Duration `json:"plan"`
	Resolve   time.Duration `json:"resolve"`
	Commit    time.Duration `json:"commit"`
	Total     time.Duration `json:"total"`
}

// Warning is a non-fatal note attached to a record or the batch.
type Warning struct {
	OriginalID string `json:"original_id,omitempty"`
	Field      string `json:"field,omitempty"`
	Message    string `json:"message"`
}

// BatchOutcome classifies the batch as a whole.
type BatchOutcome string

const (
	// OutcomeSucceeded means every record committed (or the batch was empty).
	OutcomeSucceeded BatchOutcome = "succeeded"
	// OutcomePartial means best-effort mode produced mixed results.
	OutcomePartial BatchOutcome = "partial"
	// OutcomeFailed means no record committed.
	OutcomeFailed BatchOutcome = "failed"
	// OutcomeAborted means atomic mode halted after some records may have committed.
	// Committed records are not rolled back.
	OutcomeAborted BatchOutcome = "aborted"
	// OutcomeRejected means the batch failed validation or planning; nothing ran.
	OutcomeRejected BatchOutcome = "rejected"
)

// Report is the auditable result of one import batch.
type Report struct {
	BatchID           string            `json:"batch_id"`
	BatchDigest       string            `json:"batch_digest,omitempty"`
	Config            BatchConfig       `json:"config"`
	Outcome           BatchOutcome      `json:"outcome"`
	PartialCommit     bool              `json:"partial_commit"` // aborted after at least one record committed
	IDMapping         map[string]string `json:"id_mapping"`
	CommitWaves       [][]string        `json:"commit_waves,omitempty"`
	Records           []RecordResult    `json:"records"`
	Resolutions       []ResolutionEntry `json:"resolutions"`
	ResolutionSummary ResolutionSummary `json:"resolution_summary"`
	Errors            []*ImportError    `json:"errors"`
	Warnings          []Warning         `json:"warnings"`
	Counts            Counts            `json:"counts"`
	Timing            Timing            `json:"timing"`
}

// RecordErrors returns the record-scoped errors for originalID.
func (r *Report) RecordErrors(originalID string) []*ImportError {
	var out []*ImportError
	for _, e := range r.Errors {
		if e.OriginalID == originalID {
			out = append(out, e)
		}
	}
	return out
}

// Resource is a persisted resource as returned by a repository.
type Resource struct {
	ID           string         `json:"id"`
	ResourceType string         `json:"resource_type"`
	Fields       map[string]any `json:"fields"`
}
