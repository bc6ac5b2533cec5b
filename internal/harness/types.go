package harness

import (
	"github.com/roach88/basicio/internal/ir"
)

// CommitEvent is one successful persistence call, in commit order.
type CommitEvent struct {
	Seq          int64          `json:"seq"`
	ResourceType string         `json:"resource_type"`
	ID           string         `json:"id"`
	Fields       map[string]any `json:"fields"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	// Report is the import report.
	Report *ir.Report `json:"report"`

	// Commits lists the persisted resources in commit order.
	Commits []CommitEvent `json:"commits"`

	// Errors contains assertion failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result for report.
func NewResult(report *ir.Report) *Result {
	return &Result{
		Pass:    true,
		Report:  report,
		Commits: []CommitEvent{},
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddCommit appends to the commit log.
func (r *Result) AddCommit(c CommitEvent) {
	r.Commits = append(r.Commits, c)
}

// CommitFor returns the commit of the record with originalID.
func (r *Result) CommitFor(originalID string) (CommitEvent, bool) {
	if r.Report == nil {
		return CommitEvent{}, false
	}
	id, ok := r.Report.IDMapping[originalID]
	if !ok {
		return CommitEvent{}, false
	}
	for _, c := range r.Commits {
		if c.ID == id {
			return c, true
		}
	}
	return CommitEvent{}, false
}
