package harness

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/basicio/internal/ir"
)

// idPlaceholder matches "${original_id}" in expected stored values.
var idPlaceholder = regexp.MustCompile(`^\$\{([^}]+)\}$`)

// AssertionError is returned when an assertion fails.
// It includes the commit log to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Commits  []CommitEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Commits) > 0 {
		fmt.Fprintf(&buf, "\nCommit log:\n")
		for _, c := range e.Commits {
			fmt.Fprintf(&buf, "  [%d] %s %s %v\n", c.Seq, c.ResourceType, c.ID, c.Fields)
		}
	}
	return buf.String()
}

func assertOutcome(result *Result, a Assertion) error {
	r := result.Report
	if r.Outcome != a.Outcome {
		return &AssertionError{
			Type:     AssertOutcome,
			Expected: string(a.Outcome),
			Actual:   fmt.Sprintf("%s (errors: %s)", r.Outcome, describeErrors(r.Errors)),
			Commits:  result.Commits,
		}
	}
	if a.PartialCommit != nil && r.PartialCommit != *a.PartialCommit {
		return &AssertionError{
			Type:     AssertOutcome,
			Expected: fmt.Sprintf("partial_commit=%t", *a.PartialCommit),
			Actual:   fmt.Sprintf("partial_commit=%t", r.PartialCommit),
			Commits:  result.Commits,
		}
	}
	return nil
}

func assertCounts(result *Result, a Assertion) error {
	if got := result.Report.Counts; got != *a.Counts {
		return &AssertionError{
			Type:     AssertCounts,
			Expected: fmt.Sprintf("%+v", *a.Counts),
			Actual:   fmt.Sprintf("%+v", got),
		}
	}
	return nil
}

func assertRecord(result *Result, a Assertion) error {
	for _, rr := range result.Report.Records {
		if rr.OriginalID != a.OriginalID {
			continue
		}
		if rr.State != a.State || (a.Code != "" && rr.ErrorCode != a.Code) {
			return &AssertionError{
				Type:     AssertRecord,
				Expected: fmt.Sprintf("%s in state %s %s", a.OriginalID, a.State, a.Code),
				Actual:   fmt.Sprintf("state %s %s", rr.State, rr.ErrorCode),
			}
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertRecord,
		Expected: fmt.Sprintf("record %s in the report", a.OriginalID),
		Actual:   "not found",
	}
}

// assertCommitOrder checks that the listed records committed in this order.
// Records need not be consecutive in the commit log.
func assertCommitOrder(result *Result, a Assertion) error {
	positions := make(map[string]int)
	for _, id := range a.Order {
		c, ok := result.CommitFor(id)
		if !ok {
			return &AssertionError{
				Type:     AssertCommitOrder,
				Expected: fmt.Sprintf("all records committed: %v", a.Order),
				Actual:   fmt.Sprintf("%s not committed", id),
				Commits:  result.Commits,
			}
		}
		positions[id] = int(c.Seq)
	}

	for i := 1; i < len(a.Order); i++ {
		prev, curr := a.Order[i-1], a.Order[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertCommitOrder,
				Expected: fmt.Sprintf("commit order %v", a.Order),
				Actual: fmt.Sprintf("%s (seq %d) should be before %s (seq %d)",
					prev, positions[prev], curr, positions[curr]),
				Commits: result.Commits,
			}
		}
	}
	return nil
}

func assertError(result *Result, a Assertion) error {
	for _, e := range result.Report.Errors {
		if e.Code != a.Code {
			continue
		}
		if a.OriginalID != "" && e.OriginalID != a.OriginalID {
			continue
		}
		if a.Field != "" && e.Field != a.Field {
			continue
		}
		if a.Contains != "" && !strings.Contains(e.Message, a.Contains) {
			continue
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertError,
		Expected: fmt.Sprintf("%s error for %q field %q containing %q", a.Code, a.OriginalID, a.Field, a.Contains),
		Actual:   describeErrors(result.Report.Errors),
	}
}

func assertWarning(result *Result, a Assertion) error {
	for _, w := range result.Report.Warnings {
		if w.OriginalID != a.OriginalID {
			continue
		}
		if a.Field != "" && w.Field != a.Field {
			continue
		}
		if a.Contains != "" && !strings.Contains(w.Message, a.Contains) {
			continue
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertWarning,
		Expected: fmt.Sprintf("warning for %q field %q containing %q", a.OriginalID, a.Field, a.Contains),
		Actual:   fmt.Sprintf("%d warnings", len(result.Report.Warnings)),
	}
}

// assertStored checks the persisted fields of a record (subset match).
func assertStored(result *Result, a Assertion) error {
	c, ok := result.CommitFor(a.OriginalID)
	if !ok {
		return &AssertionError{
			Type:     AssertStored,
			Expected: fmt.Sprintf("%s committed", a.OriginalID),
			Actual:   "not committed",
			Commits:  result.Commits,
		}
	}

	for _, key := range ir.SortedKeys(a.Fields) {
		expected := expandPlaceholder(a.Fields[key], result.Report.IDMapping)
		actual, exists := c.Fields[key]
		if !exists {
			return &AssertionError{
				Type:     AssertStored,
				Expected: fmt.Sprintf("%s.%s to exist", a.OriginalID, key),
				Actual:   fmt.Sprintf("fields %v", c.Fields),
			}
		}
		if !valuesEqual(actual, expected) {
			return &AssertionError{
				Type:     AssertStored,
				Expected: fmt.Sprintf("%s.%s = %v", a.OriginalID, key, expected),
				Actual:   fmt.Sprintf("%s.%s = %v", a.OriginalID, key, actual),
			}
		}
	}
	return nil
}

// expandPlaceholder replaces "${id}" with the persisted id of record id.
// Unknown ids are left as is so the comparison fails visibly.
func expandPlaceholder(v any, ids map[string]string) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	m := idPlaceholder.FindStringSubmatch(s)
	if m == nil {
		return v
	}
	if id, ok := ids[m[1]]; ok {
		return id
	}
	return v
}

// valuesEqual compares two decoded values through their canonical JSON, so
// YAML ints and JSON numbers with the same value are equal.
func valuesEqual(actual, expected any) bool {
	a, errA := ir.MarshalCanonical(actual)
	b, errB := ir.MarshalCanonical(expected)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}

func describeErrors(errs []*ir.ImportError) string {
	if len(errs) == 0 {
		return "none"
	}
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns one message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertOutcome:
			err = assertOutcome(result, assertion)
		case AssertCounts:
			err = assertCounts(result, assertion)
		case AssertRecord:
			err = assertRecord(result, assertion)
		case AssertCommitOrder:
			err = assertCommitOrder(result, assertion)
		case AssertError:
			err = assertError(result, assertion)
		case AssertWarning:
			err = assertWarning(result, assertion)
		case AssertStored:
			err = assertStored(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
