package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/roach88/basicio/internal/ir"
)

// StatusFor maps an import result to an HTTP status.
//
//   - 200: every record committed
//   - 207: best-effort batch with mixed results
//   - 400: batch rejected (validation or cycle), or no record committed or
//     atomic abort because a reference was ambiguous or missing under fail
//   - 413: batch larger than the configured limit
//   - 422: no record committed, or atomic abort, for any other record error
//   - 502: no record committed, or atomic abort, with a lookup or persistence outage involved
//   - 503: the request was cancelled mid-import
//
// A persist or lookup timeout arrives wrapped in an *ir.ImportError and is an
// outage, not a cancellation.
func StatusFor(report *ir.Report, err error) int {
	if ir.IsBatchTooLargeError(err) {
		return http.StatusRequestEntityTooLarge
	}
	if ir.CodeOf(err) == "" && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return http.StatusServiceUnavailable
	}
	if report == nil {
		if err != nil {
			return http.StatusInternalServerError
		}
		return http.StatusOK
	}

	switch report.Outcome {
	case ir.OutcomeSucceeded:
		return http.StatusOK
	case ir.OutcomePartial:
		return http.StatusMultiStatus
	case ir.OutcomeRejected:
		return http.StatusBadRequest
	}

	policy := false
	for _, e := range report.Errors {
		switch e.Code {
		case ir.ErrCodePersistence, ir.ErrCodeLookupUnavailable:
			return http.StatusBadGateway
		case ir.ErrCodeAmbiguousReference, ir.ErrCodeMissingReference:
			policy = true
		}
	}
	if policy {
		return http.StatusBadRequest
	}
	return http.StatusUnprocessableEntity
}
