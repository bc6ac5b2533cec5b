package engine

import (
	"fmt"

	"github.com/roach88/basicio/internal/ir"
)

// ApplyPolicy decides what a resolution outcome means for the record.
//
//   - resolved: value is the resolved id
//   - lookup unavailable: LOOKUP_UNAVAILABLE, whatever the policy
//   - missing (timeouts included) or ambiguous under "fail": a reference error
//   - missing or ambiguous under "skip": value is nil with a warning when the
//     field is optional, a reference error when it is required
//
// A nil err means the field can be set to value.
func ApplyPolicy(cfg ir.BatchConfig, originalID string, ref ir.Reference, out ir.Outcome) (value any, warning string, err *ir.ImportError) {
	if out.Status == ir.StatusResolved {
		return out.ResolvedID, "", nil
	}
	if out.Failure == ir.FailureUnavailable {
		return nil, "", ir.NewReferenceError(originalID, ref, out, "lookup unavailable")
	}

	policy, setting := cfg.OnMissing, "on_missing"
	if out.Status == ir.StatusAmbiguous {
		policy, setting = cfg.OnAmbiguous, "on_ambiguous"
	}

	switch policy {
	case ir.PolicySkip:
		if !ref.Optional {
			return nil, "", ir.NewReferenceError(originalID, ref, out,
				fmt.Sprintf("%s=skip cannot drop required field", setting))
		}
		return nil, fmt.Sprintf("%s %s.%s=%q: field set to null (%s=skip)",
			out.Status, ref.TargetType, ref.LookupField, ref.LookupValue, setting), nil
	default:
		return nil, "", ir.NewReferenceError(originalID, ref, out, setting+"=fail")
	}
}
