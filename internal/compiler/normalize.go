package compiler

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/basicio/internal/ir"
)

// Reserved entry keys. They never reach the persisted field map.
const (
	KeyOriginalID   = "_original_id"
	KeyResourceType = "_resource_type"
	KeyReferences   = "_references"

	// keyFallbackID is used as the original id when _original_id is absent.
	keyFallbackID = "id"
)

// NormalizeOptions configures Normalize.
type NormalizeOptions struct {
	// ResourceType applies to entries without _resource_type.
	ResourceType string

	// Profile declares reference and optional fields per resource type. May be nil.
	Profile *ir.Profile

	// AllowEmpty accepts a batch with no entries.
	AllowEmpty bool

	// TreeField names a field that, absent a profile rule or an explicit
	// descriptor, holds the original id of a parent record of the same
	// resource type (tree imports). A parent outside the batch is looked up
	// by id. Empty disables it.
	TreeField string
}

// treeRule is the implicit rule applied to NormalizeOptions.TreeField.
func treeRule(resourceType string) ir.ReferenceRule {
	return ir.ReferenceRule{ResourceType: resourceType, LookupField: "id", SameBatch: true, Optional: true}
}

// Normalize turns decoded entries into records.
//
// It performs no lookups and no ordering. Every failure is a batch-scoped
// *ir.ImportError with code VALIDATION.
//
// Reference descriptors come from two places, in this order of precedence:
//  1. the entry's _references map ({field: {resource_type, lookup_field, lookup_value, original_id, optional}})
//  2. reference rules in the profile for the entry's resource type
//
// Descriptors are ordered by field name.
func Normalize(entries []map[string]any, opts NormalizeOptions) ([]ir.Record, error) {
	if len(entries) == 0 {
		if opts.AllowEmpty {
			return []ir.Record{}, nil
		}
		return nil, ir.NewValidationError(-1, "", "batch is empty")
	}

	records := make([]ir.Record, 0, len(entries))
	seen := make(map[string]int, len(entries))

	for pos, entry := range entries {
		rec, err := normalizeEntry(pos, entry, opts)
		if err != nil {
			return nil, err
		}
		if first, dup := seen[rec.OriginalID]; dup {
			return nil, ir.NewValidationError(pos, rec.OriginalID,
				fmt.Sprintf("duplicate original_id (first used by entry %d)", first))
		}
		seen[rec.OriginalID] = pos
		records = append(records, rec)
	}

	return records, nil
}

func normalizeEntry(pos int, entry map[string]any, opts NormalizeOptions) (ir.Record, error) {
	if entry == nil {
		return ir.Record{}, ir.NewValidationError(pos, "", "entry is null")
	}

	idKey := KeyOriginalID
	rawID, ok := entry[KeyOriginalID]
	if !ok || rawID == nil {
		idKey = keyFallbackID
		rawID, ok = entry[keyFallbackID]
	}
	if !ok || rawID == nil {
		return ir.Record{}, ir.NewValidationError(pos, "", "missing _original_id")
	}
	originalID, err := scalarString(rawID)
	if err != nil {
		return ir.Record{}, ir.NewValidationError(pos, "", fmt.Sprintf("%s: %v", idKey, err))
	}
	originalID = strings.TrimSpace(originalID)
	if originalID == "" {
		return ir.Record{}, ir.NewValidationError(pos, "", idKey+" is empty")
	}

	resourceType := opts.ResourceType
	if raw, ok := entry[KeyResourceType]; ok && raw != nil {
		s, isString := raw.(string)
		if !isString {
			return ir.Record{}, ir.NewValidationError(pos, originalID, "_resource_type must be a string")
		}
		resourceType = strings.TrimSpace(s)
	}
	if resourceType == "" {
		return ir.Record{}, ir.NewValidationError(pos, originalID, "resource type is not set")
	}

	fields := make(map[string]any, len(entry))
	for k, v := range entry {
		switch k {
		case KeyOriginalID, KeyResourceType, KeyReferences:
			continue
		}
		fields[k] = v
	}
	if idKey == keyFallbackID {
		delete(fields, keyFallbackID)
	}

	schema := opts.Profile.Schema(resourceType)
	refs, err := explicitReferences(pos, originalID, entry[KeyReferences], schema)
	if err != nil {
		return ir.Record{}, err
	}
	declared := make(map[string]bool, len(refs))
	for _, r := range refs {
		declared[r.Field] = true
	}
	for _, field := range ir.SortedKeys(schema.References) {
		if declared[field] {
			continue
		}
		ref, ok, err := profileReference(field, schema.References[field], fields[field], schema)
		if err != nil {
			return ir.Record{}, ir.NewValidationError(pos, originalID, err.Error())
		}
		if ok {
			refs = append(refs, ref)
		}
	}
	if tf := opts.TreeField; tf != "" && !declared[tf] {
		if _, ruled := schema.References[tf]; !ruled {
			ref, ok, err := profileReference(tf, treeRule(resourceType), fields[tf], schema)
			if err != nil {
				return ir.Record{}, ir.NewValidationError(pos, originalID, err.Error())
			}
			if ok {
				ref.Optional = true
				refs = append(refs, ref)
			}
		}
	}
	sortReferences(refs)

	return ir.Record{
		OriginalID:   originalID,
		ResourceType: resourceType,
		Position:     pos,
		Fields:       fields,
		References:   refs,
	}, nil
}

// explicitReferences parses the _references map of one entry.
func explicitReferences(pos int, originalID string, raw any, schema ir.ResourceSchema) ([]ir.Reference, error) {
	if raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, ir.NewValidationError(pos, originalID, "_references must be an object")
	}

	refs := make([]ir.Reference, 0, len(m))
	for _, field := range ir.SortedKeys(m) {
		desc, ok := m[field].(map[string]any)
		if !ok {
			return nil, ir.NewValidationError(pos, originalID, fmt.Sprintf("_references.%s must be an object", field))
		}
		ref := ir.Reference{Field: field, Optional: schema.IsOptional(field)}

		var err error
		if ref.TargetType, err = optionalString(desc, "resource_type"); err != nil {
			return nil, ir.NewValidationError(pos, originalID, fmt.Sprintf("_references.%s: %v", field, err))
		}
		if ref.LookupField, err = optionalString(desc, "lookup_field"); err != nil {
			return nil, ir.NewValidationError(pos, originalID, fmt.Sprintf("_references.%s: %v", field, err))
		}
		if ref.LookupValue, err = optionalString(desc, "lookup_value"); err != nil {
			return nil, ir.NewValidationError(pos, originalID, fmt.Sprintf("_references.%s: %v", field, err))
		}
		if ref.BatchID, err = optionalString(desc, "original_id"); err != nil {
			return nil, ir.NewValidationError(pos, originalID, fmt.Sprintf("_references.%s: %v", field, err))
		}
		if opt, ok := desc["optional"].(bool); ok && opt {
			ref.Optional = true
		}

		if rule, ok := schema.References[field]; ok {
			if ref.TargetType == "" {
				ref.TargetType = rule.ResourceType
			}
			if ref.LookupField == "" {
				ref.LookupField = rule.LookupField
			}
		}
		if ref.TargetType == "" {
			return nil, ir.NewValidationError(pos, originalID, fmt.Sprintf("_references.%s: resource_type is required", field))
		}
		if !ref.HasLookup() && ref.BatchID == "" {
			return nil, ir.NewValidationError(pos, originalID,
				fmt.Sprintf("_references.%s: needs lookup_field and lookup_value, or original_id", field))
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// profileReference derives a descriptor from a profile rule and the field value.
// An absent or empty value yields no descriptor.
func profileReference(field string, rule ir.ReferenceRule, value any, schema ir.ResourceSchema) (ir.Reference, bool, error) {
	if value == nil {
		return ir.Reference{}, false, nil
	}
	s, err := scalarString(value)
	if err != nil {
		return ir.Reference{}, false, fmt.Errorf("%s: %v", field, err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return ir.Reference{}, false, nil
	}

	ref := ir.Reference{
		Field:       field,
		TargetType:  rule.ResourceType,
		LookupField: rule.LookupField,
		LookupValue: norm.NFC.String(s),
		Optional:    schema.IsOptional(field),
	}
	if rule.SameBatch {
		ref.BatchID = s
	}
	return ref, true, nil
}

func optionalString(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", nil
	}
	s, err := scalarString(v)
	if err != nil {
		return "", fmt.Errorf("%s: %v", key, err)
	}
	s = strings.TrimSpace(s)
	if key == "lookup_value" {
		s = norm.NFC.String(s)
	}
	return s, nil
}

// scalarString renders a decoded JSON scalar as a string.
// Integral numbers are written without a fraction so 42 and "42" match.
func scalarString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case float64:
		if val == math.Trunc(val) && !math.IsInf(val, 0) {
			return strconv.FormatFloat(val, 'f', -1, 64), nil
		}
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case bool:
		return strconv.FormatBool(val), nil
	default:
		return "", fmt.Errorf("must be a string or number, got %T", v)
	}
}

func sortReferences(refs []ir.Reference) {
	slices.SortFunc(refs, func(a, b ir.Reference) int {
		return strings.Compare(a.Field, b.Field)
	})
}
