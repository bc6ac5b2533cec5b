package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strconv"

	"github.com/roach88/basicio/internal/compiler"
	"github.com/roach88/basicio/internal/ir"
)

// Exporter renders persisted resources as import entries.
type Exporter struct {
	repo   Repository
	logger *slog.Logger
}

// NewExporter creates an exporter over repo.
func NewExporter(repo Repository) *Exporter {
	return &Exporter{repo: repo, logger: slog.Default()}
}

// Export lists every resource of resourceType as an entry keyed by
// _original_id (the persisted id).
//
// With enrich set, each profile reference field whose value is the id of an
// existing target also gets a _references descriptor carrying the target's
// lookup value. Re-importing the output resolves every reference to the same
// target: by original_id when the target is in the re-imported batch, by
// lookup value otherwise.
func (x *Exporter) Export(ctx context.Context, resourceType string, profile *ir.Profile, enrich bool) ([]map[string]any, error) {
	resources, err := x.repo.List(ctx, resourceType)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", resourceType, err)
	}

	schema := profile.Schema(resourceType)
	entries := make([]map[string]any, 0, len(resources))
	for _, res := range resources {
		entry := maps.Clone(res.Fields)
		if entry == nil {
			entry = make(map[string]any)
		}
		entry[compiler.KeyOriginalID] = res.ID

		if enrich && len(schema.References) > 0 {
			refs, err := x.describeReferences(ctx, res, schema)
			if err != nil {
				return nil, err
			}
			if len(refs) > 0 {
				entry[compiler.KeyReferences] = refs
			}
		}
		entries = append(entries, entry)
	}

	x.logger.Debug("export finished", "resource_type", resourceType, "entries", len(entries), "enriched", enrich)
	return entries, nil
}

func (x *Exporter) describeReferences(ctx context.Context, res ir.Resource, schema ir.ResourceSchema) (map[string]any, error) {
	refs := make(map[string]any)
	for _, field := range ir.SortedKeys(schema.References) {
		rule := schema.References[field]
		targetID, ok := stringValue(res.Fields[field])
		if !ok || targetID == "" {
			continue
		}

		target, err := x.repo.Get(ctx, rule.ResourceType, targetID)
		if errors.Is(err, ir.ErrResourceNotFound) {
			// Not an id (or a dangling one): leave the raw value alone.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get %s %s: %w", rule.ResourceType, targetID, err)
		}

		lookupValue := target.ID
		if rule.LookupField != "id" {
			v, ok := stringValue(target.Fields[rule.LookupField])
			if !ok {
				continue
			}
			lookupValue = v
		}
		refs[field] = map[string]any{
			"resource_type": rule.ResourceType,
			"lookup_field":  rule.LookupField,
			"lookup_value":  lookupValue,
			"original_id":   targetID,
		}
	}
	return refs, nil
}

func stringValue(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	default:
		return "", false
	}
}
