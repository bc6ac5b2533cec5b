package input

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/roach88/basicio/internal/ir"
)

// EncodeJSON writes entries as an indented JSON array without HTML escaping.
func EncodeJSON(w io.Writer, entries []map[string]any) error {
	if entries == nil {
		entries = []map[string]any{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

// EncodeCSV writes entries with a header row. _original_id comes first, then
// plain fields, then _references.<field>.<key> columns, each group sorted.
// DecodeCSV reads the output back into equivalent entries, except that every
// non-null value becomes a string.
func EncodeCSV(w io.Writer, entries []map[string]any) error {
	header := csvHeader(entries)
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	row := make([]string, len(header))
	for i, entry := range entries {
		for k, col := range header {
			cell, err := csvCell(entry, col)
			if err != nil {
				return fmt.Errorf("entry %d: %w", i, err)
			}
			row[k] = cell
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvHeader(entries []map[string]any) []string {
	fields := map[string]bool{}
	refCols := map[string]bool{}
	for _, e := range entries {
		for k, v := range e {
			if k != "_references" {
				fields[k] = true
				continue
			}
			refs, _ := v.(map[string]any)
			for field, raw := range refs {
				desc, _ := raw.(map[string]any)
				for key := range desc {
					refCols[referencePrefix+field+"."+key] = true
				}
			}
		}
	}

	header := []string{}
	if fields["_original_id"] {
		header = append(header, "_original_id")
		delete(fields, "_original_id")
	}
	header = append(header, ir.SortedKeys(fields)...)
	header = append(header, ir.SortedKeys(refCols)...)
	return header
}

func csvCell(entry map[string]any, col string) (string, error) {
	var v any
	if rest, ok := strings.CutPrefix(col, referencePrefix); ok {
		field, key, _ := strings.Cut(rest, ".")
		refs, _ := entry["_references"].(map[string]any)
		desc, _ := refs[field].(map[string]any)
		v = desc[key]
	} else {
		v = entry[col]
	}
	return cellString(v)
}

func cellString(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case bool:
		return strconv.FormatBool(val), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	default:
		data, err := ir.MarshalCanonical(val)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}
