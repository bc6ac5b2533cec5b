package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/basicio/internal/ir"
)

// marshalFields converts a field map to canonical JSON TEXT for storage.
func marshalFields(fields map[string]any) (string, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	data, err := ir.MarshalCanonical(fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(data), nil
}

// unmarshalFields parses stored JSON TEXT. Numbers decode as json.Number
// to avoid float64 precision loss for values > 2^53.
func unmarshalFields(data string) (map[string]any, error) {
	fields := map[string]any{}
	if data == "" || data == "{}" {
		return fields, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return fields, nil
}

// marshalReport converts a report to canonical JSON TEXT so identical
// reports are stored byte-identically.
func marshalReport(r *ir.Report) (string, error) {
	data, err := ir.MarshalCanonical(r)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	return string(data), nil
}

func unmarshalReport(data string) (*ir.Report, error) {
	var r ir.Report
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &r, nil
}
