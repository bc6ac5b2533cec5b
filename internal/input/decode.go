// Package input decodes import batches from JSON or CSV and encodes exported
// entries back into the same formats.
package input

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Format is a batch file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// referencePrefix marks CSV columns folded into the _references map:
// _references.<field>.<key>.
const referencePrefix = "_references."

// FormatFromName picks a format from a file name or a content type.
// Anything that is not CSV is treated as JSON.
func FormatFromName(name string) Format {
	lower := strings.ToLower(name)
	if filepath.Ext(lower) == ".csv" || strings.Contains(lower, "text/csv") {
		return FormatCSV
	}
	return FormatJSON
}

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unknown format %q (want json or csv)", s)
}

// Decode reads a batch in the given format.
func Decode(r io.Reader, format Format) ([]map[string]any, error) {
	if format == FormatCSV {
		return DecodeCSV(r)
	}
	return DecodeJSON(r)
}

// DecodeJSON reads a JSON array of entry objects. Numbers decode as
// json.Number so large ids keep their digits.
func DecodeJSON(r io.Reader) ([]map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var entries []map[string]any
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode json batch: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("decode json batch: trailing data after array")
	}
	return entries, nil
}

// DecodeCSV reads a header row and one entry per data row.
//
// Empty cells become null. Columns named _references.<field>.<key> are folded
// into a nested _references map; the "optional" key is parsed as a boolean.
func DecodeCSV(r io.Reader) ([]map[string]any, error) {
	cr := csv.NewReader(stripUTF8BOM(bufio.NewReader(r)))
	cr.FieldsPerRecord = -1

	header, err := readHeader(cr)
	if err != nil {
		return nil, err
	}

	entries := []map[string]any{}
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode csv batch: %w", err)
		}
		if len(row) != len(header) {
			return nil, fmt.Errorf("decode csv batch: line %d has %d columns, header has %d", line, len(row), len(header))
		}
		entry, err := csvEntry(header, row)
		if err != nil {
			return nil, fmt.Errorf("decode csv batch: line %d: %w", line, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func csvEntry(header, row []string) (map[string]any, error) {
	entry := make(map[string]any, len(header))
	refs := map[string]any{}

	for i, name := range header {
		cell := row[i]
		if !strings.HasPrefix(name, referencePrefix) {
			if cell == "" {
				entry[name] = nil
			} else {
				entry[name] = cell
			}
			continue
		}

		field, key, ok := strings.Cut(strings.TrimPrefix(name, referencePrefix), ".")
		if !ok || field == "" || key == "" {
			return nil, fmt.Errorf("column %q: want %s<field>.<key>", name, referencePrefix)
		}
		if cell == "" {
			continue
		}
		desc, _ := refs[field].(map[string]any)
		if desc == nil {
			desc = map[string]any{}
			refs[field] = desc
		}
		if key == "optional" {
			b, err := strconv.ParseBool(cell)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", name, err)
			}
			desc[key] = b
			continue
		}
		desc[key] = cell
	}

	if len(refs) > 0 {
		entry["_references"] = refs
	}
	return entry, nil
}

func stripUTF8BOM(r *bufio.Reader) *bufio.Reader {
	b, err := r.Peek(3)
	if err == nil && bytes.Equal(b, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = r.Discard(3)
	}
	return r
}

func readHeader(r *csv.Reader) ([]string, error) {
	h, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode csv batch: missing header")
		}
		return nil, fmt.Errorf("decode csv batch: %w", err)
	}
	seen := make(map[string]bool, len(h))
	for i := range h {
		h[i] = strings.TrimSpace(h[i])
		if !utf8.ValidString(h[i]) {
			return nil, fmt.Errorf("decode csv batch: invalid header encoding")
		}
		if h[i] == "" {
			return nil, fmt.Errorf("decode csv batch: header column %d is empty", i+1)
		}
		if seen[h[i]] {
			return nil, fmt.Errorf("decode csv batch: duplicate header column %q", h[i])
		}
		seen[h[i]] = true
	}
	return h, nil
}
