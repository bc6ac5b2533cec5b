package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/basicio/internal/ir"
)

// Lookup returns the ids of resources of resourceType whose field equals
// value, in insertion order.
//
// The field "id" matches the resource id itself. Any other field is read
// with json_extract and compared as text, so the number 42 matches "42".
func (s *Store) Lookup(ctx context.Context, resourceType, field, value string) ([]string, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if field == "id" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id FROM resources
			WHERE resource_type = ? AND id = ?
			ORDER BY seq ASC
		`, resourceType, value)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id FROM resources
			WHERE resource_type = ? AND CAST(json_extract(fields, ?) AS TEXT) = ?
			ORDER BY seq ASC
		`, resourceType, jsonPath(field), value)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s.%s: %w", resourceType, field, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan lookup row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lookup rows: %w", err)
	}
	return ids, nil
}

// Persist inserts a resource and returns its new UUIDv7 id.
func (s *Store) Persist(ctx context.Context, resourceType string, fields map[string]any) (string, error) {
	fieldsJSON, err := marshalFields(fields)
	if err != nil {
		return "", fmt.Errorf("persist %s: %w", resourceType, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("persist %s: generate id: %w", resourceType, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO resources (id, resource_type, fields)
		VALUES (?, ?, ?)
	`, id.String(), resourceType, fieldsJSON)
	if err != nil {
		return "", fmt.Errorf("persist %s: %w", resourceType, err)
	}
	return id.String(), nil
}

// Get retrieves one resource. Returns an error wrapping ir.ErrResourceNotFound
// if no resource of resourceType has that id.
func (s *Store) Get(ctx context.Context, resourceType, id string) (ir.Resource, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, resource_type, fields
		FROM resources
		WHERE resource_type = ? AND id = ?
	`, resourceType, id)

	res, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Resource{}, fmt.Errorf("%s %s: %w", resourceType, id, ir.ErrResourceNotFound)
	}
	return res, err
}

// List returns every resource of resourceType in insertion order.
// Returns an empty slice (not nil) if there are none.
func (s *Store) List(ctx context.Context, resourceType string) ([]ir.Resource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, resource_type, fields
		FROM resources
		WHERE resource_type = ?
		ORDER BY seq ASC
	`, resourceType)
	if err != nil {
		return nil, fmt.Errorf("query resources: %w", err)
	}
	defer rows.Close()

	resources := []ir.Resource{}
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resources: %w", err)
	}
	return resources, nil
}

// ResourceTypes returns the distinct resource types present, sorted.
func (s *Store) ResourceTypes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT resource_type FROM resources
		ORDER BY resource_type COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query resource types: %w", err)
	}
	defer rows.Close()

	types := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan resource type: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResource(row scanner) (ir.Resource, error) {
	var (
		res        ir.Resource
		fieldsJSON string
	)
	if err := row.Scan(&res.ID, &res.ResourceType, &fieldsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.Resource{}, err
		}
		return ir.Resource{}, fmt.Errorf("scan resource: %w", err)
	}
	fields, err := unmarshalFields(fieldsJSON)
	if err != nil {
		return ir.Resource{}, fmt.Errorf("resource %s: %w", res.ID, err)
	}
	res.Fields = fields
	return res, nil
}

// jsonPath quotes field as a single JSON path member so dots and brackets
// in field names are not interpreted.
func jsonPath(field string) string {
	return `$."` + strings.ReplaceAll(field, `"`, `\"`) + `"`
}
