// Package pgstore is the PostgreSQL resource repository.
//
// It satisfies the same contract as the SQLite store: resources live in one
// table with a jsonb fields column, and lookups compare fields->>key as text.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/basicio/internal/ir"
)

const schema = `
CREATE TABLE IF NOT EXISTS bio_resources (
    seq           BIGSERIAL PRIMARY KEY,
    id            TEXT  NOT NULL UNIQUE,
    resource_type TEXT  NOT NULL,
    fields        JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bio_resources_type ON bio_resources(resource_type, seq);
`

// PoolOptions tunes the connection pool. Zero values keep pgx defaults.
type PoolOptions struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Store is a Repository backed by a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to url, verifies the connection and ensures the schema.
func Open(ctx context.Context, url string, opts PoolOptions) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool. The caller keeps ownership of the pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close closes the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema creates the resources table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Lookup returns ids of resources whose field equals value, in insertion order.
func (s *Store) Lookup(ctx context.Context, resourceType, field, value string) ([]string, error) {
	query := `SELECT id FROM bio_resources WHERE resource_type = $1 AND fields->>$2::text = $3 ORDER BY seq`
	args := []any{resourceType, field, value}
	if field == "id" {
		query = `SELECT id FROM bio_resources WHERE resource_type = $1 AND id = $2 ORDER BY seq`
		args = []any{resourceType, value}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lookup %s.%s: %w", resourceType, field, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("lookup %s.%s: %w", resourceType, field, err)
	}
	return ids, nil
}

// Persist inserts a resource and returns its new UUIDv7 id.
func (s *Store) Persist(ctx context.Context, resourceType string, fields map[string]any) (string, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	data, err := ir.MarshalCanonical(fields)
	if err != nil {
		return "", fmt.Errorf("persist %s: marshal fields: %w", resourceType, err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("persist %s: generate id: %w", resourceType, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO bio_resources (id, resource_type, fields) VALUES ($1, $2, $3::jsonb)`,
		id.String(), resourceType, string(data),
	)
	if err != nil {
		return "", fmt.Errorf("persist %s: %w", resourceType, err)
	}
	return id.String(), nil
}

// Get returns one resource or an error wrapping ir.ErrResourceNotFound.
func (s *Store) Get(ctx context.Context, resourceType, id string) (ir.Resource, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, resource_type, fields::text FROM bio_resources WHERE resource_type = $1 AND id = $2`,
		resourceType, id,
	)
	res, err := scanResource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ir.Resource{}, fmt.Errorf("%s %s: %w", resourceType, id, ir.ErrResourceNotFound)
	}
	return res, err
}

// List returns every resource of resourceType in insertion order.
func (s *Store) List(ctx context.Context, resourceType string) ([]ir.Resource, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, resource_type, fields::text FROM bio_resources WHERE resource_type = $1 ORDER BY seq`,
		resourceType,
	)
	if err != nil {
		return nil, fmt.Errorf("query resources: %w", err)
	}
	defer rows.Close()

	out := []ir.Resource{}
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resources: %w", err)
	}
	return out, nil
}

func scanResource(row pgx.Row) (ir.Resource, error) {
	var (
		res  ir.Resource
		data string
	)
	if err := row.Scan(&res.ID, &res.ResourceType, &data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ir.Resource{}, err
		}
		return ir.Resource{}, fmt.Errorf("scan resource: %w", err)
	}
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	res.Fields = map[string]any{}
	if err := dec.Decode(&res.Fields); err != nil {
		return ir.Resource{}, fmt.Errorf("resource %s: unmarshal fields: %w", res.ID, err)
	}
	return res, nil
}
