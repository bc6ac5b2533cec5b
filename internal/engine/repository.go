package engine

import (
	"context"

	"github.com/roach88/basicio/internal/ir"
)

// Lookup finds persisted resources by field value.
//
// It returns every matching id; the resolver decides what zero or several
// candidates mean. Implementations must honor ctx cancellation, since the
// resolver enforces lookup timeouts through it.
type Lookup interface {
	Lookup(ctx context.Context, resourceType, field, value string) ([]string, error)
}

// Persister stores one resource and returns its new id.
type Persister interface {
	Persist(ctx context.Context, resourceType string, fields map[string]any) (string, error)
}

// Repository is the full storage contract used by import and export.
// Implemented by store.Store (SQLite), pgstore.Store (PostgreSQL) and
// testutil.MemRepo.
type Repository interface {
	Lookup
	Persister

	// Get returns ir.ErrResourceNotFound (possibly wrapped) for unknown ids.
	Get(ctx context.Context, resourceType, id string) (ir.Resource, error)

	// List returns all resources of a type in insertion order.
	List(ctx context.Context, resourceType string) ([]ir.Resource, error)
}

// ReportLog persists import reports. Implemented by store.Store.
type ReportLog interface {
	SaveReport(ctx context.Context, report *ir.Report) error
}
