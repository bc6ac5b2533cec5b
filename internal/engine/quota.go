package engine

import "github.com/roach88/basicio/internal/ir"

// DefaultMaxBatchSize is the default maximum number of entries per batch.
const DefaultMaxBatchSize = 10000

// BatchQuota enforces the maximum number of entries accepted in one batch.
//
// The check runs before normalization, so an oversized batch is rejected
// without any lookups or persistence.
type BatchQuota struct {
	maxEntries int // 0 or less disables the limit
}

// NewBatchQuota creates a quota with the given limit.
func NewBatchQuota(maxEntries int) *BatchQuota {
	return &BatchQuota{maxEntries: maxEntries}
}

// Check returns a BATCH_TOO_LARGE *ir.ImportError if size exceeds the limit.
func (q *BatchQuota) Check(size int) error {
	if q.maxEntries > 0 && size > q.maxEntries {
		return ir.NewBatchTooLargeError(size, q.maxEntries)
	}
	return nil
}

// Limit returns the configured limit. Used for logging.
func (q *BatchQuota) Limit() int {
	return q.maxEntries
}
