package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/roach88/basicio/internal/ir"
)

// Commit is one successful Persist call, in commit order.
type Commit struct {
	Seq          int64
	ResourceType string
	ID           string
	Fields       map[string]any
}

type persistFault struct {
	resourceType string
	field        string
	value        string
	err          error
}

// MemRepo is an in-memory repository with fault injection.
//
// Persisted ids are "<resource_type>-<n>", n counting per type from 1.
// Lookups match the "id" field against resource ids and any other field
// against the stringified field value.
//
// Thread-safety: all methods are safe for concurrent use.
type MemRepo struct {
	mu        sync.Mutex
	clock     *DeterministicClock
	counters  map[string]int
	resources map[string][]ir.Resource
	commits   []Commit

	persistFaults []persistFault
	lookupFaults  map[string]error
	lookupDelay   time.Duration
	persistDelay  time.Duration
	lookupCalls   int
}

// NewMemRepo creates an empty repository.
func NewMemRepo() *MemRepo {
	return &MemRepo{
		clock:        NewDeterministicClock(),
		counters:     make(map[string]int),
		resources:    make(map[string][]ir.Resource),
		lookupFaults: make(map[string]error),
	}
}

// Seed inserts a resource with a chosen id. It is not recorded as a commit.
func (m *MemRepo) Seed(resourceType, id string, fields map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources[resourceType] = append(m.resources[resourceType], ir.Resource{
		ID:           id,
		ResourceType: resourceType,
		Fields:       maps.Clone(fields),
	})
}

// FailPersistWhen makes Persist return err for resources of resourceType
// whose field stringifies to value.
func (m *MemRepo) FailPersistWhen(resourceType, field, value string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persistFaults = append(m.persistFaults, persistFault{resourceType, field, value, err})
}

// FailLookup makes every lookup of resourceType return err.
func (m *MemRepo) FailLookup(resourceType string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookupFaults[resourceType] = err
}

// SetLookupDelay delays every lookup. A delay longer than the engine's
// lookup timeout produces timeouts.
func (m *MemRepo) SetLookupDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookupDelay = d
}

// SetPersistDelay delays every Persist call.
func (m *MemRepo) SetPersistDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persistDelay = d
}

// Lookup implements engine.Lookup.
func (m *MemRepo) Lookup(ctx context.Context, resourceType, field, value string) ([]string, error) {
	m.mu.Lock()
	delay := m.lookupDelay
	fault := m.lookupFaults[resourceType]
	m.lookupCalls++
	m.mu.Unlock()

	if err := sleep(ctx, delay); err != nil {
		return nil, err
	}
	if fault != nil {
		return nil, fault
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, r := range m.resources[resourceType] {
		if field == "id" {
			if r.ID == value {
				ids = append(ids, r.ID)
			}
			continue
		}
		if s, ok := Stringify(r.Fields[field]); ok && s == value {
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}

// Persist implements engine.Persister.
func (m *MemRepo) Persist(ctx context.Context, resourceType string, fields map[string]any) (string, error) {
	m.mu.Lock()
	delay := m.persistDelay
	faults := slices.Clone(m.persistFaults)
	m.mu.Unlock()

	if err := sleep(ctx, delay); err != nil {
		return "", err
	}
	for _, f := range faults {
		if f.resourceType != resourceType {
			continue
		}
		if s, ok := Stringify(fields[f.field]); ok && s == f.value {
			return "", f.err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[resourceType]++
	id := fmt.Sprintf("%s-%d", resourceType, m.counters[resourceType])
	stored := maps.Clone(fields)
	m.resources[resourceType] = append(m.resources[resourceType], ir.Resource{
		ID:           id,
		ResourceType: resourceType,
		Fields:       stored,
	})
	m.commits = append(m.commits, Commit{
		Seq:          m.clock.Next(),
		ResourceType: resourceType,
		ID:           id,
		Fields:       maps.Clone(stored),
	})
	return id, nil
}

// Get implements engine.Repository.
func (m *MemRepo) Get(_ context.Context, resourceType, id string) (ir.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.resources[resourceType] {
		if r.ID == id {
			r.Fields = maps.Clone(r.Fields)
			return r, nil
		}
	}
	return ir.Resource{}, fmt.Errorf("%s %s: %w", resourceType, id, ir.ErrResourceNotFound)
}

// List implements engine.Repository.
func (m *MemRepo) List(_ context.Context, resourceType string) ([]ir.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ir.Resource, len(m.resources[resourceType]))
	for i, r := range m.resources[resourceType] {
		r.Fields = maps.Clone(r.Fields)
		out[i] = r
	}
	return out, nil
}

// Commits returns the successful Persist calls in commit order.
func (m *MemRepo) Commits() []Commit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.commits)
}

// LookupCalls returns how many lookups reached the repository.
func (m *MemRepo) LookupCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookupCalls
}

// Stringify renders a scalar field value the way lookups compare it.
func Stringify(v any) (string, bool) {
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
	case bool:
		return strconv.FormatBool(val), true
	default:
		return "", false
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
