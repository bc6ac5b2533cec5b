package engine

import (
	"maps"
	"sync"
)

// IDMap is the append-only original id -> persisted id table of one batch.
//
// It is the only structure commit workers write concurrently. Keys are unique
// original ids, so writers never race on the same key; a plain RWMutex is
// enough.
type IDMap struct {
	mu  sync.RWMutex
	ids map[string]string
}

// NewIDMap creates an empty map.
func NewIDMap() *IDMap {
	return &IDMap{ids: make(map[string]string)}
}

// Set records the persisted id for originalID. It reports false, leaving the
// existing entry untouched, if originalID was already set.
func (m *IDMap) Set(originalID, persistedID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.ids[originalID]; exists {
		return false
	}
	m.ids[originalID] = persistedID
	return true
}

// Get returns the persisted id for originalID.
func (m *IDMap) Get(originalID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.ids[originalID]
	return id, ok
}

// Len returns the number of entries.
func (m *IDMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Snapshot returns a copy of the table.
func (m *IDMap) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.ids)
}
