package engine

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDMap_SetOnce(t *testing.T) {
	m := NewIDMap()
	assert.True(t, m.Set("a", "1"))
	assert.False(t, m.Set("a", "2"))

	id, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", id)

	_, ok = m.Get("b")
	assert.False(t, ok)
}

func TestIDMap_ConcurrentWriters(t *testing.T) {
	m := NewIDMap()
	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Set(fmt.Sprintf("r%d", i), fmt.Sprintf("p%d", i))
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, m.Len())
	snap := m.Snapshot()
	assert.Equal(t, "p42", snap["r42"])

	snap["r42"] = "changed"
	id, _ := m.Get("r42")
	assert.Equal(t, "p42", id, "snapshot is a copy")
}
