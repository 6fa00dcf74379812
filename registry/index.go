package registry

import (
	"context"
	"sync"

	"github.com/vitwit/databox/types"
)

// MemoryIndex is an in-process Index. Production deployments point the
// discovery endpoints at an external analytics index instead; this one
// backs single-node setups and tests.
type MemoryIndex struct {
	mu       sync.RWMutex
	datasets []types.Dataset
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

func (m *MemoryIndex) Add(ds types.Dataset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets = append(m.datasets, ds)
}

func (m *MemoryIndex) Datasets(_ context.Context) ([]types.Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.Dataset, len(m.datasets))
	copy(out, m.datasets)
	return out, nil
}
