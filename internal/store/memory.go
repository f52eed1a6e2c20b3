package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/feedsync/internal/common"
)

// MemoryStore keeps published payloads in memory. It is used by tests and
// by local single-node setups. Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	payloads map[string]map[int64][]byte
	latest   map[string]int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payloads: make(map[string]map[int64][]byte),
		latest:   make(map[string]int64),
	}
}

// Fetch returns the payload published at the given address and edition.
func (m *MemoryStore) Fetch(ctx context.Context, address string, edition int64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	editions, ok := m.payloads[address]
	if !ok {
		return nil, fmt.Errorf("%s@%d: %w", address, edition, common.ErrNotFound)
	}
	payload, ok := editions[edition]
	if !ok {
		return nil, fmt.Errorf("%s@%d: %w", address, edition, common.ErrNotFound)
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

// Publish stores the payload under the address and edition.
func (m *MemoryStore) Publish(ctx context.Context, address string, edition int64, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.payloads[address] == nil {
		m.payloads[address] = make(map[int64][]byte)
	}
	stored := make([]byte, len(payload))
	copy(stored, payload)
	m.payloads[address][edition] = stored
	if edition > m.latest[address] {
		m.latest[address] = edition
	}
	return address, nil
}

// LatestEdition returns the highest edition published for the address,
// or 0 when nothing was published yet.
func (m *MemoryStore) LatestEdition(address string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest[address]
}
