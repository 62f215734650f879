package fabric

import (
	"sort"
	"sync"
)

// VersionedValue is a world-state value tagged with the block sequence of the
// transaction that last wrote it. Versions drive multi-version concurrency
// validation at commit time.
type VersionedValue struct {
	Value   []byte
	Version uint64
}

// KV pairs a key with its versioned value for range reads
type KV struct {
	Key   string
	Value VersionedValue
}

// Store is a peer's world-state database
type Store interface {
	// Get returns the value for key. The boolean reports existence.
	Get(key string) (VersionedValue, bool, error)
	// GetRange returns all pairs with startKey <= key < endKey in key order
	GetRange(startKey, endKey string) ([]KV, error)
	// Put writes a versioned value
	Put(key string, value VersionedValue) error
	// Delete removes a key. Deleting an absent key is not an error.
	Delete(key string) error
	Close() error
}

// memoryStore keeps world state in a map. It is the default backend and the
// one tests use.
type memoryStore struct {
	mu   sync.RWMutex
	data map[string]VersionedValue
}

// NewMemoryStore returns an empty in-memory world-state store
func NewMemoryStore() Store {
	return &memoryStore{data: make(map[string]VersionedValue)}
}

func (m *memoryStore) Get(key string) (VersionedValue, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vv, ok := m.data[key]
	return vv, ok, nil
}

func (m *memoryStore) GetRange(startKey, endKey string) ([]KV, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var kvs []KV
	for k, vv := range m.data {
		if k >= startKey && (endKey == "" || k < endKey) {
			kvs = append(kvs, KV{Key: k, Value: vv})
		}
	}
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].Key < kvs[j].Key })
	return kvs, nil
}

func (m *memoryStore) Put(key string, value VersionedValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memoryStore) Close() error { return nil }
