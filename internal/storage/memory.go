package storage

import "sync"

// MemoryStore keeps values for the lifetime of the process.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemory creates a store seeded with initial values.
func NewMemory(initial map[string]string) *MemoryStore {
	values := make(map[string]string, len(initial))
	for key, value := range initial {
		values[key] = value
	}
	return &MemoryStore{values: values}
}

// Get returns the stored value for key.
func (store *MemoryStore) Get(key string) (string, bool) {
	store.mu.Lock()
	defer store.mu.Unlock()
	value, ok := store.values[key]
	return value, ok
}

// Set stores value.
func (store *MemoryStore) Set(key, value string) error {
	store.mu.Lock()
	store.values[key] = value
	store.mu.Unlock()
	return nil
}
