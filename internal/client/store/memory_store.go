package store

import "sync"

// MemoryStore keeps records in process memory. Used by tests and as a
// scratch store for short-lived tooling.
type MemoryStore struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{namespaces: make(map[string]map[string]Record)}
}

func (m *MemoryStore) Get(namespace, key string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.namespaces[namespace][key]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) Put(namespace, key string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.namespaces[namespace]
	if !ok {
		ns = make(map[string]Record)
		m.namespaces[namespace] = ns
	}
	ns[key] = rec
	return nil
}

func (m *MemoryStore) Delete(namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.namespaces[namespace], key)
	return nil
}

func (m *MemoryStore) List(namespace string) (map[string]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Record, len(m.namespaces[namespace]))
	for k, v := range m.namespaces[namespace] {
		out[k] = v
	}
	return out, nil
}
