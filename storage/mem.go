package storage

import (
	"bytes"
	"sort"
	"sync"
)

// Mem is a transient in-memory Storage intended for tests. It also serves as
// the in-memory index of the File backend.
type Mem struct {
	mu     sync.RWMutex
	scopes map[string]*memScope
	closed bool
}

type memScope struct {
	items []memItem
}

type memItem struct {
	key   []byte
	value []byte
}

func NewMem() *Mem {
	return &Mem{scopes: make(map[string]*memScope)}
}

func (m *Mem) Get(scope string, key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	sc := m.scopes[scope]
	if sc == nil {
		return nil, ErrNotFound
	}
	i, ok := sc.find(key)
	if !ok {
		return nil, ErrNotFound
	}
	return clone(sc.items[i].value), nil
}

func (m *Mem) Set(scope string, key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.setLocked(scope, clone(key), clone(value))
	return nil
}

// setLocked takes ownership of key and value.
func (m *Mem) setLocked(scope string, key, value []byte) {
	if value == nil {
		value = []byte{}
	}
	sc := m.scopes[scope]
	if sc == nil {
		sc = &memScope{}
		m.scopes[scope] = sc
	}
	i, ok := sc.find(key)
	if ok {
		sc.items[i].value = value
		return
	}
	sc.items = append(sc.items, memItem{})
	copy(sc.items[i+1:], sc.items[i:])
	sc.items[i] = memItem{key: key, value: value}
}

func (m *Mem) Remove(scope string, key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.removeLocked(scope, key)
	return nil
}

func (m *Mem) removeLocked(scope string, key []byte) {
	sc := m.scopes[scope]
	if sc == nil {
		return
	}
	if i, ok := sc.find(key); ok {
		sc.items = append(sc.items[:i], sc.items[i+1:]...)
	}
	if len(sc.items) == 0 {
		delete(m.scopes, scope)
	}
}

// Scan iterates over a snapshot of the scope, so f may modify the storage.
func (m *Mem) Scan(scope string, f func(key, value []byte) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	var items []memItem
	if sc := m.scopes[scope]; sc != nil {
		items = append(items, sc.items...)
	}
	m.mu.RUnlock()

	for _, it := range items {
		if err := f(it.key, it.value); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of keys in the scope.
func (m *Mem) Len(scope string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sc := m.scopes[scope]; sc != nil {
		return len(sc.items)
	}
	return 0
}

func (m *Mem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.scopes = nil
	return nil
}

func (sc *memScope) find(key []byte) (idx int, ok bool) {
	items := sc.items
	i := sort.Search(len(items), func(i int) bool {
		return bytes.Compare(items[i].key, key) >= 0
	})
	return i, i < len(items) && bytes.Equal(items[i].key, key)
}
