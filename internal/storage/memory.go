package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryDB implements Store using an in-memory map.
//
// Transactions are optimistic: each key remembers the commit sequence that
// last modified it, and a transaction fails with ErrConflict as soon as it
// observes (or at commit finds) a key modified after the transaction began.
type MemoryDB struct {
	mu       sync.RWMutex
	data     map[string][]byte
	versions map[string]uint64 // survives deletes so absent keys are tracked too
	seq      uint64
}

// NewMemory creates a new in-memory database.
func NewMemory() *MemoryDB {
	return &MemoryDB{
		data:     make(map[string][]byte),
		versions: make(map[string]uint64),
	}
}

// Get retrieves a value by key.
func (m *MemoryDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

// Put stores a key-value pair.
func (m *MemoryDB) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.data[string(key)] = clone(value)
	m.versions[string(key)] = m.seq
	return nil
}

// Delete removes a key.
func (m *MemoryDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	delete(m.data, string(key))
	m.versions[string(key)] = m.seq
	return nil
}

// Has checks if a key exists.
func (m *MemoryDB) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[string(key)]
	return ok, nil
}

// ForEach iterates over all keys with the given prefix in key order.
func (m *MemoryDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	m.mu.RLock()
	keys := m.sortedKeys(string(prefix))
	vals := make([][]byte, len(keys))
	for i, k := range keys {
		vals[i] = clone(m.data[k])
	}
	m.mu.RUnlock()

	for i, k := range keys {
		if err := fn([]byte(k), vals[i]); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (m *MemoryDB) Close() error {
	return nil
}

// Update runs fn in a read-write transaction.
func (m *MemoryDB) Update(ctx context.Context, fn func(txn Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := m.begin(false)
	if err := fn(txn); err != nil {
		return err
	}
	return txn.commit()
}

// View runs fn in a read-only transaction.
func (m *MemoryDB) View(ctx context.Context, fn func(txn Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(m.begin(true))
}

// sortedKeys must be called with mu held.
func (m *MemoryDB) sortedKeys(prefix string) []string {
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// begin starts a transaction. A read-only transaction reads from a copy
// of the data taken here, so a View sees a single commit point like the
// Badger and Postgres backends do. Stored values are never modified in
// place, so copying the map is enough.
func (m *MemoryDB) begin(readOnly bool) *memTxn {
	m.mu.RLock()
	start := m.seq
	db := m
	if readOnly {
		db = &MemoryDB{data: make(map[string][]byte, len(m.data)), seq: start}
		for k, v := range m.data {
			db.data[k] = v
		}
	}
	m.mu.RUnlock()
	return &memTxn{
		db:       db,
		start:    start,
		readOnly: readOnly,
		reads:    make(map[string]struct{}),
		writes:   make(map[string][]byte),
	}
}

type memTxn struct {
	db       *MemoryDB
	start    uint64
	readOnly bool
	reads    map[string]struct{}
	prefixes []string
	writes   map[string][]byte // nil value means delete
}

// stale must be called with db.mu held. Read-only transactions never
// commit, so they are never stale.
func (t *memTxn) stale(key string) bool {
	return !t.readOnly && t.db.versions[key] > t.start
}

func (t *memTxn) Get(key []byte) ([]byte, error) {
	k := string(key)
	if v, ok := t.writes[k]; ok {
		if v == nil {
			return nil, ErrNotFound
		}
		return clone(v), nil
	}
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()
	if t.stale(k) {
		return nil, ErrConflict
	}
	t.reads[k] = struct{}{}
	v, ok := t.db.data[k]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

func (t *memTxn) Has(key []byte) (bool, error) {
	_, err := t.Get(key)
	switch err {
	case nil:
		return true, nil
	case ErrNotFound:
		return false, nil
	default:
		return false, err
	}
}

func (t *memTxn) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	p := string(prefix)

	t.db.mu.RLock()
	for k := range t.db.versions {
		if strings.HasPrefix(k, p) && t.stale(k) {
			t.db.mu.RUnlock()
			return ErrConflict
		}
	}
	merged := make(map[string][]byte)
	for _, k := range t.db.sortedKeys(p) {
		merged[k] = clone(t.db.data[k])
	}
	t.db.mu.RUnlock()
	t.prefixes = append(t.prefixes, p)

	for k, v := range t.writes {
		if !strings.HasPrefix(k, p) {
			continue
		}
		if v == nil {
			delete(merged, k)
		} else {
			merged[k] = clone(v)
		}
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), merged[k]); err != nil {
			return err
		}
	}
	return nil
}

func (t *memTxn) Put(key, value []byte) error {
	if t.readOnly {
		return ErrReadOnly
	}
	if value == nil {
		value = []byte{}
	}
	t.writes[string(key)] = clone(value)
	return nil
}

func (t *memTxn) Delete(key []byte) error {
	if t.readOnly {
		return ErrReadOnly
	}
	t.writes[string(key)] = nil
	return nil
}

func (t *memTxn) commit() error {
	if len(t.writes) == 0 {
		return nil
	}
	m := t.db
	m.mu.Lock()
	defer m.mu.Unlock()

	for k := range t.reads {
		if t.stale(k) {
			return ErrConflict
		}
	}
	for _, p := range t.prefixes {
		for k, ver := range m.versions {
			if ver > t.start && strings.HasPrefix(k, p) {
				return ErrConflict
			}
		}
	}

	m.seq++
	for k, v := range t.writes {
		if v == nil {
			delete(m.data, k)
		} else {
			m.data[k] = v
		}
		m.versions[k] = m.seq
	}
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
