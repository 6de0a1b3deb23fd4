package store

import (
	"sync"

	"github.com/fortiblox/X1-Chrono/internal/types"
)

// MemoryStore keeps encoded records in maps. It is used by tests and by
// one-shot CLI invocations that do not need persistence.
type MemoryStore struct {
	mu     sync.RWMutex
	seeds  map[types.Fingerprint][]byte
	runs   map[types.Fingerprint][]byte
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		seeds: make(map[types.Fingerprint][]byte),
		runs:  make(map[types.Fingerprint][]byte),
	}
}

func (m *MemoryStore) get(table map[types.Fingerprint][]byte, fp types.Fingerprint, v interface{}) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	data, ok := table[fp]
	if !ok {
		return ErrNotFound
	}
	return decodeRecord(data, v)
}

func (m *MemoryStore) put(table map[types.Fingerprint][]byte, fp types.Fingerprint, v interface{}) error {
	data, err := encodeRecord(v)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	table[fp] = data
	return nil
}

// GetSeed returns the seed record for fp.
func (m *MemoryStore) GetSeed(fp types.Fingerprint) (*SeedRecord, error) {
	rec := &SeedRecord{}
	if err := m.get(m.seeds, fp, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// PutSeed stores a seed record.
func (m *MemoryStore) PutSeed(rec *SeedRecord) error {
	return m.put(m.seeds, rec.Fingerprint, rec)
}

// GetRun returns the run record for fp.
func (m *MemoryStore) GetRun(fp types.Fingerprint) (*RunRecord, error) {
	rec := &RunRecord{}
	if err := m.get(m.runs, fp, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// PutRun stores a run record.
func (m *MemoryStore) PutRun(rec *RunRecord) error {
	return m.put(m.runs, rec.Fingerprint, rec)
}

// Stats returns record counts.
func (m *MemoryStore) Stats() (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	return &Stats{
		Backend: BackendMemory,
		Seeds:   uint64(len(m.seeds)),
		Runs:    uint64(len(m.runs)),
	}, nil
}

// Close releases the maps.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	return nil
}
