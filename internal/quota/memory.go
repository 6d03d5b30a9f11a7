package quota

import (
	"context"
	"sync"
)

type memoryRecord struct {
	count int
	day   string
}

// MemoryStore keeps counters in process memory. Counts are lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*memoryRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*memoryRecord)}
}

func (m *MemoryStore) Get(_ context.Context, userID, day string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rollover(userID, day).count, nil
}

func (m *MemoryStore) Increment(_ context.Context, userID, day string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.rollover(userID, day)
	rec.count++
	return rec.count, nil
}

// rollover must be called with mu held.
func (m *MemoryStore) rollover(userID, day string) *memoryRecord {
	rec, ok := m.records[userID]
	if !ok {
		rec = &memoryRecord{day: day}
		m.records[userID] = rec
	}
	if rec.day < day {
		rec.count = 0
		rec.day = day
	}
	return rec
}
