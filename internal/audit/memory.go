package audit

import (
	"context"
	"sync"
)

// DefaultMemoryCapacity is the number of records a MemoryStore keeps.
const DefaultMemoryCapacity = 1000

// MemoryStore keeps the most recent records in a ring buffer.
type MemoryStore struct {
	mu       sync.Mutex
	records  []Record
	next     int
	full     bool
	capacity int
}

// NewMemoryStore creates a memory store holding up to capacity records.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{records: make([]Record, capacity), capacity: capacity}
}

func (s *MemoryStore) Append(ctx context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[s.next] = r
	s.next = (s.next + 1) % s.capacity
	if s.next == 0 {
		s.full = true
	}
	return nil
}

func (s *MemoryStore) Recent(ctx context.Context, array string, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.next
	if s.full {
		n = s.capacity
	}

	var out []Record
	for i := 1; i <= n; i++ {
		r := s.records[(s.next-i+s.capacity)%s.capacity]
		if array != "" && r.Array != array {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of records held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return s.capacity
	}
	return s.next
}

func (s *MemoryStore) Close() error { return nil }
