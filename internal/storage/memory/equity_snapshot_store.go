package memory

import (
	"context"
	"sort"
	"sync"

	"syntax-engine/internal/domain"
	"syntax-engine/internal/storage"
)

// EquitySnapshotStore is an in-memory implementation of storage.EquitySnapshotStore.
type EquitySnapshotStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.EquitySnapshot // keyed by user_email
}

// NewEquitySnapshotStore creates a new in-memory equity snapshot store.
func NewEquitySnapshotStore() *EquitySnapshotStore {
	return &EquitySnapshotStore{
		data: make(map[string][]*domain.EquitySnapshot),
	}
}

// Insert appends one snapshot point.
func (s *EquitySnapshotStore) Insert(_ context.Context, p *domain.EquitySnapshot) error {
	if p == nil || p.UserEmail == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pointCopy := *p
	s.data[p.UserEmail] = append(s.data[p.UserEmail], &pointCopy)
	return nil
}

// GetByUserRange retrieves snapshots for email within [start, end] (inclusive).
func (s *EquitySnapshotStore) GetByUserRange(_ context.Context, email string, start, end int64) ([]*domain.EquitySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.EquitySnapshot
	for _, p := range s.data[email] {
		if p.TimestampMs >= start && p.TimestampMs <= end {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.EquitySnapshotStore = (*EquitySnapshotStore)(nil)
