package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"syntax-engine/internal/domain"
	"syntax-engine/internal/storage"
)

// TradingStateStore is an in-memory implementation of storage.TradingStateStore.
type TradingStateStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TradingState // keyed by user_email
}

// NewTradingStateStore creates a new in-memory trading state store.
func NewTradingStateStore() *TradingStateStore {
	return &TradingStateStore{
		data: make(map[string]*domain.TradingState),
	}
}

// ListActive retrieves all trading states with status = active.
func (s *TradingStateStore) ListActive(_ context.Context) ([]*domain.TradingState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradingState
	for _, st := range s.data {
		if st.Status == domain.TradingActive {
			result = append(result, copyTradingState(st))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UserEmail < result[j].UserEmail
	})
	return result, nil
}

// Get retrieves the trading state for email. Returns ErrNotFound if not exists.
func (s *TradingStateStore) Get(_ context.Context, email string) (*domain.TradingState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.data[email]
	if !exists {
		return nil, storage.ErrNotFound
	}

	return copyTradingState(st), nil
}

// UpsertMetrics writes broker-observed metrics, creating the row active when
// absent and clearing a previous error marker.
func (s *TradingStateStore) UpsertMetrics(_ context.Context, st *domain.TradingState) error {
	if st == nil || st.UserEmail == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copyTradingState(st)
	if prev, exists := s.data[st.UserEmail]; exists {
		if prev.Status == domain.TradingError {
			stored.Status = domain.TradingActive
		} else {
			stored.Status = prev.Status
		}
	} else {
		stored.Status = domain.TradingActive
	}
	s.data[st.UserEmail] = stored
	return nil
}

// MarkCompleted transitions status to completed, conditional on the row
// currently being active.
func (s *TradingStateStore) MarkCompleted(_ context.Context, email string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, exists := s.data[email]
	if !exists {
		return storage.ErrNotFound
	}
	if st.Status != domain.TradingActive {
		return storage.ErrAlreadyDecided
	}

	st.Status = domain.TradingCompleted
	st.UpdatedAt = at
	return nil
}

// MarkError flags a broker sync failure. Completed rows are left untouched.
func (s *TradingStateStore) MarkError(_ context.Context, email string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, exists := s.data[email]
	if !exists {
		s.data[email] = &domain.TradingState{
			UserEmail: email,
			Status:    domain.TradingError,
			UpdatedAt: at,
		}
		return nil
	}
	if st.Status == domain.TradingCompleted {
		return nil
	}

	st.Status = domain.TradingError
	st.UpdatedAt = at
	return nil
}

func copyTradingState(st *domain.TradingState) *domain.TradingState {
	stateCopy := *st
	if st.LastTradeAt != nil {
		t := *st.LastTradeAt
		stateCopy.LastTradeAt = &t
	}
	return &stateCopy
}

// Verify interface compliance at compile time.
var _ storage.TradingStateStore = (*TradingStateStore)(nil)
