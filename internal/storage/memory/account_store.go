package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"syntax-engine/internal/domain"
	"syntax-engine/internal/storage"
)

// AccountStore is an in-memory implementation of storage.AccountStore.
type AccountStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Account // keyed by user_email
}

// NewAccountStore creates a new in-memory account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		data: make(map[string]*domain.Account),
	}
}

// GetUnevaluated retrieves the account for email while challenge_status is unset.
func (s *AccountStore) GetUnevaluated(_ context.Context, email string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[email]
	if !exists {
		return nil, storage.ErrNotFound
	}
	if a.ChallengeStatus != nil {
		return nil, storage.ErrAlreadyDecided
	}

	return copyAccount(a), nil
}

// ListActive retrieves all onboarded accounts eligible for broker sync.
func (s *AccountStore) ListActive(_ context.Context) ([]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Account
	for _, a := range s.data {
		if a.IsActive && a.BrokerToken != "" {
			result = append(result, copyAccount(a))
		}
	}

	sortAccounts(result)
	return result, nil
}

// ListByChallengeStatus retrieves all accounts with the given terminal status.
func (s *AccountStore) ListByChallengeStatus(_ context.Context, status domain.ChallengeStatus) ([]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Account
	for _, a := range s.data {
		if a.ChallengeStatus != nil && *a.ChallengeStatus == status {
			result = append(result, copyAccount(a))
		}
	}

	sortAccounts(result)
	return result, nil
}

// SetChallengeStatus commits a terminal decision, conditional on the account
// still being undecided.
func (s *AccountStore) SetChallengeStatus(_ context.Context, email string, status domain.ChallengeStatus, at time.Time) error {
	if !status.Valid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.data[email]
	if !exists {
		return storage.ErrNotFound
	}
	if a.ChallengeStatus != nil {
		return storage.ErrAlreadyDecided
	}

	st := status
	a.ChallengeStatus = &st
	a.UpdatedAt = at
	return nil
}

// SetChallengeParams initializes challenge parameters for an account.
func (s *AccountStore) SetChallengeParams(_ context.Context, email string, start, target, limit decimal.Decimal, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.data[email]
	if !exists {
		return storage.ErrNotFound
	}

	a.StartBalance = start
	a.ProfitTarget = target
	a.MaxDrawdownLimit = limit
	a.UpdatedAt = at
	return nil
}

// Upsert inserts or replaces an account row, preserving an existing terminal
// challenge_status.
func (s *AccountStore) Upsert(_ context.Context, a *domain.Account) error {
	if a == nil || a.UserEmail == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copyAccount(a)
	if prev, exists := s.data[a.UserEmail]; exists && prev.ChallengeStatus != nil {
		stored.ChallengeStatus = prev.ChallengeStatus
	}
	s.data[a.UserEmail] = stored
	return nil
}

func copyAccount(a *domain.Account) *domain.Account {
	accountCopy := *a
	if a.ChallengeStatus != nil {
		status := *a.ChallengeStatus
		accountCopy.ChallengeStatus = &status
	}
	return &accountCopy
}

func sortAccounts(accounts []*domain.Account) {
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].UserEmail < accounts[j].UserEmail
	})
}

// Verify interface compliance at compile time.
var _ storage.AccountStore = (*AccountStore)(nil)
