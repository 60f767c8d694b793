package account

import (
	"context"
	"fmt"
	"strings"
	"sync"

	id "enroll/pkg/domain"
	"enroll/pkg/platform/sentinel"
)

// InMemoryStore stores accounts in memory for tests/dev.
type InMemoryStore struct {
	mu       sync.RWMutex
	accounts map[id.UserID]Account
}

// NewInMemoryStore constructs an empty in-memory account store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{accounts: make(map[id.UserID]Account)}
}

func (s *InMemoryStore) Create(_ context.Context, acc Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.accounts {
		if strings.EqualFold(existing.Email, acc.Email) {
			return fmt.Errorf("email %s taken: %w", acc.Email, sentinel.ErrConflict)
		}
		if acc.PhoneLocalNumber != "" &&
			existing.PhoneCountryCode == acc.PhoneCountryCode &&
			existing.PhoneLocalNumber == acc.PhoneLocalNumber {
			return fmt.Errorf("phone +%s%s taken: %w", acc.PhoneCountryCode, acc.PhoneLocalNumber, sentinel.ErrConflict)
		}
	}

	s.accounts[acc.ID] = acc
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, userID id.UserID) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if acc, ok := s.accounts[userID]; ok {
		return acc, nil
	}
	return Account{}, fmt.Errorf("account %s: %w", userID, sentinel.ErrNotFound)
}

func (s *InMemoryStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, acc := range s.accounts {
		if strings.EqualFold(acc.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

// Clear drops every stored account. Test helper.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = make(map[id.UserID]Account)
}

func (s *InMemoryStore) ExistsByPhone(_ context.Context, dialCode, localNumber string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, acc := range s.accounts {
		if acc.PhoneCountryCode == dialCode && acc.PhoneLocalNumber == localNumber {
			return true, nil
		}
	}
	return false, nil
}
