package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"account_orchestrator/internal/domain"
)

// AccountRepository is an in-memory implementation of AccountRepository
type AccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
}

// NewAccountRepository creates a new in-memory account repository
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		accounts: make(map[string]*domain.Account),
	}
}

// GetAllActive returns all active accounts
func (r *AccountRepository) GetAllActive(ctx context.Context) ([]*domain.Account, error) {
	return r.collect(func(a *domain.Account) bool { return a.IsActive }), nil
}

// GetAll returns all accounts regardless of status.
func (r *AccountRepository) GetAll(ctx context.Context) ([]*domain.Account, error) {
	return r.collect(func(*domain.Account) bool { return true }), nil
}

// GetByID returns a copy of the account, or nil when absent
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, exists := r.accounts[id]
	if !exists {
		return nil, nil
	}
	clone := *account
	return &clone, nil
}

// GetByUsername returns an account by handle
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, account := range r.accounts {
		if account.Username == username {
			clone := *account
			return &clone, nil
		}
	}
	return nil, nil
}

// UpdateStatus records a status check result
func (r *AccountRepository) UpdateStatus(ctx context.Context, id string, status domain.AccountStatus, checkedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, exists := r.accounts[id]
	if !exists {
		return nil
	}
	account.Status = status
	account.LastCheckedAt = checkedAt
	account.UpdatedAt = time.Now()
	return nil
}

// UpdateShadowBan records a shadow-ban probe result
func (r *AccountRepository) UpdateShadowBan(ctx context.Context, id string, status domain.ShadowBanStatus, checkedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, exists := r.accounts[id]
	if !exists {
		return nil
	}
	account.ShadowBan = status
	account.LastCheckedAt = checkedAt
	account.UpdatedAt = time.Now()
	return nil
}

// Delete removes an account
func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.accounts, id)
	return nil
}

// Save creates or updates an account
func (r *AccountRepository) Save(ctx context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	if account.Status == "" {
		account.Status = domain.AccountStatusUnknown
	}
	if account.ShadowBan == "" {
		account.ShadowBan = domain.ShadowBanUnchecked
	}
	account.UpdatedAt = now

	clone := *account
	r.accounts[account.ID] = &clone
	return nil
}

func (r *AccountRepository) collect(keep func(*domain.Account) bool) []*domain.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var accounts []*domain.Account
	for _, account := range r.accounts {
		if keep(account) {
			clone := *account
			accounts = append(accounts, &clone)
		}
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
	return accounts
}
