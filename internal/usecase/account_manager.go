package usecase

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"account_orchestrator/internal/domain"
)

// AccountUpdate carries the editable account fields; nil fields are left unchanged.
type AccountUpdate struct {
	Username *string
	Proxy    *string
	IsActive *bool
}

// AccountManager manages the account roster and proxy assignments
type AccountManager struct {
	accountRepo domain.AccountRepository
	proxyRepo   domain.ProxyRepository
}

// NewAccountManager creates a new account manager
func NewAccountManager(accountRepo domain.AccountRepository, proxyRepo domain.ProxyRepository) *AccountManager {
	return &AccountManager{
		accountRepo: accountRepo,
		proxyRepo:   proxyRepo,
	}
}

// CreateAccount registers a new account by handle
func (m *AccountManager) CreateAccount(ctx context.Context, username, proxy string, isActive bool) (*domain.Account, error) {
	username = normalizeUsername(username)
	if username == "" {
		return nil, domain.Validation("username is required")
	}
	if err := validateProxy(proxy); err != nil {
		return nil, err
	}

	existing, err := m.accountRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, domain.DatabaseError("check existing account", err)
	}
	if existing != nil {
		return nil, domain.Validation(fmt.Sprintf("account @%s already exists", username))
	}

	account := &domain.Account{
		Username:  username,
		Proxy:     proxy,
		Status:    domain.AccountStatusUnknown,
		ShadowBan: domain.ShadowBanUnchecked,
		IsActive:  isActive,
	}
	if err := m.accountRepo.Save(ctx, account); err != nil {
		return nil, domain.DatabaseError("save account", err)
	}
	return account, nil
}

// UpdateAccount edits an existing account
func (m *AccountManager) UpdateAccount(ctx context.Context, accountID string, update AccountUpdate) (*domain.Account, error) {
	account, err := m.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if update.Username != nil {
		username := normalizeUsername(*update.Username)
		if username == "" {
			return nil, domain.Validation("username is required")
		}
		if username != account.Username {
			other, err := m.accountRepo.GetByUsername(ctx, username)
			if err != nil {
				return nil, domain.DatabaseError("check existing account", err)
			}
			if other != nil {
				return nil, domain.Validation(fmt.Sprintf("account @%s already exists", username))
			}
		}
		account.Username = username
	}
	if update.Proxy != nil {
		if err := validateProxy(*update.Proxy); err != nil {
			return nil, err
		}
		account.Proxy = *update.Proxy
	}
	if update.IsActive != nil {
		account.IsActive = *update.IsActive
	}

	if err := m.accountRepo.Save(ctx, account); err != nil {
		return nil, domain.DatabaseError("update account", err)
	}
	return account, nil
}

// GetAccount retrieves an account by ID
func (m *AccountManager) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	account, err := m.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, domain.DatabaseError("get account", err)
	}
	if account == nil {
		return nil, domain.NotFound("account", accountID)
	}
	return account, nil
}

// ListAccounts retrieves all accounts, or only active ones
func (m *AccountManager) ListAccounts(ctx context.Context, activeOnly bool) ([]*domain.Account, error) {
	var (
		accounts []*domain.Account
		err      error
	)
	if activeOnly {
		accounts, err = m.accountRepo.GetAllActive(ctx)
	} else {
		accounts, err = m.accountRepo.GetAll(ctx)
	}
	if err != nil {
		return nil, domain.DatabaseError("list accounts", err)
	}
	return accounts, nil
}

// DeleteAccount removes an account and its proxy assignment
func (m *AccountManager) DeleteAccount(ctx context.Context, accountID string) error {
	if _, err := m.GetAccount(ctx, accountID); err != nil {
		return err
	}
	if err := m.proxyRepo.Unassign(ctx, accountID); err != nil {
		return domain.DatabaseError("unassign proxy", err)
	}
	if err := m.accountRepo.Delete(ctx, accountID); err != nil {
		return domain.DatabaseError("delete account", err)
	}
	return nil
}

// SetActive activates or deactivates an account
func (m *AccountManager) SetActive(ctx context.Context, accountID string, active bool) (*domain.Account, error) {
	return m.UpdateAccount(ctx, accountID, AccountUpdate{IsActive: &active})
}

// AssignProxy records a proxy assignment made outside the core. An empty
// proxyURL drops the assignment.
func (m *AccountManager) AssignProxy(ctx context.Context, accountID, proxyURL string) error {
	if _, err := m.GetAccount(ctx, accountID); err != nil {
		return err
	}
	if proxyURL == "" {
		if err := m.proxyRepo.Unassign(ctx, accountID); err != nil {
			return domain.DatabaseError("unassign proxy", err)
		}
		return nil
	}
	if err := validateProxy(proxyURL); err != nil {
		return err
	}
	if err := m.proxyRepo.Assign(ctx, accountID, proxyURL); err != nil {
		return domain.DatabaseError("assign proxy", err)
	}
	return nil
}

// EnsureAccount creates the account for username unless it exists. Used for
// bootstrap accounts from config.
func (m *AccountManager) EnsureAccount(ctx context.Context, username, proxy string, isActive bool) (*domain.Account, bool, error) {
	existing, err := m.accountRepo.GetByUsername(ctx, normalizeUsername(username))
	if err != nil {
		return nil, false, domain.DatabaseError("check existing account", err)
	}
	if existing != nil {
		return existing, false, nil
	}
	account, err := m.CreateAccount(ctx, username, proxy, isActive)
	if err != nil {
		return nil, false, err
	}
	return account, true, nil
}

func normalizeUsername(username string) string {
	return strings.TrimPrefix(strings.TrimSpace(username), "@")
}

func validateProxy(proxy string) error {
	if proxy == "" {
		return nil
	}
	u, err := url.Parse(proxy)
	if err != nil || u.Host == "" {
		return domain.Validation(fmt.Sprintf("invalid proxy url %q", proxy))
	}
	switch u.Scheme {
	case "http", "https", "socks5":
		return nil
	}
	return domain.Validation(fmt.Sprintf("unsupported proxy scheme %q", u.Scheme))
}
