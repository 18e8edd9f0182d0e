package domain

import (
	"context"
	"time"
)

// AccountStatus is the health of an account as last observed by a check
type AccountStatus string

const (
	AccountStatusNormal    AccountStatus = "normal"
	AccountStatusLocked    AccountStatus = "locked"
	AccountStatusSuspended AccountStatus = "suspended"
	AccountStatusUnknown   AccountStatus = "unknown"
)

// Valid reports whether s is one of the known statuses
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusNormal, AccountStatusLocked, AccountStatusSuspended, AccountStatusUnknown:
		return true
	}
	return false
}

// ShadowBanStatus summarises the last shadow-ban probe
type ShadowBanStatus string

const (
	ShadowBanNone      ShadowBanStatus = "none"
	ShadowBanDetected  ShadowBanStatus = "detected"
	ShadowBanUnchecked ShadowBanStatus = "unchecked"
)

// Account represents a managed social-media account
type Account struct {
	// ID is the unique identifier for the account
	ID string

	// Username is the platform handle, without the leading @
	Username string

	// Proxy is the proxy URL pinned to this account (optional)
	Proxy string

	// Status is the result of the latest status check
	Status AccountStatus

	// ShadowBan is the result of the latest shadow-ban probe
	ShadowBan ShadowBanStatus

	// LastCheckedAt is when the account was last checked or probed
	LastCheckedAt time.Time

	// IsActive indicates whether the account takes part in scheduled sweeps
	IsActive bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AccountRepository defines the interface for account data operations
type AccountRepository interface {
	// GetAll returns all accounts
	GetAll(ctx context.Context) ([]*Account, error)

	// GetAllActive returns all active accounts
	GetAllActive(ctx context.Context) ([]*Account, error)

	// GetByID returns an account by its ID, or nil when absent
	GetByID(ctx context.Context, id string) (*Account, error)

	// GetByUsername returns an account by handle, or nil when absent
	GetByUsername(ctx context.Context, username string) (*Account, error)

	// UpdateStatus records the outcome of a status check
	UpdateStatus(ctx context.Context, id string, status AccountStatus, checkedAt time.Time) error

	// UpdateShadowBan records the outcome of a shadow-ban probe
	UpdateShadowBan(ctx context.Context, id string, status ShadowBanStatus, checkedAt time.Time) error

	// Save creates or updates an account
	Save(ctx context.Context, account *Account) error

	// Delete removes an account
	Delete(ctx context.Context, id string) error
}

// ProxyRepository stores proxy assignments made outside the core
type ProxyRepository interface {
	// ProxyFor returns the proxy assigned to the account, or "" when none
	ProxyFor(ctx context.Context, accountID string) (string, error)

	// Assign binds proxyURL to the account, replacing any previous binding
	Assign(ctx context.Context, accountID, proxyURL string) error

	// Unassign drops the account's binding
	Unassign(ctx context.Context, accountID string) error
}

// Media is an uploaded file that posts can reference
type Media struct {
	ID        string
	AccountID string
	FilePath  string
	MimeType  string
	CreatedAt time.Time
}

// MediaRepository resolves media references for posts
type MediaRepository interface {
	GetByIDs(ctx context.Context, ids []string) ([]*Media, error)
	Save(ctx context.Context, media *Media) error
}
