package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"account_orchestrator/internal/domain"
)

const accountColumns = `id, username, proxy, status, shadow_ban, last_checked_at, is_active, created_at, updated_at`

// AccountRepository is a SQLite implementation of domain.AccountRepository.
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new AccountRepository backed by SQLite.
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// GetAll returns all accounts regardless of status.
func (r *AccountRepository) GetAll(ctx context.Context) ([]*domain.Account, error) {
	return r.query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at ASC`)
}

// GetAllActive returns all active accounts.
func (r *AccountRepository) GetAllActive(ctx context.Context) ([]*domain.Account, error) {
	return r.query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE is_active = 1 ORDER BY created_at ASC`)
}

// GetByID returns an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// GetByUsername returns an account by handle.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = ?`, username)
	return scanAccount(row)
}

// UpdateStatus stores the result of a status check.
func (r *AccountRepository) UpdateStatus(ctx context.Context, id string, status domain.AccountStatus, checkedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE accounts SET status = ?, last_checked_at = ?, updated_at = ?
		WHERE id = ?`, status, checkedAt.UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update account status: %w", err)
	}
	return nil
}

// UpdateShadowBan stores the result of a shadow-ban probe.
func (r *AccountRepository) UpdateShadowBan(ctx context.Context, id string, status domain.ShadowBanStatus, checkedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE accounts SET shadow_ban = ?, last_checked_at = ?, updated_at = ?
		WHERE id = ?`, status, checkedAt.UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update account shadow ban: %w", err)
	}
	return nil
}

// Save inserts or updates an account.
func (r *AccountRepository) Save(ctx context.Context, account *domain.Account) error {
	now := time.Now().UTC()
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

	_, err := r.db.ExecContext(ctx, `INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			proxy = excluded.proxy,
			status = excluded.status,
			shadow_ban = excluded.shadow_ban,
			last_checked_at = excluded.last_checked_at,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		account.ID, account.Username, nullableString(account.Proxy), account.Status, account.ShadowBan,
		nullableTime(account.LastCheckedAt), boolToInt(account.IsActive),
		account.CreatedAt.UTC(), account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save account %s: %w", account.Username, err)
	}
	return nil
}

// Delete removes an account.
func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	return err
}

func (r *AccountRepository) query(ctx context.Context, q string, args ...any) ([]*domain.Account, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func scanAccount(scanner interface {
	Scan(dest ...any) error
}) (*domain.Account, error) {
	var (
		proxy       sql.NullString
		lastChecked sql.NullTime
		isActive    int
		account     domain.Account
	)

	if err := scanner.Scan(
		&account.ID,
		&account.Username,
		&proxy,
		&account.Status,
		&account.ShadowBan,
		&lastChecked,
		&isActive,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	account.Proxy = proxy.String
	if lastChecked.Valid {
		account.LastCheckedAt = lastChecked.Time
	}
	account.IsActive = isActive == 1
	return &account, nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
