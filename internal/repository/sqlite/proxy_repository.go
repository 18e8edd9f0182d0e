package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ProxyRepository stores account to proxy assignments.
type ProxyRepository struct {
	db *sql.DB
}

// NewProxyRepository creates a new ProxyRepository backed by SQLite.
func NewProxyRepository(db *sql.DB) *ProxyRepository {
	return &ProxyRepository{db: db}
}

// ProxyFor returns the proxy assigned to accountID, or "" when none.
func (r *ProxyRepository) ProxyFor(ctx context.Context, accountID string) (string, error) {
	var proxy string
	err := r.db.QueryRowContext(ctx, `SELECT proxy_url FROM proxy_assignments WHERE account_id = ?`, accountID).Scan(&proxy)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup proxy: %w", err)
	}
	return proxy, nil
}

// Assign binds proxyURL to accountID, replacing any previous binding.
func (r *ProxyRepository) Assign(ctx context.Context, accountID, proxyURL string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO proxy_assignments (account_id, proxy_url, assigned_at)
		VALUES (?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET proxy_url = excluded.proxy_url, assigned_at = excluded.assigned_at`,
		accountID, proxyURL, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("assign proxy: %w", err)
	}
	return nil
}

// Unassign drops the binding for accountID.
func (r *ProxyRepository) Unassign(ctx context.Context, accountID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM proxy_assignments WHERE account_id = ?`, accountID)
	return err
}
