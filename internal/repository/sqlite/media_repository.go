package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"account_orchestrator/internal/domain"
)

// MediaRepository is a SQLite implementation of domain.MediaRepository.
type MediaRepository struct {
	db *sql.DB
}

// NewMediaRepository creates a new MediaRepository backed by SQLite.
func NewMediaRepository(db *sql.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

// GetByIDs returns the media rows that exist among ids, in the order of ids.
func (r *MediaRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Media, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id, account_id, file_path, mime_type, created_at
		FROM media WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query media: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*domain.Media, len(ids))
	for rows.Next() {
		var (
			m         domain.Media
			accountID sql.NullString
			mimeType  sql.NullString
		)
		if err := rows.Scan(&m.ID, &accountID, &m.FilePath, &mimeType, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.AccountID = accountID.String
		m.MimeType = mimeType.String
		byID[m.ID] = &m
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	media := make([]*domain.Media, 0, len(byID))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			media = append(media, m)
		}
	}
	return media, nil
}

// Save inserts or updates a media row.
func (r *MediaRepository) Save(ctx context.Context, media *domain.Media) error {
	if media.ID == "" {
		media.ID = uuid.NewString()
	}
	if media.CreatedAt.IsZero() {
		media.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO media (id, account_id, file_path, mime_type, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id,
			file_path = excluded.file_path,
			mime_type = excluded.mime_type`,
		media.ID, nullableString(media.AccountID), media.FilePath, nullableString(media.MimeType), media.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save media: %w", err)
	}
	return nil
}
