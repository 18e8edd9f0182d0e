package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"account_orchestrator/internal/domain"
)

const postColumns = `id, account_id, content, media_ids, scheduled_at, status, error_message, remote_id, created_at, updated_at`

// PostRepository is a SQLite implementation of domain.PostRepository.
type PostRepository struct {
	db *sql.DB
}

// NewPostRepository creates a new PostRepository backed by SQLite.
func NewPostRepository(db *sql.DB) *PostRepository {
	return &PostRepository{db: db}
}

// GetByID returns a scheduled post by ID.
func (r *PostRepository) GetByID(ctx context.Context, id string) (*domain.ScheduledPost, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM scheduled_posts WHERE id = ?`, id)
	return scanPost(row)
}

// List returns posts matching filter ordered by due time.
func (r *PostRepository) List(ctx context.Context, filter domain.PostFilter) ([]*domain.ScheduledPost, error) {
	var (
		where []string
		args  []any
	)
	if filter.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, filter.AccountID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if !filter.From.IsZero() {
		where = append(where, "scheduled_at >= ?")
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		where = append(where, "scheduled_at <= ?")
		args = append(args, filter.To.UTC())
	}

	q := `SELECT ` + postColumns + ` FROM scheduled_posts`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY scheduled_at ASC"
	return r.query(ctx, q, args...)
}

// FindDue returns pending posts due at or before now, oldest first.
func (r *PostRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.ScheduledPost, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.query(ctx, `SELECT `+postColumns+` FROM scheduled_posts
		WHERE status = ? AND scheduled_at <= ? ORDER BY scheduled_at ASC LIMIT ?`,
		domain.PostStatusPending, now.UTC(), limit)
}

// Save inserts or updates a post.
func (r *PostRepository) Save(ctx context.Context, post *domain.ScheduledPost) error {
	now := time.Now().UTC()
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	if post.Status == "" {
		post.Status = domain.PostStatusPending
	}
	post.UpdatedAt = now

	mediaIDs, err := encodeIDs(post.MediaIDs)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO scheduled_posts (`+postColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id,
			content = excluded.content,
			media_ids = excluded.media_ids,
			scheduled_at = excluded.scheduled_at,
			status = excluded.status,
			error_message = excluded.error_message,
			remote_id = excluded.remote_id,
			updated_at = excluded.updated_at`,
		post.ID, post.AccountID, post.Content, mediaIDs, post.ScheduledAt.UTC(), post.Status,
		nullableString(post.ErrorMessage), nullableString(post.RemoteID), post.CreatedAt.UTC(), post.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save scheduled post: %w", err)
	}
	return nil
}

// CompareAndSetStatus moves a post from one status to another in a single statement,
// so two pollers can never both claim the same post.
func (r *PostRepository) CompareAndSetStatus(ctx context.Context, id string, from, to domain.PostStatus, errorMsg, remoteID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE scheduled_posts
		SET status = ?,
			error_message = COALESCE(?, error_message),
			remote_id = COALESCE(?, remote_id),
			updated_at = ?
		WHERE id = ? AND status = ?`,
		to, nullableString(errorMsg), nullableString(remoteID), time.Now().UTC(), id, from)
	if err != nil {
		return false, fmt.Errorf("update post status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostRepository) query(ctx context.Context, q string, args ...any) ([]*domain.ScheduledPost, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []*domain.ScheduledPost
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func scanPost(scanner interface {
	Scan(dest ...any) error
}) (*domain.ScheduledPost, error) {
	var (
		mediaIDs     string
		errorMessage sql.NullString
		remoteID     sql.NullString
		post         domain.ScheduledPost
	)

	if err := scanner.Scan(
		&post.ID,
		&post.AccountID,
		&post.Content,
		&mediaIDs,
		&post.ScheduledAt,
		&post.Status,
		&errorMessage,
		&remoteID,
		&post.CreatedAt,
		&post.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if mediaIDs != "" {
		if err := json.Unmarshal([]byte(mediaIDs), &post.MediaIDs); err != nil {
			return nil, fmt.Errorf("decode media ids of post %s: %w", post.ID, err)
		}
	}
	post.ErrorMessage = errorMessage.String
	post.RemoteID = remoteID.String
	return &post, nil
}

func encodeIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encode media ids: %w", err)
	}
	return string(b), nil
}
