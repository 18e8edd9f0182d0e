package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"account_orchestrator/internal/domain"
)

// PostRepository is an in-memory implementation of PostRepository
type PostRepository struct {
	mu    sync.RWMutex
	posts map[string]*domain.ScheduledPost
}

// NewPostRepository creates a new in-memory post repository
func NewPostRepository() *PostRepository {
	return &PostRepository{
		posts: make(map[string]*domain.ScheduledPost),
	}
}

// GetByID returns a copy of the post, or nil when absent
func (r *PostRepository) GetByID(ctx context.Context, id string) (*domain.ScheduledPost, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	post, exists := r.posts[id]
	if !exists {
		return nil, nil
	}
	return clonePost(post), nil
}

// List returns posts matching filter ordered by due time
func (r *PostRepository) List(ctx context.Context, filter domain.PostFilter) ([]*domain.ScheduledPost, error) {
	return r.collect(filter.Matches, 0), nil
}

// FindDue returns pending posts due at or before now
func (r *PostRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.ScheduledPost, error) {
	due := func(p *domain.ScheduledPost) bool {
		return p.Status == domain.PostStatusPending && !p.ScheduledAt.After(now)
	}
	return r.collect(due, limit), nil
}

// Save creates or updates a post
func (r *PostRepository) Save(ctx context.Context, post *domain.ScheduledPost) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
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

	r.posts[post.ID] = clonePost(post)
	return nil
}

// CompareAndSetStatus moves a post from one status to another atomically
func (r *PostRepository) CompareAndSetStatus(ctx context.Context, id string, from, to domain.PostStatus, errorMsg, remoteID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	post, exists := r.posts[id]
	if !exists || post.Status != from {
		return false, nil
	}
	post.Status = to
	if errorMsg != "" {
		post.ErrorMessage = errorMsg
	}
	if remoteID != "" {
		post.RemoteID = remoteID
	}
	post.UpdatedAt = time.Now()
	return true, nil
}

func (r *PostRepository) collect(keep func(*domain.ScheduledPost) bool, limit int) []*domain.ScheduledPost {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var posts []*domain.ScheduledPost
	for _, post := range r.posts {
		if keep(post) {
			posts = append(posts, clonePost(post))
		}
	}
	sort.Slice(posts, func(i, j int) bool {
		return posts[i].ScheduledAt.Before(posts[j].ScheduledAt)
	})
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return posts
}

func clonePost(p *domain.ScheduledPost) *domain.ScheduledPost {
	clone := *p
	clone.MediaIDs = append([]string(nil), p.MediaIDs...)
	return &clone
}
