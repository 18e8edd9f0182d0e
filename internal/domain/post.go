package domain

import (
	"context"
	"time"
)

// PostStatus represents the lifecycle state of a scheduled post
type PostStatus string

const (
	// PostStatusPending indicates the post is waiting for its due time
	PostStatusPending PostStatus = "pending"

	// PostStatusExecuting indicates the post has been handed to the scheduler
	PostStatusExecuting PostStatus = "executing"

	// PostStatusCompleted indicates the post was published
	PostStatusCompleted PostStatus = "completed"

	// PostStatusFailed indicates publishing failed or was interrupted
	PostStatusFailed PostStatus = "failed"

	// PostStatusCancelled indicates the post was cancelled before firing
	PostStatusCancelled PostStatus = "cancelled"
)

var postTransitions = map[PostStatus][]PostStatus{
	PostStatusPending:   {PostStatusExecuting, PostStatusCancelled},
	PostStatusExecuting: {PostStatusCompleted, PostStatusFailed},
}

// Valid reports whether s is a known status
func (s PostStatus) Valid() bool {
	switch s {
	case PostStatusPending, PostStatusExecuting, PostStatusCompleted, PostStatusFailed, PostStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible
func (s PostStatus) Terminal() bool {
	return len(postTransitions[s]) == 0
}

// CanTransitionTo reports whether s -> next is a legal lifecycle step
func (s PostStatus) CanTransitionTo(next PostStatus) bool {
	for _, allowed := range postTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ScheduledPost is a post that fires at a due time
type ScheduledPost struct {
	ID string

	// AccountID is the account that publishes the post
	AccountID string

	Content string

	// MediaIDs references Media rows attached to the post
	MediaIDs []string

	// ScheduledAt is the due time
	ScheduledAt time.Time

	Status PostStatus

	// ErrorMessage holds the failure reason once Status is failed
	ErrorMessage string

	// RemoteID is the platform identifier after a successful publish
	RemoteID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transition applies a legal status change in place
func (p *ScheduledPost) Transition(next PostStatus, reason string) error {
	if !p.Status.CanTransitionTo(next) {
		return InvalidTransition(p.Status, next)
	}
	p.Status = next
	if next == PostStatusFailed {
		p.ErrorMessage = reason
	}
	p.UpdatedAt = time.Now()
	return nil
}

// PostFilter narrows ListScheduledPosts. Zero fields match everything.
type PostFilter struct {
	AccountID string
	Status    PostStatus
	From      time.Time
	To        time.Time
}

// Matches reports whether p satisfies the filter
func (f PostFilter) Matches(p *ScheduledPost) bool {
	if f.AccountID != "" && p.AccountID != f.AccountID {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && p.ScheduledAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && p.ScheduledAt.After(f.To) {
		return false
	}
	return true
}

// PostRepository defines the interface for scheduled post persistence
type PostRepository interface {
	// GetByID returns a post by ID, or nil when absent
	GetByID(ctx context.Context, id string) (*ScheduledPost, error)

	// List returns posts matching the filter ordered by due time
	List(ctx context.Context, filter PostFilter) ([]*ScheduledPost, error)

	// FindDue returns pending posts whose due time is at or before now
	FindDue(ctx context.Context, now time.Time, limit int) ([]*ScheduledPost, error)

	// Save creates or updates a post
	Save(ctx context.Context, post *ScheduledPost) error

	// CompareAndSetStatus moves a post from one status to another.
	// It reports false when the stored status no longer equals from.
	CompareAndSetStatus(ctx context.Context, id string, from, to PostStatus, errorMsg, remoteID string) (bool, error)
}
