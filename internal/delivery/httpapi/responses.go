package httpapi

import (
	"time"

	"account_orchestrator/internal/domain"
)

type errorResponse struct {
	Error     string           `json:"error"`
	Code      domain.ErrorCode `json:"code"`
	Retryable bool             `json:"retryable"`
}

type accountResponse struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Proxy         string     `json:"proxy,omitempty"`
	Status        string     `json:"status"`
	ShadowBan     string     `json:"shadow_ban"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func toAccountResponse(account *domain.Account) *accountResponse {
	if account == nil {
		return nil
	}
	return &accountResponse{
		ID:            account.ID,
		Username:      account.Username,
		Proxy:         account.Proxy,
		Status:        string(account.Status),
		ShadowBan:     string(account.ShadowBan),
		LastCheckedAt: timePtr(account.LastCheckedAt),
		IsActive:      account.IsActive,
		CreatedAt:     account.CreatedAt,
		UpdatedAt:     account.UpdatedAt,
	}
}

type postResponse struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"account_id"`
	Content      string    `json:"content"`
	MediaIDs     []string  `json:"media_ids"`
	ScheduledAt  time.Time `json:"scheduled_at"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	RemoteID     string    `json:"remote_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toPostResponse(post *domain.ScheduledPost) *postResponse {
	if post == nil {
		return nil
	}
	mediaIDs := post.MediaIDs
	if mediaIDs == nil {
		mediaIDs = []string{}
	}
	return &postResponse{
		ID:           post.ID,
		AccountID:    post.AccountID,
		Content:      post.Content,
		MediaIDs:     mediaIDs,
		ScheduledAt:  post.ScheduledAt,
		Status:       string(post.Status),
		ErrorMessage: post.ErrorMessage,
		RemoteID:     post.RemoteID,
		CreatedAt:    post.CreatedAt,
		UpdatedAt:    post.UpdatedAt,
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
