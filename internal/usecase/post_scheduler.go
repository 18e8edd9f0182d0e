package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"account_orchestrator/internal/automation"
	"account_orchestrator/internal/domain"
	"account_orchestrator/internal/logger"
)

// defaultPollLimit caps how many due posts one poll cycle claims.
const defaultPollLimit = 100

// BatchSubmitter is the part of the automation scheduler the post scheduler needs
type BatchSubmitter interface {
	SubmitBatch(accountIDs []string, action domain.Action) (*automation.Batch, error)
}

// PostUpdate carries the editable fields of a pending post; nil fields are left unchanged.
type PostUpdate struct {
	Content     *string
	MediaIDs    *[]string
	ScheduledAt *time.Time
}

// PostScheduler drives scheduled posts from pending to a terminal status.
// Due posts are claimed with a compare-and-set in the store, submitted as a
// single-account post batch, and settled by a watcher when the batch finishes.
type PostScheduler struct {
	posts     domain.PostRepository
	accounts  domain.AccountRepository
	media     domain.MediaRepository
	submitter BatchSubmitter
	log       logger.Component
	now       func() time.Time
	limit     int

	// mu serializes edits with the poll claim so a pending post is never
	// rewritten after it was handed to the scheduler.
	mu       sync.Mutex
	watchers sync.WaitGroup
}

// NewPostScheduler creates a post scheduler
func NewPostScheduler(
	posts domain.PostRepository,
	accounts domain.AccountRepository,
	media domain.MediaRepository,
	submitter BatchSubmitter,
) *PostScheduler {
	return &PostScheduler{
		posts:     posts,
		accounts:  accounts,
		media:     media,
		submitter: submitter,
		log:       logger.For("posts"),
		now:       time.Now,
		limit:     defaultPollLimit,
	}
}

// Create stores a new pending post due at scheduledAt.
func (s *PostScheduler) Create(ctx context.Context, accountID, content string, mediaIDs []string, scheduledAt time.Time) (*domain.ScheduledPost, error) {
	if strings.TrimSpace(content) == "" && len(mediaIDs) == 0 {
		return nil, domain.Validation("post needs content or media")
	}
	if !scheduledAt.After(s.now()) {
		return nil, domain.InvalidSchedule(fmt.Sprintf("scheduled time %s is not in the future", scheduledAt.Format(time.RFC3339)))
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, domain.DatabaseError("load account", err)
	}
	if account == nil {
		return nil, domain.NotFound("account", accountID)
	}
	if _, err := s.resolveMedia(ctx, mediaIDs); err != nil {
		return nil, err
	}

	post := &domain.ScheduledPost{
		AccountID:   accountID,
		Content:     content,
		MediaIDs:    mediaIDs,
		ScheduledAt: scheduledAt,
		Status:      domain.PostStatusPending,
	}
	if err := s.posts.Save(ctx, post); err != nil {
		return nil, domain.DatabaseError("save post", err)
	}
	s.log.Infof("post %s scheduled for account %s at %s", post.ID, accountID, scheduledAt.Format(time.RFC3339))
	return post, nil
}

// Update edits a post that is still pending.
func (s *PostScheduler) Update(ctx context.Context, id string, update PostUpdate) (*domain.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.Status != domain.PostStatusPending {
		return nil, domain.InvalidTransition(post.Status, domain.PostStatusPending)
	}

	if update.ScheduledAt != nil {
		if !update.ScheduledAt.After(s.now()) {
			return nil, domain.InvalidSchedule(fmt.Sprintf("scheduled time %s is not in the future", update.ScheduledAt.Format(time.RFC3339)))
		}
		post.ScheduledAt = *update.ScheduledAt
	}
	if update.Content != nil {
		post.Content = *update.Content
	}
	if update.MediaIDs != nil {
		if _, err := s.resolveMedia(ctx, *update.MediaIDs); err != nil {
			return nil, err
		}
		post.MediaIDs = *update.MediaIDs
	}
	if strings.TrimSpace(post.Content) == "" && len(post.MediaIDs) == 0 {
		return nil, domain.Validation("post needs content or media")
	}

	if err := s.posts.Save(ctx, post); err != nil {
		return nil, domain.DatabaseError("save post", err)
	}
	return post, nil
}

// Cancel moves a pending post to cancelled. Executing posts cannot be cancelled.
func (s *PostScheduler) Cancel(ctx context.Context, id string) (*domain.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.posts.CompareAndSetStatus(ctx, id, domain.PostStatusPending, domain.PostStatusCancelled, "", "")
	if err != nil {
		return nil, domain.DatabaseError("cancel post", err)
	}

	post, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.InvalidTransition(post.Status, domain.PostStatusCancelled)
	}
	s.log.Infof("post %s cancelled", id)
	return post, nil
}

// List returns posts matching filter ordered by due time
func (s *PostScheduler) List(ctx context.Context, filter domain.PostFilter) ([]*domain.ScheduledPost, error) {
	posts, err := s.posts.List(ctx, filter)
	if err != nil {
		return nil, domain.DatabaseError("list posts", err)
	}
	return posts, nil
}

// Poll claims every due post and submits it. Failures are per post: they are
// logged and the cycle moves on. It returns how many posts were submitted.
func (s *PostScheduler) Poll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	due, err := s.posts.FindDue(ctx, s.now(), s.limit)
	if err != nil {
		return 0, domain.DatabaseError("find due posts", err)
	}

	submitted := 0
	for _, post := range due {
		if ctx.Err() != nil {
			return submitted, ctx.Err()
		}
		if s.dispatch(ctx, post) {
			submitted++
		}
	}
	if submitted > 0 {
		s.log.Infof("poll submitted %d of %d due posts", submitted, len(due))
	}
	return submitted, nil
}

// Recover fails posts left executing by a previous process, then polls immediately.
func (s *PostScheduler) Recover(ctx context.Context) (int, error) {
	stuck, err := s.posts.List(ctx, domain.PostFilter{Status: domain.PostStatusExecuting})
	if err != nil {
		return 0, domain.DatabaseError("list executing posts", err)
	}
	for _, post := range stuck {
		s.settle(ctx, post.ID, domain.PostStatusFailed, "interrupted by restart", "")
	}
	if len(stuck) > 0 {
		s.log.Infof("recovered %d posts interrupted by restart", len(stuck))
	}
	return s.Poll(ctx)
}

// Wait blocks until every submitted post has been settled
func (s *PostScheduler) Wait() {
	s.watchers.Wait()
}

func (s *PostScheduler) dispatch(ctx context.Context, post *domain.ScheduledPost) bool {
	claimed, err := s.posts.CompareAndSetStatus(ctx, post.ID, domain.PostStatusPending, domain.PostStatusExecuting, "", "")
	if err != nil {
		s.log.Errorf("claim post %s: %v", post.ID, err)
		return false
	}
	if !claimed {
		return false
	}

	media, err := s.resolveMedia(ctx, post.MediaIDs)
	if err != nil {
		s.settle(ctx, post.ID, domain.PostStatusFailed, err.Error(), "")
		return false
	}
	paths := make([]string, 0, len(media))
	for _, m := range media {
		paths = append(paths, m.FilePath)
	}

	batch, err := s.submitter.SubmitBatch([]string{post.AccountID}, domain.Action{
		Kind:       domain.ActionPost,
		PostID:     post.ID,
		Content:    post.Content,
		MediaPaths: paths,
	})
	if err != nil {
		s.settle(ctx, post.ID, domain.PostStatusFailed, err.Error(), "")
		return false
	}

	s.watchers.Add(1)
	go s.watch(context.WithoutCancel(ctx), post.ID, batch)
	return true
}

// watch settles the post once its batch has a final outcome. Scheduler shutdown
// reports pending items as cancelled, so Done always closes.
func (s *PostScheduler) watch(ctx context.Context, postID string, batch *automation.Batch) {
	defer s.watchers.Done()
	<-batch.Done()

	results := batch.Results()
	if len(results) == 0 {
		s.settle(ctx, postID, domain.PostStatusFailed, "no outcome recorded", "")
		return
	}
	outcome := results[0]
	if outcome.Succeeded() {
		result, _ := outcome.Payload.(domain.PostResult)
		s.settle(ctx, postID, domain.PostStatusCompleted, "", result.RemoteID)
		return
	}

	reason := "publish failed"
	if outcome.Err != nil {
		reason = outcome.Err.Error()
	}
	s.settle(ctx, postID, domain.PostStatusFailed, reason, "")
}

func (s *PostScheduler) settle(ctx context.Context, postID string, to domain.PostStatus, reason, remoteID string) {
	ok, err := s.posts.CompareAndSetStatus(ctx, postID, domain.PostStatusExecuting, to, reason, remoteID)
	if err != nil {
		s.log.Errorf("settle post %s as %s: %v", postID, to, err)
		return
	}
	if !ok {
		s.log.Errorf("post %s was no longer executing when settling as %s", postID, to)
		return
	}
	if to == domain.PostStatusFailed {
		s.log.Errorf("post %s failed: %s", postID, reason)
		return
	}
	s.log.Infof("post %s %s (remote id %s)", postID, to, remoteID)
}

func (s *PostScheduler) load(ctx context.Context, id string) (*domain.ScheduledPost, error) {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, domain.DatabaseError("load post", err)
	}
	if post == nil {
		return nil, domain.NotFound("post", id)
	}
	return post, nil
}

func (s *PostScheduler) resolveMedia(ctx context.Context, ids []string) ([]*domain.Media, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	media, err := s.media.GetByIDs(ctx, ids)
	if err != nil {
		return nil, domain.DatabaseError("load media", err)
	}
	if len(media) != len(ids) {
		known := make(map[string]bool, len(media))
		for _, m := range media {
			known[m.ID] = true
		}
		for _, id := range ids {
			if !known[id] {
				return nil, domain.Validation(fmt.Sprintf("unknown media %s", id))
			}
		}
	}
	return media, nil
}
