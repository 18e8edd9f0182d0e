package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account_orchestrator/internal/domain"
)

func (f *fixture) setNow(t time.Time) {
	f.postSched.now = func() time.Time { return t }
}

func TestPostScheduler_CreateValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.account(t, "a1")
	now := time.Now()
	f.setNow(now)

	_, err := f.postSched.Create(ctx, a1.ID, "hello", nil, now)
	assert.ErrorIs(t, err, domain.ErrInvalidSchedule)

	_, err = f.postSched.Create(ctx, a1.ID, "  ", nil, now.Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.postSched.Create(ctx, "ghost", "hello", nil, now.Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.postSched.Create(ctx, a1.ID, "hello", []string{"missing-media"}, now.Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrValidation)

	post, err := f.postSched.Create(ctx, a1.ID, "hello", nil, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, domain.PostStatusPending, post.Status)
}

func TestPostScheduler_DuePostIsPublished(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.account(t, "a1")
	img := &domain.Media{FilePath: "/media/cat.png"}
	require.NoError(t, f.media.Save(ctx, img))

	now := time.Now()
	f.setNow(now)
	post, err := f.postSched.Create(ctx, a1.ID, "hello", []string{img.ID}, now.Add(time.Second))
	require.NoError(t, err)

	n, err := f.postSched.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "not due yet")

	f.setNow(now.Add(2 * time.Second))
	n, err = f.postSched.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	f.postSched.Wait()

	stored, err := f.posts.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PostStatusCompleted, stored.Status)
	assert.Equal(t, "remote-"+post.ID, stored.RemoteID)

	actions := f.exec.recorded()
	require.Len(t, actions, 1)
	assert.Equal(t, []string{"/media/cat.png"}, actions[0].MediaPaths)

	// Terminal posts are not picked up again.
	n, err = f.postSched.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPostScheduler_FailedPublishRecordsReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.account(t, "a1")
	f.exec.failures[a1.ID] = domain.TerminalFailure("account suspended")

	now := time.Now()
	f.setNow(now)
	post, err := f.postSched.Create(ctx, a1.ID, "hello", nil, now.Add(time.Second))
	require.NoError(t, err)

	f.setNow(now.Add(time.Minute))
	_, err = f.postSched.Poll(ctx)
	require.NoError(t, err)
	f.postSched.Wait()

	stored, _ := f.posts.GetByID(ctx, post.ID)
	assert.Equal(t, domain.PostStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "account suspended")
}

func TestPostScheduler_UpdateAndCancelOnlyWhilePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.account(t, "a1")
	now := time.Now()
	f.setNow(now)

	post, err := f.postSched.Create(ctx, a1.ID, "draft", nil, now.Add(time.Hour))
	require.NoError(t, err)

	content := "final"
	later := now.Add(2 * time.Hour)
	updated, err := f.postSched.Update(ctx, post.ID, PostUpdate{Content: &content, ScheduledAt: &later})
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Content)
	assert.True(t, updated.ScheduledAt.Equal(later))

	past := now.Add(-time.Minute)
	_, err = f.postSched.Update(ctx, post.ID, PostUpdate{ScheduledAt: &past})
	assert.ErrorIs(t, err, domain.ErrInvalidSchedule)

	blank := " "
	_, err = f.postSched.Update(ctx, post.ID, PostUpdate{Content: &blank})
	assert.ErrorIs(t, err, domain.ErrValidation)

	cancelled, err := f.postSched.Cancel(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PostStatusCancelled, cancelled.Status)

	_, err = f.postSched.Cancel(ctx, post.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.postSched.Update(ctx, post.ID, PostUpdate{Content: &content})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.postSched.Cancel(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostScheduler_CancelledPostNeverFires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.account(t, "a1")
	now := time.Now()
	f.setNow(now)

	post, err := f.postSched.Create(ctx, a1.ID, "never", nil, now.Add(time.Hour))
	require.NoError(t, err)
	_, err = f.postSched.Cancel(ctx, post.ID)
	require.NoError(t, err)

	f.setNow(now.Add(2 * time.Hour))
	n, err := f.postSched.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	f.postSched.Wait()

	assert.Empty(t, f.exec.recorded())
	stored, err := f.posts.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PostStatusCancelled, stored.Status)
}

func TestPostScheduler_ExecutingPostCannotBeCancelled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	post := &domain.ScheduledPost{AccountID: "a1", Content: "x", ScheduledAt: time.Now(), Status: domain.PostStatusExecuting}
	require.NoError(t, f.posts.Save(ctx, post))

	_, err := f.postSched.Cancel(ctx, post.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestPostScheduler_RecoverFailsInterruptedPosts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.account(t, "a1")

	stuck := &domain.ScheduledPost{AccountID: a1.ID, Content: "stuck", ScheduledAt: time.Now().Add(-time.Hour), Status: domain.PostStatusExecuting}
	due := &domain.ScheduledPost{AccountID: a1.ID, Content: "due", ScheduledAt: time.Now().Add(-time.Minute)}
	require.NoError(t, f.posts.Save(ctx, stuck))
	require.NoError(t, f.posts.Save(ctx, due))

	n, err := f.postSched.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	f.postSched.Wait()

	stored, _ := f.posts.GetByID(ctx, stuck.ID)
	assert.Equal(t, domain.PostStatusFailed, stored.Status)
	assert.Equal(t, "interrupted by restart", stored.ErrorMessage)

	stored, _ = f.posts.GetByID(ctx, due.ID)
	assert.Equal(t, domain.PostStatusCompleted, stored.Status)

	listed, err := f.commands.ListScheduledPosts(ctx, domain.PostFilter{Status: domain.PostStatusFailed})
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestPostScheduler_UnknownMediaFailsAtDispatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.account(t, "a1")
	post := &domain.ScheduledPost{AccountID: a1.ID, Content: "x", MediaIDs: []string{"gone"}, ScheduledAt: time.Now().Add(-time.Second)}
	require.NoError(t, f.posts.Save(ctx, post))

	n, err := f.postSched.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	stored, _ := f.posts.GetByID(ctx, post.ID)
	assert.Equal(t, domain.PostStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "unknown media gone")
	assert.Empty(t, f.exec.recorded())
}
