package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account_orchestrator/internal/domain"
)

func TestAccountRepository_ReturnsCopies(t *testing.T) {
	repo := NewAccountRepository()
	ctx := context.Background()

	account := &domain.Account{Username: "alice", IsActive: true}
	require.NoError(t, repo.Save(ctx, account))
	require.NotEmpty(t, account.ID)

	got, err := repo.GetByID(ctx, account.ID)
	require.NoError(t, err)
	got.Username = "mutated"

	again, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, domain.AccountStatusUnknown, again.Status)

	require.NoError(t, repo.UpdateStatus(ctx, account.ID, domain.AccountStatusSuspended, time.Now()))
	again, _ = repo.GetByID(ctx, account.ID)
	assert.Equal(t, domain.AccountStatusSuspended, again.Status)

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPostRepository_FindDueAndCAS(t *testing.T) {
	repo := NewPostRepository()
	ctx := context.Background()
	now := time.Now()

	first := &domain.ScheduledPost{AccountID: "a1", Content: "one", ScheduledAt: now.Add(-2 * time.Minute)}
	second := &domain.ScheduledPost{AccountID: "a1", Content: "two", ScheduledAt: now.Add(-time.Minute)}
	future := &domain.ScheduledPost{AccountID: "a2", Content: "three", ScheduledAt: now.Add(time.Hour)}
	for _, p := range []*domain.ScheduledPost{future, second, first} {
		require.NoError(t, repo.Save(ctx, p))
	}

	due, err := repo.FindDue(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, first.ID, due[0].ID)

	ok, err := repo.CompareAndSetStatus(ctx, first.ID, domain.PostStatusPending, domain.PostStatusExecuting, "", "")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = repo.CompareAndSetStatus(ctx, first.ID, domain.PostStatusPending, domain.PostStatusExecuting, "", "")
	assert.False(t, ok)

	listed, err := repo.List(ctx, domain.PostFilter{AccountID: "a1", Status: domain.PostStatusPending})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, second.ID, listed[0].ID)
}

func TestMediaAndProxyRepositories(t *testing.T) {
	ctx := context.Background()
	media := NewMediaRepository()
	m := &domain.Media{FilePath: "/tmp/a.png"}
	require.NoError(t, media.Save(ctx, m))

	found, err := media.GetByIDs(ctx, []string{"x", m.ID})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "/tmp/a.png", found[0].FilePath)

	proxies := NewProxyRepository()
	require.NoError(t, proxies.Assign(ctx, "a1", "http://p:1"))
	p, _ := proxies.ProxyFor(ctx, "a1")
	assert.Equal(t, "http://p:1", p)
	require.NoError(t, proxies.Unassign(ctx, "a1"))
	p, _ = proxies.ProxyFor(ctx, "a1")
	assert.Empty(t, p)
}
