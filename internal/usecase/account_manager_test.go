package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account_orchestrator/internal/domain"
)

func TestAccountManager_CreateAndUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	account, err := f.manager.CreateAccount(ctx, "@alice", "http://10.0.0.1:3128", true)
	require.NoError(t, err)
	assert.Equal(t, "alice", account.Username)

	_, err = f.manager.CreateAccount(ctx, "alice", "", true)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.manager.CreateAccount(ctx, "bob", "ftp://nope", true)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.manager.CreateAccount(ctx, " ", "", true)
	assert.ErrorIs(t, err, domain.ErrValidation)

	updated, err := f.manager.SetActive(ctx, account.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	active, err := f.manager.ListAccounts(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = f.manager.UpdateAccount(ctx, "ghost", AccountUpdate{})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	again, created, err := f.manager.EnsureAccount(ctx, "alice", "", true)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, account.ID, again.ID)
}

func TestAccountManager_ProxyAssignmentReachesSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.account(t, "alice")

	require.NoError(t, f.manager.AssignProxy(ctx, account.ID, "socks5://1.2.3.4:1080"))
	proxy, err := f.proxies.ProxyFor(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "socks5://1.2.3.4:1080", proxy)

	assert.ErrorIs(t, f.manager.AssignProxy(ctx, account.ID, "::bad"), domain.ErrValidation)
	assert.ErrorIs(t, f.manager.AssignProxy(ctx, "ghost", "http://p:1"), domain.ErrNotFound)

	require.NoError(t, f.manager.DeleteAccount(ctx, account.ID))
	proxy, _ = f.proxies.ProxyFor(ctx, account.ID)
	assert.Empty(t, proxy)
	assert.ErrorIs(t, f.manager.DeleteAccount(ctx, account.ID), domain.ErrNotFound)
}

func TestAccountMonitor_Sweep(t *testing.T) {
	f := newFixture(t)
	a1, a2 := f.account(t, "a1"), f.account(t, "a2")
	f.exec.checks[a2.ID] = domain.AccountStatusSuspended
	f.exec.banned[a1.ID] = true

	monitor := NewAccountMonitor(f.commands, true, 0)
	summary, err := monitor.MonitorAllAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Checked)
	assert.Equal(t, 1, summary.Suspended)
	assert.Equal(t, 1, summary.ShadowBan)

	empty := NewAccountMonitor(NewAutomation(f.scheduler, newFixture(t).accounts, f.postSched), false, 0)
	summary, err = empty.MonitorAllAccounts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Checked)
}
