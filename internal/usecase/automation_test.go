package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account_orchestrator/internal/automation"
	"account_orchestrator/internal/domain"
)

func TestAutomation_CheckAccountsPersistsStatus(t *testing.T) {
	f := newFixture(t)
	a1, a2, a3 := f.account(t, "a1"), f.account(t, "a2"), f.account(t, "a3")
	f.exec.checks[a2.ID] = domain.AccountStatusLocked

	run, err := f.commands.CheckAccounts(context.Background(), []string{a1.ID, a2.ID, a3.ID})
	require.NoError(t, err)

	var completed []int
	for e := range run.Events {
		if e.Type == automation.EventCompleted {
			completed = append(completed, e.Completed)
			assert.Equal(t, 3, e.Total)
		}
	}
	assert.Equal(t, []int{1, 2, 3}, completed)

	results, err := run.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Len(t, results, 3)

	stored, err := f.accounts.GetByID(context.Background(), a2.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountStatusLocked, stored.Status)
	assert.False(t, stored.LastCheckedAt.IsZero())

	stored, _ = f.accounts.GetByID(context.Background(), a1.ID)
	assert.Equal(t, domain.AccountStatusNormal, stored.Status)
}

func TestAutomation_CheckAccountsDefaultsToActive(t *testing.T) {
	f := newFixture(t)
	f.account(t, "a1")
	inactive, err := f.manager.CreateAccount(context.Background(), "sleeper", "", false)
	require.NoError(t, err)

	run, err := f.commands.CheckAccounts(context.Background(), nil)
	require.NoError(t, err)
	run.Close()

	results, err := run.Wait(waitCtx(t))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NotEqual(t, inactive.ID, results[0].AccountID)
}

func TestAutomation_NoActiveAccounts(t *testing.T) {
	f := newFixture(t)
	_, err := f.commands.CheckShadowBan(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAutomation_ShadowBanPersisted(t *testing.T) {
	f := newFixture(t)
	clean, banned := f.account(t, "clean"), f.account(t, "hidden")
	f.exec.banned[banned.ID] = true

	run, err := f.commands.CheckShadowBan(context.Background(), []string{clean.ID, banned.ID})
	require.NoError(t, err)
	var steps []string
	for e := range run.Events {
		if e.Type == automation.EventStarted {
			steps = append(steps, e.Step)
		}
	}
	assert.Equal(t, []string{"probing", "probing"}, steps)
	_, err = run.Wait(waitCtx(t))
	require.NoError(t, err)

	stored, _ := f.accounts.GetByID(context.Background(), banned.ID)
	assert.Equal(t, domain.ShadowBanDetected, stored.ShadowBan)
	stored, _ = f.accounts.GetByID(context.Background(), clean.ID)
	assert.Equal(t, domain.ShadowBanNone, stored.ShadowBan)
}

func TestAutomation_EngagementTerminalFailureIsIsolated(t *testing.T) {
	f := newFixture(t)
	a1, a2, a3 := f.account(t, "a1"), f.account(t, "a2"), f.account(t, "a3")
	f.exec.failures[a2.ID] = domain.TerminalFailure("account suspended")

	run, err := f.commands.RunEngagement(context.Background(), []string{a1.ID, a2.ID, a3.ID},
		"https://x.com/someone/status/1", domain.EngagementLike)
	require.NoError(t, err)
	run.Close()

	results, err := run.Wait(waitCtx(t))
	require.NoError(t, err)
	require.Len(t, results, 3)

	for _, o := range results {
		if o.AccountID == a2.ID {
			assert.Equal(t, domain.OutcomeTerminalFailure, o.Status)
			assert.Equal(t, domain.CodeTerminalFailure, o.Err.Code)
			assert.False(t, o.Err.Retryable)
			continue
		}
		assert.True(t, o.Succeeded())
		assert.Equal(t, domain.EngagementLike, o.Payload.(domain.EngagementResult).Type)
	}

	stored, _ := f.accounts.GetByID(context.Background(), a2.ID)
	assert.Equal(t, domain.AccountStatusUnknown, stored.Status, "engagement never writes account status")
}

func TestAutomation_EngagementValidation(t *testing.T) {
	f := newFixture(t)
	a1 := f.account(t, "a1")

	_, err := f.commands.RunEngagement(context.Background(), nil, "https://x.com/a/status/1", domain.EngagementLike)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.commands.RunEngagement(context.Background(), []string{a1.ID}, "not a url", domain.EngagementFollow)
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.ErrorIs(t, f.commands.CancelBatch("missing"), domain.ErrNotFound)
	assert.Equal(t, 2, f.commands.Stats().Workers)
}
