package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"account_orchestrator/internal/automation"
	"account_orchestrator/internal/domain"
	"account_orchestrator/internal/repository/memory"
)

// scriptedExecutor answers per account and per kind; unknown accounts succeed.
type scriptedExecutor struct {
	mu       sync.Mutex
	failures map[string]*domain.Error
	checks   map[string]domain.AccountStatus
	banned   map[string]bool
	actions  []domain.Action
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{
		failures: make(map[string]*domain.Error),
		checks:   make(map[string]domain.AccountStatus),
		banned:   make(map[string]bool),
	}
}

func (e *scriptedExecutor) Execute(ctx context.Context, s *automation.Session, action domain.Action) domain.Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.actions = append(e.actions, action)

	if err, ok := e.failures[s.AccountID]; ok {
		return domain.Failure(err)
	}
	now := time.Now()
	switch action.Kind {
	case domain.ActionCheck:
		status, ok := e.checks[s.AccountID]
		if !ok {
			status = domain.AccountStatusNormal
		}
		return domain.Success(domain.CheckResult{Status: status, CheckedAt: now})
	case domain.ActionShadowBanProbe:
		return domain.Success(domain.ShadowBanResult{Exists: true, SearchBan: e.banned[s.AccountID], CheckedAt: now})
	case domain.ActionEngagement:
		return domain.Success(domain.EngagementResult{TargetURL: action.TargetURL, Type: action.Engagement})
	case domain.ActionPost:
		return domain.Success(domain.PostResult{PostID: action.PostID, RemoteID: "remote-" + action.PostID})
	}
	return domain.Failure(domain.TerminalFailure("unexpected kind"))
}

func (e *scriptedExecutor) recorded() []domain.Action {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Action(nil), e.actions...)
}

type fixture struct {
	accounts  *memory.AccountRepository
	posts     *memory.PostRepository
	media     *memory.MediaRepository
	proxies   *memory.ProxyRepository
	exec      *scriptedExecutor
	scheduler *automation.Scheduler
	postSched *PostScheduler
	commands  *Automation
	manager   *AccountManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		accounts: memory.NewAccountRepository(),
		posts:    memory.NewPostRepository(),
		media:    memory.NewMediaRepository(),
		proxies:  memory.NewProxyRepository(),
		exec:     newScriptedExecutor(),
	}
	policy := &automation.RetryPolicy{InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, MaxAttempts: 2}
	f.scheduler = automation.NewScheduler(
		automation.Options{MaxConcurrency: 2, SessionRetryInterval: time.Millisecond},
		automation.NewSessionRegistry(), f.exec, policy, automation.NewProgressReporter(),
		f.accounts, f.proxies,
	)
	f.scheduler.Start(context.Background())
	t.Cleanup(f.scheduler.Stop)

	f.postSched = NewPostScheduler(f.posts, f.accounts, f.media, f.scheduler)
	f.commands = NewAutomation(f.scheduler, f.accounts, f.postSched)
	f.manager = NewAccountManager(f.accounts, f.proxies)
	return f
}

func (f *fixture) account(t *testing.T, username string) *domain.Account {
	t.Helper()
	a, err := f.manager.CreateAccount(context.Background(), username, "", true)
	require.NoError(t, err)
	return a
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
