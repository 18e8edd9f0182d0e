package usecase

import (
	"context"
	"fmt"
	"time"

	"account_orchestrator/internal/automation"
	"account_orchestrator/internal/domain"
	"account_orchestrator/internal/logger"
)

// BatchRunner is the part of the automation scheduler the commands need
type BatchRunner interface {
	Watch(accountIDs []string, action domain.Action) (*automation.Batch, *automation.Subscription, error)
	CancelBatch(batchID string) error
	Stats() automation.Stats
}

// Run is one submitted command: its batch, its progress events and a way to
// wait for the per-account results once they have been persisted.
type Run struct {
	Batch  *automation.Batch
	Events <-chan automation.Event

	sub      *automation.Subscription
	recorded chan struct{}
}

// Wait returns the final outcomes after the recorder has stored them
func (r *Run) Wait(ctx context.Context) ([]domain.Outcome, error) {
	select {
	case <-r.recorded:
		return r.Batch.Results(), nil
	case <-ctx.Done():
		return r.Batch.Results(), ctx.Err()
	}
}

// Close detaches from progress events; the batch keeps running.
func (r *Run) Close() {
	r.sub.Close()
}

// Automation implements the command surface over the scheduler and stores.
type Automation struct {
	runner   BatchRunner
	accounts domain.AccountRepository
	posts    *PostScheduler
	recorder *OutcomeRecorder
	log      logger.Component
}

// NewAutomation creates the command surface
func NewAutomation(runner BatchRunner, accounts domain.AccountRepository, posts *PostScheduler) *Automation {
	return &Automation{
		runner:   runner,
		accounts: accounts,
		posts:    posts,
		recorder: NewOutcomeRecorder(accounts),
		log:      logger.For("automation"),
	}
}

// CheckAccounts runs a status check for ids, or for every active account when ids is empty.
func (a *Automation) CheckAccounts(ctx context.Context, ids []string) (*Run, error) {
	return a.start(ctx, ids, domain.Action{Kind: domain.ActionCheck})
}

// CheckShadowBan probes ids, or every active account when ids is empty.
func (a *Automation) CheckShadowBan(ctx context.Context, ids []string) (*Run, error) {
	return a.start(ctx, ids, domain.Action{Kind: domain.ActionShadowBanProbe})
}

// RunEngagement performs one engagement on targetURL from each account.
func (a *Automation) RunEngagement(ctx context.Context, ids []string, targetURL string, kind domain.EngagementType) (*Run, error) {
	if len(ids) == 0 {
		return nil, domain.Validation("engagement needs at least one account")
	}
	return a.start(ctx, ids, domain.Action{
		Kind:       domain.ActionEngagement,
		TargetURL:  targetURL,
		Engagement: kind,
	})
}

// CancelBatch stops the not-yet-dispatched items of a running command
func (a *Automation) CancelBatch(batchID string) error {
	return a.runner.CancelBatch(batchID)
}

// Stats reports scheduler usage
func (a *Automation) Stats() automation.Stats {
	return a.runner.Stats()
}

func (a *Automation) CreateScheduledPost(ctx context.Context, accountID, content string, mediaIDs []string, scheduledAt time.Time) (*domain.ScheduledPost, error) {
	return a.posts.Create(ctx, accountID, content, mediaIDs, scheduledAt)
}

func (a *Automation) UpdateScheduledPost(ctx context.Context, id string, update PostUpdate) (*domain.ScheduledPost, error) {
	return a.posts.Update(ctx, id, update)
}

func (a *Automation) CancelScheduledPost(ctx context.Context, id string) (*domain.ScheduledPost, error) {
	return a.posts.Cancel(ctx, id)
}

func (a *Automation) ListScheduledPosts(ctx context.Context, filter domain.PostFilter) ([]*domain.ScheduledPost, error) {
	return a.posts.List(ctx, filter)
}

func (a *Automation) start(ctx context.Context, ids []string, action domain.Action) (*Run, error) {
	if len(ids) == 0 {
		active, err := a.accounts.GetAllActive(ctx)
		if err != nil {
			return nil, domain.DatabaseError("list active accounts", err)
		}
		for _, acc := range active {
			ids = append(ids, acc.ID)
		}
		if len(ids) == 0 {
			return nil, domain.Validation("no active accounts")
		}
	}

	batch, sub, err := a.runner.Watch(ids, action)
	if err != nil {
		return nil, err
	}

	run := &Run{
		Batch:    batch,
		Events:   sub.Events,
		sub:      sub,
		recorded: make(chan struct{}),
	}
	go func() {
		defer close(run.recorded)
		<-batch.Done()
		a.recorder.Record(context.WithoutCancel(ctx), batch.Results())
	}()

	a.log.Infof("%s started for %d accounts (batch %s)", action.Kind, batch.Total(), batch.ID())
	return run, nil
}

// OutcomeRecorder persists check and shadow-ban outcomes to the account store.
type OutcomeRecorder struct {
	accounts domain.AccountRepository
	log      logger.Component
}

// NewOutcomeRecorder creates a recorder writing to accounts
func NewOutcomeRecorder(accounts domain.AccountRepository) *OutcomeRecorder {
	return &OutcomeRecorder{accounts: accounts, log: logger.For("recorder")}
}

// Record stores every successful check or probe. Failed items leave the
// account row untouched; a suspension is a successful check with that status.
func (r *OutcomeRecorder) Record(ctx context.Context, outcomes []domain.Outcome) {
	for _, o := range outcomes {
		if err := r.record(ctx, o); err != nil {
			r.log.Errorf("persist %s outcome for account %s: %v", o.Kind, o.AccountID, err)
		}
	}
}

func (r *OutcomeRecorder) record(ctx context.Context, o domain.Outcome) error {
	if !o.Succeeded() {
		return nil
	}
	switch o.Kind {
	case domain.ActionCheck:
		result, ok := o.Payload.(domain.CheckResult)
		if !ok {
			return fmt.Errorf("unexpected payload %T", o.Payload)
		}
		return r.accounts.UpdateStatus(ctx, o.AccountID, result.Status, checkedAt(result.CheckedAt, o.FinishedAt))
	case domain.ActionShadowBanProbe:
		result, ok := o.Payload.(domain.ShadowBanResult)
		if !ok {
			return fmt.Errorf("unexpected payload %T", o.Payload)
		}
		status := domain.ShadowBanNone
		if result.Banned() {
			status = domain.ShadowBanDetected
		}
		return r.accounts.UpdateShadowBan(ctx, o.AccountID, status, checkedAt(result.CheckedAt, o.FinishedAt))
	case domain.ActionEngagement, domain.ActionPost:
		return nil
	}
	return nil
}

func checkedAt(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	return t
}
