package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"account_orchestrator/internal/domain"
)

// StatusChecker reports the current health of the session's account
type StatusChecker interface {
	CheckStatus(ctx context.Context, s *Session) (domain.CheckResult, error)
}

// ShadowBanProber probes the search and listing surfaces for the session's account
type ShadowBanProber interface {
	ProbeShadowBan(ctx context.Context, s *Session) (domain.ShadowBanResult, error)
}

// Engager performs a like, retweet or follow on targetURL
type Engager interface {
	Engage(ctx context.Context, s *Session, targetURL string, kind domain.EngagementType) (domain.EngagementResult, error)
}

// Publisher publishes a post and returns its platform identifier
type Publisher interface {
	Publish(ctx context.Context, s *Session, content string, mediaPaths []string) (domain.PostResult, error)
}

// Drivers bundles the platform adapters the executor delegates to.
// A nil driver makes its action kind fail terminally.
type Drivers struct {
	Status     StatusChecker
	ShadowBan  ShadowBanProber
	Engagement Engager
	Publisher  Publisher
}

// Timeouts bounds each action kind
type Timeouts struct {
	Check      time.Duration
	ShadowBan  time.Duration
	Engagement time.Duration
	Post       time.Duration
}

// DefaultTimeouts mirrors the config defaults
var DefaultTimeouts = Timeouts{
	Check:      90 * time.Second,
	ShadowBan:  60 * time.Second,
	Engagement: 2 * time.Minute,
	Post:       5 * time.Minute,
}

func (t Timeouts) For(kind domain.ActionKind) time.Duration {
	var d time.Duration
	switch kind {
	case domain.ActionCheck:
		d = t.Check
	case domain.ActionShadowBanProbe:
		d = t.ShadowBan
	case domain.ActionEngagement:
		d = t.Engagement
	case domain.ActionPost:
		d = t.Post
	}
	if d <= 0 {
		d = DefaultTimeouts.For(kind)
	}
	return d
}

// ActionExecutor runs one action for one account inside its session
type ActionExecutor interface {
	Execute(ctx context.Context, s *Session, action domain.Action) domain.Outcome
}

// Executor is the ActionExecutor backed by platform drivers.
// It does not persist anything; callers own the outcome.
type Executor struct {
	drivers  Drivers
	timeouts Timeouts
}

// NewExecutor creates an executor over the given drivers
func NewExecutor(drivers Drivers, timeouts Timeouts) *Executor {
	return &Executor{drivers: drivers, timeouts: timeouts}
}

// Execute runs action under its per-kind timeout and classifies any failure.
func (e *Executor) Execute(ctx context.Context, s *Session, action domain.Action) domain.Outcome {
	started := time.Now()
	timeout := e.timeouts.For(action.Kind)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := e.dispatch(runCtx, s, action)

	var outcome domain.Outcome
	if err != nil {
		outcome = domain.Failure(classify(runCtx, action.Kind, timeout, err))
	} else {
		outcome = domain.Success(payload)
	}
	outcome.AccountID = s.AccountID
	outcome.Kind = action.Kind
	outcome.StartedAt = started
	outcome.FinishedAt = time.Now()
	return outcome
}

func (e *Executor) dispatch(ctx context.Context, s *Session, action domain.Action) (any, error) {
	switch action.Kind {
	case domain.ActionCheck:
		if e.drivers.Status == nil {
			return nil, unsupported(action.Kind)
		}
		return e.drivers.Status.CheckStatus(ctx, s)
	case domain.ActionShadowBanProbe:
		if e.drivers.ShadowBan == nil {
			return nil, unsupported(action.Kind)
		}
		return e.drivers.ShadowBan.ProbeShadowBan(ctx, s)
	case domain.ActionEngagement:
		if e.drivers.Engagement == nil {
			return nil, unsupported(action.Kind)
		}
		return e.drivers.Engagement.Engage(ctx, s, action.TargetURL, action.Engagement)
	case domain.ActionPost:
		if e.drivers.Publisher == nil {
			return nil, unsupported(action.Kind)
		}
		result, err := e.drivers.Publisher.Publish(ctx, s, action.Content, action.MediaPaths)
		if err != nil {
			return nil, err
		}
		result.PostID = action.PostID
		return result, nil
	}
	return nil, domain.TerminalFailure(fmt.Sprintf("unknown action kind %q", action.Kind))
}

func unsupported(kind domain.ActionKind) error {
	return domain.TerminalFailure(fmt.Sprintf("no driver configured for %s", kind))
}

// classify maps a driver error onto the taxonomy. A deadline hit always wins,
// since drivers tend to surface it as a generic navigation error.
func classify(ctx context.Context, kind domain.ActionKind, timeout time.Duration, err error) *domain.Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return domain.Timeout(fmt.Sprintf("%s exceeded %s", kind, timeout), err)
	}
	if e := domain.AsError(err); e != nil {
		return e
	}
	if errors.Is(err, context.Canceled) {
		return domain.NetworkFailure(fmt.Sprintf("%s interrupted", kind), err)
	}
	return domain.NetworkFailure(fmt.Sprintf("%s failed", kind), err)
}
