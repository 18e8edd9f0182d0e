package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ActionKind selects what an automation run does for one account
type ActionKind string

const (
	ActionCheck          ActionKind = "check"
	ActionShadowBanProbe ActionKind = "shadow_ban_probe"
	ActionEngagement     ActionKind = "engagement"
	ActionPost           ActionKind = "post"
)

// EngagementType is the kind of engagement performed on a target
type EngagementType string

const (
	EngagementLike    EngagementType = "like"
	EngagementRetweet EngagementType = "retweet"
	EngagementFollow  EngagementType = "follow"
)

// Action describes the work shared by every item in a batch
type Action struct {
	Kind ActionKind

	// TargetURL and Engagement are set for engagement actions
	TargetURL  string
	Engagement EngagementType

	// PostID, Content and MediaPaths are set for post actions
	PostID     string
	Content    string
	MediaPaths []string
}

// Validate checks the payload required by the action kind
func (a Action) Validate() error {
	switch a.Kind {
	case ActionCheck, ActionShadowBanProbe:
		return nil
	case ActionEngagement:
		switch a.Engagement {
		case EngagementLike, EngagementRetweet, EngagementFollow:
		default:
			return Validation(fmt.Sprintf("unknown engagement type %q", a.Engagement))
		}
		u, err := url.Parse(a.TargetURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return Validation(fmt.Sprintf("invalid target url %q", a.TargetURL))
		}
		return nil
	case ActionPost:
		if strings.TrimSpace(a.Content) == "" && len(a.MediaPaths) == 0 {
			return Validation("post needs content or media")
		}
		return nil
	}
	return Validation(fmt.Sprintf("unknown action kind %q", a.Kind))
}

// OutcomeStatus classifies how a single execution ended
type OutcomeStatus string

const (
	OutcomeSuccess          OutcomeStatus = "success"
	OutcomeRetryableFailure OutcomeStatus = "retryable_failure"
	OutcomeTerminalFailure  OutcomeStatus = "terminal_failure"
)

// Outcome is the typed result of running an action for one account
type Outcome struct {
	AccountID string
	Kind      ActionKind
	Status    OutcomeStatus

	// Payload is one of CheckResult, ShadowBanResult, EngagementResult, PostResult
	Payload any

	// Err is set for failure outcomes
	Err *Error

	// Attempts counts executor invocations for this work item
	Attempts   int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Succeeded reports whether the outcome carries a payload
func (o Outcome) Succeeded() bool {
	return o.Status == OutcomeSuccess
}

// Success builds a successful outcome
func Success(payload any) Outcome {
	return Outcome{Status: OutcomeSuccess, Payload: payload}
}

// Failure builds a failure outcome whose status follows err.Retryable
func Failure(err *Error) Outcome {
	status := OutcomeTerminalFailure
	if err != nil && err.Retryable {
		status = OutcomeRetryableFailure
	}
	return Outcome{Status: status, Err: err}
}

// CheckResult is the payload of a status check
type CheckResult struct {
	Status    AccountStatus
	CheckedAt time.Time
}

// ShadowBanResult holds one boolean per probed surface
type ShadowBanResult struct {
	Exists              bool
	Protected           bool
	SearchBan           bool
	SearchSuggestionBan bool
	GhostBan            bool
	ReplyDeboost        bool
	CheckedAt           time.Time
}

// Banned reports whether any surface is restricted
func (r ShadowBanResult) Banned() bool {
	return r.SearchBan || r.SearchSuggestionBan || r.GhostBan || r.ReplyDeboost
}

// EngagementResult is the payload of an engagement action
type EngagementResult struct {
	TargetURL string
	Type      EngagementType
	// AlreadyDone is true when the target was already liked/retweeted/followed
	AlreadyDone bool
}

// PostResult is the payload of a publish
type PostResult struct {
	PostID    string
	RemoteID  string
	RemoteURL string
}
