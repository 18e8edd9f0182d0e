package automation

import (
	"math/rand"
	"sync"
	"time"

	"account_orchestrator/internal/domain"
)

// maxJitterFraction bounds the random jitter added on top of each backoff step.
const maxJitterFraction = 0.2

// Decision is the retry policy's verdict for one failed attempt
type Decision struct {
	Retry bool
	Delay time.Duration
}

// GiveUp is the zero Decision
var GiveUp = Decision{}

// RetryPolicy decides whether a failed work item runs again and when.
// It holds no per-item state; callers pass the attempt count and last delay.
type RetryPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int

	// Jitter returns a value in [0,1); nil uses a locked math/rand source.
	Jitter func() float64
}

// NewRetryPolicy returns a policy with the given bounds and a random jitter source
func NewRetryPolicy(initial, max time.Duration, maxAttempts int) *RetryPolicy {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	var mu sync.Mutex
	return &RetryPolicy{
		InitialDelay: initial,
		MaxDelay:     max,
		MaxAttempts:  maxAttempts,
		Jitter: func() float64 {
			mu.Lock()
			defer mu.Unlock()
			return src.Float64()
		},
	}
}

// Classify decides what happens after attempt number attempt (1-based) ended with outcome.
// The returned delay is never below previous, so backoff is non-decreasing per item.
func (p *RetryPolicy) Classify(outcome domain.Outcome, attempt int, previous time.Duration) Decision {
	if outcome.Status != domain.OutcomeRetryableFailure || outcome.Err == nil {
		return GiveUp
	}

	switch outcome.Err.Code {
	case domain.CodeTimeout, domain.CodeNetworkFailure:
	case domain.CodeTerminalFailure, domain.CodeSessionUnavailable, domain.CodeDatabaseError,
		domain.CodeInvalidSchedule, domain.CodeInvalidTransition, domain.CodeNotFound,
		domain.CodeValidation, domain.CodeCancelled:
		return GiveUp
	default:
		return GiveUp
	}

	if attempt >= p.maxAttempts() {
		return GiveUp
	}

	delay := p.Backoff(attempt)
	if delay < previous {
		delay = previous
	}
	return Decision{Retry: true, Delay: delay}
}

// Backoff returns min(MaxDelay, InitialDelay*2^(attempt-1)) plus up to 20% jitter.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.InitialDelay
	for i := 1; i < attempt && base < p.MaxDelay; i++ {
		base *= 2
	}
	if p.MaxDelay > 0 && base > p.MaxDelay {
		base = p.MaxDelay
	}

	jitter := 0.0
	if p.Jitter != nil {
		jitter = p.Jitter()
	}
	return base + time.Duration(float64(base)*maxJitterFraction*jitter)
}

func (p *RetryPolicy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return 3
	}
	return p.MaxAttempts
}
