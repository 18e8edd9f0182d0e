package automation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"account_orchestrator/internal/domain"
)

// Batch is one submission: an action applied to a set of accounts.
// Results accumulate in completion order, one per account.
type Batch struct {
	id          string
	action      domain.Action
	accountIDs  []string
	submittedAt time.Time

	mu      sync.Mutex
	results map[string]domain.Outcome
	order   []string

	cancelled atomic.Bool
	done      chan struct{}
}

func newBatch(id string, accountIDs []string, action domain.Action) *Batch {
	return &Batch{
		id:          id,
		action:      action,
		accountIDs:  accountIDs,
		submittedAt: time.Now(),
		results:     make(map[string]domain.Outcome, len(accountIDs)),
		done:        make(chan struct{}),
	}
}

func (b *Batch) ID() string             { return b.id }
func (b *Batch) Action() domain.Action  { return b.action }
func (b *Batch) AccountIDs() []string   { return append([]string(nil), b.accountIDs...) }
func (b *Batch) Total() int             { return len(b.accountIDs) }
func (b *Batch) SubmittedAt() time.Time { return b.submittedAt }
func (b *Batch) Cancelled() bool        { return b.cancelled.Load() }
func (b *Batch) Done() <-chan struct{}  { return b.done }

// Completed returns how many accounts have a final outcome
func (b *Batch) Completed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}

// observe calls fn with the completed count under the batch lock, so events
// published from fn are ordered with those published by record.
func (b *Batch) observe(fn func(completed int)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(len(b.order))
}

// Outcome returns the final outcome for accountID, if recorded
func (b *Batch) Outcome(accountID string) (domain.Outcome, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.results[accountID]
	return o, ok
}

// Results returns recorded outcomes in completion order
func (b *Batch) Results() []domain.Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Outcome, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.results[id])
	}
	return out
}

// Wait blocks until every account has an outcome or ctx ends
func (b *Batch) Wait(ctx context.Context) ([]domain.Outcome, error) {
	select {
	case <-b.done:
		return b.Results(), nil
	case <-ctx.Done():
		return b.Results(), ctx.Err()
	}
}

// record stores o as final for its account and calls publish with the new count
// while still holding the batch lock, so observers see counts in order.
// It reports false when the account already had an outcome.
func (b *Batch) record(o domain.Outcome, publish func(completed int)) (completed int, last bool, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, dup := b.results[o.AccountID]; dup {
		return len(b.order), false, false
	}
	b.results[o.AccountID] = o
	b.order = append(b.order, o.AccountID)
	completed = len(b.order)
	if publish != nil {
		publish(completed)
	}
	return completed, completed == len(b.accountIDs), true
}

// workItem is one (account, action) unit inside a batch
type workItem struct {
	batch     *Batch
	accountID string

	// attempt counts executor invocations so far
	attempt int

	// sessionMisses counts re-enqueues caused by a busy session slot
	sessionMisses int

	lastDelay time.Duration
	notBefore time.Time
}
