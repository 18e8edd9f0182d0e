package automation

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"account_orchestrator/internal/domain"
	"account_orchestrator/internal/logger"
)

// ErrSchedulerStopped is returned by SubmitBatch after Stop
var ErrSchedulerStopped = errors.New("scheduler stopped")

// finishedRetention is how many finished batches stay addressable for late lookups.
const finishedRetention = 256

// AccountLookup is the slice of the account store the scheduler needs
type AccountLookup interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
}

// ProxyResolver returns the proxy assigned to an account, or "" when none
type ProxyResolver interface {
	ProxyFor(ctx context.Context, accountID string) (string, error)
}

// Options configures the worker pool
type Options struct {
	// MaxConcurrency is the number of workers, and so the cap on parallel actions
	MaxConcurrency int

	// SessionRetryLimit bounds re-enqueues of an item whose session is busy
	SessionRetryLimit int

	// SessionRetryInterval delays each busy re-enqueue
	SessionRetryInterval time.Duration

	// DispatchPerMinute paces executor dispatch across all workers; 0 disables pacing
	DispatchPerMinute int
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = 3
	}
	if o.SessionRetryLimit <= 0 {
		o.SessionRetryLimit = 30
	}
	if o.SessionRetryInterval < 0 {
		o.SessionRetryInterval = 0
	}
	return o
}

// Stats is a point-in-time view of the scheduler
type Stats struct {
	Workers        int `json:"workers"`
	Queued         int `json:"queued"`
	Delayed        int `json:"delayed"`
	InFlight       int `json:"in_flight"`
	ActiveSessions int `json:"active_sessions"`
	ActiveBatches  int `json:"active_batches"`
}

// Scheduler is a bounded worker pool that runs batches of work items.
type Scheduler struct {
	opts     Options
	registry *SessionRegistry
	executor ActionExecutor
	policy   *RetryPolicy
	reporter *ProgressReporter
	accounts AccountLookup
	proxies  ProxyResolver
	limiter  *rate.Limiter
	log      logger.Component

	mu       sync.Mutex
	queue    *list.List
	delayed  map[*workItem]*time.Timer
	batches  map[string]*Batch
	finished []string
	running  bool
	stopped  bool
	wake     chan struct{}
	cancel   context.CancelFunc
	group    *errgroup.Group

	inFlight atomic.Int32
}

// NewScheduler wires the scheduler to its collaborators. proxies may be nil.
func NewScheduler(
	opts Options,
	registry *SessionRegistry,
	executor ActionExecutor,
	policy *RetryPolicy,
	reporter *ProgressReporter,
	accounts AccountLookup,
	proxies ProxyResolver,
) *Scheduler {
	opts = opts.withDefaults()

	var limiter *rate.Limiter
	if opts.DispatchPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.DispatchPerMinute)), 1)
	}

	return &Scheduler{
		opts:     opts,
		registry: registry,
		executor: executor,
		policy:   policy,
		reporter: reporter,
		accounts: accounts,
		proxies:  proxies,
		limiter:  limiter,
		log:      logger.For("scheduler"),
		queue:    list.New(),
		delayed:  make(map[*workItem]*time.Timer),
		batches:  make(map[string]*Batch),
		wake:     make(chan struct{}, 1),
	}
}

// Reporter returns the progress reporter batches publish to
func (s *Scheduler) Reporter() *ProgressReporter {
	return s.reporter
}

// Start launches MaxConcurrency workers. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.stopped {
		return
	}
	s.running = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.group, ctx = errgroup.WithContext(ctx)
	for range s.opts.MaxConcurrency {
		s.group.Go(func() error {
			s.worker(ctx)
			return nil
		})
	}
	s.log.Infof("started %d workers", s.opts.MaxConcurrency)
	s.signal()
}

// Stop stops dispatching, waits for in-flight actions to finish, and reports every
// item still queued or waiting on a retry timer as cancelled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel, group := s.cancel, s.group
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		_ = group.Wait()
	}

	s.mu.Lock()
	var leftovers []*workItem
	for e := s.queue.Front(); e != nil; e = e.Next() {
		leftovers = append(leftovers, e.Value.(*workItem))
	}
	s.queue.Init()
	// An entry still in delayed has not been requeued, even if its timer already fired.
	for item, timer := range s.delayed {
		timer.Stop()
		leftovers = append(leftovers, item)
		delete(s.delayed, item)
	}
	s.mu.Unlock()

	for _, item := range leftovers {
		s.finish(item, s.cancelledOutcome(item))
	}
	s.log.Infof("stopped, %d queued items cancelled", len(leftovers))
}

// SubmitBatch enqueues one work item per distinct account id.
func (s *Scheduler) SubmitBatch(accountIDs []string, action domain.Action) (*Batch, error) {
	batch, _, err := s.submit(accountIDs, action, false)
	return batch, err
}

// Watch is SubmitBatch with a progress subscription attached before any item can run,
// so the caller sees every event of the batch.
func (s *Scheduler) Watch(accountIDs []string, action domain.Action) (*Batch, *Subscription, error) {
	return s.submit(accountIDs, action, true)
}

func (s *Scheduler) submit(accountIDs []string, action domain.Action, watch bool) (*Batch, *Subscription, error) {
	if err := action.Validate(); err != nil {
		return nil, nil, err
	}
	ids := dedupe(accountIDs)
	if len(ids) == 0 {
		return nil, nil, domain.Validation("at least one account id is required")
	}

	batch := newBatch(uuid.NewString(), ids, action)

	var sub *Subscription
	if watch {
		sub = s.reporter.Subscribe(batch.ID())
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		sub.Close()
		return nil, nil, ErrSchedulerStopped
	}
	s.batches[batch.ID()] = batch
	for _, id := range ids {
		s.queue.PushBack(&workItem{batch: batch, accountID: id})
	}
	s.mu.Unlock()
	s.signal()

	s.log.Infof("batch %s: %s queued for %d accounts", batch.ID(), action.Kind, len(ids))
	return batch, sub, nil
}

// CancelBatch stops not-yet-dispatched items of the batch from starting.
// In-flight items finish normally.
func (s *Scheduler) CancelBatch(batchID string) error {
	s.mu.Lock()
	batch, ok := s.batches[batchID]
	if !ok {
		s.mu.Unlock()
		return domain.NotFound("batch", batchID)
	}
	batch.cancelled.Store(true)

	var swept []*workItem
	for e := s.queue.Front(); e != nil; {
		next := e.Next()
		if item := e.Value.(*workItem); item.batch == batch {
			swept = append(swept, item)
			s.queue.Remove(e)
		}
		e = next
	}
	for item, timer := range s.delayed {
		if item.batch == batch {
			timer.Stop()
			swept = append(swept, item)
			delete(s.delayed, item)
		}
	}
	s.mu.Unlock()

	for _, item := range swept {
		s.finish(item, s.cancelledOutcome(item))
	}
	s.log.Infof("batch %s cancelled, %d pending items dropped", batchID, len(swept))
	return nil
}

// Batch returns an active or recently finished batch
func (s *Scheduler) Batch(batchID string) (*Batch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	return b, ok
}

// Stats returns a snapshot of queue and pool usage
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := 0
	for _, b := range s.batches {
		select {
		case <-b.Done():
		default:
			active++
		}
	}
	return Stats{
		Workers:        s.opts.MaxConcurrency,
		Queued:         s.queue.Len(),
		Delayed:        len(s.delayed),
		InFlight:       int(s.inFlight.Load()),
		ActiveSessions: s.registry.Active(),
		ActiveBatches:  active,
	}
}

func (s *Scheduler) worker(ctx context.Context) {
	for {
		item, ok := s.dequeue(ctx)
		if !ok {
			return
		}
		s.process(ctx, item)
	}
}

func (s *Scheduler) dequeue(ctx context.Context) (*workItem, bool) {
	for {
		if ctx.Err() != nil {
			return nil, false
		}
		s.mu.Lock()
		if front := s.queue.Front(); front != nil {
			s.queue.Remove(front)
			more := s.queue.Len() > 0
			s.mu.Unlock()
			if more {
				s.signal()
			}
			return front.Value.(*workItem), true
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-ctx.Done():
			return nil, false
		}
	}
}

func (s *Scheduler) process(ctx context.Context, item *workItem) {
	batch := item.batch
	if batch.Cancelled() {
		s.finish(item, s.cancelledOutcome(item))
		return
	}

	account, err := s.accounts.GetByID(ctx, item.accountID)
	if err != nil && ctx.Err() != nil {
		s.finish(item, s.cancelledOutcome(item))
		return
	}
	if err != nil {
		s.finish(item, s.failedOutcome(item, domain.DatabaseError("load account", err)))
		return
	}
	if account == nil {
		s.finish(item, s.failedOutcome(item, domain.NotFound("account", item.accountID)))
		return
	}

	proxy := account.Proxy
	if proxy == "" && s.proxies != nil {
		proxy, err = s.proxies.ProxyFor(ctx, account.ID)
		if err != nil && ctx.Err() != nil {
			s.finish(item, s.cancelledOutcome(item))
			return
		}
		if err != nil {
			s.finish(item, s.failedOutcome(item, domain.DatabaseError("resolve proxy", err)))
			return
		}
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			s.requeueFront(item)
			return
		}
	}

	session, err := s.registry.Acquire(account.ID, account.Username, proxy)
	if errors.Is(err, ErrSessionBusy) {
		item.sessionMisses++
		if item.sessionMisses > s.opts.SessionRetryLimit {
			s.finish(item, s.failedOutcome(item, domain.SessionUnavailable(item.accountID, s.opts.SessionRetryLimit)))
			return
		}
		s.enqueueAfter(item, s.opts.SessionRetryInterval)
		return
	}
	if err != nil {
		s.finish(item, s.failedOutcome(item, domain.TerminalFailure(err.Error())))
		return
	}

	item.attempt++
	s.inFlight.Add(1)
	batch.observe(func(completed int) {
		s.reporter.Publish(Event{
			BatchID:        batch.ID(),
			Type:           EventStarted,
			Step:           stepName(batch.action.Kind),
			CurrentAccount: item.accountID,
			Completed:      completed,
			Total:          batch.Total(),
		})
	})

	// Running actions are never interrupted by shutdown or batch cancellation.
	outcome := s.executor.Execute(context.WithoutCancel(ctx), session, batch.action)

	s.registry.Release(session)
	s.inFlight.Add(-1)

	outcome.AccountID = item.accountID
	outcome.Kind = batch.action.Kind
	outcome.Attempts = item.attempt

	decision := s.policy.Classify(outcome, item.attempt, item.lastDelay)
	if decision.Retry && !batch.Cancelled() {
		item.lastDelay = decision.Delay
		s.log.Infof("batch %s: account %s attempt %d failed (%v), retrying in %s",
			batch.ID(), item.accountID, item.attempt, outcome.Err, decision.Delay)
		s.enqueueAfter(item, decision.Delay)
		return
	}

	s.finish(item, outcome)
}

// enqueueAfter puts item back at the tail of the queue once d has elapsed.
func (s *Scheduler) enqueueAfter(item *workItem, d time.Duration) {
	item.notBefore = time.Now().Add(d)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		go s.finish(item, s.cancelledOutcome(item))
		return
	}
	if d <= 0 {
		s.queue.PushBack(item)
		s.signal()
		return
	}

	s.delayed[item] = time.AfterFunc(d, func() {
		s.mu.Lock()
		if _, ok := s.delayed[item]; !ok {
			s.mu.Unlock()
			return
		}
		delete(s.delayed, item)
		if s.stopped {
			s.mu.Unlock()
			s.finish(item, s.cancelledOutcome(item))
			return
		}
		s.queue.PushBack(item)
		s.mu.Unlock()
		s.signal()
	})
}

func (s *Scheduler) requeueFront(item *workItem) {
	s.mu.Lock()
	s.queue.PushFront(item)
	s.mu.Unlock()
}

// finish records the final outcome of item and closes the batch after its last item.
func (s *Scheduler) finish(item *workItem, outcome domain.Outcome) {
	batch := item.batch
	if outcome.FinishedAt.IsZero() {
		outcome.FinishedAt = time.Now()
	}

	_, last, ok := batch.record(outcome, func(completed int) {
		o := outcome
		s.reporter.Publish(Event{
			BatchID:        batch.ID(),
			Type:           EventCompleted,
			Step:           stepName(batch.action.Kind),
			CurrentAccount: outcome.AccountID,
			Completed:      completed,
			Total:          batch.Total(),
			Outcome:        &o,
		})
	})
	if !ok {
		s.log.Errorf("batch %s: duplicate outcome for account %s dropped", batch.ID(), outcome.AccountID)
		return
	}
	if outcome.Status != domain.OutcomeSuccess {
		s.log.Errorf("batch %s: account %s %s after %d attempts: %v",
			batch.ID(), outcome.AccountID, outcome.Kind, outcome.Attempts, outcome.Err)
	}
	if !last {
		return
	}

	s.reporter.Publish(Event{
		BatchID:   batch.ID(),
		Type:      EventFinished,
		Completed: batch.Total(),
		Total:     batch.Total(),
	})
	s.reporter.Finish(batch.ID())
	close(batch.done)
	s.retire(batch)
	s.log.Infof("batch %s: finished %d accounts", batch.ID(), batch.Total())
}

// retire keeps the last finishedRetention batches addressable, forgetting older ones.
func (s *Scheduler) retire(batch *Batch) {
	s.mu.Lock()
	s.finished = append(s.finished, batch.ID())
	var evicted []string
	if over := len(s.finished) - finishedRetention; over > 0 {
		evicted = append(evicted, s.finished[:over]...)
		s.finished = append([]string(nil), s.finished[over:]...)
		for _, id := range evicted {
			delete(s.batches, id)
		}
	}
	s.mu.Unlock()

	for _, id := range evicted {
		s.reporter.Forget(id)
	}
}

func (s *Scheduler) failedOutcome(item *workItem, err *domain.Error) domain.Outcome {
	o := domain.Failure(err)
	o.AccountID = item.accountID
	o.Kind = item.batch.action.Kind
	o.Attempts = item.attempt
	return o
}

func (s *Scheduler) cancelledOutcome(item *workItem) domain.Outcome {
	return s.failedOutcome(item, domain.Cancelled(item.batch.ID()))
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func stepName(kind domain.ActionKind) string {
	switch kind {
	case domain.ActionCheck:
		return "checking"
	case domain.ActionShadowBanProbe:
		return "probing"
	case domain.ActionEngagement:
		return "engaging"
	case domain.ActionPost:
		return "publishing"
	}
	return string(kind)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (s Stats) String() string {
	return fmt.Sprintf("workers=%d queued=%d delayed=%d in_flight=%d sessions=%d batches=%d",
		s.Workers, s.Queued, s.Delayed, s.InFlight, s.ActiveSessions, s.ActiveBatches)
}
