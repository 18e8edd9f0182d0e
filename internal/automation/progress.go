package automation

import (
	"sync"

	"account_orchestrator/internal/domain"
)

// EventType distinguishes progress events
type EventType string

const (
	// EventStarted fires when a work item is dispatched to the executor
	EventStarted EventType = "started"

	// EventCompleted fires once per account when its outcome is final
	EventCompleted EventType = "completed"

	// EventFinished is the last event of a batch
	EventFinished EventType = "finished"
)

// Event is one progress notification for a batch.
type Event struct {
	BatchID        string          `json:"batch_id"`
	Type           EventType       `json:"type"`
	Step           string          `json:"step,omitempty"`
	CurrentAccount string          `json:"current_account,omitempty"`
	Completed      int             `json:"completed"`
	Total          int             `json:"total"`
	Outcome        *domain.Outcome `json:"outcome,omitempty"`
}

// Subscription represents an attached observer.
type Subscription struct {
	Events <-chan Event
	cancel func()
}

// Close detaches the observer. Safe to call more than once.
func (s *Subscription) Close() {
	if s != nil && s.cancel != nil {
		s.cancel()
	}
}

// ProgressReporter fans batch events out to subscribers.
// Publish never blocks: each subscriber owns an unbounded queue drained by its own goroutine.
type ProgressReporter struct {
	mu          sync.Mutex
	subscribers map[string]map[*subscriber]struct{}
	finished    map[string]struct{}
}

// NewProgressReporter creates an empty reporter
func NewProgressReporter() *ProgressReporter {
	return &ProgressReporter{
		subscribers: make(map[string]map[*subscriber]struct{}),
		finished:    make(map[string]struct{}),
	}
}

// Subscribe attaches to batchID. Earlier events are not replayed; a finished batch
// yields an already-closed channel.
func (r *ProgressReporter) Subscribe(batchID string) *Subscription {
	sub := newSubscriber()

	r.mu.Lock()
	if _, done := r.finished[batchID]; done {
		r.mu.Unlock()
		sub.close()
		return &Subscription{Events: sub.out}
	}
	if r.subscribers[batchID] == nil {
		r.subscribers[batchID] = make(map[*subscriber]struct{})
	}
	r.subscribers[batchID][sub] = struct{}{}
	r.mu.Unlock()

	return &Subscription{
		Events: sub.out,
		cancel: func() {
			r.remove(batchID, sub)
		},
	}
}

// Publish delivers e to every current subscriber of e.BatchID in call order.
func (r *ProgressReporter) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sub := range r.subscribers[e.BatchID] {
		sub.push(e)
	}
}

// Finish closes all subscriptions for batchID after their queued events drain.
func (r *ProgressReporter) Finish(batchID string) {
	r.mu.Lock()
	subs := r.subscribers[batchID]
	delete(r.subscribers, batchID)
	r.finished[batchID] = struct{}{}
	r.mu.Unlock()

	for sub := range subs {
		sub.close()
	}
}

// Forget drops the finished marker for batchID once nobody can subscribe to it any more
func (r *ProgressReporter) Forget(batchID string) {
	r.mu.Lock()
	delete(r.finished, batchID)
	r.mu.Unlock()
}

// Subscribers returns the number of observers attached to batchID
func (r *ProgressReporter) Subscribers(batchID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscribers[batchID])
}

func (r *ProgressReporter) remove(batchID string, sub *subscriber) {
	r.mu.Lock()
	if subs, ok := r.subscribers[batchID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(r.subscribers, batchID)
		}
	}
	r.mu.Unlock()
	sub.detach()
}

type subscriber struct {
	mu       sync.Mutex
	pending  []Event
	closed   bool
	detached bool
	wake     chan struct{}
	quit     chan struct{}
	out      chan Event
	once     sync.Once
}

func newSubscriber() *subscriber {
	s := &subscriber{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		out:  make(chan Event),
	}
	go s.pump()
	return s
}

func (s *subscriber) push(e Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, e)
	s.mu.Unlock()
	s.signal()
}

// close stops accepting events; the pump drains what is queued, then closes out.
func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}

// detach drops queued events and stops the pump immediately.
func (s *subscriber) detach() {
	s.mu.Lock()
	s.closed = true
	s.detached = true
	s.pending = nil
	s.mu.Unlock()
	s.once.Do(func() { close(s.quit) })
}

func (s *subscriber) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if s.detached {
			s.mu.Unlock()
			return
		}
		if len(s.pending) == 0 {
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-s.wake:
			case <-s.quit:
				return
			}
			continue
		}
		next := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-s.quit:
			return
		}
	}
}
