package automation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, sub *Subscription) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-sub.Events:
			if !ok {
				return events
			}
			events = append(events, e)
		case <-timeout:
			t.Fatal("subscription did not close")
		}
	}
}

func TestProgressReporter_DeliversInOrderThenCloses(t *testing.T) {
	r := NewProgressReporter()
	sub := r.Subscribe("b1")
	other := r.Subscribe("b2")
	defer other.Close()

	// Nobody reads while publishing; Publish must not block.
	for i := 1; i <= 100; i++ {
		r.Publish(Event{BatchID: "b1", Type: EventCompleted, Completed: i, Total: 100})
	}
	r.Publish(Event{BatchID: "b1", Type: EventFinished, Completed: 100, Total: 100})
	r.Finish("b1")

	events := collect(t, sub)
	require.Len(t, events, 101)
	for i, e := range events[:100] {
		assert.Equal(t, i+1, e.Completed)
	}
	assert.Equal(t, EventFinished, events[100].Type)
	assert.Equal(t, 1, r.Subscribers("b2"))
}

func TestProgressReporter_SubscribeAfterFinish(t *testing.T) {
	r := NewProgressReporter()
	r.Finish("b1")

	sub := r.Subscribe("b1")
	assert.Empty(t, collect(t, sub))

	r.Forget("b1")
	late := r.Subscribe("b1")
	assert.Equal(t, 1, r.Subscribers("b1"))
	late.Close()
	assert.Equal(t, 0, r.Subscribers("b1"))
}

func TestProgressReporter_CloseDetaches(t *testing.T) {
	r := NewProgressReporter()
	sub := r.Subscribe("b1")
	r.Publish(Event{BatchID: "b1", Type: EventStarted})

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, r.Subscribers("b1"))

	// Events after detaching go nowhere and the channel closes.
	r.Publish(Event{BatchID: "b1", Type: EventCompleted})
	for range sub.Events {
	}
}
