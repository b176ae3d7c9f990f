package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"casino_ledger/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu   sync.Mutex
	got  []notify.Message
	fail bool
}

func (s *recordingSink) Handles(ch notify.Channel) bool { return ch == notify.ChannelEmail }

func (s *recordingSink) Deliver(_ context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, msg)
	if s.fail {
		return errors.New("smtp down")
	}
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func TestDispatcherDeliversToMatchingSinks(t *testing.T) {
	sink := &recordingSink{}
	hub := notify.NewHub()
	feed, unsubscribe := hub.Subscribe("acc-1")
	defer unsubscribe()

	d := notify.NewDispatcher(2, 16, sink, hub)
	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	notify.Send(d, "acc-1", notify.EventDepositApproved, map[string]interface{}{"amount": "1080.00"},
		notify.ChannelEmail, notify.ChannelInApp)

	select {
	case msg := <-feed:
		assert.Equal(t, notify.EventDepositApproved, msg.Event)
		assert.Equal(t, notify.ChannelInApp, msg.Channel)
		assert.False(t, msg.CreatedAt.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("in-app message not delivered")
	}

	d.Close()
	require.NoError(t, <-done)
	assert.Equal(t, 1, sink.count())
}

func TestPublishNeverBlocks(t *testing.T) {
	d := notify.NewDispatcher(1, 1)

	finished := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			d.Publish(notify.Message{AccountID: "acc", Channel: notify.ChannelPush, Event: notify.EventBetSettled})
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no running workers")
	}

	d.Close()
	d.Publish(notify.Message{AccountID: "acc"}) // after close: dropped, no panic
}

func TestSinkFailureIsNotRetried(t *testing.T) {
	sink := &recordingSink{fail: true}
	d := notify.NewDispatcher(1, 4, sink)
	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	d.Publish(notify.Message{AccountID: "acc", Channel: notify.ChannelEmail, Event: notify.EventWithdrawalApproved})
	d.Close()
	require.NoError(t, <-done)

	assert.Equal(t, 1, sink.count())
}

func TestHubSkipsSlowSubscriber(t *testing.T) {
	hub := notify.NewHub()
	feed, unsubscribe := hub.Subscribe("acc")

	for i := 0; i < 25; i++ {
		require.NoError(t, hub.Deliver(context.Background(), notify.Message{AccountID: "acc", Channel: notify.ChannelInApp}))
	}
	assert.Len(t, feed, 10)

	unsubscribe()
	unsubscribe()
	require.NoError(t, hub.Deliver(context.Background(), notify.Message{AccountID: "acc"}))
}
