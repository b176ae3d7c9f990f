// Package notify delivers account events outside of the ledger transaction.
// Delivery is at most once: a full queue or a failing sink drops the message.
package notify

import (
	"context"
	"sync"
	"time"

	"casino_ledger/internal/logger"
	"casino_ledger/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
	ChannelInApp Channel = "in_app"
)

type Event string

const (
	EventDepositCreated     Event = "deposit_created"
	EventDepositApproved    Event = "deposit_approved"
	EventDepositRejected    Event = "deposit_rejected"
	EventWithdrawalCreated  Event = "withdrawal_created"
	EventWithdrawalApproved Event = "withdrawal_approved"
	EventWithdrawalRejected Event = "withdrawal_rejected"
	EventBetSettled         Event = "bet_settled"
	EventWageringCompleted  Event = "wagering_completed"
	EventAccountFrozen      Event = "account_frozen"
	EventBonusGranted       Event = "bonus_granted"
)

type Message struct {
	AccountID string                 `json:"account_id"`
	Channel   Channel                `json:"channel"`
	Event     Event                  `json:"event"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Sink delivers messages for the channels it handles.
type Sink interface {
	Handles(ch Channel) bool
	Deliver(ctx context.Context, msg Message) error
}

// Publisher is what the ledger services depend on.
type Publisher interface {
	Publish(msg Message)
}

// Send publishes the same event once per channel.
func Send(p Publisher, accountID string, ev Event, payload map[string]interface{}, channels ...Channel) {
	if p == nil {
		return
	}
	for _, ch := range channels {
		p.Publish(Message{AccountID: accountID, Channel: ch, Event: ev, Payload: payload})
	}
}

// Discard drops everything. Useful where no delivery is wanted.
type Discard struct{}

func (Discard) Publish(Message) {}

type Dispatcher struct {
	queue   chan Message
	sinks   []Sink
	workers int
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(workers, queueSize int, sinks ...Sink) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{
		queue:   make(chan Message, queueSize),
		sinks:   sinks,
		workers: workers,
		timeout: 5 * time.Second,
	}
}

// Publish never blocks the caller.
func (d *Dispatcher) Publish(msg Message) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- msg:
	default:
		metrics.NotificationsDropped.Inc()
		logger.Warn("notification queue full, dropping",
			zap.String("account_id", msg.AccountID), zap.String("event", string(msg.Event)))
	}
}

// Run delivers queued messages until ctx is cancelled or Close drains the queue.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case msg, ok := <-d.queue:
					if !ok {
						return nil
					}
					d.deliver(gctx, msg)
				}
			}
		})
	}
	return g.Wait()
}

// Close stops accepting messages. Workers finish what is already queued.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.queue)
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	for _, s := range d.sinks {
		if !s.Handles(msg.Channel) {
			continue
		}
		dctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := s.Deliver(dctx, msg)
		cancel()
		if err != nil {
			logger.Warn("notification delivery failed",
				zap.String("account_id", msg.AccountID),
				zap.String("channel", string(msg.Channel)),
				zap.String("event", string(msg.Event)),
				zap.Error(err))
		}
	}
}

// LogSink writes email and push messages to the log. Real delivery lives in
// another service that tails these lines.
type LogSink struct{}

func (LogSink) Handles(ch Channel) bool { return ch == ChannelEmail || ch == ChannelPush }

func (LogSink) Deliver(ctx context.Context, msg Message) error {
	logger.InfoCtx(ctx, "notification",
		zap.String("account_id", msg.AccountID),
		zap.String("channel", string(msg.Channel)),
		zap.String("event", string(msg.Event)),
		zap.Any("payload", msg.Payload))
	return nil
}
