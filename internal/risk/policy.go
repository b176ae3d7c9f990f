package risk

import (
	"context"
	"fmt"
	"time"

	"casino_ledger/internal/logger"
	"casino_ledger/internal/metrics"
	"casino_ledger/internal/notify"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Freezer is the account capability the policy needs.
type Freezer interface {
	Freeze(ctx context.Context, tx *gorm.DB, accountID string, reason string) error
}

// Policy freezes accounts that keep hitting the daily bet limit. A freeze is
// only lifted by an admin.
type Policy struct {
	db        *gorm.DB
	window    Window
	accounts  Freezer
	publisher notify.Publisher
	threshold int64
	now       func() time.Time
}

func NewPolicy(db *gorm.DB, window Window, accounts Freezer, publisher notify.Publisher, threshold int) *Policy {
	if threshold <= 0 {
		threshold = 3
	}
	if publisher == nil {
		publisher = notify.Discard{}
	}
	return &Policy{
		db:        db,
		window:    window,
		accounts:  accounts,
		publisher: publisher,
		threshold: int64(threshold),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RecordViolation stores one bet_limit_violation and freezes the account once
// the window holds threshold or more. It runs in its own transaction so the
// record survives the rejected bet.
func (p *Policy) RecordViolation(ctx context.Context, accountID string, detail map[string]interface{}) (bool, error) {
	at := p.now()
	event := &SecurityEvent{
		EventID:   uuid.New().String(),
		AccountID: accountID,
		Type:      EventBetLimitViolation,
		Detail:    detail,
		CreatedAt: at,
	}
	if err := p.db.WithContext(ctx).Create(event).Error; err != nil {
		return false, fmt.Errorf("failed to record security event: %w", err)
	}
	metrics.RecordViolation(string(EventBetLimitViolation))

	count, err := p.window.Add(ctx, accountID, event.EventID, at)
	if err != nil {
		return false, err
	}
	logger.WarnCtx(ctx, "bet limit violation",
		zap.String("account_id", accountID), zap.Int64("in_window", count))
	if count < p.threshold {
		return false, nil
	}

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := p.accounts.Freeze(ctx, tx, accountID, FreezeReason); err != nil {
			return err
		}
		return tx.Create(&SecurityEvent{
			EventID:   uuid.New().String(),
			AccountID: accountID,
			Type:      EventAutoFreeze,
			Detail:    map[string]interface{}{"violations": count, "trigger_event_id": event.EventID},
			CreatedAt: at,
		}).Error
	})
	if err != nil {
		return false, fmt.Errorf("failed to freeze account: %w", err)
	}

	metrics.RecordViolation(string(EventAutoFreeze))
	notify.Send(p.publisher, accountID, notify.EventAccountFrozen,
		map[string]interface{}{"reason": FreezeReason},
		notify.ChannelEmail, notify.ChannelInApp)
	return true, nil
}
