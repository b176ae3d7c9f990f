package payment

import (
	"context"
	"errors"
	"time"

	"casino_ledger/internal/apperr"
	"casino_ledger/internal/logger"
	"casino_ledger/internal/metrics"
	"casino_ledger/internal/notify"
	"casino_ledger/internal/promotion"
	"casino_ledger/internal/wagering"
	"casino_ledger/internal/wallet"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errNotGranted = errors.New("download bonus not granted")

// Workflow owns request status transitions. Every decision runs the ledger,
// the wagering tracker and the status change in one transaction.
type Workflow struct {
	db        *gorm.DB
	repo      Repository
	ledger    *wallet.Ledger
	accounts  *wallet.Service
	tracker   *wagering.Tracker
	promos    *promotion.Service
	publisher notify.Publisher
	limits    Limits
	now       func() time.Time
}

func NewWorkflow(db *gorm.DB, repo Repository, ledger *wallet.Ledger, accounts *wallet.Service,
	tracker *wagering.Tracker, promos *promotion.Service, publisher notify.Publisher, limits Limits) *Workflow {
	if publisher == nil {
		publisher = notify.Discard{}
	}
	return &Workflow{
		db:        db,
		repo:      repo,
		ledger:    ledger,
		accounts:  accounts,
		tracker:   tracker,
		promos:    promos,
		publisher: publisher,
		limits:    limits,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func validAmount(amount, min, max decimal.Decimal, what string) error {
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return apperr.Validation("%s amount %s must be positive with at most 2 decimals", what, amount)
	}
	if amount.LessThan(min) {
		return apperr.Validation("minimum %s amount is %s", what, min.StringFixed(2))
	}
	if amount.GreaterThan(max) {
		return apperr.Validation("maximum %s amount is %s", what, max.StringFixed(2))
	}
	return nil
}

// CreateDeposit records a pending deposit. The promotion key and the wagering
// multiplier are fixed here so approval cannot be influenced later.
func (w *Workflow) CreateDeposit(ctx context.Context, in DepositInput) (*Request, error) {
	if err := validAmount(in.Amount, w.limits.DepositMin, w.limits.DepositMax, "deposit"); err != nil {
		return nil, err
	}
	key, err := promotion.ParseKey(in.PromotionKey)
	if err != nil {
		return nil, err
	}
	multiplier := decimal.NewFromInt(w.promos.Calculator().IntBetween(w.limits.MultiplierMin, w.limits.MultiplierMax))

	var req *Request
	err = wallet.RunInTx(ctx, w.db, func(tx *gorm.DB) error {
		acc, err := w.ledger.Lock(ctx, tx, in.AccountID)
		if err != nil {
			return err
		}
		if !acc.IsActive {
			return apperr.AccountState("account is inactive")
		}

		effective := key
		if key == promotion.KeyFirstDeposit108 {
			eligible, err := w.firstDepositEligible(ctx, tx, acc)
			if err != nil {
				return err
			}
			if eligible {
				if err := w.accounts.SetFirstDepositClaim(ctx, tx, acc.AccountID, true); err != nil {
					return err
				}
			} else {
				effective = promotion.KeyNone
			}
		}

		now := w.now()
		req = &Request{
			RequestID:         uuid.New().String(),
			AccountID:         acc.AccountID,
			Kind:              KindDeposit,
			Amount:            in.Amount,
			Destination:       in.Destination,
			Status:            StatusPending,
			PromotionKey:      effective,
			DepositMultiplier: decimal.NewNullDecimal(multiplier),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		return w.repo.Create(ctx, tx, req)
	})
	if err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "deposit requested",
		zap.String("request_id", req.RequestID),
		zap.String("account_id", req.AccountID),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("promotion_key", string(req.PromotionKey)))
	metrics.RecordDecision(string(KindDeposit), "created")
	notify.Send(w.publisher, req.AccountID, notify.EventDepositCreated,
		map[string]interface{}{"request_id": req.RequestID, "amount": req.Amount.StringFixed(2)},
		notify.ChannelEmail)
	return req, nil
}

func (w *Workflow) firstDepositEligible(ctx context.Context, tx *gorm.DB, acc *wallet.Account) (bool, error) {
	if acc.FirstDepositBonusClaimed {
		return false, nil
	}
	approved, err := w.repo.HasApprovedDeposit(ctx, tx, acc.AccountID)
	if err != nil {
		return false, err
	}
	return !approved, nil
}

// ApproveDeposit credits the deposit and any bonus, creates the wagering
// requirements and marks the request approved, all or nothing.
func (w *Workflow) ApproveDeposit(ctx context.Context, requestID, adminID string) (*Request, error) {
	pre, err := w.load(ctx, requestID, KindDeposit)
	if err != nil {
		return nil, err
	}
	var table promotion.Table
	if pre.PromotionKey == promotion.KeyFirstDeposit108 {
		if table, err = w.promos.Table(ctx, pre.PromotionKey); err != nil {
			return nil, err
		}
	}

	var (
		req   *Request
		grant promotion.Grant
	)
	err = wallet.RunInTx(ctx, w.db, func(tx *gorm.DB) error {
		var err error
		if req, err = w.pending(ctx, tx, requestID, KindDeposit); err != nil {
			return err
		}
		acc, err := w.ledger.Lock(ctx, tx, req.AccountID)
		if err != nil {
			return err
		}
		now := w.now()
		grant = w.promos.Compute(req.PromotionKey, table, req.Amount, acc.DailyBonusLastDate, now)

		if _, err := w.ledger.Credit(ctx, tx, acc, req.Amount, wallet.Movement{
			Kind:        wallet.KindDeposit,
			ReferenceID: req.RequestID,
			Metadata:    map[string]interface{}{"destination": req.Destination},
		}); err != nil {
			return err
		}
		if grant.Amount.IsPositive() {
			if _, err := w.ledger.Credit(ctx, tx, acc, grant.Amount, wallet.Movement{
				Kind:        wallet.KindBonus,
				ReferenceID: req.RequestID,
				Metadata:    map[string]interface{}{"promotion_key": string(req.PromotionKey)},
			}); err != nil {
				return err
			}
			if grant.DailyDay != "" {
				if err := w.accounts.MarkDailyBonus(ctx, tx, acc.AccountID, grant.DailyDay); err != nil {
					return err
				}
			}
		}

		multiplier := decimal.NewFromInt(w.limits.MultiplierMin)
		if req.DepositMultiplier.Valid {
			multiplier = req.DepositMultiplier.Decimal
		}
		if _, err := w.tracker.Create(ctx, tx, wagering.NewRecord{
			AccountID:  acc.AccountID,
			Source:     wagering.SourceDeposit,
			SourceID:   req.RequestID,
			Principal:  req.Amount,
			Multiplier: multiplier,
			Priority:   wagering.PriorityDeposit,
		}); err != nil {
			return err
		}
		if grant.Amount.IsPositive() {
			if _, err := w.tracker.Create(ctx, tx, wagering.NewRecord{
				AccountID:  acc.AccountID,
				Source:     wagering.SourceBonus,
				SourceID:   req.RequestID,
				Principal:  grant.Amount,
				Multiplier: w.limits.BonusMultiplier,
				Priority:   wagering.PriorityBonus,
			}); err != nil {
				return err
			}
		}

		return w.decide(ctx, tx, req, DecisionApprove, adminID, "", map[string]interface{}{
			"bonus_amount": decimal.NewNullDecimal(grant.Amount),
		})
	})
	if err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "deposit approved",
		zap.String("request_id", req.RequestID),
		zap.String("account_id", req.AccountID),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("bonus", grant.Amount.StringFixed(2)),
		zap.String("admin_id", adminID))
	metrics.RecordDecision(string(KindDeposit), string(StatusApproved))
	notify.Send(w.publisher, req.AccountID, notify.EventDepositApproved, map[string]interface{}{
		"request_id": req.RequestID,
		"amount":     req.Amount.StringFixed(2),
		"bonus":      grant.Amount.StringFixed(2),
	}, notify.ChannelEmail, notify.ChannelPush, notify.ChannelInApp)
	return req, nil
}

// RejectDeposit moves no money. A first-deposit claim taken at creation is
// handed back.
func (w *Workflow) RejectDeposit(ctx context.Context, requestID, adminID, reason string) (*Request, error) {
	var req *Request
	err := wallet.RunInTx(ctx, w.db, func(tx *gorm.DB) error {
		var err error
		if req, err = w.pending(ctx, tx, requestID, KindDeposit); err != nil {
			return err
		}
		if req.PromotionKey == promotion.KeyFirstDeposit108 {
			if err := w.accounts.SetFirstDepositClaim(ctx, tx, req.AccountID, false); err != nil {
				return err
			}
		}
		return w.decide(ctx, tx, req, DecisionReject, adminID, reason, nil)
	})
	if err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "deposit rejected",
		zap.String("request_id", req.RequestID),
		zap.String("account_id", req.AccountID),
		zap.String("reason", reason),
		zap.String("admin_id", adminID))
	metrics.RecordDecision(string(KindDeposit), string(StatusRejected))
	notify.Send(w.publisher, req.AccountID, notify.EventDepositRejected,
		map[string]interface{}{"request_id": req.RequestID, "reason": reason},
		notify.ChannelEmail, notify.ChannelInApp)
	return req, nil
}

// CreateWithdrawal reserves the amount in locked. Only available funds can be
// withdrawn. A failed check leaves nothing behind.
func (w *Workflow) CreateWithdrawal(ctx context.Context, in WithdrawalInput) (*Request, error) {
	if !in.Amount.IsPositive() || !in.Amount.Equal(in.Amount.Round(2)) {
		return nil, apperr.Validation("withdrawal amount %s must be positive with at most 2 decimals", in.Amount)
	}

	var req *Request
	err := wallet.RunInTx(ctx, w.db, func(tx *gorm.DB) error {
		acc, err := w.ledger.Lock(ctx, tx, in.AccountID)
		if err != nil {
			return err
		}
		if err := wallet.CheckActive(acc); err != nil {
			return err
		}
		if acc.KYCStatus != wallet.KYCApproved {
			return apperr.AccountState("KYC verification required before withdrawal")
		}
		if err := validAmount(in.Amount, w.limits.WithdrawMin, w.limits.WithdrawMax, "withdrawal"); err != nil {
			return err
		}
		status, err := w.tracker.StatusTx(ctx, tx, acc.AccountID)
		if err != nil {
			return err
		}
		if !status.CanWithdraw {
			return apperr.AccountState("wagering requirement not met, %s remaining", status.Remaining.StringFixed(2))
		}
		if acc.Available.LessThan(in.Amount) {
			return apperr.InsufficientFunds("available %s is less than withdrawal of %s",
				acc.Available.StringFixed(2), in.Amount.StringFixed(2))
		}

		requestID := uuid.New().String()
		if _, err := w.ledger.Reserve(ctx, tx, acc, in.Amount, wallet.Movement{
			Kind:        wallet.KindWithdrawal,
			Status:      wallet.EntryPending,
			ReferenceID: requestID,
			Metadata:    map[string]interface{}{"destination": in.Destination},
		}); err != nil {
			return err
		}

		now := w.now()
		req = &Request{
			RequestID:   requestID,
			AccountID:   acc.AccountID,
			Kind:        KindWithdrawal,
			Amount:      in.Amount,
			Destination: in.Destination,
			Status:      StatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return w.repo.Create(ctx, tx, req)
	})
	if err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "withdrawal requested",
		zap.String("request_id", req.RequestID),
		zap.String("account_id", req.AccountID),
		zap.String("amount", req.Amount.StringFixed(2)))
	metrics.RecordDecision(string(KindWithdrawal), "created")
	notify.Send(w.publisher, req.AccountID, notify.EventWithdrawalCreated,
		map[string]interface{}{"request_id": req.RequestID, "amount": req.Amount.StringFixed(2)},
		notify.ChannelEmail)
	return req, nil
}

// ApproveWithdrawal pays the reservation out of locked.
func (w *Workflow) ApproveWithdrawal(ctx context.Context, requestID, adminID string) (*Request, error) {
	var req *Request
	err := wallet.RunInTx(ctx, w.db, func(tx *gorm.DB) error {
		var err error
		if req, err = w.pending(ctx, tx, requestID, KindWithdrawal); err != nil {
			return err
		}
		acc, err := w.ledger.Lock(ctx, tx, req.AccountID)
		if err != nil {
			return err
		}
		if _, err := w.ledger.Settle(ctx, tx, acc, req.Amount, wallet.Movement{
			Kind:        wallet.KindWithdrawal,
			Status:      wallet.EntryCompleted,
			ReferenceID: req.RequestID,
			Metadata:    map[string]interface{}{"destination": req.Destination, "admin_id": adminID},
		}); err != nil {
			return err
		}
		return w.decide(ctx, tx, req, DecisionApprove, adminID, "", nil)
	})
	if err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "withdrawal approved",
		zap.String("request_id", req.RequestID),
		zap.String("account_id", req.AccountID),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("admin_id", adminID))
	metrics.RecordDecision(string(KindWithdrawal), string(StatusApproved))
	notify.Send(w.publisher, req.AccountID, notify.EventWithdrawalApproved,
		map[string]interface{}{"request_id": req.RequestID, "amount": req.Amount.StringFixed(2)},
		notify.ChannelEmail, notify.ChannelPush, notify.ChannelInApp)
	return req, nil
}

// RejectWithdrawal hands the reservation back to available.
func (w *Workflow) RejectWithdrawal(ctx context.Context, requestID, adminID, reason string) (*Request, error) {
	var req *Request
	err := wallet.RunInTx(ctx, w.db, func(tx *gorm.DB) error {
		var err error
		if req, err = w.pending(ctx, tx, requestID, KindWithdrawal); err != nil {
			return err
		}
		acc, err := w.ledger.Lock(ctx, tx, req.AccountID)
		if err != nil {
			return err
		}
		if _, err := w.ledger.Release(ctx, tx, acc, req.Amount, wallet.Movement{
			Kind:        wallet.KindWithdrawal,
			Status:      wallet.EntryRejected,
			ReferenceID: req.RequestID,
			Metadata:    map[string]interface{}{"reason": reason, "admin_id": adminID},
		}); err != nil {
			return err
		}
		return w.decide(ctx, tx, req, DecisionReject, adminID, reason, nil)
	})
	if err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "withdrawal rejected",
		zap.String("request_id", req.RequestID),
		zap.String("account_id", req.AccountID),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("reason", reason),
		zap.String("admin_id", adminID))
	metrics.RecordDecision(string(KindWithdrawal), string(StatusRejected))
	notify.Send(w.publisher, req.AccountID, notify.EventWithdrawalRejected,
		map[string]interface{}{"request_id": req.RequestID, "reason": reason},
		notify.ChannelEmail, notify.ChannelInApp)
	return req, nil
}

// Approve and Reject dispatch on the request kind for the admin surface.
func (w *Workflow) Approve(ctx context.Context, kind Kind, requestID, adminID string) (*Request, error) {
	switch kind {
	case KindDeposit:
		return w.ApproveDeposit(ctx, requestID, adminID)
	case KindWithdrawal:
		return w.ApproveWithdrawal(ctx, requestID, adminID)
	}
	return nil, apperr.Validation("unknown request kind %q", kind)
}

func (w *Workflow) Reject(ctx context.Context, kind Kind, requestID, adminID, reason string) (*Request, error) {
	switch kind {
	case KindDeposit:
		return w.RejectDeposit(ctx, requestID, adminID, reason)
	case KindWithdrawal:
		return w.RejectWithdrawal(ctx, requestID, adminID, reason)
	}
	return nil, apperr.Validation("unknown request kind %q", kind)
}

func (w *Workflow) Pending(ctx context.Context, kind Kind) ([]Request, error) {
	return w.repo.ListByStatus(ctx, kind, StatusPending)
}

func (w *Workflow) Requests(ctx context.Context, accountID string) ([]Request, error) {
	return w.repo.ListByAccount(ctx, accountID)
}

func (w *Workflow) load(ctx context.Context, requestID string, kind Kind) (*Request, error) {
	req, err := w.repo.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			return nil, apperr.NotFound("%s request %s not found", kind, requestID)
		}
		return nil, err
	}
	if req.Kind != kind {
		return nil, apperr.NotFound("%s request %s not found", kind, requestID)
	}
	return req, nil
}

// pending locks the request and fails with a conflict unless it can still
// be decided.
func (w *Workflow) pending(ctx context.Context, tx *gorm.DB, requestID string, kind Kind) (*Request, error) {
	req, err := w.repo.GetForUpdate(ctx, tx, requestID)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			return nil, apperr.NotFound("%s request %s not found", kind, requestID)
		}
		return nil, err
	}
	if req.Kind != kind {
		return nil, apperr.NotFound("%s request %s not found", kind, requestID)
	}
	if req.Status != StatusPending {
		return nil, apperr.Conflict("%s request %s is already %s", kind, requestID, req.Status)
	}
	return req, nil
}

func (w *Workflow) decide(ctx context.Context, tx *gorm.DB, req *Request, d Decision, adminID, reason string, extra map[string]interface{}) error {
	next, err := NextState(req.Status, d)
	if err != nil {
		return err
	}
	now := w.now()
	fields := map[string]interface{}{
		"status":     next,
		"decided_by": adminID,
		"decided_at": now,
		"updated_at": now,
	}
	if reason != "" {
		fields["rejection_reason"] = reason
	}
	for k, v := range extra {
		fields[k] = v
	}
	if err := w.repo.Transition(ctx, tx, req.RequestID, req.Status, fields); err != nil {
		if errors.Is(err, ErrRequestNotPending) {
			return apperr.Conflict("%s request %s was decided concurrently", req.Kind, req.RequestID)
		}
		return err
	}

	req.Status = next
	req.DecidedBy = adminID
	req.DecidedAt = &now
	req.UpdatedAt = now
	req.RejectionReason = reason
	if v, ok := extra["bonus_amount"].(decimal.NullDecimal); ok {
		req.BonusAmount = v
	}
	return nil
}
