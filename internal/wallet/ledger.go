package wallet

import (
	"context"
	"time"

	"casino_ledger/internal/apperr"
	"casino_ledger/internal/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Movement describes the audit side of a ledger operation.
type Movement struct {
	Kind        EntryKind
	Status      EntryStatus
	ReferenceID string
	Metadata    map[string]interface{}
}

// Ledger is the only writer of account balances. Every primitive runs inside
// the caller's transaction on an account obtained from Lock, applies one
// version-checked update and appends exactly one Entry.
type Ledger struct {
	repo Repository
	now  func() time.Time
}

func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// Lock loads the account under a row lock for the rest of tx.
func (l *Ledger) Lock(ctx context.Context, tx *gorm.DB, accountID string) (*Account, error) {
	acc, err := l.repo.GetAccountForUpdate(ctx, tx, accountID)
	if err != nil {
		if err == ErrAccountNotFound {
			return nil, apperr.NotFound("account %s not found", accountID)
		}
		return nil, err
	}
	return acc, nil
}

type delta struct {
	available decimal.Decimal
	locked    decimal.Decimal
	bonus     decimal.Decimal
}

func (d delta) total() decimal.Decimal {
	return d.available.Add(d.locked).Add(d.bonus)
}

// Credit adds amount to available.
func (l *Ledger) Credit(ctx context.Context, tx *gorm.DB, acc *Account, amount decimal.Decimal, m Movement) (*Entry, error) {
	if err := requirePositive(amount); err != nil {
		return nil, err
	}
	return l.apply(ctx, tx, acc, amount, delta{available: amount}, m)
}

// Debit removes amount from available.
func (l *Ledger) Debit(ctx context.Context, tx *gorm.DB, acc *Account, amount decimal.Decimal, m Movement) (*Entry, error) {
	if err := requirePositive(amount); err != nil {
		return nil, err
	}
	if acc.Available.LessThan(amount) {
		return nil, apperr.InsufficientFunds("available %s is less than %s", acc.Available.StringFixed(2), amount.StringFixed(2))
	}
	return l.apply(ctx, tx, acc, amount, delta{available: amount.Neg()}, m)
}

// Reserve moves amount from available to locked.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, acc *Account, amount decimal.Decimal, m Movement) (*Entry, error) {
	if err := requirePositive(amount); err != nil {
		return nil, err
	}
	if acc.Available.LessThan(amount) {
		return nil, apperr.InsufficientFunds("available %s is less than %s", acc.Available.StringFixed(2), amount.StringFixed(2))
	}
	return l.apply(ctx, tx, acc, amount, delta{available: amount.Neg(), locked: amount}, m)
}

// Release moves amount from locked back to available.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, acc *Account, amount decimal.Decimal, m Movement) (*Entry, error) {
	if err := requirePositive(amount); err != nil {
		return nil, err
	}
	if acc.Locked.LessThan(amount) {
		return nil, apperr.InsufficientFunds("locked %s is less than %s", acc.Locked.StringFixed(2), amount.StringFixed(2))
	}
	return l.apply(ctx, tx, acc, amount, delta{available: amount, locked: amount.Neg()}, m)
}

// Settle removes amount from locked. The funds leave the system.
func (l *Ledger) Settle(ctx context.Context, tx *gorm.DB, acc *Account, amount decimal.Decimal, m Movement) (*Entry, error) {
	if err := requirePositive(amount); err != nil {
		return nil, err
	}
	if acc.Locked.LessThan(amount) {
		return nil, apperr.InsufficientFunds("locked %s is less than %s", acc.Locked.StringFixed(2), amount.StringFixed(2))
	}
	return l.apply(ctx, tx, acc, amount, delta{locked: amount.Neg()}, m)
}

// CreditBonus adds amount to the bonus bucket.
func (l *Ledger) CreditBonus(ctx context.Context, tx *gorm.DB, acc *Account, amount decimal.Decimal, m Movement) (*Entry, error) {
	if err := requirePositive(amount); err != nil {
		return nil, err
	}
	return l.apply(ctx, tx, acc, amount, delta{bonus: amount}, m)
}

// ReleaseBonus moves up to amount from the bonus bucket into available. The
// move is capped at the bucket; an empty bucket is a no-op.
func (l *Ledger) ReleaseBonus(ctx context.Context, tx *gorm.DB, acc *Account, amount decimal.Decimal, m Movement) (*Entry, error) {
	if err := requirePositive(amount); err != nil {
		return nil, err
	}
	amount = decimal.Min(amount, acc.Bonus)
	if !amount.IsPositive() {
		return nil, nil
	}
	return l.apply(ctx, tx, acc, amount, delta{available: amount, bonus: amount.Neg()}, m)
}

func requirePositive(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.Validation("amount %s must be positive", amount.String())
	}
	if !amount.Equal(amount.Round(2)) {
		return apperr.Validation("amount %s has more than 2 decimal places", amount.String())
	}
	return nil
}

func (l *Ledger) apply(ctx context.Context, tx *gorm.DB, acc *Account, principal decimal.Decimal, d delta, m Movement) (*Entry, error) {
	if m.Status == "" {
		m.Status = EntryCompleted
	}
	before := *acc

	acc.Available = acc.Available.Add(d.available)
	acc.Locked = acc.Locked.Add(d.locked)
	acc.Bonus = acc.Bonus.Add(d.bonus)
	switch m.Kind {
	case KindDeposit:
		if d.total().IsPositive() {
			acc.TotalDeposits = acc.TotalDeposits.Add(principal)
		}
	case KindWithdrawal:
		if d.total().IsNegative() {
			acc.TotalWithdrawals = acc.TotalWithdrawals.Add(principal)
		}
	case KindBet:
		acc.TotalBets = acc.TotalBets.Add(principal)
	case KindWin:
		acc.TotalWins = acc.TotalWins.Add(principal)
	}

	if err := l.repo.UpdateBalances(ctx, tx, acc); err != nil {
		*acc = before
		return nil, err
	}

	entry := &Entry{
		AccountID:     acc.AccountID,
		Kind:          m.Kind,
		Status:        m.Status,
		Amount:        d.total(),
		Principal:     principal,
		BalanceBefore: before.Available,
		BalanceAfter:  acc.Available,
		LockedBefore:  before.Locked,
		LockedAfter:   acc.Locked,
		BonusBefore:   before.Bonus,
		BonusAfter:    acc.Bonus,
		ReferenceID:   m.ReferenceID,
		Metadata:      m.Metadata,
		CreatedAt:     l.now(),
	}
	if err := l.repo.CreateEntry(ctx, tx, entry); err != nil {
		return nil, err
	}

	logger.DebugCtx(ctx, "ledger entry",
		zap.String("account_id", acc.AccountID),
		zap.String("kind", string(m.Kind)),
		zap.String("status", string(m.Status)),
		zap.String("amount", entry.Amount.StringFixed(2)),
		zap.String("available", acc.Available.StringFixed(2)),
		zap.String("locked", acc.Locked.StringFixed(2)),
	)
	return entry, nil
}
