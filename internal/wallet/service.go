package wallet

import (
	"context"
	"errors"
	"time"

	"casino_ledger/internal/apperr"
	"casino_ledger/internal/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	MaxRetries = 3
	RetryDelay = 10 * time.Millisecond
)

// RunInTx runs fn in one database transaction and retries the whole unit when
// a balance update lost a version race.
func RunInTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	var err error
	for i := 0; i < MaxRetries; i++ {
		err = db.WithContext(ctx).Transaction(fn)
		if errors.Is(err, ErrOptimisticLock) {
			time.Sleep(RetryDelay)
			continue
		}
		return err
	}
	return apperr.Wrap(apperr.KindConflict, err, "account is busy, retry later")
}

type Service struct {
	db       *gorm.DB
	repo     Repository
	currency string
}

func NewService(db *gorm.DB, repo Repository, currency string) *Service {
	return &Service{db: db, repo: repo, currency: currency}
}

// OpenAccount creates an empty, active account. An empty id gets a fresh uuid.
func (s *Service) OpenAccount(ctx context.Context, accountID string) (*Account, error) {
	if accountID == "" {
		accountID = uuid.New().String()
	}
	if _, err := s.repo.GetAccount(ctx, accountID); err == nil {
		return nil, apperr.Conflict("account %s already exists", accountID)
	} else if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	acc := &Account{
		AccountID:        accountID,
		Currency:         s.currency,
		Available:        decimal.Zero,
		Locked:           decimal.Zero,
		Bonus:            decimal.Zero,
		TotalDeposits:    decimal.Zero,
		TotalWithdrawals: decimal.Zero,
		TotalBets:        decimal.Zero,
		TotalWins:        decimal.Zero,
		KYCStatus:        KYCPending,
		IsActive:         true,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.CreateAccount(ctx, acc); err != nil {
		if errors.Is(err, ErrAccountExists) {
			return nil, apperr.Conflict("account %s already exists", accountID)
		}
		return nil, err
	}
	logger.InfoCtx(ctx, "account opened", zap.String("account_id", accountID))
	return acc, nil
}

func (s *Service) Account(ctx context.Context, accountID string) (*Account, error) {
	acc, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, apperr.NotFound("account %s not found", accountID)
		}
		return nil, err
	}
	return acc, nil
}

func (s *Service) Balance(ctx context.Context, accountID string) (*Balance, error) {
	acc, err := s.Account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return acc.Balance(), nil
}

func (s *Service) History(ctx context.Context, accountID string, limit int) ([]Entry, error) {
	if _, err := s.Account(ctx, accountID); err != nil {
		return nil, err
	}
	return s.repo.ListEntries(ctx, accountID, limit)
}

// Reconcile compares the balance triple against the entry log.
func (s *Service) Reconcile(ctx context.Context, accountID string) (*Reconciliation, error) {
	acc, err := s.Account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	sum, err := s.repo.SumEntries(ctx, accountID)
	if err != nil {
		return nil, err
	}
	rec := &Reconciliation{
		AccountID:    accountID,
		BalanceTotal: acc.Total(),
		EntrySum:     sum,
		Balanced:     acc.Total().Equal(sum),
	}
	if !rec.Balanced {
		logger.ErrorCtx(ctx, "ledger out of balance",
			zap.String("account_id", accountID),
			zap.String("balance_total", rec.BalanceTotal.StringFixed(2)),
			zap.String("entry_sum", rec.EntrySum.StringFixed(2)))
	}
	return rec, nil
}

func (s *Service) SetKYCStatus(ctx context.Context, accountID string, status KYCStatus) error {
	if _, err := ParseKYCStatus(string(status)); err != nil {
		return err
	}
	return s.updateFlags(ctx, nil, accountID, map[string]interface{}{"kyc_status": status})
}

// Freeze blocks betting and withdrawals until an admin calls Unfreeze.
func (s *Service) Freeze(ctx context.Context, tx *gorm.DB, accountID string, reason string) error {
	now := time.Now().UTC()
	err := s.updateFlags(ctx, tx, accountID, map[string]interface{}{
		"is_frozen":     true,
		"frozen_reason": reason,
		"frozen_at":     now,
	})
	if err != nil {
		return err
	}
	logger.WarnCtx(ctx, "account frozen", zap.String("account_id", accountID), zap.String("reason", reason))
	return nil
}

func (s *Service) Unfreeze(ctx context.Context, accountID string) error {
	err := s.updateFlags(ctx, nil, accountID, map[string]interface{}{
		"is_frozen":     false,
		"frozen_reason": "",
		"frozen_at":     nil,
	})
	if err != nil {
		return err
	}
	logger.InfoCtx(ctx, "account unfrozen", zap.String("account_id", accountID))
	return nil
}

func (s *Service) Deactivate(ctx context.Context, accountID string) error {
	return s.updateFlags(ctx, nil, accountID, map[string]interface{}{"is_active": false})
}

// MarkDailyBonus records the business day on which the daily deposit bonus was granted.
func (s *Service) MarkDailyBonus(ctx context.Context, tx *gorm.DB, accountID string, day string) error {
	return s.updateFlags(ctx, tx, accountID, map[string]interface{}{"daily_first_deposit_bonus_last_date": day})
}

// SetFirstDepositClaim records or clears the lifetime first-deposit bonus claim.
func (s *Service) SetFirstDepositClaim(ctx context.Context, tx *gorm.DB, accountID string, claimed bool) error {
	return s.updateFlags(ctx, tx, accountID, map[string]interface{}{"first_deposit_bonus_claimed": claimed})
}

func (s *Service) updateFlags(ctx context.Context, tx *gorm.DB, accountID string, fields map[string]interface{}) error {
	if tx == nil {
		tx = s.db
	}
	err := s.repo.UpdateFlags(ctx, tx, accountID, fields)
	if errors.Is(err, ErrAccountNotFound) {
		return apperr.NotFound("account %s not found", accountID)
	}
	return err
}

// CheckActive returns an AccountStateError for inactive or frozen accounts.
func CheckActive(acc *Account) error {
	if !acc.IsActive {
		return apperr.AccountState("account is inactive")
	}
	if acc.IsFrozen {
		return apperr.AccountState("account is frozen")
	}
	return nil
}
