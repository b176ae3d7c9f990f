package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
	ErrOptimisticLock  = errors.New("optimistic lock error")
)

type Repository interface {
	GetAccount(ctx context.Context, accountID string) (*Account, error)
	GetAccountForUpdate(ctx context.Context, tx *gorm.DB, accountID string) (*Account, error)
	CreateAccount(ctx context.Context, account *Account) error
	UpdateBalances(ctx context.Context, tx *gorm.DB, account *Account) error
	UpdateFlags(ctx context.Context, tx *gorm.DB, accountID string, fields map[string]interface{}) error
	CreateEntry(ctx context.Context, tx *gorm.DB, entry *Entry) error
	ListEntries(ctx context.Context, accountID string, limit int) ([]Entry, error)
	SumEntries(ctx context.Context, accountID string) (decimal.Decimal, error)
}

type RepositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	var a Account
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &a, nil
}

func (r *RepositoryImpl) GetAccountForUpdate(ctx context.Context, tx *gorm.DB, accountID string) (*Account, error) {
	var a Account
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ?", accountID).
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}
	return &a, nil
}

func (r *RepositoryImpl) CreateAccount(ctx context.Context, account *Account) error {
	err := r.db.WithContext(ctx).Create(account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAccountExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// UpdateBalances writes the balance fields when the stored version still
// matches account.Version, then advances account.Version.
func (r *RepositoryImpl) UpdateBalances(ctx context.Context, tx *gorm.DB, account *Account) error {
	now := time.Now().UTC()
	result := tx.WithContext(ctx).Model(&Account{}).
		Where("account_id = ? AND version = ?", account.AccountID, account.Version).
		Updates(map[string]interface{}{
			"available":         account.Available,
			"locked":            account.Locked,
			"bonus":             account.Bonus,
			"total_deposits":    account.TotalDeposits,
			"total_withdrawals": account.TotalWithdrawals,
			"total_bets":        account.TotalBets,
			"total_wins":        account.TotalWins,
			"version":           gorm.Expr("version + 1"),
			"updated_at":        now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update balances: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	account.Version++
	account.UpdatedAt = now
	return nil
}

// UpdateFlags changes non-balance columns such as freeze and kyc state.
func (r *RepositoryImpl) UpdateFlags(ctx context.Context, tx *gorm.DB, accountID string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now().UTC()
	result := tx.WithContext(ctx).Model(&Account{}).
		Where("account_id = ?", accountID).
		Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to update account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *RepositoryImpl) CreateEntry(ctx context.Context, tx *gorm.DB, entry *Entry) error {
	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create entry: %w", err)
	}
	return nil
}

func (r *RepositoryImpl) ListEntries(ctx context.Context, accountID string, limit int) ([]Entry, error) {
	var entries []Entry
	q := r.db.WithContext(ctx).Where("account_id = ?", accountID).Order("entry_id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	return entries, nil
}

// SumEntries adds amounts in Go so the result is exact on every driver.
func (r *RepositoryImpl) SumEntries(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := r.db.WithContext(ctx).Model(&Entry{}).
		Where("account_id = ?", accountID).
		Pluck("amount", &amounts).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum entries: %w", err)
	}
	sum := decimal.Zero
	for _, a := range amounts {
		sum = sum.Add(a)
	}
	return sum, nil
}
