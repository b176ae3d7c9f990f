package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, tx *gorm.DB, bet *Bet) error
	StakeSince(ctx context.Context, tx *gorm.DB, accountID string, since time.Time) (decimal.Decimal, error)
	ListByAccount(ctx context.Context, accountID string, limit int) ([]Bet, error)
}

type RepositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) Create(ctx context.Context, tx *gorm.DB, bet *Bet) error {
	if err := tx.WithContext(ctx).Create(bet).Error; err != nil {
		return fmt.Errorf("failed to create bet: %w", err)
	}
	return nil
}

// StakeSince sums stakes placed at or after since.
func (r *RepositoryImpl) StakeSince(ctx context.Context, tx *gorm.DB, accountID string, since time.Time) (decimal.Decimal, error) {
	var stakes []decimal.Decimal
	err := tx.WithContext(ctx).Model(&Bet{}).
		Where("account_id = ? AND created_at >= ?", accountID, since).
		Pluck("stake", &stakes).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum stakes: %w", err)
	}
	total := decimal.Zero
	for _, s := range stakes {
		total = total.Add(s)
	}
	return total, nil
}

func (r *RepositoryImpl) ListByAccount(ctx context.Context, accountID string, limit int) ([]Bet, error) {
	var bets []Bet
	q := r.db.WithContext(ctx).Where("account_id = ?", accountID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&bets).Error; err != nil {
		return nil, fmt.Errorf("failed to list bets: %w", err)
	}
	return bets, nil
}
