package wagering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrRecordNotFound = errors.New("wagering record not found")

type Repository interface {
	ListActiveForUpdate(ctx context.Context, tx *gorm.DB, accountID string) ([]Record, error)
	ListByAccount(ctx context.Context, tx *gorm.DB, accountID string, status Status) ([]Record, error)
	UpdateProgress(ctx context.Context, tx *gorm.DB, recordID uint64, wagered decimal.Decimal, status Status, completedAt *time.Time) error
	Create(ctx context.Context, tx *gorm.DB, record *Record) error
}

type RepositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *RepositoryImpl) ListActiveForUpdate(ctx context.Context, tx *gorm.DB, accountID string) ([]Record, error) {
	var records []Record
	err := r.conn(tx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ? AND status = ?", accountID, StatusActive).
		Order("priority ASC, record_id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to lock active wagering: %w", err)
	}
	return records, nil
}

// ListByAccount returns records in consumption order. An empty status means all.
func (r *RepositoryImpl) ListByAccount(ctx context.Context, tx *gorm.DB, accountID string, status Status) ([]Record, error) {
	var records []Record
	q := r.conn(tx).WithContext(ctx).Where("account_id = ?", accountID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Order("priority ASC, record_id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list wagering: %w", err)
	}
	return records, nil
}

func (r *RepositoryImpl) UpdateProgress(ctx context.Context, tx *gorm.DB, recordID uint64, wagered decimal.Decimal, status Status, completedAt *time.Time) error {
	result := r.conn(tx).WithContext(ctx).
		Model(&Record{}).
		Where("record_id = ? AND status = ?", recordID, StatusActive).
		Updates(map[string]interface{}{
			"wagered":      wagered,
			"status":       status,
			"completed_at": completedAt,
			"updated_at":   time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update wagering progress: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *RepositoryImpl) Create(ctx context.Context, tx *gorm.DB, record *Record) error {
	if err := r.conn(tx).WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create wagering record: %w", err)
	}
	return nil
}
