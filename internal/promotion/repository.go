package promotion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrConfigNotFound = errors.New("promotion config not found")

type Repository interface {
	GetTable(ctx context.Context, key Key) (Table, error)
	SaveTable(ctx context.Context, key Key, table Table, updatedBy string) error
}

type RepositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) GetTable(ctx context.Context, key Key) (Table, error) {
	var cfg Config
	err := r.db.WithContext(ctx).Where("promo_key = ?", string(key)).First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to get promotion config: %w", err)
	}

	var table Table
	if err := json.Unmarshal(cfg.Tiers, &table); err != nil {
		return nil, fmt.Errorf("failed to decode promotion config %s: %w", key, err)
	}
	return table, nil
}

func (r *RepositoryImpl) SaveTable(ctx context.Context, key Key, table Table, updatedBy string) error {
	raw, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("failed to encode promotion config: %w", err)
	}
	cfg := Config{
		Key:       string(key),
		Tiers:     raw,
		UpdatedBy: updatedBy,
		UpdatedAt: time.Now().UTC(),
	}
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "promo_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"tiers", "updated_by", "updated_at"}),
		}).
		Create(&cfg).Error
	if err != nil {
		return fmt.Errorf("failed to save promotion config: %w", err)
	}
	return nil
}
