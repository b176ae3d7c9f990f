package payment

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrRequestNotFound   = errors.New("request not found")
	ErrRequestNotPending = errors.New("request is not pending")
	ErrClaimExists       = errors.New("download claim already exists")
)

type Repository interface {
	Create(ctx context.Context, tx *gorm.DB, req *Request) error
	Get(ctx context.Context, requestID string) (*Request, error)
	GetForUpdate(ctx context.Context, tx *gorm.DB, requestID string) (*Request, error)
	Transition(ctx context.Context, tx *gorm.DB, requestID string, from Status, fields map[string]interface{}) error
	ListByStatus(ctx context.Context, kind Kind, status Status) ([]Request, error)
	ListByAccount(ctx context.Context, accountID string) ([]Request, error)
	HasApprovedDeposit(ctx context.Context, tx *gorm.DB, accountID string) (bool, error)
	ClaimExists(ctx context.Context, tx *gorm.DB, in DownloadClaimInput) (bool, error)
	CreateClaim(ctx context.Context, tx *gorm.DB, claim *DownloadClaim) error
}

type RepositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) Create(ctx context.Context, tx *gorm.DB, req *Request) error {
	if err := tx.WithContext(ctx).Create(req).Error; err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

func (r *RepositoryImpl) Get(ctx context.Context, requestID string) (*Request, error) {
	var req Request
	err := r.db.WithContext(ctx).Where("request_id = ?", requestID).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return &req, nil
}

func (r *RepositoryImpl) GetForUpdate(ctx context.Context, tx *gorm.DB, requestID string) (*Request, error) {
	var req Request
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("request_id = ?", requestID).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get request for update: %w", err)
	}
	return &req, nil
}

// Transition applies fields only while the request is still in from.
func (r *RepositoryImpl) Transition(ctx context.Context, tx *gorm.DB, requestID string, from Status, fields map[string]interface{}) error {
	result := tx.WithContext(ctx).Model(&Request{}).
		Where("request_id = ? AND status = ?", requestID, from).
		Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to update request: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRequestNotPending
	}
	return nil
}

func (r *RepositoryImpl) ListByStatus(ctx context.Context, kind Kind, status Status) ([]Request, error) {
	var reqs []Request
	err := r.db.WithContext(ctx).
		Where("kind = ? AND status = ?", kind, status).
		Order("created_at ASC").
		Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	return reqs, nil
}

func (r *RepositoryImpl) ListByAccount(ctx context.Context, accountID string) ([]Request, error) {
	var reqs []Request
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	return reqs, nil
}

func (r *RepositoryImpl) HasApprovedDeposit(ctx context.Context, tx *gorm.DB, accountID string) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&Request{}).
		Where("account_id = ? AND kind = ? AND status = ?", accountID, KindDeposit, StatusApproved).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to count deposits: %w", err)
	}
	return count > 0, nil
}

// ClaimExists reports whether any of the account, phone, device or install
// has already claimed the download bonus.
func (r *RepositoryImpl) ClaimExists(ctx context.Context, tx *gorm.DB, in DownloadClaimInput) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&DownloadClaim{}).
		Where("account_id = ? OR phone = ? OR device_id = ? OR install_id = ?",
			in.AccountID, in.Phone, in.DeviceID, in.InstallID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to look up download claims: %w", err)
	}
	return count > 0, nil
}

func (r *RepositoryImpl) CreateClaim(ctx context.Context, tx *gorm.DB, claim *DownloadClaim) error {
	if err := tx.WithContext(ctx).Create(claim).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrClaimExists
		}
		return fmt.Errorf("failed to create download claim: %w", err)
	}
	return nil
}
