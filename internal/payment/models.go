package payment

import (
	"time"

	"casino_ledger/internal/apperr"
	"casino_ledger/internal/promotion"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindDeposit    Kind = "deposit"
	KindWithdrawal Kind = "withdrawal"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindDeposit, KindWithdrawal:
		return Kind(s), nil
	}
	return "", apperr.Validation("unknown request kind %q", s)
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// NextState is the whole request lifecycle: pending moves once to a terminal
// state and nothing else moves.
func NextState(current Status, d Decision) (Status, error) {
	if current != StatusPending {
		return "", apperr.Conflict("request is already %s", current)
	}
	switch d {
	case DecisionApprove:
		return StatusApproved, nil
	case DecisionReject:
		return StatusRejected, nil
	}
	return "", apperr.Validation("unknown decision %q", d)
}

// Request is a deposit or withdrawal awaiting an admin decision.
type Request struct {
	RequestID         string              `gorm:"column:request_id;primaryKey;type:varchar(36)" json:"request_id"`
	AccountID         string              `gorm:"column:account_id;type:varchar(36);not null;index" json:"account_id"`
	Kind              Kind                `gorm:"column:kind;type:varchar(20);not null;index:idx_requests_kind_status,priority:1" json:"kind"`
	Amount            decimal.Decimal     `gorm:"column:amount;type:numeric(20,2);not null" json:"amount"`
	Destination       string              `gorm:"column:destination;type:varchar(64)" json:"destination"`
	Status            Status              `gorm:"column:status;type:varchar(20);not null;index:idx_requests_kind_status,priority:2" json:"status"`
	PromotionKey      promotion.Key       `gorm:"column:promotion_key;type:varchar(40)" json:"promotion_key,omitempty"`
	DepositMultiplier decimal.NullDecimal `gorm:"column:deposit_multiplier;type:numeric(10,2)" json:"deposit_multiplier,omitempty"`
	BonusAmount       decimal.NullDecimal `gorm:"column:bonus_amount;type:numeric(20,2)" json:"bonus_amount,omitempty"`
	RejectionReason   string              `gorm:"column:rejection_reason;type:varchar(255)" json:"rejection_reason,omitempty"`
	DecidedBy         string              `gorm:"column:decided_by;type:varchar(36)" json:"decided_by,omitempty"`
	CreatedAt         time.Time           `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;not null" json:"updated_at"`
	DecidedAt         *time.Time          `gorm:"column:decided_at" json:"decided_at,omitempty"`
}

func (Request) TableName() string { return "payment_requests" }

// DownloadClaim marks a device, install and phone as used for the app
// download bonus.
type DownloadClaim struct {
	ClaimID   string          `gorm:"column:claim_id;primaryKey;type:varchar(36)"`
	AccountID string          `gorm:"column:account_id;type:varchar(36);not null;uniqueIndex"`
	Phone     string          `gorm:"column:phone;type:varchar(32);not null;uniqueIndex"`
	DeviceID  string          `gorm:"column:device_id;type:varchar(128);not null;uniqueIndex"`
	InstallID string          `gorm:"column:install_id;type:varchar(128);not null;uniqueIndex"`
	Amount    decimal.Decimal `gorm:"column:amount;type:numeric(20,2);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;not null"`
}

func (DownloadClaim) TableName() string { return "download_claims" }

// Limits are the operator bounds for requests and grants.
type Limits struct {
	DepositMin         decimal.Decimal
	DepositMax         decimal.Decimal
	WithdrawMin        decimal.Decimal
	WithdrawMax        decimal.Decimal
	MultiplierMin      int64
	MultiplierMax      int64
	BonusMultiplier    decimal.Decimal
	ReferralMultiplier decimal.Decimal
	RebateMultiplier   decimal.Decimal
	DownloadBonusMin   int64
	DownloadBonusMax   int64
}

func DefaultLimits() Limits {
	return Limits{
		DepositMin:         decimal.NewFromInt(300),
		DepositMax:         decimal.NewFromInt(50000),
		WithdrawMin:        decimal.NewFromInt(300),
		WithdrawMax:        decimal.NewFromInt(30000),
		MultiplierMin:      3,
		MultiplierMax:      3,
		BonusMultiplier:    decimal.NewFromInt(35),
		ReferralMultiplier: decimal.NewFromInt(10),
		RebateMultiplier:   decimal.NewFromInt(1),
		DownloadBonusMin:   33,
		DownloadBonusMax:   43,
	}
}

type DepositInput struct {
	AccountID    string          `json:"-"`
	Amount       decimal.Decimal `json:"amount"`
	Destination  string          `json:"destination"`
	PromotionKey string          `json:"promotion_key"`
}

type WithdrawalInput struct {
	AccountID   string          `json:"-"`
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination"`
}

type GrantInput struct {
	AccountID string          `json:"-"`
	Kind      string          `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
	AdminID   string          `json:"-"`
}

type DownloadClaimInput struct {
	AccountID string `json:"-"`
	Phone     string `json:"phone"`
	DeviceID  string `json:"device_id"`
	InstallID string `json:"install_id"`
}

// DownloadClaimResult never says why a claim was not granted.
type DownloadClaimResult struct {
	Granted bool             `json:"granted"`
	Amount  *decimal.Decimal `json:"amount,omitempty"`
}
