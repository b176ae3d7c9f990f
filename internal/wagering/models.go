package wagering

import (
	"time"

	"casino_ledger/internal/apperr"

	"github.com/shopspring/decimal"
)

type Source string

const (
	SourceDeposit  Source = "deposit"
	SourceBonus    Source = "bonus"
	SourceReferral Source = "referral"
	SourceRebate   Source = "rebate"
)

func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceDeposit, SourceBonus, SourceReferral, SourceRebate:
		return Source(s), nil
	}
	return "", apperr.Validation("unknown wagering source %q", s)
}

// HeldInBonus reports whether funds of this source sit in the bonus bucket
// until their requirement completes.
func (s Source) HeldInBonus() bool {
	return s == SourceReferral || s == SourceRebate
}

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Lower priority numbers are consumed first.
const (
	PriorityDeposit = 1
	PriorityBonus   = 2
	PriorityGrant   = 3
)

type Record struct {
	RecordID    uint64          `gorm:"column:record_id;primaryKey;autoIncrement" json:"record_id"`
	AccountID   string          `gorm:"column:account_id;type:varchar(36);not null;index:idx_wagering_account_status,priority:1" json:"account_id"`
	Source      Source          `gorm:"column:source;type:varchar(20);not null" json:"source"`
	SourceID    string          `gorm:"column:source_id;type:varchar(255);not null" json:"source_id"`
	Principal   decimal.Decimal `gorm:"column:principal;type:numeric(20,2);not null" json:"principal"`
	Multiplier  decimal.Decimal `gorm:"column:multiplier;type:numeric(10,2);not null" json:"multiplier"`
	Target      decimal.Decimal `gorm:"column:target;type:numeric(20,2);not null" json:"target"`
	Wagered     decimal.Decimal `gorm:"column:wagered;type:numeric(20,2);not null;default:0" json:"wagered"`
	Status      Status          `gorm:"column:status;type:varchar(20);not null;index:idx_wagering_account_status,priority:2" json:"status"`
	Priority    int             `gorm:"column:priority;not null" json:"priority"`
	CreatedAt   time.Time       `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;not null" json:"updated_at"`
	CompletedAt *time.Time      `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (Record) TableName() string { return "wagering_records" }

func (r *Record) Remaining() decimal.Decimal {
	rem := r.Target.Sub(r.Wagered)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// NewRecord is the input for creating a requirement.
type NewRecord struct {
	AccountID  string
	Source     Source
	SourceID   string
	Principal  decimal.Decimal
	Multiplier decimal.Decimal
	Priority   int
}

type AggregateStatus struct {
	HasActiveWagering bool            `json:"has_active_wagering"`
	TotalTarget       decimal.Decimal `json:"total_target"`
	TotalWagered      decimal.Decimal `json:"total_wagered"`
	Remaining         decimal.Decimal `json:"remaining"`
	CanWithdraw       bool            `json:"can_withdraw"`
	Records           []Record        `json:"records"`
}

// Progress is what one stake did to one record.
type Progress struct {
	RecordID  uint64          `json:"record_id"`
	Source    Source          `json:"source"`
	Consumed  decimal.Decimal `json:"consumed"`
	Completed bool            `json:"completed"`
}

type ApplyResult struct {
	Applied   decimal.Decimal  `json:"applied"`
	Progress  []Progress       `json:"progress"`
	Completed []Record         `json:"-"`
	Status    *AggregateStatus `json:"status"`
}
