package wallet

import (
	"time"

	"casino_ledger/internal/apperr"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type KYCStatus string

const (
	KYCPending  KYCStatus = "pending"
	KYCApproved KYCStatus = "approved"
	KYCRejected KYCStatus = "rejected"
)

func ParseKYCStatus(s string) (KYCStatus, error) {
	switch KYCStatus(s) {
	case KYCPending, KYCApproved, KYCRejected:
		return KYCStatus(s), nil
	}
	return "", apperr.Validation("unknown kyc status %q", s)
}

type EntryKind string

const (
	KindDeposit    EntryKind = "deposit"
	KindWithdrawal EntryKind = "withdrawal"
	KindBet        EntryKind = "bet"
	KindWin        EntryKind = "win"
	KindBonus      EntryKind = "bonus"
	KindReferral   EntryKind = "referral"
	KindRebate     EntryKind = "rebate"
)

func ParseEntryKind(s string) (EntryKind, error) {
	switch EntryKind(s) {
	case KindDeposit, KindWithdrawal, KindBet, KindWin, KindBonus, KindReferral, KindRebate:
		return EntryKind(s), nil
	}
	return "", apperr.Validation("unknown entry kind %q", s)
}

type EntryStatus string

const (
	EntryPending   EntryStatus = "pending"
	EntryCompleted EntryStatus = "completed"
	EntryRejected  EntryStatus = "rejected"
)

// Account balances are written only through Ledger.
type Account struct {
	AccountID                string          `gorm:"column:account_id;primaryKey;type:varchar(36)"`
	Currency                 string          `gorm:"column:currency;type:varchar(3);not null"`
	Available                decimal.Decimal `gorm:"column:available;type:numeric(20,2);not null;default:0"`
	Locked                   decimal.Decimal `gorm:"column:locked;type:numeric(20,2);not null;default:0"`
	Bonus                    decimal.Decimal `gorm:"column:bonus;type:numeric(20,2);not null;default:0"`
	TotalDeposits            decimal.Decimal `gorm:"column:total_deposits;type:numeric(20,2);not null;default:0"`
	TotalWithdrawals         decimal.Decimal `gorm:"column:total_withdrawals;type:numeric(20,2);not null;default:0"`
	TotalBets                decimal.Decimal `gorm:"column:total_bets;type:numeric(20,2);not null;default:0"`
	TotalWins                decimal.Decimal `gorm:"column:total_wins;type:numeric(20,2);not null;default:0"`
	KYCStatus                KYCStatus       `gorm:"column:kyc_status;type:varchar(20);not null;default:'pending'"`
	IsActive                 bool            `gorm:"column:is_active;not null;default:true"`
	IsFrozen                 bool            `gorm:"column:is_frozen;not null;default:false"`
	FrozenReason             string          `gorm:"column:frozen_reason;type:varchar(255)"`
	FrozenAt                 *time.Time      `gorm:"column:frozen_at"`
	DailyBonusLastDate       string          `gorm:"column:daily_first_deposit_bonus_last_date;type:varchar(10)"`
	FirstDepositBonusClaimed bool            `gorm:"column:first_deposit_bonus_claimed;not null;default:false"`
	Version                  int             `gorm:"column:version;not null;default:1"`
	CreatedAt                time.Time       `gorm:"column:created_at;not null"`
	UpdatedAt                time.Time       `gorm:"column:updated_at;not null"`
}

func (a *Account) Total() decimal.Decimal {
	return a.Available.Add(a.Locked).Add(a.Bonus)
}

// Entry is an immutable audit row. Amount is the signed change to the account
// total; moves between buckets carry Amount 0 and the moved sum in Principal.
type Entry struct {
	EntryID       uint64            `gorm:"column:entry_id;primaryKey;autoIncrement" json:"entry_id"`
	AccountID     string            `gorm:"column:account_id;type:varchar(36);not null;index:idx_entries_account_created,priority:1" json:"account_id"`
	Kind          EntryKind         `gorm:"column:kind;type:varchar(20);not null" json:"kind"`
	Status        EntryStatus       `gorm:"column:status;type:varchar(20);not null" json:"status"`
	Amount        decimal.Decimal   `gorm:"column:amount;type:numeric(20,2);not null" json:"amount"`
	Principal     decimal.Decimal   `gorm:"column:principal;type:numeric(20,2);not null" json:"principal"`
	BalanceBefore decimal.Decimal   `gorm:"column:balance_before;type:numeric(20,2);not null" json:"balance_before"`
	BalanceAfter  decimal.Decimal   `gorm:"column:balance_after;type:numeric(20,2);not null" json:"balance_after"`
	LockedBefore  decimal.Decimal   `gorm:"column:locked_before;type:numeric(20,2);not null" json:"locked_before"`
	LockedAfter   decimal.Decimal   `gorm:"column:locked_after;type:numeric(20,2);not null" json:"locked_after"`
	BonusBefore   decimal.Decimal   `gorm:"column:bonus_before;type:numeric(20,2);not null" json:"bonus_before"`
	BonusAfter    decimal.Decimal   `gorm:"column:bonus_after;type:numeric(20,2);not null" json:"bonus_after"`
	ReferenceID   string            `gorm:"column:reference_id;type:varchar(255)" json:"reference_id"` // bet id, request id, grant id
	Metadata      datatypes.JSONMap `gorm:"column:metadata" json:"metadata"`
	CreatedAt     time.Time         `gorm:"column:created_at;not null;index:idx_entries_account_created,priority:2" json:"created_at"`
}

type Balance struct {
	AccountID        string          `json:"account_id"`
	Currency         string          `json:"currency"`
	Available        decimal.Decimal `json:"available"`
	Locked           decimal.Decimal `json:"locked"`
	Bonus            decimal.Decimal `json:"bonus"`
	Total            decimal.Decimal `json:"total"`
	TotalDeposits    decimal.Decimal `json:"total_deposits"`
	TotalWithdrawals decimal.Decimal `json:"total_withdrawals"`
	TotalBets        decimal.Decimal `json:"total_bets"`
	TotalWins        decimal.Decimal `json:"total_wins"`
	KYCStatus        KYCStatus       `json:"kyc_status"`
	IsActive         bool            `json:"is_active"`
	IsFrozen         bool            `json:"is_frozen"`
	Version          int             `json:"version"`
}

func (a *Account) Balance() *Balance {
	return &Balance{
		AccountID:        a.AccountID,
		Currency:         a.Currency,
		Available:        a.Available,
		Locked:           a.Locked,
		Bonus:            a.Bonus,
		Total:            a.Total(),
		TotalDeposits:    a.TotalDeposits,
		TotalWithdrawals: a.TotalWithdrawals,
		TotalBets:        a.TotalBets,
		TotalWins:        a.TotalWins,
		KYCStatus:        a.KYCStatus,
		IsActive:         a.IsActive,
		IsFrozen:         a.IsFrozen,
		Version:          a.Version,
	}
}

type Reconciliation struct {
	AccountID    string          `json:"account_id"`
	BalanceTotal decimal.Decimal `json:"balance_total"`
	EntrySum     decimal.Decimal `json:"entry_sum"`
	Balanced     bool            `json:"balanced"`
}
