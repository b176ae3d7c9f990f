package settlement

import (
	"time"

	"casino_ledger/internal/wagering"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const GameCrash = "crash"

type BetStatus string

const (
	BetWon  BetStatus = "won"
	BetLost BetStatus = "lost"
)

// Bet is written once, already settled.
type Bet struct {
	BetID      string            `gorm:"column:bet_id;primaryKey;type:varchar(36)" json:"bet_id"`
	AccountID  string            `gorm:"column:account_id;type:varchar(36);not null;index:idx_bets_account_created,priority:1" json:"account_id"`
	GameID     string            `gorm:"column:game_id;type:varchar(40);not null" json:"game_id"`
	Stake      decimal.Decimal   `gorm:"column:stake;type:numeric(20,2);not null" json:"stake"`
	Multiplier decimal.Decimal   `gorm:"column:multiplier;type:numeric(10,2);not null" json:"multiplier"`
	Outcome    decimal.Decimal   `gorm:"column:outcome;type:numeric(10,2);not null" json:"outcome"`
	Payout     decimal.Decimal   `gorm:"column:payout;type:numeric(20,2);not null" json:"payout"`
	Status     BetStatus         `gorm:"column:status;type:varchar(10);not null" json:"status"`
	Params     datatypes.JSONMap `gorm:"column:params" json:"params"`
	Result     datatypes.JSONMap `gorm:"column:result" json:"result"`
	CreatedAt  time.Time         `gorm:"column:created_at;not null;index:idx_bets_account_created,priority:2" json:"created_at"`
	SettledAt  time.Time         `gorm:"column:settled_at;not null" json:"settled_at"`
}

// Settings are the operator controls for the crash game.
type Settings struct {
	Enabled    bool
	HouseEdge  float64
	MinBet     decimal.Decimal
	MaxBet     decimal.Decimal
	DailyLimit decimal.Decimal
}

var (
	MinCashoutTarget = decimal.RequireFromString("1.01")
	MaxCashoutTarget = decimal.RequireFromString("100")
)

type SettleRequest struct {
	AccountID     string          `json:"-"`
	Stake         decimal.Decimal `json:"stake"`
	CashoutTarget decimal.Decimal `json:"cashout_target"`
	ClientSeed    string          `json:"client_seed,omitempty"`
	Sequence      *int64          `json:"sequence,omitempty"`
}

type Balances struct {
	Available decimal.Decimal `json:"available"`
	Locked    decimal.Decimal `json:"locked"`
}

type SettleResult struct {
	BetID          string                    `json:"bet_id"`
	Won            bool                      `json:"won"`
	Stake          decimal.Decimal           `json:"stake"`
	CashoutTarget  decimal.Decimal           `json:"cashout_target"`
	Payout         decimal.Decimal           `json:"payout"`
	OutcomeValue   decimal.Decimal           `json:"outcome_value"`
	CommitmentHash string                    `json:"commitment_hash"`
	RevealedSecret string                    `json:"revealed_secret"`
	ClientSeed     string                    `json:"client_seed"`
	Sequence       int64                     `json:"sequence"`
	HouseEdge      float64                   `json:"house_edge"`
	VerifyRef      string                    `json:"verify_ref"`
	Balances       Balances                  `json:"balances"`
	Wagering       *wagering.AggregateStatus `json:"wagering,omitempty"`
}
