package promotion

import (
	"context"
	"errors"
	"time"

	"casino_ledger/internal/apperr"
	"casino_ledger/internal/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Service struct {
	repo     Repository
	calc     *Calculator
	loc      *time.Location
	defaults map[Key]Table
}

func NewService(repo Repository, calc *Calculator, loc *time.Location, defaults map[Key]Table) *Service {
	if defaults == nil {
		defaults = map[Key]Table{KeyFirstDeposit108: DefaultFirstDeposit108()}
	}
	return &Service{repo: repo, calc: calc, loc: loc, defaults: defaults}
}

func (s *Service) Calculator() *Calculator { return s.calc }

func (s *Service) Location() *time.Location { return s.loc }

// Table returns the stored tiers for key, falling back to the configured default.
func (s *Service) Table(ctx context.Context, key Key) (Table, error) {
	table, err := s.repo.GetTable(ctx, key)
	if err == nil {
		return table, nil
	}
	if !errors.Is(err, ErrConfigNotFound) {
		return nil, err
	}
	return s.defaults[key], nil
}

func (s *Service) SaveTable(ctx context.Context, key Key, table Table, adminID string) error {
	if key != KeyFirstDeposit108 {
		return apperr.Validation("promotion %q has no tier table", key)
	}
	if len(table) == 0 {
		return apperr.Validation("tier table is empty")
	}
	if err := table.Validate(); err != nil {
		return err
	}
	if err := s.repo.SaveTable(ctx, key, table, adminID); err != nil {
		return err
	}
	logger.InfoCtx(ctx, "promotion table saved",
		zap.String("key", string(key)), zap.Int("tiers", len(table)), zap.String("admin_id", adminID))
	return nil
}

// Grant is the bonus decided at deposit approval. DailyDay is set only when the
// daily bonus was granted, and must then be recorded on the account.
type Grant struct {
	Amount   decimal.Decimal
	DailyDay string
}

// Compute decides the bonus for an approved deposit. table is only read for
// tiered keys; lastDailyDay is the account's last daily grant day.
func (s *Service) Compute(key Key, table Table, amount decimal.Decimal, lastDailyDay string, now time.Time) Grant {
	switch key {
	case KeyDailyFirstDeposit8:
		today := BusinessDay(now, s.loc)
		if lastDailyDay == today {
			return Grant{Amount: decimal.Zero}
		}
		return Grant{Amount: DailyBonus(amount), DailyDay: today}
	case KeyFirstDeposit108:
		return Grant{Amount: s.calc.ComputeBonus(amount, table)}
	default:
		return Grant{Amount: decimal.Zero}
	}
}
