package promotion

import (
	"time"

	"casino_ledger/internal/apperr"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Key names the promotion a deposit request was created under.
type Key string

const (
	KeyNone               Key = "none"
	KeyDailyFirstDeposit8 Key = "daily_first_deposit_8"
	KeyFirstDeposit108    Key = "first_deposit_108"
)

func ParseKey(s string) (Key, error) {
	switch Key(s) {
	case "", KeyNone:
		return KeyNone, nil
	case KeyDailyFirstDeposit8, KeyFirstDeposit108:
		return Key(s), nil
	}
	return "", apperr.Validation("unknown promotion key %q", s)
}

// Tier maps a deposit range to either a fixed bonus or an inclusive integer range.
// A nil Max means the range is unbounded above.
type Tier struct {
	Min        decimal.Decimal  `json:"min" yaml:"min"`
	Max        *decimal.Decimal `json:"max" yaml:"max"`
	BonusFixed *decimal.Decimal `json:"bonus_fixed,omitempty" yaml:"bonus_fixed"`
	BonusMin   *int64           `json:"bonus_min,omitempty" yaml:"bonus_min"`
	BonusMax   *int64           `json:"bonus_max,omitempty" yaml:"bonus_max"`
}

func (t Tier) Contains(amount decimal.Decimal) bool {
	if amount.LessThan(t.Min) {
		return false
	}
	return t.Max == nil || amount.LessThanOrEqual(*t.Max)
}

// Table is scanned in order, first matching tier wins.
type Table []Tier

func (tb Table) Validate() error {
	for i, t := range tb {
		if t.Min.IsNegative() {
			return apperr.Validation("tier %d: min %s is negative", i, t.Min)
		}
		if t.Max != nil && t.Max.LessThan(t.Min) {
			return apperr.Validation("tier %d: max %s below min %s", i, t.Max, t.Min)
		}
		hasRange := t.BonusMin != nil || t.BonusMax != nil
		switch {
		case t.BonusFixed != nil && hasRange:
			return apperr.Validation("tier %d: both bonus_fixed and bonus range set", i)
		case t.BonusFixed != nil:
			if t.BonusFixed.IsNegative() {
				return apperr.Validation("tier %d: bonus_fixed %s is negative", i, t.BonusFixed)
			}
		case t.BonusMin == nil || t.BonusMax == nil:
			return apperr.Validation("tier %d: needs bonus_fixed or both bonus_min and bonus_max", i)
		case *t.BonusMin < 0 || *t.BonusMax < *t.BonusMin:
			return apperr.Validation("tier %d: bonus range [%d,%d] is invalid", i, *t.BonusMin, *t.BonusMax)
		}
	}
	return nil
}

func fixedTier(min, max, bonus int64) Tier {
	mx := decimal.NewFromInt(max)
	b := decimal.NewFromInt(bonus)
	return Tier{Min: decimal.NewFromInt(min), Max: &mx, BonusFixed: &b}
}

func rangeTier(min int64, max *int64, lo, hi int64) Tier {
	t := Tier{Min: decimal.NewFromInt(min), BonusMin: &lo, BonusMax: &hi}
	if max != nil {
		mx := decimal.NewFromInt(*max)
		t.Max = &mx
	}
	return t
}

func bound(v int64) *int64 { return &v }

// DefaultFirstDeposit108 is used until an operator stores a table of their own.
func DefaultFirstDeposit108() Table {
	return Table{
		fixedTier(100, 299, 108),
		fixedTier(300, 999, 229),
		rangeTier(1000, bound(4999), 301, 349),
		rangeTier(5000, bound(14999), 350, 500),
		rangeTier(15000, bound(24999), 501, 999),
		rangeTier(25000, bound(34999), 1000, 1999),
		rangeTier(35000, bound(44999), 2000, 2999),
		rangeTier(45000, nil, 3000, 3999),
	}
}

// Config is the persisted tier table for a promotion key.
type Config struct {
	Key       string         `gorm:"column:promo_key;primaryKey;type:varchar(64)"`
	Tiers     datatypes.JSON `gorm:"column:tiers;not null"`
	UpdatedBy string         `gorm:"column:updated_by;type:varchar(64)"`
	UpdatedAt time.Time      `gorm:"column:updated_at;not null"`
}

func (Config) TableName() string { return "promotion_configs" }
