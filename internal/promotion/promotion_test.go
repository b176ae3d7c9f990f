package promotion_test

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"casino_ledger/internal/apperr"
	"casino_ledger/internal/database/dbtest"
	"casino_ledger/internal/promotion"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeBonusFirstDeposit108(t *testing.T) {
	calc := promotion.NewCalculator(rand.New(rand.NewSource(1)))
	table := promotion.DefaultFirstDeposit108()

	tests := []struct {
		name   string
		amount string
		lo, hi string
	}{
		{"below first tier", "99.99", "0", "0"},
		{"first tier lower bound", "100", "108", "108"},
		{"first tier upper bound", "299", "108", "108"},
		{"gap between tiers", "299.50", "0", "0"},
		{"second tier", "300", "229", "229"},
		{"ranged tier", "1000", "301", "349"},
		{"unbounded tier", "1000000", "3000", "3999"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.ComputeBonus(dec(tt.amount), table)
			assert.True(t, got.GreaterThanOrEqual(dec(tt.lo)), "bonus %s below %s", got, tt.lo)
			assert.True(t, got.LessThanOrEqual(dec(tt.hi)), "bonus %s above %s", got, tt.hi)
			assert.True(t, got.Equal(got.Truncate(0)), "bonus %s is not an integer", got)
		})
	}
}

func TestComputeBonusSeededSourceIsReproducible(t *testing.T) {
	table := promotion.DefaultFirstDeposit108()
	a := promotion.NewCalculator(rand.New(rand.NewSource(42)))
	b := promotion.NewCalculator(rand.New(rand.NewSource(42)))

	for i := 0; i < 20; i++ {
		assert.True(t, a.ComputeBonus(dec("5000"), table).Equal(b.ComputeBonus(dec("5000"), table)))
	}
}

type fixedSource struct{ n int64 }

func (f fixedSource) Int63n(n int64) int64 { return f.n % n }

func TestIntBetweenIsInclusive(t *testing.T) {
	assert.Equal(t, int64(33), promotion.NewCalculator(fixedSource{0}).IntBetween(33, 43))
	assert.Equal(t, int64(43), promotion.NewCalculator(fixedSource{10}).IntBetween(33, 43))
	assert.Equal(t, int64(7), promotion.NewCalculator(fixedSource{5}).IntBetween(7, 7))
}

func TestTableValidate(t *testing.T) {
	five := int64(5)
	three := int64(3)
	ten := dec("10")
	low := dec("1")

	tests := []struct {
		name  string
		table promotion.Table
		ok    bool
	}{
		{"default", promotion.DefaultFirstDeposit108(), true},
		{"max below min", promotion.Table{{Min: dec("100"), Max: &low, BonusFixed: &ten}}, false},
		{"no bonus", promotion.Table{{Min: dec("1")}}, false},
		{"both kinds", promotion.Table{{Min: dec("1"), BonusFixed: &ten, BonusMin: &three, BonusMax: &five}}, false},
		{"inverted range", promotion.Table{{Min: dec("1"), BonusMin: &five, BonusMax: &three}}, false},
		{"negative min", promotion.Table{{Min: dec("-1"), BonusFixed: &ten}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func TestDailyBonusOncePerBusinessDay(t *testing.T) {
	loc, err := promotion.LoadLocation("Asia/Karachi")
	require.NoError(t, err)
	svc := promotion.NewService(nil, promotion.NewCalculator(nil), loc, nil)

	// 20:30 UTC is already the next day in Karachi (UTC+5).
	now := time.Date(2025, 3, 14, 20, 30, 0, 0, time.UTC)

	first := svc.Compute(promotion.KeyDailyFirstDeposit8, nil, dec("1000"), "", now)
	assert.True(t, first.Amount.Equal(dec("80")))
	assert.Equal(t, "2025-03-15", first.DailyDay)

	second := svc.Compute(promotion.KeyDailyFirstDeposit8, nil, dec("1000"), first.DailyDay, now.Add(time.Hour))
	assert.True(t, second.Amount.IsZero())
	assert.Empty(t, second.DailyDay)

	nextDay := svc.Compute(promotion.KeyDailyFirstDeposit8, nil, dec("250"), first.DailyDay, now.Add(24*time.Hour))
	assert.True(t, nextDay.Amount.Equal(dec("20")))
}

func TestDailyBonusRounding(t *testing.T) {
	assert.Equal(t, "24.69", promotion.DailyBonus(dec("308.64")).StringFixed(2))
}

func TestParseKey(t *testing.T) {
	k, err := promotion.ParseKey("")
	require.NoError(t, err)
	assert.Equal(t, promotion.KeyNone, k)

	k, err = promotion.ParseKey("first_deposit_108")
	require.NoError(t, err)
	assert.Equal(t, promotion.KeyFirstDeposit108, k)

	_, err = promotion.ParseKey("weekend_reload")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestTableStoreFallsBackToDefault(t *testing.T) {
	db := dbtest.Open(t, &promotion.Config{})
	ctx := context.Background()
	loc, _ := promotion.LoadLocation("")
	svc := promotion.NewService(promotion.NewRepository(db), promotion.NewCalculator(nil), loc, nil)

	table, err := svc.Table(ctx, promotion.KeyFirstDeposit108)
	require.NoError(t, err)
	assert.Len(t, table, 8)

	bonus := dec("150")
	custom := promotion.Table{{Min: dec("100"), BonusFixed: &bonus}}
	require.NoError(t, svc.SaveTable(ctx, promotion.KeyFirstDeposit108, custom, "admin-1"))

	table, err = svc.Table(ctx, promotion.KeyFirstDeposit108)
	require.NoError(t, err)
	require.Len(t, table, 1)
	assert.True(t, table[0].BonusFixed.Equal(bonus))
	assert.Nil(t, table[0].Max)

	// upsert replaces the stored table
	require.NoError(t, svc.SaveTable(ctx, promotion.KeyFirstDeposit108, promotion.DefaultFirstDeposit108(), "admin-2"))
	table, err = svc.Table(ctx, promotion.KeyFirstDeposit108)
	require.NoError(t, err)
	assert.Len(t, table, 8)

	err = svc.SaveTable(ctx, promotion.KeyFirstDeposit108, promotion.Table{{Min: dec("1")}}, "admin-1")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
