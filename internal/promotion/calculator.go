package promotion

import (
	"math/rand"
	"sync"
	"time"

	_ "time/tzdata"

	"github.com/shopspring/decimal"
)

// DailyBonusRate is the flat share of a deposit granted once per business day.
var DailyBonusRate = decimal.RequireFromString("0.08")

// RandomSource is satisfied by *rand.Rand. Tests pass a seeded one.
type RandomSource interface {
	Int63n(n int64) int64
}

// Calculator turns deposits into bonus amounts. Safe for concurrent use.
type Calculator struct {
	mu  sync.Mutex
	rng RandomSource
}

func NewCalculator(rng RandomSource) *Calculator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Calculator{rng: rng}
}

// IntBetween returns a uniform integer in [lo, hi].
func (c *Calculator) IntBetween(lo, hi int64) int64 {
	if hi <= lo {
		return lo
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return lo + c.rng.Int63n(hi-lo+1)
}

// ComputeBonus scans the table in order. No matching tier means no bonus.
func (c *Calculator) ComputeBonus(amount decimal.Decimal, table Table) decimal.Decimal {
	for _, t := range table {
		if !t.Contains(amount) {
			continue
		}
		if t.BonusFixed != nil {
			return t.BonusFixed.Round(2)
		}
		if t.BonusMin == nil || t.BonusMax == nil {
			return decimal.Zero
		}
		return decimal.NewFromInt(c.IntBetween(*t.BonusMin, *t.BonusMax))
	}
	return decimal.Zero
}

func DailyBonus(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(DailyBonusRate).Round(2)
}

// BusinessDay is the calendar day of t in the operating timezone, e.g. "2025-03-14".
func BusinessDay(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = "Asia/Karachi"
	}
	return time.LoadLocation(name)
}
