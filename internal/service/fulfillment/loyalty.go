package fulfillment

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
	"github.com/ereal21/zxczxcz-sub000/internal/money"
)

// LoyaltyRules configures purchase side effects.
type LoyaltyRules struct {
	TicketsPerUnit  int
	ReferralPercent decimal.Decimal
	// LevelThresholds are cumulative spend amounts; reaching the i-th one
	// puts the customer on level i+1.
	LevelThresholds []decimal.Decimal
}

// advanceStreak counts consecutive calendar days with a purchase.
func advanceStreak(last *time.Time, streak int, now time.Time) int {
	if last == nil {
		return 1
	}
	lastDay := truncateDay(*last)
	today := truncateDay(now)
	switch {
	case lastDay.Equal(today):
		if streak == 0 {
			return 1
		}
		return streak
	case lastDay.AddDate(0, 0, 1).Equal(today):
		return streak + 1
	default:
		return 1
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func levelFor(spent decimal.Decimal, thresholds []decimal.Decimal) int {
	level := 0
	for _, th := range thresholds {
		if spent.GreaterThanOrEqual(th) {
			level++
		}
	}
	return level
}

// applyPurchase folds one settled checkout into the customer's loyalty record.
func (r LoyaltyRules) applyPurchase(c domain.Customer, units int, spent decimal.Decimal, now time.Time) domain.Customer {
	c.Streak = advanceStreak(c.LastPurchaseAt, c.Streak, now)
	c.LastPurchaseAt = &now
	c.TotalSpent = money.Round(c.TotalSpent.Add(spent))
	c.Level = levelFor(c.TotalSpent, r.LevelThresholds)
	c.Tickets += units * r.TicketsPerUnit
	return c
}

// referralReward is the referrer's cut of one unit price.
func (r LoyaltyRules) referralReward(amount decimal.Decimal) decimal.Decimal {
	if r.ReferralPercent.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return money.Percent(amount, r.ReferralPercent)
}
