package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
	"github.com/ereal21/zxczxcz-sub000/internal/money"
)

func line(id, price string, qty int, allowDiscounts bool) domain.CartLine {
	return domain.CartLine{
		ProductID:      id,
		Name:           "product " + id,
		UnitPrice:      money.MustParse(price),
		Quantity:       qty,
		AllowDiscounts: allowDiscounts,
	}
}

func promo(percent int64, products ...string) *domain.Promo {
	return &domain.Promo{Code: "SAVE", Percent: decimal.NewFromInt(percent), Products: products}
}

func assertAmount(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Equal(t, want, money.Format(got), msgAndArgs...)
}

func assertConservation(t *testing.T, cart domain.PricedCart) {
	t.Helper()
	totals := make([]decimal.Decimal, 0, len(cart.Lines))
	finals := make([]decimal.Decimal, 0, len(cart.Lines))
	discounts := make([]decimal.Decimal, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		totals = append(totals, l.LineTotal)
		finals = append(finals, l.Final)
		discounts = append(discounts, l.Discount)
		assert.True(t, money.Sum(l.UnitSplits...).Equal(l.Final), "splits of %s sum to %s, final %s", l.ProductID, money.Sum(l.UnitSplits...), l.Final)
		assert.Len(t, l.UnitSplits, l.Quantity)
	}
	assert.True(t, money.Sum(totals...).Equal(cart.Subtotal), "subtotal mismatch")
	assert.True(t, money.Sum(finals...).Equal(cart.GrandTotal), "grand total mismatch")
	assert.True(t, money.Sum(discounts...).Equal(cart.Discount), "discount mismatch")
}

func TestPrice_MoneyConservation(t *testing.T) {
	for _, qty := range []int{1, 2, 3} {
		cart := New().Price([]domain.CartLine{line("A", "3.33", qty, true), line("B", "0.10", qty, false)}, nil)
		assertConservation(t, cart)
	}
}

func TestPrice_RepeatingThird(t *testing.T) {
	cart := New().Price([]domain.CartLine{line("A", "3.33", 3, true)}, nil)
	require.Len(t, cart.Lines, 1)
	assertAmount(t, "9.99", cart.GrandTotal)
	for _, split := range cart.Lines[0].UnitSplits {
		assertAmount(t, "3.33", split)
	}
}

func TestPrice_SplitResidueOnLastUnit(t *testing.T) {
	cart := New().Price([]domain.CartLine{line("A", "10.00", 3, true)}, promo(10))
	require.Len(t, cart.Lines, 1)
	l := cart.Lines[0]
	assertAmount(t, "3.00", l.Discount)
	assertAmount(t, "27.00", l.Final)

	cart = New().Price([]domain.CartLine{line("A", "3.34", 3, true)}, nil)
	l = cart.Lines[0]
	assertAmount(t, "10.02", l.Final)
	assertAmount(t, "3.34", l.UnitSplits[0])
	assertAmount(t, "3.34", l.UnitSplits[2])

	cart = New().Price([]domain.CartLine{line("A", "5.00", 3, true)}, promo(33))
	l = cart.Lines[0]
	assertAmount(t, "4.95", l.Discount)
	assertAmount(t, "10.05", l.Final)
	assertAmount(t, "3.35", l.UnitSplits[0])
	assertConservation(t, cart)
}

func TestPrice_PromoBlockedByCategory(t *testing.T) {
	cart := New().Price([]domain.CartLine{
		line("A", "10.00", 1, true),
		line("B", "20.00", 1, false),
	}, promo(10, "A"))

	require.NotNil(t, cart.Promo)
	assertAmount(t, "1.00", cart.Discount)
	assertAmount(t, "1.00", cart.Lines[0].Discount)
	assertAmount(t, "0.00", cart.Lines[1].Discount)
	assertAmount(t, "29.00", cart.GrandTotal)
	require.Len(t, cart.Blocked, 1)
	assert.Equal(t, "B", cart.Blocked[0].ProductID)
	assert.Equal(t, domain.BlockedByCategory, cart.Blocked[0].Reason)
	assertConservation(t, cart)
}

func TestPrice_PromoBlockedByAssignment(t *testing.T) {
	cart := New().Price([]domain.CartLine{
		line("A", "10.00", 1, true),
		line("C", "20.00", 1, true),
	}, promo(10, "A"))

	assertAmount(t, "1.00", cart.Discount)
	assert.True(t, cart.Lines[0].PromoEligible)
	assert.False(t, cart.Lines[1].PromoEligible)
	require.Len(t, cart.Blocked, 1)
	assert.Equal(t, "C", cart.Blocked[0].ProductID)
	assert.Equal(t, domain.BlockedByAssignment, cart.Blocked[0].Reason)
}

func TestPrice_FirstEligibleLineAbsorbsDiscountResidue(t *testing.T) {
	cart := New().Price([]domain.CartLine{
		line("A", "3.33", 1, true),
		line("B", "3.33", 1, true),
		line("C", "3.33", 1, true),
	}, promo(10))

	// 10% of 9.99 rounds to 1.00 while each line rounds to 0.33.
	assertAmount(t, "1.00", cart.Discount)
	assertAmount(t, "0.34", cart.Lines[0].Discount)
	assertAmount(t, "0.33", cart.Lines[1].Discount)
	assertAmount(t, "0.33", cart.Lines[2].Discount)
	assertAmount(t, "8.99", cart.GrandTotal)
	assertConservation(t, cart)
}

func TestPrice_ResidueSkipsIneligibleFirstLine(t *testing.T) {
	cart := New().Price([]domain.CartLine{
		line("X", "1.00", 1, false),
		line("A", "3.33", 1, true),
		line("B", "3.33", 2, true),
	}, promo(10))

	// eligible subtotal 9.99 -> 1.00; per-line 0.33 + 0.67 = 1.00, no residue
	assertAmount(t, "1.00", cart.Discount)
	assertAmount(t, "0.00", cart.Lines[0].Discount)
	assertAmount(t, "0.33", cart.Lines[1].Discount)
	assertConservation(t, cart)
}

func TestPrice_PromoWithoutEligibleLines(t *testing.T) {
	cart := New().Price([]domain.CartLine{line("B", "20.00", 1, false)}, promo(50))
	assert.Nil(t, cart.Promo)
	assert.True(t, cart.PromoRejected)
	assertAmount(t, "0.00", cart.Discount)
	assertAmount(t, "20.00", cart.GrandTotal)
}

func TestPrice_EmptyCart(t *testing.T) {
	cart := New().Price(nil, promo(10))
	assert.True(t, cart.Empty())
	assertAmount(t, "0.00", cart.Subtotal)
	assertAmount(t, "0.00", cart.GrandTotal)
}

func TestPrice_HappyPathScenario(t *testing.T) {
	cart := New().Price([]domain.CartLine{line("X", "10.00", 2, true)}, nil)
	assertAmount(t, "20.00", cart.GrandTotal)
	require.Len(t, cart.Lines[0].UnitSplits, 2)
	assertAmount(t, "10.00", cart.Lines[0].UnitSplits[0])
	assertAmount(t, "10.00", cart.Lines[0].UnitSplits[1])
}
