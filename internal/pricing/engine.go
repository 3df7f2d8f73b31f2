// Package pricing turns cart lines and an optional promo into a priced
// breakdown. It is a pure projection and never touches storage.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
	"github.com/ereal21/zxczxcz-sub000/internal/money"
)

type Engine struct{}

func New() *Engine { return &Engine{} }

// Price computes line totals, the promo discount and per-unit payment splits.
//
// The discount is taken on the eligible subtotal; any difference between it
// and the sum of rounded per-line discounts lands on the first eligible line.
// The per-unit residue of each line lands on its last unit.
func (e *Engine) Price(lines []domain.CartLine, promo *domain.Promo) domain.PricedCart {
	cart := domain.PricedCart{
		Lines:      make([]domain.PricedLine, 0, len(lines)),
		Subtotal:   decimal.Zero,
		Discount:   decimal.Zero,
		GrandTotal: decimal.Zero,
	}

	eligible := make([]int, 0, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		pl := domain.PricedLine{
			CartLine:  l,
			LineTotal: money.Round(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))),
			Discount:  decimal.Zero,
		}
		if promo != nil {
			switch {
			case !l.AllowDiscounts:
				cart.Blocked = append(cart.Blocked, domain.BlockedLine{ProductID: l.ProductID, Name: l.Name, Reason: domain.BlockedByCategory})
			case !promo.Assigned(l.ProductID):
				cart.Blocked = append(cart.Blocked, domain.BlockedLine{ProductID: l.ProductID, Name: l.Name, Reason: domain.BlockedByAssignment})
			default:
				pl.PromoEligible = true
				eligible = append(eligible, len(cart.Lines))
			}
		}
		cart.Subtotal = cart.Subtotal.Add(pl.LineTotal)
		cart.Lines = append(cart.Lines, pl)
	}

	if promo != nil {
		if len(eligible) == 0 {
			cart.PromoRejected = true
		} else {
			applied := *promo
			cart.Promo = &applied
			cart.Discount = applyDiscount(cart.Lines, eligible, promo.Percent)
		}
	}

	finals := make([]decimal.Decimal, 0, len(cart.Lines))
	for i := range cart.Lines {
		l := &cart.Lines[i]
		l.Final = l.LineTotal.Sub(l.Discount)
		l.UnitSplits = money.Split(l.Final, l.Quantity)
		finals = append(finals, l.Final)
	}
	cart.GrandTotal = money.Round(money.Sum(finals...))
	return cart
}

func applyDiscount(lines []domain.PricedLine, eligible []int, percent decimal.Decimal) decimal.Decimal {
	eligibleTotal := decimal.Zero
	perLine := decimal.Zero
	for _, idx := range eligible {
		l := &lines[idx]
		l.Discount = money.Percent(l.LineTotal, percent)
		perLine = perLine.Add(l.Discount)
		eligibleTotal = eligibleTotal.Add(l.LineTotal)
	}
	amount := money.Percent(eligibleTotal, percent)
	if residue := amount.Sub(perLine); !residue.IsZero() {
		first := &lines[eligible[0]]
		first.Discount = first.Discount.Add(residue)
		if first.Discount.GreaterThan(first.LineTotal) {
			amount = amount.Sub(first.Discount.Sub(first.LineTotal))
			first.Discount = first.LineTotal
		}
		if first.Discount.IsNegative() {
			amount = amount.Sub(first.Discount)
			first.Discount = decimal.Zero
		}
	}
	return amount
}
