package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CheckoutState string

const (
	CheckoutQuoted          CheckoutState = "QUOTED"
	CheckoutReserved        CheckoutState = "RESERVED"
	CheckoutAwaitingPayment CheckoutState = "AWAITING_PAYMENT"
	CheckoutSettled         CheckoutState = "SETTLED"
	CheckoutCancelled       CheckoutState = "CANCELLED"
	CheckoutExpired         CheckoutState = "EXPIRED"
)

var checkoutTransitions = map[CheckoutState][]CheckoutState{
	CheckoutQuoted:          {CheckoutReserved},
	CheckoutReserved:        {CheckoutAwaitingPayment, CheckoutSettled, CheckoutQuoted},
	CheckoutAwaitingPayment: {CheckoutSettled, CheckoutCancelled, CheckoutExpired},
}

func (s CheckoutState) IsTerminal() bool {
	return s == CheckoutSettled || s == CheckoutCancelled || s == CheckoutExpired
}

func (s CheckoutState) String() string { return string(s) }

// CanTransitionTo reports whether the state machine allows from -> to.
func CanTransitionTo(from, to CheckoutState) bool {
	for _, next := range checkoutTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PlanLine is one frozen line of a checkout plan.
type PlanLine struct {
	ProductID  string            `json:"productId"`
	Name       string            `json:"name"`
	Quantity   int               `json:"quantity"`
	LineTotal  decimal.Decimal   `json:"lineTotal"`
	Discount   decimal.Decimal   `json:"discount"`
	Final      decimal.Decimal   `json:"final"`
	UnitSplits []decimal.Decimal `json:"unitSplits"`
}

// CheckoutPlan is the immutable snapshot both completion paths settle against.
type CheckoutPlan struct {
	Lines     []PlanLine      `json:"lines"`
	Total     decimal.Decimal `json:"total"`
	Discount  decimal.Decimal `json:"discount"`
	PromoCode string          `json:"promoCode,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// PlanFromCart freezes a priced cart into a checkout plan.
func PlanFromCart(c PricedCart, now time.Time) CheckoutPlan {
	plan := CheckoutPlan{
		Lines:     make([]PlanLine, 0, len(c.Lines)),
		Total:     c.GrandTotal,
		Discount:  c.Discount,
		CreatedAt: now,
	}
	if c.Promo != nil {
		plan.PromoCode = c.Promo.Code
	}
	for _, l := range c.Lines {
		splits := make([]decimal.Decimal, len(l.UnitSplits))
		copy(splits, l.UnitSplits)
		plan.Lines = append(plan.Lines, PlanLine{
			ProductID:  l.ProductID,
			Name:       l.Name,
			Quantity:   l.Quantity,
			LineTotal:  l.LineTotal,
			Discount:   l.Discount,
			Final:      l.Final,
			UnitSplits: splits,
		})
	}
	return plan
}

// Invoice is what the payment gateway returns for a new payment request.
type Invoice struct {
	PaymentID   string          `json:"paymentId"`
	Address     string          `json:"address"`
	PayAmount   decimal.Decimal `json:"payAmount"`
	PayCurrency string          `json:"payCurrency"`
}

// PaymentIntent is a checkout awaiting external payment. It is consumed
// exactly once by whichever completion observer takes it first.
type PaymentIntent struct {
	PaymentID   string          `json:"paymentId"`
	CheckoutID  string          `json:"checkoutId"`
	UserID      int64           `json:"userId"`
	GiftTo      *int64          `json:"giftTo,omitempty"`
	Units       []ReservedUnit  `json:"units"`
	Plan        CheckoutPlan    `json:"plan"`
	Total       decimal.Decimal `json:"total"`
	BalanceUsed decimal.Decimal `json:"balanceUsed"`
	Invoice     Invoice         `json:"invoice"`
	InvoiceMsg  int             `json:"invoiceMessageId,omitempty"`
	CartMsg     int             `json:"cartMessageId,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// AmountDue is the part of the total not covered by the account balance.
func (p PaymentIntent) AmountDue() decimal.Decimal {
	return p.Total.Sub(p.BalanceUsed)
}
