package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartLine is one product entry of a user's cart, joined with the product
// and category data pricing needs.
type CartLine struct {
	ProductID      string          `json:"productId"`
	Name           string          `json:"name"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	Quantity       int             `json:"quantity"`
	AllowDiscounts bool            `json:"allowDiscounts"`
	AddedAt        time.Time       `json:"addedAt"`
}

// Promo is a percentage promo code, optionally limited to an allow-list of products.
type Promo struct {
	Code      string          `json:"code"`
	Percent   decimal.Decimal `json:"percent"`
	Products  []string        `json:"products,omitempty"`
	ExpiresAt *time.Time      `json:"expiresAt,omitempty"`
}

// Assigned reports whether the promo's allow-list admits the product.
func (p Promo) Assigned(productID string) bool {
	if len(p.Products) == 0 {
		return true
	}
	for _, id := range p.Products {
		if id == productID {
			return true
		}
	}
	return false
}

func (p Promo) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

// BlockReason explains why a line is excluded from a promo.
type BlockReason string

const (
	BlockedByCategory   BlockReason = "category"
	BlockedByAssignment BlockReason = "assignment"
)

type BlockedLine struct {
	ProductID string      `json:"productId"`
	Name      string      `json:"name"`
	Reason    BlockReason `json:"reason"`
}

// PricedLine is a cart line with its computed amounts.
type PricedLine struct {
	CartLine
	PromoEligible bool              `json:"promoEligible"`
	LineTotal     decimal.Decimal   `json:"lineTotal"`
	Discount      decimal.Decimal   `json:"discount"`
	Final         decimal.Decimal   `json:"final"`
	UnitSplits    []decimal.Decimal `json:"unitSplits"`
}

// PricedCart is a derived projection of cart and promo; it is never persisted.
type PricedCart struct {
	Lines      []PricedLine    `json:"lines"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Discount   decimal.Decimal `json:"discount"`
	GrandTotal decimal.Decimal `json:"grandTotal"`
	Promo      *Promo          `json:"promo,omitempty"`
	Blocked    []BlockedLine   `json:"blocked,omitempty"`
	// PromoRejected is set when a promo was requested but no line was eligible.
	PromoRejected bool `json:"promoRejected,omitempty"`
}

func (c PricedCart) Empty() bool { return len(c.Lines) == 0 }
