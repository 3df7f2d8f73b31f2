package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID             string          `json:"id"`
	CategoryID     string          `json:"categoryId"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	Price          decimal.Decimal `json:"price"`
	AllowDiscounts bool            `json:"allowDiscounts"`
	// Infinite products are never decremented; every sale delivers InfinitePayload.
	Infinite        bool          `json:"infinite"`
	InfinitePayload *StockPayload `json:"-"`
	CreatedAt       time.Time     `json:"createdAt"`
}
