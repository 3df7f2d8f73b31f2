package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PayloadKind tells how a stock payload is delivered.
type PayloadKind string

const (
	PayloadFile PayloadKind = "file"
	PayloadText PayloadKind = "text"
)

// StockPayload is the deliverable content of one stock unit. The kind is fixed
// when the unit is created and never re-derived from the value.
type StockPayload struct {
	Kind  PayloadKind `json:"kind"`
	Value string      `json:"value"`
}

func FilePayload(path string) StockPayload    { return StockPayload{Kind: PayloadFile, Value: path} }
func TextPayload(content string) StockPayload { return StockPayload{Kind: PayloadText, Value: content} }

// ParsePayloadKind validates a kind read from storage or an import file.
func ParsePayloadKind(s string) (PayloadKind, error) {
	switch PayloadKind(s) {
	case PayloadFile, PayloadText:
		return PayloadKind(s), nil
	default:
		return "", fmt.Errorf("unknown payload kind %q", s)
	}
}

// StockItem is one sellable unit of a finite-stock product.
type StockItem struct {
	ID        int64        `json:"id"`
	ProductID string       `json:"productId"`
	Payload   StockPayload `json:"payload"`
}

// ReservedUnit is one unit taken out of the sellable pool for a checkout.
// For infinite products StockID is zero and nothing was removed from stock.
type ReservedUnit struct {
	ProductID string          `json:"productId"`
	StockID   int64           `json:"stockId,omitempty"`
	Payload   StockPayload    `json:"payload"`
	Infinite  bool            `json:"infinite"`
	Amount    decimal.Decimal `json:"amount"`
}

// StockItem returns the inventory record a finite unit was taken from.
func (u ReservedUnit) StockItem() StockItem {
	return StockItem{ID: u.StockID, ProductID: u.ProductID, Payload: u.Payload}
}

// Sale is the archived record of one consumed unit.
type Sale struct {
	StockID   int64           `json:"stockId,omitempty"`
	ProductID string          `json:"productId"`
	BuyerID   int64           `json:"buyerId"`
	PaymentID string          `json:"paymentId"`
	Payload   StockPayload    `json:"payload"`
	Price     decimal.Decimal `json:"price"`
	SoldAt    time.Time       `json:"soldAt"`
}
