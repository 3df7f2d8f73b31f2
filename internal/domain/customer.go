package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer holds loyalty and referral bookkeeping for a chat user.
type Customer struct {
	UserID         int64           `json:"userId"`
	ReferrerID     *int64          `json:"referrerId,omitempty"`
	Streak         int             `json:"streak"`
	LastPurchaseAt *time.Time      `json:"lastPurchaseAt,omitempty"`
	TotalSpent     decimal.Decimal `json:"totalSpent"`
	Level          int             `json:"level"`
	Tickets        int             `json:"tickets"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// OperationKind labels a ledger entry.
type OperationKind string

const (
	OperationTopup    OperationKind = "topup"
	OperationPurchase OperationKind = "purchase"
	OperationReferral OperationKind = "referral"
	// OperationHold sets aside the balance share of a pending checkout.
	OperationHold     OperationKind = "hold"
	OperationRelease  OperationKind = "release"
)

type LedgerOperation struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"userId"`
	Kind      OperationKind   `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
