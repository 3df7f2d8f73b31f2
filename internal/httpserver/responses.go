package httpserver

import (
	"time"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
	"github.com/ereal21/zxczxcz-sub000/internal/money"
	"github.com/ereal21/zxczxcz-sub000/internal/service/checkout"
	customersvc "github.com/ereal21/zxczxcz-sub000/internal/service/customer"
	productsvc "github.com/ereal21/zxczxcz-sub000/internal/service/product"
)

type productResponse struct {
	ID             string `json:"id"`
	CategoryID     string `json:"categoryId"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	Price          string `json:"price"`
	AllowDiscounts bool   `json:"allowDiscounts"`
	Infinite       bool   `json:"infinite"`
	Available      int    `json:"available"`
	InStock        bool   `json:"inStock"`
}

func toProductResponse(v productsvc.View) productResponse {
	return productResponse{
		ID:             v.ID,
		CategoryID:     v.CategoryID,
		Name:           v.Name,
		Description:    v.Description,
		Price:          money.Format(v.Price),
		AllowDiscounts: v.AllowDiscounts,
		Infinite:       v.Infinite,
		Available:      v.Available,
		InStock:        v.InStock,
	}
}

type profileResponse struct {
	UserID     int64               `json:"userId"`
	ReferrerID *int64              `json:"referrerId,omitempty"`
	Balance    string              `json:"balance"`
	TotalSpent string              `json:"totalSpent"`
	Level      int                 `json:"level"`
	Streak     int                 `json:"streak"`
	Tickets    int                 `json:"tickets"`
	Operations []operationResponse `json:"operations"`
}

type operationResponse struct {
	Kind      string `json:"kind"`
	Amount    string `json:"amount"`
	Reference string `json:"reference,omitempty"`
	CreatedAt string `json:"createdAt"`
}

func toProfileResponse(p *customersvc.Profile) profileResponse {
	resp := profileResponse{
		UserID:     p.UserID,
		ReferrerID: p.ReferrerID,
		Balance:    money.Format(p.Balance),
		TotalSpent: money.Format(p.TotalSpent),
		Level:      p.Level,
		Streak:     p.Streak,
		Tickets:    p.Tickets,
		Operations: make([]operationResponse, 0, len(p.Operations)),
	}
	for _, op := range p.Operations {
		resp.Operations = append(resp.Operations, operationResponse{
			Kind:      string(op.Kind),
			Amount:    money.Format(op.Amount),
			Reference: op.Reference,
			CreatedAt: op.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return resp
}

type cartResponse struct {
	Lines         []cartLineResponse `json:"lines"`
	Subtotal      string             `json:"subtotal"`
	Discount      string             `json:"discount"`
	GrandTotal    string             `json:"grandTotal"`
	PromoCode     string             `json:"promoCode,omitempty"`
	PromoRejected bool               `json:"promoRejected,omitempty"`
	Blocked       []blockedResponse  `json:"blocked,omitempty"`
}

type cartLineResponse struct {
	ProductID  string   `json:"productId"`
	Name       string   `json:"name"`
	UnitPrice  string   `json:"unitPrice"`
	Quantity   int      `json:"quantity"`
	LineTotal  string   `json:"lineTotal"`
	Discount   string   `json:"discount"`
	Final      string   `json:"final"`
	UnitSplits []string `json:"unitSplits"`
}

type blockedResponse struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Reason    string `json:"reason"`
}

func toCartResponse(c domain.PricedCart) cartResponse {
	resp := cartResponse{
		Lines:         make([]cartLineResponse, 0, len(c.Lines)),
		Subtotal:      money.Format(c.Subtotal),
		Discount:      money.Format(c.Discount),
		GrandTotal:    money.Format(c.GrandTotal),
		PromoRejected: c.PromoRejected,
	}
	if c.Promo != nil {
		resp.PromoCode = c.Promo.Code
	}
	for _, l := range c.Lines {
		splits := make([]string, len(l.UnitSplits))
		for i, s := range l.UnitSplits {
			splits[i] = money.Format(s)
		}
		resp.Lines = append(resp.Lines, cartLineResponse{
			ProductID:  l.ProductID,
			Name:       l.Name,
			UnitPrice:  money.Format(l.UnitPrice),
			Quantity:   l.Quantity,
			LineTotal:  money.Format(l.LineTotal),
			Discount:   money.Format(l.Discount),
			Final:      money.Format(l.Final),
			UnitSplits: splits,
		})
	}
	for _, b := range c.Blocked {
		resp.Blocked = append(resp.Blocked, blockedResponse{ProductID: b.ProductID, Name: b.Name, Reason: string(b.Reason)})
	}
	return resp
}

type checkoutResponse struct {
	CheckoutID  string           `json:"checkoutId"`
	State       string           `json:"state"`
	Total       string           `json:"total"`
	Discount    string           `json:"discount"`
	BalanceUsed string           `json:"balanceUsed"`
	AmountDue   string           `json:"amountDue"`
	Invoice     *invoiceResponse `json:"invoice,omitempty"`
	Delivered   *int             `json:"delivered,omitempty"`
	NewBalance  string           `json:"newBalance,omitempty"`
}

type invoiceResponse struct {
	PaymentID   string `json:"paymentId"`
	Address     string `json:"address"`
	PayAmount   string `json:"payAmount"`
	PayCurrency string `json:"payCurrency"`
}

func toCheckoutResponse(r *checkout.BeginResult) checkoutResponse {
	resp := checkoutResponse{
		CheckoutID:  r.CheckoutID,
		State:       r.State.String(),
		Total:       money.Format(r.Plan.Total),
		Discount:    money.Format(r.Plan.Discount),
		BalanceUsed: money.Format(r.BalanceUsed),
		AmountDue:   money.Format(r.AmountDue),
	}
	if r.Invoice != nil {
		resp.Invoice = &invoiceResponse{
			PaymentID:   r.Invoice.PaymentID,
			Address:     r.Invoice.Address,
			PayAmount:   r.Invoice.PayAmount.String(),
			PayCurrency: r.Invoice.PayCurrency,
		}
	}
	if r.Summary != nil {
		delivered := r.Summary.Delivered
		resp.Delivered = &delivered
		resp.NewBalance = money.Format(r.Summary.NewBalance)
	}
	return resp
}
