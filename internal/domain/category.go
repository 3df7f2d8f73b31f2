package domain

import "time"

// Category groups products; AllowDiscounts controls promo eligibility of its products.
type Category struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	AllowDiscounts bool      `json:"allowDiscounts"`
	CreatedAt      time.Time `json:"createdAt"`
}
