package domain

import "errors"

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a record with the same key is stored twice.
	ErrAlreadyExists = errors.New("already exists")
	// ErrOutOfStock is returned when fewer finite units remain than requested.
	ErrOutOfStock = errors.New("out of stock")
	// ErrEmptyCart is returned when a checkout is started on an empty cart.
	ErrEmptyCart = errors.New("cart is empty, nothing to checkout")
	// ErrPromoNotApplicable means the promo has no eligible line in the cart.
	ErrPromoNotApplicable = errors.New("promo has no applicable items")
	ErrPromoExpired       = errors.New("promo expired")
	// ErrIllegalTransition guards the checkout state machine.
	ErrIllegalTransition = errors.New("illegal transition of checkout state")
	// ErrGatewayUnavailable wraps failures to create an invoice.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)
