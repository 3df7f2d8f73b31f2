package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
	"github.com/ereal21/zxczxcz-sub000/internal/gateway"
	cartsvc "github.com/ereal21/zxczxcz-sub000/internal/service/cart"
	customersvc "github.com/ereal21/zxczxcz-sub000/internal/service/customer"
	"github.com/ereal21/zxczxcz-sub000/internal/service/reservation"
)

type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

func errBadRequest(msg string) error { return badRequest{msg: msg} }

type errorResponse struct {
	StatusCode int    `json:"statusCode"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// writeError maps domain errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	var br badRequest
	switch {
	case errors.As(err, &br), errors.Is(err, cartsvc.ErrInvalidQuantity):
		status, code = http.StatusBadRequest, "invalid_input"
	case errors.Is(err, customersvc.ErrSelfReferral):
		status, code = http.StatusBadRequest, "self_referral"
	case errors.Is(err, customersvc.ErrReferrerSet):
		status, code = http.StatusConflict, "referrer_set"
	case errors.Is(err, gateway.ErrBadSignature):
		status, code = http.StatusUnauthorized, "invalid_signature"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrEmptyCart):
		status, code = http.StatusConflict, "empty_cart"
	case errors.Is(err, reservation.ErrInStock):
		status, code = http.StatusConflict, "in_stock"
	case errors.Is(err, domain.ErrOutOfStock):
		status, code = http.StatusConflict, "out_of_stock"
	case errors.Is(err, domain.ErrPromoNotApplicable):
		status, code = http.StatusUnprocessableEntity, "promo_not_applicable"
	case errors.Is(err, domain.ErrPromoExpired):
		status, code = http.StatusUnprocessableEntity, "promo_expired"
	case errors.Is(err, domain.ErrGatewayUnavailable):
		status, code = http.StatusServiceUnavailable, "gateway_unavailable"
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.JSON(status, errorResponse{StatusCode: status, Code: code, Message: msg})
}
