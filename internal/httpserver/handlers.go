package httpserver

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
	"github.com/ereal21/zxczxcz-sub000/internal/gateway"
	"github.com/ereal21/zxczxcz-sub000/internal/service/checkout"
)

const signatureHeader = "x-nowpayments-sig"

type handlers struct {
	carts    cartAPI
	checkout checkoutAPI
	restock  restockAPI
	catalog  catalogAPI
	profiles profileAPI
	secret   string
	logger   *zap.Logger
}

type ipnRequest struct {
	PaymentID     paymentID `json:"payment_id"`
	PaymentStatus string    `json:"payment_status"`
}

// paymentID accepts the id as a JSON number or string.
type paymentID string

func (p *paymentID) UnmarshalJSON(b []byte) error {
	*p = paymentID(strings.Trim(strings.TrimSpace(string(b)), `"`))
	return nil
}

// paymentWebhook acknowledges every verified notification, including ones
// for intents that are already settled or cancelled.
func (h *handlers) paymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		writeError(c, errBadRequest("unreadable body"))
		return
	}
	if err := gateway.VerifySignature(body, c.GetHeader(signatureHeader), h.secret); err != nil {
		h.logger.Warn("webhook rejected", zap.Error(err))
		writeError(c, gateway.ErrBadSignature)
		return
	}
	var req ipnRequest
	if err := json.Unmarshal(body, &req); err != nil || req.PaymentID == "" {
		writeError(c, errBadRequest("payment_id and payment_status required"))
		return
	}
	out, err := h.checkout.HandleWebhook(c.Request.Context(), string(req.PaymentID), req.PaymentStatus)
	if err != nil {
		h.logger.Error("webhook handling failed", zap.String("payment_id", string(req.PaymentID)), zap.Error(err))
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "outcome": out})
}

func (h *handlers) listProducts(c *gin.Context) {
	views, err := h.catalog.List(c.Request.Context(), c.Query("category"))
	if err != nil {
		writeError(c, err)
		return
	}
	resp := make([]productResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, toProductResponse(v))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) getProduct(c *gin.Context) {
	v, err := h.catalog.Get(c.Request.Context(), c.Param("productID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProductResponse(*v))
}

func (h *handlers) getProfile(c *gin.Context) {
	p, err := h.profiles.Profile(c.Request.Context(), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProfileResponse(p))
}

type referrerRequest struct {
	ReferrerID int64 `json:"referrerId"`
}

func (h *handlers) setReferrer(c *gin.Context) {
	var req referrerRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ReferrerID == 0 {
		writeError(c, errBadRequest("referrerId required"))
		return
	}
	if err := h.profiles.SetReferrer(c.Request.Context(), userID(c), req.ReferrerID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) viewCart(c *gin.Context) {
	priced, err := h.carts.View(c.Request.Context(), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(priced))
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (h *handlers) addItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errBadRequest("invalid json"))
		return
	}
	priced, err := h.carts.AddItem(c.Request.Context(), userID(c), req.ProductID, req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(priced))
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *handlers) changeQuantity(c *gin.Context) {
	var req quantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errBadRequest("invalid json"))
		return
	}
	priced, err := h.carts.ChangeQuantity(c.Request.Context(), userID(c), c.Param("productID"), req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(priced))
}

func (h *handlers) removeItem(c *gin.Context) {
	priced, err := h.carts.Remove(c.Request.Context(), userID(c), c.Param("productID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(priced))
}

type promoRequest struct {
	Code string `json:"code"`
}

func (h *handlers) applyPromo(c *gin.Context) {
	var req promoRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		writeError(c, errBadRequest("code required"))
		return
	}
	priced, err := h.carts.ApplyPromo(c.Request.Context(), userID(c), req.Code)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(priced))
}

func (h *handlers) clearPromo(c *gin.Context) {
	priced, err := h.carts.ClearPromo(c.Request.Context(), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(priced))
}

func (h *handlers) subscribeRestock(c *gin.Context) {
	if err := h.restock.Subscribe(c.Request.Context(), userID(c), c.Param("productID")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "subscribed"})
}

type checkoutRequest struct {
	PayCurrency string `json:"payCurrency"`
	GiftTo      *int64 `json:"giftTo,omitempty"`
	CartMsg     int    `json:"cartMessageId,omitempty"`
	InvoiceMsg  int    `json:"invoiceMessageId,omitempty"`
}

func (h *handlers) beginCheckout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errBadRequest("invalid json"))
		return
	}
	if strings.TrimSpace(req.PayCurrency) == "" {
		writeError(c, errBadRequest("payCurrency required"))
		return
	}
	res, err := h.checkout.Begin(c.Request.Context(), checkout.BeginRequest{
		UserID:      userID(c),
		PayCurrency: req.PayCurrency,
		GiftTo:      req.GiftTo,
		CartMsg:     req.CartMsg,
		InvoiceMsg:  req.InvoiceMsg,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusAccepted
	if res.State == domain.CheckoutSettled {
		status = http.StatusOK
	}
	c.JSON(status, toCheckoutResponse(res))
}

func (h *handlers) cancelCheckout(c *gin.Context) {
	out, err := h.checkout.Cancel(c.Request.Context(), userID(c), c.Param("paymentID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": out})
}
