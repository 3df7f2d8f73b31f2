package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
)

// Config configures the NOWPayments client.
type Config struct {
	BaseURL     string
	APIKey      string
	CallbackURL string
	Timeout     time.Duration
}

// Client talks to a NOWPayments-compatible REST API. Calls go through a
// circuit breaker; transport failures and open-breaker rejections surface
// as domain.ErrGatewayUnavailable.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		IsSuccessful: func(err error) bool {
			var se *statusError
			return err == nil || (errors.As(err, &se) && se.code < 500)
		},
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		logger:  logger,
	}
}

type createPaymentRequest struct {
	PriceAmount      string `json:"price_amount"`
	PriceCurrency    string `json:"price_currency"`
	PayCurrency      string `json:"pay_currency"`
	IPNCallbackURL   string `json:"ipn_callback_url,omitempty"`
	OrderID          string `json:"order_id"`
	OrderDescription string `json:"order_description,omitempty"`
}

type paymentResponse struct {
	PaymentID     json.Number `json:"payment_id"`
	PaymentStatus string      `json:"payment_status"`
	PayAddress    string      `json:"pay_address"`
	PayAmount     json.Number `json:"pay_amount"`
	PayCurrency   string      `json:"pay_currency"`
}

func (c *Client) CreateInvoice(ctx context.Context, req InvoiceRequest) (domain.Invoice, error) {
	priceCurrency := req.PriceCurrency
	if priceCurrency == "" {
		priceCurrency = "usd"
	}
	body, err := json.Marshal(createPaymentRequest{
		PriceAmount:      req.Amount.StringFixed(2),
		PriceCurrency:    priceCurrency,
		PayCurrency:      strings.ToLower(req.PayCurrency),
		IPNCallbackURL:   c.cfg.CallbackURL,
		OrderID:          req.OrderID,
		OrderDescription: req.Description,
	})
	if err != nil {
		return domain.Invoice{}, err
	}
	raw, err := c.do(ctx, http.MethodPost, "/payment", body)
	if err != nil {
		return domain.Invoice{}, err
	}
	var resp paymentResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domain.Invoice{}, fmt.Errorf("decode payment: %w", err)
	}
	if resp.PaymentID == "" || resp.PayAddress == "" {
		return domain.Invoice{}, fmt.Errorf("%w: incomplete invoice", domain.ErrGatewayUnavailable)
	}
	payAmount, err := decimal.NewFromString(resp.PayAmount.String())
	if err != nil {
		return domain.Invoice{}, fmt.Errorf("decode pay amount: %w", err)
	}
	c.logger.Info("invoice created",
		zap.String("order_id", req.OrderID),
		zap.String("payment_id", resp.PaymentID.String()),
		zap.String("pay_currency", resp.PayCurrency),
	)
	return domain.Invoice{
		PaymentID:   resp.PaymentID.String(),
		Address:     resp.PayAddress,
		PayAmount:   payAmount,
		PayCurrency: resp.PayCurrency,
	}, nil
}

func (c *Client) Status(ctx context.Context, paymentID string) (string, error) {
	raw, err := c.do(ctx, http.MethodGet, "/payment/"+url.PathEscape(paymentID), nil)
	if err != nil {
		return "", err
	}
	var resp paymentResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode status: %w", err)
	}
	return resp.PaymentStatus, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.code, e.body)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	raw, err := c.breaker.Execute(func() ([]byte, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("x-api-key", c.cfg.APIKey)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 300 {
			return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(data))}
		}
		return data, nil
	})
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code < 500 {
			return nil, err
		}
		c.logger.Warn("gateway call failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	return raw, nil
}
