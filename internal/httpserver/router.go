package httpserver

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
	"github.com/ereal21/zxczxcz-sub000/internal/metrics"
	"github.com/ereal21/zxczxcz-sub000/internal/service/checkout"
	customersvc "github.com/ereal21/zxczxcz-sub000/internal/service/customer"
	productsvc "github.com/ereal21/zxczxcz-sub000/internal/service/product"
)

type cartAPI interface {
	View(ctx context.Context, userID int64) (domain.PricedCart, error)
	AddItem(ctx context.Context, userID int64, productID string, quantity int) (domain.PricedCart, error)
	ChangeQuantity(ctx context.Context, userID int64, productID string, quantity int) (domain.PricedCart, error)
	Remove(ctx context.Context, userID int64, productID string) (domain.PricedCart, error)
	ApplyPromo(ctx context.Context, userID int64, code string) (domain.PricedCart, error)
	ClearPromo(ctx context.Context, userID int64) (domain.PricedCart, error)
}

type catalogAPI interface {
	List(ctx context.Context, categoryID string) ([]productsvc.View, error)
	Get(ctx context.Context, id string) (*productsvc.View, error)
}

type profileAPI interface {
	Profile(ctx context.Context, userID int64) (*customersvc.Profile, error)
	SetReferrer(ctx context.Context, userID, referrerID int64) error
}

type restockAPI interface {
	Subscribe(ctx context.Context, userID int64, productID string) error
}

type checkoutAPI interface {
	Begin(ctx context.Context, req checkout.BeginRequest) (*checkout.BeginResult, error)
	Cancel(ctx context.Context, userID int64, paymentID string) (checkout.Outcome, error)
	HandleWebhook(ctx context.Context, paymentID, status string) (checkout.Outcome, error)
}

// Deps carries the services behind the routes.
type Deps struct {
	Carts    cartAPI
	Checkout checkoutAPI
	Restock  restockAPI
	Catalog  catalogAPI
	Profiles profileAPI
	// IPNSecret verifies webhook signatures; empty disables the check.
	IPNSecret    string
	Ready        func(ctx context.Context) error
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
	AllowOrigins []string
}

// buildRouter wires routes for the API.
func buildRouter(logger *zap.Logger, deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if deps.Metrics == nil {
		deps.Metrics = metrics.Discard()
	}
	router := gin.New()
	router.Use(accessLog(logger, deps.Metrics), gin.Recovery())
	if len(deps.AllowOrigins) > 0 {
		cfg := cors.DefaultConfig()
		cfg.AllowOrigins = deps.AllowOrigins
		router.Use(cors.New(cfg))
	}

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(deps.Ready))
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(deps.Gatherer)))
	}

	h := &handlers{carts: deps.Carts, checkout: deps.Checkout, restock: deps.Restock, catalog: deps.Catalog, profiles: deps.Profiles, secret: deps.IPNSecret, logger: logger}
	router.POST("/webhooks/payments", h.paymentWebhook)

	router.GET("/products", h.listProducts)
	router.GET("/products/:productID", h.getProduct)

	users := router.Group("/users/:userID", userMiddleware())
	users.GET("/profile", h.getProfile)
	users.POST("/referrer", h.setReferrer)
	users.GET("/cart", h.viewCart)
	users.POST("/cart/items", h.addItem)
	users.PATCH("/cart/items/:productID", h.changeQuantity)
	users.DELETE("/cart/items/:productID", h.removeItem)
	users.POST("/cart/promo", h.applyPromo)
	users.DELETE("/cart/promo", h.clearPromo)
	users.POST("/products/:productID/subscribe", h.subscribeRestock)
	users.POST("/checkout", h.beginCheckout)
	users.POST("/checkouts/:paymentID/cancel", h.cancelCheckout)

	return router
}

// accessLog logs each request through zap and feeds the HTTP metrics.
func accessLog(logger *zap.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.HTTPLatencyMS.WithLabelValues(route).Observe(float64(elapsed.Milliseconds()))
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
		)
	}
}

const userIDKey = "userID"

func userMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("userID"), 10, 64)
		if err != nil || id == 0 {
			writeError(c, errBadRequest("invalid user id"))
			c.Abort()
			return
		}
		c.Set(userIDKey, id)
		c.Next()
	}
}

func userID(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}
