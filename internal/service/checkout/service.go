package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
	"github.com/ereal21/zxczxcz-sub000/internal/gateway"
	"github.com/ereal21/zxczxcz-sub000/internal/metrics"
	"github.com/ereal21/zxczxcz-sub000/internal/notify"
	"github.com/ereal21/zxczxcz-sub000/internal/repository/intent"
	"github.com/ereal21/zxczxcz-sub000/internal/service/fulfillment"
)

type cartViewer interface {
	View(ctx context.Context, userID int64) (domain.PricedCart, error)
}

type reserver interface {
	ReservePlan(ctx context.Context, plan domain.CheckoutPlan) ([]domain.ReservedUnit, error)
	Restore(ctx context.Context, units []domain.ReservedUnit) error
}

type balanceHolder interface {
	Hold(ctx context.Context, userID int64, limit decimal.Decimal, reference string) (decimal.Decimal, error)
	Adjust(ctx context.Context, userID int64, delta decimal.Decimal, kind domain.OperationKind, reference string) (decimal.Decimal, error)
}

type dispatcher interface {
	Dispatch(ctx context.Context, s fulfillment.Settlement) fulfillment.Summary
}

type Config struct {
	// PollDelay is the wait before the poll observer's first status check.
	PollDelay time.Duration
	// PollAttempts bounds the status checks; the intent expires after the last.
	PollAttempts int
	// PollBackoff is the wait after the first failed check; it doubles each time.
	PollBackoff time.Duration
	// IntentTTL is the age after which the reconciler resolves an intent.
	IntentTTL time.Duration
	// SweepConcurrency bounds parallel gateway checks during a sweep.
	SweepConcurrency int
	// SettleTimeout bounds the work that follows a consumed intent. That
	// work runs detached from the observer's context.
	SettleTimeout time.Duration
}

// Service runs the checkout state machine: quote, reserve, invoice, then
// settle exactly once through whichever observer consumes the intent first.
type Service struct {
	carts      cartViewer
	reserve    reserver
	ledger     balanceHolder
	gateway    gateway.Gateway
	intents    intent.Store
	dispatcher dispatcher
	notifier   notify.Notifier
	metrics    *metrics.Metrics
	logger     *zap.Logger
	cfg        Config

	now      func() time.Time
	newID    func() string
	autoPoll bool

	// pollers run on their own context so they outlive the request that
	// started them.
	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

type Deps struct {
	Carts      cartViewer
	Reserve    reserver
	Ledger     balanceHolder
	Gateway    gateway.Gateway
	Intents    intent.Store
	Dispatcher dispatcher
	Notifier   notify.Notifier
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

func New(d Deps, cfg Config) *Service {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Discard()
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 1
	}
	if cfg.SweepConcurrency <= 0 {
		cfg.SweepConcurrency = 4
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = 30 * time.Second
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Service{
		carts:      d.Carts,
		reserve:    d.Reserve,
		ledger:     d.Ledger,
		gateway:    d.Gateway,
		intents:    d.Intents,
		dispatcher: d.Dispatcher,
		notifier:   d.Notifier,
		metrics:    d.Metrics,
		logger:     d.Logger,
		cfg:        cfg,
		now:        time.Now,
		newID:      uuid.NewString,
		autoPoll:   true,
		ctx:        ctx,
		stop:       stop,
	}
}

// Close stops background pollers and waits for them to return. Intents they
// were watching stay in the store for the webhook or the reconciler.
func (s *Service) Close() {
	s.stop()
	s.wg.Wait()
}

// Quote prices the user's cart without touching stock.
func (s *Service) Quote(ctx context.Context, userID int64) (domain.PricedCart, error) {
	priced, err := s.carts.View(ctx, userID)
	if err != nil {
		return domain.PricedCart{}, err
	}
	if priced.Empty() {
		return priced, domain.ErrEmptyCart
	}
	return priced, nil
}

type BeginRequest struct {
	UserID      int64
	PayCurrency string
	GiftTo      *int64
	CartMsg     int
	InvoiceMsg  int
}

type BeginResult struct {
	CheckoutID  string
	State       domain.CheckoutState
	Plan        domain.CheckoutPlan
	BalanceUsed decimal.Decimal
	AmountDue   decimal.Decimal
	// Invoice is set when the state is AWAITING_PAYMENT.
	Invoice *domain.Invoice
	// Summary is set when the balance covered everything and the
	// checkout settled immediately.
	Summary *fulfillment.Summary
}

// Begin freezes the cart into a plan, reserves stock, holds the balance
// share and either settles from the balance or issues an invoice and
// starts the poll observer. Invoice and store failures restore every
// reserved unit and release the hold.
func (s *Service) Begin(ctx context.Context, req BeginRequest) (*BeginResult, error) {
	run := newRun(s.newID(), s.logger.With(zap.Int64("user_id", req.UserID)))

	priced, err := s.Quote(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	plan := domain.PlanFromCart(priced, s.now())

	units, err := s.reserve.ReservePlan(ctx, plan)
	if err != nil {
		s.metrics.CheckoutsStarted.WithLabelValues("out_of_stock").Inc()
		return nil, err
	}
	if err := run.advance(domain.CheckoutReserved); err != nil {
		return nil, err
	}

	used, err := s.ledger.Hold(ctx, req.UserID, plan.Total, run.id)
	if err != nil {
		return nil, s.abort(ctx, run, req.UserID, units, decimal.Zero, fmt.Errorf("hold balance: %w", err))
	}
	due := plan.Total.Sub(used)

	in := domain.PaymentIntent{
		CheckoutID:  run.id,
		UserID:      req.UserID,
		GiftTo:      req.GiftTo,
		Units:       units,
		Plan:        plan,
		Total:       plan.Total,
		BalanceUsed: used,
		CartMsg:     req.CartMsg,
		CreatedAt:   s.now(),
	}
	result := &BeginResult{CheckoutID: run.id, Plan: plan, BalanceUsed: used, AmountDue: due}

	if !due.IsPositive() {
		if err := run.advance(domain.CheckoutSettled); err != nil {
			return nil, err
		}
		in.PaymentID = "balance-" + run.id
		dctx, done := s.detach(ctx)
		defer done()
		sum := s.dispatcher.Dispatch(dctx, fulfillment.Settlement{Intent: in, ExternalPaid: decimal.Zero, Observer: observerBalance})
		s.metrics.CheckoutsStarted.WithLabelValues("settled_from_balance").Inc()
		s.metrics.Settlements.WithLabelValues(observerBalance).Inc()
		result.State = run.state
		result.Summary = &sum
		return result, nil
	}

	inv, err := s.gateway.CreateInvoice(ctx, gateway.InvoiceRequest{
		OrderID:     run.id,
		Amount:      due,
		PayCurrency: req.PayCurrency,
		Description: fmt.Sprintf("Order %s", run.id),
	})
	if err != nil {
		s.metrics.CheckoutsStarted.WithLabelValues("gateway_error").Inc()
		return nil, s.abort(ctx, run, req.UserID, units, used, fmt.Errorf("create invoice: %w", err))
	}
	in.PaymentID = inv.PaymentID
	in.Invoice = inv
	in.InvoiceMsg = req.InvoiceMsg

	if err := s.intents.Put(ctx, in); err != nil {
		s.metrics.CheckoutsStarted.WithLabelValues("store_error").Inc()
		return nil, s.abort(ctx, run, req.UserID, units, used, fmt.Errorf("store intent %s: %w", inv.PaymentID, err))
	}
	if err := run.advance(domain.CheckoutAwaitingPayment); err != nil {
		return nil, err
	}
	s.metrics.CheckoutsStarted.WithLabelValues("awaiting_payment").Inc()
	s.metrics.PendingIntents.Inc()

	if s.autoPoll {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.Poll(s.ctx, inv.PaymentID)
		}()
	}

	result.State = run.state
	result.Invoice = &inv
	return result, nil
}

// abort returns a RESERVED checkout to QUOTED, restores its stock and
// releases the held balance.
func (s *Service) abort(ctx context.Context, run *checkoutRun, userID int64, units []domain.ReservedUnit, held decimal.Decimal, cause error) error {
	ctx, done := s.detach(ctx)
	defer done()
	if err := s.reserve.Restore(ctx, units); err != nil {
		run.logger.Error("restore after aborted checkout", zap.Error(err))
		cause = errors.Join(cause, err)
	}
	if err := s.release(ctx, userID, run.id, held); err != nil {
		run.logger.Error("release hold after aborted checkout", zap.Error(err))
		cause = errors.Join(cause, err)
	}
	if err := run.advance(domain.CheckoutQuoted); err != nil {
		cause = errors.Join(cause, err)
	}
	return cause
}

// detach returns a context that survives cancellation of ctx, bounded by
// SettleTimeout.
func (s *Service) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SettleTimeout)
}

// release returns a held balance share to the buyer.
func (s *Service) release(ctx context.Context, userID int64, checkoutID string, held decimal.Decimal) error {
	if !held.IsPositive() {
		return nil
	}
	_, err := s.ledger.Adjust(ctx, userID, held, domain.OperationRelease, checkoutID)
	return err
}
