package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
	"github.com/ereal21/zxczxcz-sub000/internal/gateway"
	"github.com/ereal21/zxczxcz-sub000/internal/money"
	"github.com/ereal21/zxczxcz-sub000/internal/notify"
	"github.com/ereal21/zxczxcz-sub000/internal/publisher"
	cartrepo "github.com/ereal21/zxczxcz-sub000/internal/repository/cart"
	"github.com/ereal21/zxczxcz-sub000/internal/repository/customer"
	"github.com/ereal21/zxczxcz-sub000/internal/repository/intent"
	"github.com/ereal21/zxczxcz-sub000/internal/repository/inventory"
	"github.com/ereal21/zxczxcz-sub000/internal/repository/ledger"
	"github.com/ereal21/zxczxcz-sub000/internal/repository/product"
	"github.com/ereal21/zxczxcz-sub000/internal/repository/promo"
	cartsvc "github.com/ereal21/zxczxcz-sub000/internal/service/cart"
	"github.com/ereal21/zxczxcz-sub000/internal/service/fulfillment"
	"github.com/ereal21/zxczxcz-sub000/internal/service/reservation"
)

const buyer int64 = 42

type env struct {
	svc      *Service
	gw       *gateway.Fake
	stock    *inventory.Memory
	ledger   *ledger.Memory
	carts    *cartrepo.Memory
	intents  *intent.Memory
	notifier *notify.Recorder
}

// ctxLedger and ctxStock fail on a finished context the way the Postgres
// repositories do.
type ctxLedger struct {
	*ledger.Memory
}

func (l ctxLedger) Adjust(ctx context.Context, userID int64, delta decimal.Decimal, kind domain.OperationKind, ref string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	return l.Memory.Adjust(ctx, userID, delta, kind, ref)
}

func (l ctxLedger) Hold(ctx context.Context, userID int64, limit decimal.Decimal, ref string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	return l.Memory.Hold(ctx, userID, limit, ref)
}

type ctxStock struct {
	*inventory.Memory
}

func (s ctxStock) Release(ctx context.Context, item domain.StockItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Memory.Release(ctx, item)
}

func (s ctxStock) Archive(ctx context.Context, sale domain.Sale) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Memory.Archive(ctx, sale)
}

// newEnv wires the whole checkout over in-memory stores with stockCount
// units of product "x" priced 10.00.
func newEnv(t *testing.T, stockCount int, cfg Config) *env {
	t.Helper()
	ctx := context.Background()

	products := product.NewMemory()
	require.NoError(t, products.UpsertCategory(ctx, domain.Category{ID: "c", AllowDiscounts: true}))
	_, err := products.Upsert(ctx, domain.Product{ID: "x", CategoryID: "c", Name: "X", Price: money.MustParse("10.00")})
	require.NoError(t, err)

	e := &env{
		gw:       gateway.NewFake(),
		stock:    inventory.NewMemory(),
		ledger:   ledger.NewMemory(),
		carts:    cartrepo.NewMemory(products),
		intents:  intent.NewMemory(),
		notifier: &notify.Recorder{},
	}
	for i := 0; i < stockCount; i++ {
		_, err := e.stock.Add(ctx, "x", domain.TextPayload(fmt.Sprintf("code-%d", i)))
		require.NoError(t, err)
	}
	carts := cartsvc.New(e.carts, products, promo.NewMemory())
	stock, book := ctxStock{e.stock}, ctxLedger{e.ledger}
	dispatcher := fulfillment.NewDispatcher(
		book, stock, customer.NewMemory(), e.carts, e.notifier, publisher.Nop{},
		fulfillment.LoyaltyRules{TicketsPerUnit: 1}, fulfillment.Chats{}, nil,
	)
	e.svc = New(Deps{
		Carts:      carts,
		Reserve:    reservation.New(stock, products, e.notifier, nil),
		Ledger:     book,
		Gateway:    e.gw,
		Intents:    e.intents,
		Dispatcher: dispatcher,
		Notifier:   e.notifier,
	}, cfg)
	e.svc.autoPoll = false
	t.Cleanup(e.svc.Close)
	return e
}

func (e *env) fill(t *testing.T, qty int, balance string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.carts.AddItem(ctx, buyer, "x", qty))
	if balance != "" {
		_, err := e.ledger.Adjust(ctx, buyer, money.MustParse(balance), domain.OperationTopup, "seed")
		require.NoError(t, err)
	}
}

func (e *env) count(t *testing.T) int {
	t.Helper()
	n, err := e.stock.Count(context.Background(), "x")
	require.NoError(t, err)
	return n
}

func (e *env) purchases(t *testing.T) int {
	t.Helper()
	ops, err := e.ledger.Operations(context.Background(), buyer)
	require.NoError(t, err)
	n := 0
	for _, op := range ops {
		if op.Kind == domain.OperationPurchase {
			n++
		}
	}
	return n
}

func fastPoll() Config {
	return Config{PollAttempts: 1, IntentTTL: time.Hour}
}

func TestBegin_HappyPathSettlesThroughWebhook(t *testing.T) {
	e := newEnv(t, 5, fastPoll())
	e.fill(t, 2, "5.00")
	ctx := context.Background()

	res, err := e.svc.Begin(ctx, BeginRequest{UserID: buyer, PayCurrency: "btc"})
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutAwaitingPayment, res.State)
	assert.Equal(t, "20.00", money.Format(res.Plan.Total))
	assert.Equal(t, "5.00", money.Format(res.BalanceUsed))
	assert.Equal(t, "15.00", money.Format(res.AmountDue))
	require.NotNil(t, res.Invoice)
	assert.Equal(t, 3, e.count(t), "units are reserved before the invoice")
	assert.Equal(t, "15.00", money.Format(e.gw.Requests()[0].Amount))

	out, err := e.svc.HandleWebhook(ctx, res.Invoice.PaymentID, "finished")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, out)

	ops, _ := e.ledger.Operations(ctx, buyer)
	require.Len(t, ops, 6)
	assert.Equal(t, domain.OperationHold, ops[1].Kind)
	assert.Equal(t, "-5.00", money.Format(ops[1].Amount))
	assert.Equal(t, domain.OperationRelease, ops[2].Kind)
	assert.Equal(t, domain.OperationTopup, ops[3].Kind)
	assert.Equal(t, "15.00", money.Format(ops[3].Amount))
	assert.Equal(t, domain.OperationPurchase, ops[4].Kind)
	assert.Equal(t, domain.OperationPurchase, ops[5].Kind)
	balance, _ := e.ledger.Balance(ctx, buyer)
	assert.Equal(t, "0.00", money.Format(balance))

	lines, _ := e.carts.Lines(ctx, buyer)
	assert.Empty(t, lines)
	assert.Len(t, e.stock.Sold(), 2)
	assert.Equal(t, 3, e.count(t))
	assert.Zero(t, e.intents.Len())
}

func TestExactlyOnceSettlement_PollAndWebhookRace(t *testing.T) {
	for i := 0; i < 20; i++ {
		e := newEnv(t, 2, fastPoll())
		e.fill(t, 2, "")
		ctx := context.Background()

		res, err := e.svc.Begin(ctx, BeginRequest{UserID: buyer, PayCurrency: "btc"})
		require.NoError(t, err)
		id := res.Invoice.PaymentID
		e.gw.SetStatus(id, "finished")

		var (
			wg      sync.WaitGroup
			settled atomic.Int32
			stale   atomic.Int32
		)
		record := func(out Outcome) {
			switch out {
			case OutcomeSettled:
				settled.Add(1)
			case OutcomeStale:
				stale.Add(1)
			}
		}
		wg.Add(2)
		go func() {
			defer wg.Done()
			record(e.svc.Poll(ctx, id))
		}()
		go func() {
			defer wg.Done()
			out, err := e.svc.HandleWebhook(ctx, id, "finished")
			assert.NoError(t, err)
			record(out)
		}()
		wg.Wait()

		require.Equal(t, int32(1), settled.Load(), "iteration %d", i)
		require.Equal(t, int32(1), stale.Load(), "iteration %d", i)
		assert.Len(t, e.stock.Sold(), 2)
		assert.Equal(t, 2, e.purchases(t))
	}
}

func TestLateWebhookAfterExpiryIsNoop(t *testing.T) {
	e := newEnv(t, 1, fastPoll())
	e.fill(t, 1, "")
	ctx := context.Background()

	res, err := e.svc.Begin(ctx, BeginRequest{UserID: buyer, PayCurrency: "btc"})
	require.NoError(t, err)
	id := res.Invoice.PaymentID
	assert.Equal(t, 0, e.count(t))

	assert.Equal(t, OutcomeExpired, e.svc.Poll(ctx, id))
	assert.Equal(t, 1, e.count(t), "expiry restores the unit")

	e.gw.SetStatus(id, "finished")
	out, err := e.svc.HandleWebhook(ctx, id, "finished")
	require.NoError(t, err)
	assert.Equal(t, OutcomeStale, out)
	assert.Equal(t, 1, e.count(t))
	assert.Empty(t, e.stock.Sold())
	assert.Zero(t, e.purchases(t))
}

func TestPoll_FailureStatusCancels(t *testing.T) {
	e := newEnv(t, 2, fastPoll())
	e.fill(t, 2, "3.00")
	ctx := context.Background()

	res, err := e.svc.Begin(ctx, BeginRequest{UserID: buyer, PayCurrency: "btc"})
	require.NoError(t, err)
	e.gw.SetStatus(res.Invoice.PaymentID, "failed")

	assert.Equal(t, OutcomeCancelled, e.svc.Poll(ctx, res.Invoice.PaymentID))
	assert.Equal(t, 2, e.count(t))
	balance, _ := e.ledger.Balance(ctx, buyer)
	assert.Equal(t, "3.00", money.Format(balance), "ledger untouched")
	lines, _ := e.carts.Lines(ctx, buyer)
	assert.Len(t, lines, 1, "cart kept for retry")
}

type flakyGateway struct {
	*gateway.Fake
	failures atomic.Int32
	calls    atomic.Int32
}

func (f *flakyGateway) Status(ctx context.Context, id string) (string, error) {
	f.calls.Add(1)
	if f.failures.Add(-1) >= 0 {
		return "", domain.ErrGatewayUnavailable
	}
	return f.Fake.Status(ctx, id)
}

func TestPoll_RetriesTransientErrors(t *testing.T) {
	e := newEnv(t, 1, Config{PollAttempts: 4, PollBackoff: time.Millisecond})
	flaky := &flakyGateway{Fake: e.gw}
	flaky.failures.Store(2)
	e.svc.gateway = flaky
	e.fill(t, 1, "")
	ctx := context.Background()

	res, err := e.svc.Begin(ctx, BeginRequest{UserID: buyer, PayCurrency: "btc"})
	require.NoError(t, err)
	e.gw.SetStatus(res.Invoice.PaymentID, "confirmed")

	assert.Equal(t, OutcomeSettled, e.svc.Poll(ctx, res.Invoice.PaymentID))
	assert.Equal(t, int32(3), flaky.calls.Load())
	assert.Len(t, e.stock.Sold(), 1)
}

func TestPoll_StopsWhenIntentConsumed(t *testing.T) {
	e := newEnv(t, 1, Config{PollAttempts: 3, PollBackoff: time.Millisecond})
	e.fill(t, 1, "")
	ctx := context.Background()

	res, err := e.svc.Begin(ctx, BeginRequest{UserID: buyer, PayCurrency: "btc"})
	require.NoError(t, err)
	out, err := e.svc.HandleWebhook(ctx, res.Invoice.PaymentID, "finished")
	require.NoError(t, err)
	require.Equal(t, OutcomeSettled, out)

	assert.Equal(t, OutcomeStale, e.svc.Poll(ctx, res.Invoice.PaymentID))
	assert.Len(t, e.stock.Sold(), 1)
}

func TestWebhook_PendingStatusIsIgnored(t *testing.T) {
	e := newEnv(t, 1, fastPoll())
	e.fill(t, 1, "")
	ctx := context.Background()

	res, err := e.svc.Begin(ctx, BeginRequest{UserID: buyer, PayCurrency: "btc"})
	require.NoError(t, err)
	out, err := e.svc.HandleWebhook(ctx, res.Invoice.PaymentID, "confirming")
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, out)
	assert.Equal(t, 1, e.intents.Len())
}

func TestWebhook_UnknownPaymentIsStale(t *testing.T) {
	e := newEnv(t, 0, fastPoll())
	out, err := e.svc.HandleWebhook(context.Background(), "nope", "finished")
	require.NoError(t, err)
	assert.Equal(t, OutcomeStale, out)
}

func TestBegin_GatewayDownRestoresStock(t *testing.T) {
	e := newEnv(t, 2, fastPoll())
	e.fill(t, 2, "")
	e.gw.Down = true

	_, err := e.svc.Begin(context.Background(), BeginRequest{UserID: buyer, PayCurrency: "btc"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrGatewayUnavailable))
	assert.Equal(t, 2, e.count(t))
	assert.Zero(t, e.intents.Len())
}

func TestBegin_OutOfStockLeavesInventory(t *testing.T) {
	e := newEnv(t, 2, fastPoll())
	e.fill(t, 3, "")

	_, err := e.svc.Begin(context.Background(), BeginRequest{UserID: buyer, PayCurrency: "btc"})
	require.ErrorIs(t, err, domain.ErrOutOfStock)
	assert.Equal(t, 2, e.count(t))
	assert.Empty(t, e.gw.Requests(), "no invoice without a reservation")
}

func TestBegin_EmptyCart(t *testing.T) {
	e := newEnv(t, 1, fastPoll())
	_, err := e.svc.Begin(context.Background(), BeginRequest{UserID: buyer})
	assert.ErrorIs(t, err, domain.ErrEmptyCart)
}

func TestBegin_BalanceCoversEverything(t *testing.T) {
	e := newEnv(t, 2, fastPoll())
	e.fill(t, 2, "25.00")
	ctx := context.Background()

	res, err := e.svc.Begin(ctx, BeginRequest{UserID: buyer, PayCurrency: "btc"})
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutSettled, res.State)
	assert.True(t, res.AmountDue.IsZero())
	require.NotNil(t, res.Summary)
	assert.Equal(t, 2, res.Summary.Delivered)
	assert.Equal(t, "5.00", money.Format(res.Summary.NewBalance))
	assert.Empty(t, e.gw.Requests())
	assert.Zero(t, e.intents.Len())
}

func TestCancel_ByOwnerOnly(t *testing.T) {
	e := newEnv(t, 1, fastPoll())
	e.fill(t, 1, "")
	ctx := context.Background()

	res, err := e.svc.Begin(ctx, BeginRequest{UserID: buyer, PayCurrency: "btc"})
	require.NoError(t, err)
	id := res.Invoice.PaymentID

	_, err = e.svc.Cancel(ctx, buyer+1, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	out, err := e.svc.Cancel(ctx, buyer, id)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, out)
	assert.Equal(t, 1, e.count(t))

	assert.Equal(t, OutcomeStale, e.svc.Poll(ctx, id))
	out, err = e.svc.Cancel(ctx, buyer, id)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStale, out)
}

func TestSweep_ResolvesStaleIntents(t *testing.T) {
	e := newEnv(t, 2, fastPoll())
	ctx := context.Background()

	e.fill(t, 1, "")
	first, err := e.svc.Begin(ctx, BeginRequest{UserID: buyer, PayCurrency: "btc"})
	require.NoError(t, err)
	second, err := e.svc.Begin(ctx, BeginRequest{UserID: buyer, PayCurrency: "btc"})
	require.NoError(t, err)

	e.gw.SetStatus(first.Invoice.PaymentID, "finished")
	e.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	res, err := e.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Checked: 2, Settled: 1, Expired: 1}, res)
	assert.Zero(t, e.intents.Len())
	assert.Len(t, e.stock.Sold(), 1)
	assert.Equal(t, 1, e.count(t))

	_, err = e.intents.Get(ctx, second.Invoice.PaymentID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSweep_SkipsUnreadableStatus(t *testing.T) {
	e := newEnv(t, 1, fastPoll())
	e.fill(t, 1, "")
	ctx := context.Background()

	_, err := e.svc.Begin(ctx, BeginRequest{UserID: buyer, PayCurrency: "btc"})
	require.NoError(t, err)
	e.gw.StatusErr = errors.New("timeout")
	e.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	res, err := e.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, e.intents.Len())
}

func TestBegin_UnitAmountsAddUpToTotal(t *testing.T) {
	e := newEnv(t, 3, fastPoll())
	e.fill(t, 3, "")
	ctx := context.Background()

	res, err := e.svc.Begin(ctx, BeginRequest{UserID: buyer, PayCurrency: "btc"})
	require.NoError(t, err)
	in, err := e.intents.Get(ctx, res.Invoice.PaymentID)
	require.NoError(t, err)

	var sum decimal.Decimal
	for _, u := range in.Units {
		sum = sum.Add(u.Amount)
	}
	assert.Equal(t, money.Format(in.Total), money.Format(sum), "unit amounts add up to the total")
}

func TestBegin_HoldsBalanceWhileAwaitingPayment(t *testing.T) {
	e := newEnv(t, 1, fastPoll())
	e.fill(t, 1, "4.00")
	ctx := context.Background()

	res, err := e.svc.Begin(ctx, BeginRequest{UserID: buyer, PayCurrency: "btc"})
	require.NoError(t, err)
	assert.Equal(t, "4.00", money.Format(res.BalanceUsed))
	balance, _ := e.ledger.Balance(ctx, buyer)
	assert.Equal(t, "0.00", money.Format(balance), "balance share is held")

	out, err := e.svc.Cancel(ctx, buyer, res.Invoice.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, out)
	balance, _ = e.ledger.Balance(ctx, buyer)
	assert.Equal(t, "4.00", money.Format(balance), "cancel releases the hold")
}

func TestBegin_ConcurrentCheckoutsShareBalanceOnce(t *testing.T) {
	e := newEnv(t, 2, fastPoll())
	e.fill(t, 1, "5.00")
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []*BeginResult
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.svc.Begin(ctx, BeginRequest{UserID: buyer, PayCurrency: "btc"})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, results, 2)

	used := decimal.Zero
	for _, res := range results {
		used = used.Add(res.BalanceUsed)
		require.NotNil(t, res.Invoice)
		e.gw.SetStatus(res.Invoice.PaymentID, "finished")
	}
	assert.Equal(t, "5.00", money.Format(used), "the balance is claimed once")

	for _, res := range results {
		out, err := e.svc.HandleWebhook(ctx, res.Invoice.PaymentID, "finished")
		require.NoError(t, err)
		require.Equal(t, OutcomeSettled, out)
	}
	balance, _ := e.ledger.Balance(ctx, buyer)
	assert.Equal(t, "0.00", money.Format(balance))
	assert.Len(t, e.stock.Sold(), 2)
}

// cancelAfterTake ends the observer's context right after it consumes the
// intent, as a client disconnect or shutdown would.
type cancelAfterTake struct {
	intent.Store
	cancel context.CancelFunc
}

func (c cancelAfterTake) Take(ctx context.Context, paymentID string) (*domain.PaymentIntent, error) {
	in, err := c.Store.Take(ctx, paymentID)
	c.cancel()
	return in, err
}

func TestWebhook_SettlesAfterRequestContextEnds(t *testing.T) {
	e := newEnv(t, 1, fastPoll())
	e.fill(t, 1, "2.00")
	res, err := e.svc.Begin(context.Background(), BeginRequest{UserID: buyer, PayCurrency: "btc"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.svc.intents = cancelAfterTake{Store: e.intents, cancel: cancel}

	out, err := e.svc.HandleWebhook(ctx, res.Invoice.PaymentID, "finished")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, out)
	assert.Len(t, e.stock.Sold(), 1)
	assert.Equal(t, 1, e.purchases(t))
	balance, _ := e.ledger.Balance(context.Background(), buyer)
	assert.Equal(t, "0.00", money.Format(balance))
}

func TestCancel_RestoresAfterRequestContextEnds(t *testing.T) {
	e := newEnv(t, 1, fastPoll())
	e.fill(t, 1, "2.00")
	res, err := e.svc.Begin(context.Background(), BeginRequest{UserID: buyer, PayCurrency: "btc"})
	require.NoError(t, err)
	require.Equal(t, 0, e.count(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.svc.intents = cancelAfterTake{Store: e.intents, cancel: cancel}

	out, err := e.svc.Cancel(ctx, buyer, res.Invoice.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, out)
	assert.Equal(t, 1, e.count(t))
	balance, _ := e.ledger.Balance(context.Background(), buyer)
	assert.Equal(t, "2.00", money.Format(balance))
}

func TestPoll_ExpiresAfterServiceContextEnds(t *testing.T) {
	e := newEnv(t, 1, fastPoll())
	e.fill(t, 1, "")
	res, err := e.svc.Begin(context.Background(), BeginRequest{UserID: buyer, PayCurrency: "btc"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.svc.intents = cancelAfterTake{Store: e.intents, cancel: cancel}

	assert.Equal(t, OutcomeExpired, e.svc.Poll(ctx, res.Invoice.PaymentID))
	assert.Equal(t, 1, e.count(t))
}

// abandoningGateway ends the request context while the invoice is created
// and then fails.
type abandoningGateway struct {
	*gateway.Fake
	cancel context.CancelFunc
}

func (g abandoningGateway) CreateInvoice(context.Context, gateway.InvoiceRequest) (domain.Invoice, error) {
	g.cancel()
	return domain.Invoice{}, domain.ErrGatewayUnavailable
}

func TestBegin_AbortRestoresAfterRequestContextEnds(t *testing.T) {
	e := newEnv(t, 2, fastPoll())
	e.fill(t, 2, "3.00")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.svc.gateway = abandoningGateway{Fake: e.gw, cancel: cancel}

	_, err := e.svc.Begin(ctx, BeginRequest{UserID: buyer, PayCurrency: "btc"})
	require.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	assert.Equal(t, 2, e.count(t))
	balance, _ := e.ledger.Balance(context.Background(), buyer)
	assert.Equal(t, "3.00", money.Format(balance))
}
