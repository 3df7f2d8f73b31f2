package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
	"github.com/ereal21/zxczxcz-sub000/internal/money"
	"github.com/ereal21/zxczxcz-sub000/internal/notify"
	"github.com/ereal21/zxczxcz-sub000/internal/publisher"
)

type ledgerRepo interface {
	Balance(ctx context.Context, userID int64) (decimal.Decimal, error)
	Adjust(ctx context.Context, userID int64, delta decimal.Decimal, kind domain.OperationKind, reference string) (decimal.Decimal, error)
}

type stockArchive interface {
	Archive(ctx context.Context, sale domain.Sale) error
}

type customerRepo interface {
	Get(ctx context.Context, userID int64) (*domain.Customer, error)
	Save(ctx context.Context, c domain.Customer) error
}

type cartClearer interface {
	Clear(ctx context.Context, userID int64) error
}

// Settlement is a consumed payment intent ready to be fulfilled.
type Settlement struct {
	Intent domain.PaymentIntent
	// ExternalPaid is what arrived through the gateway. It is credited to
	// the ledger, together with the release of the intent's balance hold,
	// before the per-unit debits.
	ExternalPaid decimal.Decimal
	Observer     string
}

// Summary is what the buyer is told after settlement.
type Summary struct {
	PaymentID    string
	Delivered    int
	Failed       int
	Total        decimal.Decimal
	BalanceSpent decimal.Decimal
	ExternalPaid decimal.Decimal
	NewBalance   decimal.Decimal
	// Err joins every per-unit and bookkeeping failure. Nothing is rolled back.
	Err error
}

type Chats struct {
	Owner    int64
	Operator int64
}

type Dispatcher struct {
	ledger    ledgerRepo
	archive   stockArchive
	customers customerRepo
	carts     cartClearer
	notifier  notify.Notifier
	events    publisher.Publisher
	rules     LoyaltyRules
	chats     Chats
	logger    *zap.Logger
	now       func() time.Time
}

func NewDispatcher(
	ledger ledgerRepo,
	archive stockArchive,
	customers customerRepo,
	carts cartClearer,
	notifier notify.Notifier,
	events publisher.Publisher,
	rules LoyaltyRules,
	chats Chats,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if events == nil {
		events = publisher.Nop{}
	}
	return &Dispatcher{
		ledger:    ledger,
		archive:   archive,
		customers: customers,
		carts:     carts,
		notifier:  notifier,
		events:    events,
		rules:     rules,
		chats:     chats,
		logger:    logger,
		now:       time.Now,
	}
}

// Dispatch fulfils every reserved unit in plan order. A unit that fails
// to deliver does not undo the units before it; failures are collected in
// Summary.Err and reported to the operator chat.
func (d *Dispatcher) Dispatch(ctx context.Context, s Settlement) Summary {
	in := s.Intent
	log := d.logger.With(zap.String("payment_id", in.PaymentID), zap.Int64("user_id", in.UserID), zap.String("observer", s.Observer))
	now := d.now()
	sum := Summary{
		PaymentID:    in.PaymentID,
		Total:        in.Total,
		BalanceSpent: in.BalanceUsed,
		ExternalPaid: s.ExternalPaid,
	}
	var errs []error

	if in.BalanceUsed.GreaterThan(decimal.Zero) {
		if _, err := d.ledger.Adjust(ctx, in.UserID, in.BalanceUsed, domain.OperationRelease, in.CheckoutID); err != nil {
			errs = append(errs, fmt.Errorf("release hold: %w", err))
		}
	}
	if s.ExternalPaid.GreaterThan(decimal.Zero) {
		if _, err := d.ledger.Adjust(ctx, in.UserID, s.ExternalPaid, domain.OperationTopup, in.PaymentID); err != nil {
			errs = append(errs, fmt.Errorf("credit topup: %w", err))
		}
	}

	names := make(map[string]string, len(in.Plan.Lines))
	for _, l := range in.Plan.Lines {
		names[l.ProductID] = l.Name
	}
	recipient := in.UserID
	if in.GiftTo != nil {
		recipient = *in.GiftTo
	}

	var referrer *int64
	if c, err := d.customers.Get(ctx, in.UserID); err == nil {
		referrer = c.ReferrerID
	}

	for i, unit := range in.Units {
		delivered, err := d.dispatchUnit(ctx, in, unit, names[unit.ProductID], recipient, referrer, now)
		if delivered {
			sum.Delivered++
		} else {
			sum.Failed++
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("unit %d (%s): %w", i, unit.ProductID, err))
			log.Error("unit fulfilment failed", zap.Int("unit", i), zap.String("product_id", unit.ProductID), zap.Error(err))
		}
	}

	if err := d.updateLoyalty(ctx, in, now); err != nil {
		errs = append(errs, err)
	}
	if err := d.carts.Clear(ctx, in.UserID); err != nil {
		errs = append(errs, fmt.Errorf("clear cart: %w", err))
	}
	if in.InvoiceMsg != 0 {
		if err := d.notifier.Delete(ctx, in.UserID, in.InvoiceMsg); err != nil {
			log.Warn("delete invoice message", zap.Error(err))
		}
	}

	balance, err := d.ledger.Balance(ctx, in.UserID)
	if err != nil {
		errs = append(errs, fmt.Errorf("read balance: %w", err))
	}
	sum.NewBalance = balance
	sum.Err = errors.Join(errs...)

	if err := d.notifier.Send(ctx, in.UserID, buyerText(sum)); err != nil {
		log.Warn("buyer summary not sent", zap.Error(err))
	}
	if sum.Err != nil {
		d.reportToOperator(ctx, in, sum)
	}

	ev := publisher.SettledEvent{
		PaymentID:   in.PaymentID,
		CheckoutID:  in.CheckoutID,
		UserID:      in.UserID,
		Units:       sum.Delivered,
		Total:       in.Total,
		BalanceUsed: in.BalanceUsed,
		ExternalPay: s.ExternalPaid,
		Observer:    s.Observer,
		SettledAt:   now,
	}
	if err := d.events.PublishSettled(ctx, ev); err != nil {
		log.Warn("settled event not published", zap.Error(err))
	}

	log.Info("checkout settled",
		zap.Int("delivered", sum.Delivered),
		zap.Int("failed", sum.Failed),
		zap.String("total", money.Format(in.Total)),
	)
	return sum
}

// dispatchUnit debits, archives and delivers one unit. Every step runs
// even when an earlier one fails: the unit has left stock, so it is
// archived as consumed and the failure goes to the operator report.
func (d *Dispatcher) dispatchUnit(ctx context.Context, in domain.PaymentIntent, unit domain.ReservedUnit, name string, recipient int64, referrer *int64, now time.Time) (bool, error) {
	ref := fmt.Sprintf("%s/%s", in.PaymentID, unit.ProductID)
	var errs []error
	if _, err := d.ledger.Adjust(ctx, in.UserID, unit.Amount.Neg(), domain.OperationPurchase, ref); err != nil {
		errs = append(errs, fmt.Errorf("debit: %w", err))
	}

	sale := domain.Sale{
		StockID:   unit.StockID,
		ProductID: unit.ProductID,
		BuyerID:   in.UserID,
		PaymentID: in.PaymentID,
		Payload:   unit.Payload,
		Price:     unit.Amount,
		SoldAt:    now,
	}
	if err := d.archive.Archive(ctx, sale); err != nil {
		errs = append(errs, fmt.Errorf("archive: %w", err))
	}

	delivered := true
	if err := d.deliver(ctx, recipient, name, unit.Payload); err != nil {
		delivered = false
		errs = append(errs, fmt.Errorf("deliver: %w", err))
	}

	if referrer != nil && *referrer != in.UserID {
		if reward := d.rules.referralReward(unit.Amount); reward.GreaterThan(decimal.Zero) {
			if _, err := d.ledger.Adjust(ctx, *referrer, reward, domain.OperationReferral, ref); err != nil {
				errs = append(errs, fmt.Errorf("referral reward: %w", err))
			}
		}
	}

	if d.chats.Owner != 0 {
		text := fmt.Sprintf("Sale: %s to %d for %s", displayName(name, unit.ProductID), in.UserID, money.Format(unit.Amount))
		if err := d.notifier.Send(ctx, d.chats.Owner, text); err != nil {
			d.logger.Warn("owner notice failed", zap.Error(err))
		}
	}
	return delivered, errors.Join(errs...)
}

func (d *Dispatcher) deliver(ctx context.Context, chatID int64, name string, p domain.StockPayload) error {
	switch p.Kind {
	case domain.PayloadFile:
		return d.notifier.SendFile(ctx, chatID, p.Value, name)
	case domain.PayloadText:
		return d.notifier.Send(ctx, chatID, fmt.Sprintf("%s\n%s", name, p.Value))
	default:
		return fmt.Errorf("unknown payload kind %q", p.Kind)
	}
}

func (d *Dispatcher) updateLoyalty(ctx context.Context, in domain.PaymentIntent, now time.Time) error {
	c, err := d.customers.Get(ctx, in.UserID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c = &domain.Customer{UserID: in.UserID}
	case err != nil:
		return fmt.Errorf("load customer: %w", err)
	}
	before := c.Level
	updated := d.rules.applyPurchase(*c, len(in.Units), in.Total, now)
	if err := d.customers.Save(ctx, updated); err != nil {
		return fmt.Errorf("save customer: %w", err)
	}
	if updated.Level > before {
		if err := d.notifier.Send(ctx, in.UserID, fmt.Sprintf("Level up! You are now level %d.", updated.Level)); err != nil {
			d.logger.Warn("level notice failed", zap.Error(err))
		}
	}
	return nil
}

func (d *Dispatcher) reportToOperator(ctx context.Context, in domain.PaymentIntent, sum Summary) {
	if d.chats.Operator == 0 {
		return
	}
	text := fmt.Sprintf("Partial fulfilment for %s (user %d): %d delivered, %d failed\n%v",
		in.PaymentID, in.UserID, sum.Delivered, sum.Failed, sum.Err)
	if err := d.notifier.Send(ctx, d.chats.Operator, text); err != nil {
		d.logger.Error("operator report failed", zap.String("payment_id", in.PaymentID), zap.Error(err))
	}
}

func buyerText(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order %s complete: %d item(s) delivered.\n", s.PaymentID, s.Delivered)
	if s.Failed > 0 {
		fmt.Fprintf(&b, "%d item(s) could not be delivered; support has been notified.\n", s.Failed)
	}
	fmt.Fprintf(&b, "Total: %s (balance %s, paid %s)\n", money.Format(s.Total), money.Format(s.BalanceSpent), money.Format(s.ExternalPaid))
	fmt.Fprintf(&b, "Balance: %s", money.Format(s.NewBalance))
	return b.String()
}

func displayName(name, productID string) string {
	if name != "" {
		return name
	}
	return productID
}
