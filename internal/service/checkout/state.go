package checkout

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
)

const (
	observerBalance    = "balance"
	observerPoll       = "poll"
	observerWebhook    = "webhook"
	observerUser       = "user"
	observerReconciler = "reconciler"
)

// Outcome is what an observer did with a completion signal.
type Outcome string

const (
	OutcomeSettled   Outcome = "settled"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeExpired   Outcome = "expired"
	// OutcomePending means the payment is not final yet; nothing changed.
	OutcomePending Outcome = "pending"
	// OutcomeStale means another observer already consumed the intent.
	OutcomeStale Outcome = "stale"
)

// checkoutRun tracks one attempt through the state machine.
type checkoutRun struct {
	id     string
	state  domain.CheckoutState
	logger *zap.Logger
}

func newRun(id string, logger *zap.Logger) *checkoutRun {
	return &checkoutRun{id: id, state: domain.CheckoutQuoted, logger: logger.With(zap.String("checkout_id", id))}
}

func (r *checkoutRun) advance(to domain.CheckoutState) error {
	if !domain.CanTransitionTo(r.state, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, r.state, to)
	}
	r.logger.Debug("checkout transition", zap.Stringer("from", r.state), zap.Stringer("to", to))
	r.state = to
	return nil
}
