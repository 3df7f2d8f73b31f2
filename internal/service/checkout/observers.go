package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
	"github.com/ereal21/zxczxcz-sub000/internal/gateway"
	"github.com/ereal21/zxczxcz-sub000/internal/money"
	"github.com/ereal21/zxczxcz-sub000/internal/service/fulfillment"
)

// Poll is the poll observer. It waits PollDelay, then checks the payment
// status up to PollAttempts times with doubling backoff. Success settles,
// a failure status cancels and an exhausted budget expires the intent.
// It stops as soon as another observer has consumed the intent.
func (s *Service) Poll(ctx context.Context, paymentID string) Outcome {
	log := s.logger.With(zap.String("payment_id", paymentID), zap.String("observer", observerPoll))
	if !sleep(ctx, s.cfg.PollDelay) {
		return OutcomePending
	}
	backoff := s.cfg.PollBackoff
	for attempt := 1; attempt <= s.cfg.PollAttempts; attempt++ {
		if _, err := s.intents.Get(ctx, paymentID); errors.Is(err, domain.ErrNotFound) {
			s.metrics.StaleSignals.WithLabelValues(observerPoll).Inc()
			return OutcomeStale
		}
		status, err := s.gateway.Status(ctx, paymentID)
		if err != nil {
			log.Warn("status check failed", zap.Int("attempt", attempt), zap.Error(err))
		} else if out, err := s.resolve(ctx, paymentID, status, observerPoll); err != nil || out != OutcomePending {
			if err != nil {
				log.Error("poll resolution failed", zap.Error(err))
			}
			return out
		}
		if attempt == s.cfg.PollAttempts {
			break
		}
		if !sleep(ctx, backoff) {
			return OutcomePending
		}
		backoff *= 2
	}
	log.Info("poll budget exhausted")
	out, err := s.expire(ctx, paymentID, observerPoll)
	if err != nil {
		log.Error("expire failed", zap.Error(err))
	}
	return out
}

// HandleWebhook is the webhook observer. Non-final statuses are ignored and
// a signal for an already consumed intent is a no-op.
func (s *Service) HandleWebhook(ctx context.Context, paymentID, status string) (Outcome, error) {
	return s.resolve(ctx, paymentID, status, observerWebhook)
}

// Cancel is the manual observer: the buyer abandons a pending payment.
func (s *Service) Cancel(ctx context.Context, userID int64, paymentID string) (Outcome, error) {
	in, err := s.intents.Get(ctx, paymentID)
	if errors.Is(err, domain.ErrNotFound) {
		s.metrics.StaleSignals.WithLabelValues(observerUser).Inc()
		return OutcomeStale, nil
	}
	if err != nil {
		return "", err
	}
	if in.UserID != userID {
		return "", domain.ErrNotFound
	}
	return s.cancel(ctx, paymentID, domain.CheckoutCancelled, observerUser)
}

// resolve maps a gateway status onto the state machine for one observer.
func (s *Service) resolve(ctx context.Context, paymentID, status, observer string) (Outcome, error) {
	switch {
	case gateway.IsSuccess(status):
		return s.settle(ctx, paymentID, observer)
	case gateway.IsFailure(status):
		return s.cancel(ctx, paymentID, domain.CheckoutCancelled, observer)
	default:
		return OutcomePending, nil
	}
}

func (s *Service) settle(ctx context.Context, paymentID, observer string) (Outcome, error) {
	in, err := s.take(ctx, paymentID, observer)
	if err != nil || in == nil {
		return OutcomeStale, err
	}
	ctx, done := s.detach(ctx)
	defer done()
	sum := s.dispatcher.Dispatch(ctx, fulfillment.Settlement{Intent: *in, ExternalPaid: in.AmountDue(), Observer: observer})
	s.metrics.Settlements.WithLabelValues(observer).Inc()
	s.logger.Info("payment settled",
		zap.String("payment_id", paymentID),
		zap.String("checkout_id", in.CheckoutID),
		zap.String("observer", observer),
		zap.Int("delivered", sum.Delivered),
	)
	return OutcomeSettled, nil
}

func (s *Service) expire(ctx context.Context, paymentID, observer string) (Outcome, error) {
	return s.cancel(ctx, paymentID, domain.CheckoutExpired, observer)
}

// cancel consumes the intent, restores its stock and releases the held
// balance share, leaving the ledger where it was before Begin.
func (s *Service) cancel(ctx context.Context, paymentID string, final domain.CheckoutState, observer string) (Outcome, error) {
	in, err := s.take(ctx, paymentID, observer)
	if err != nil || in == nil {
		return OutcomeStale, err
	}
	ctx, done := s.detach(ctx)
	defer done()
	var errs []error
	if err := s.reserve.Restore(ctx, in.Units); err != nil {
		errs = append(errs, fmt.Errorf("restore units of %s: %w", paymentID, err))
	}
	if err := s.release(ctx, in.UserID, in.CheckoutID, in.BalanceUsed); err != nil {
		errs = append(errs, fmt.Errorf("release hold of %s: %w", paymentID, err))
	}
	if in.InvoiceMsg != 0 {
		if err := s.notifier.Delete(ctx, in.UserID, in.InvoiceMsg); err != nil {
			s.logger.Warn("delete invoice message", zap.Error(err))
		}
	}
	text := fmt.Sprintf("Payment %s was cancelled. Reserved items were returned to stock.", paymentID)
	if final == domain.CheckoutExpired {
		text = fmt.Sprintf("Payment %s expired. Reserved items were returned to stock; your balance was not charged.", paymentID)
	}
	if err := s.notifier.Send(ctx, in.UserID, text); err != nil {
		s.logger.Warn("cancel notice failed", zap.Error(err))
	}

	s.metrics.Cancellations.WithLabelValues(final.String(), observer).Inc()
	s.logger.Info("payment closed without settlement",
		zap.String("payment_id", paymentID),
		zap.Stringer("state", final),
		zap.String("observer", observer),
		zap.String("total", money.Format(in.Total)),
	)
	if final == domain.CheckoutExpired {
		return OutcomeExpired, errors.Join(errs...)
	}
	return OutcomeCancelled, errors.Join(errs...)
}

// take is the single consumption point. A nil intent with nil error means
// another observer got there first.
func (s *Service) take(ctx context.Context, paymentID, observer string) (*domain.PaymentIntent, error) {
	in, err := s.intents.Take(ctx, paymentID)
	if errors.Is(err, domain.ErrNotFound) {
		s.metrics.StaleSignals.WithLabelValues(observer).Inc()
		s.logger.Debug("stale completion signal", zap.String("payment_id", paymentID), zap.String("observer", observer))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("take intent %s: %w", paymentID, err)
	}
	s.metrics.PendingIntents.Dec()
	return in, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
