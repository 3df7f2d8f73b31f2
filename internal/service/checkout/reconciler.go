package checkout

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ereal21/zxczxcz-sub000/internal/gateway"
)

// SweepResult counts what one reconciliation pass did.
type SweepResult struct {
	Checked int
	Settled int
	Expired int
	Skipped int
}

// Sweep resolves intents older than IntentTTL: paid ones settle, the rest
// expire. Intents whose status cannot be read are left for the next sweep.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	ids, err := s.intents.ListStale(ctx, s.now().Add(-s.cfg.IntentTTL))
	if err != nil {
		return SweepResult{}, err
	}
	outcomes := make([]Outcome, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.SweepConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			status, err := s.gateway.Status(gctx, id)
			if err != nil {
				s.logger.Warn("sweep status check failed", zap.String("payment_id", id), zap.Error(err))
				outcomes[i] = OutcomePending
				return nil
			}
			var out Outcome
			if gateway.IsSuccess(status) {
				out, err = s.settle(gctx, id, observerReconciler)
			} else {
				out, err = s.expire(gctx, id, observerReconciler)
			}
			if err != nil {
				s.logger.Error("sweep resolution failed", zap.String("payment_id", id), zap.Error(err))
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SweepResult{}, err
	}

	res := SweepResult{Checked: len(ids)}
	for _, out := range outcomes {
		switch out {
		case OutcomeSettled:
			res.Settled++
		case OutcomeExpired, OutcomeCancelled:
			res.Expired++
		default:
			res.Skipped++
		}
	}
	if res.Checked > 0 {
		s.logger.Info("reconciliation sweep",
			zap.Int("checked", res.Checked),
			zap.Int("settled", res.Settled),
			zap.Int("expired", res.Expired),
			zap.Int("skipped", res.Skipped),
		)
	}
	return res, nil
}

// RunReconciler sweeps every interval until ctx is done.
func (s *Service) RunReconciler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("reconciliation sweep failed", zap.Error(err))
			}
		}
	}
}
