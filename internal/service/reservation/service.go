package reservation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
	"github.com/ereal21/zxczxcz-sub000/internal/notify"
)

type stockRepo interface {
	Take(ctx context.Context, productID string) (domain.StockItem, error)
	Release(ctx context.Context, item domain.StockItem) error
	Count(ctx context.Context, productID string) (int, error)
	Subscribe(ctx context.Context, productID string, userID int64) error
	TakeSubscribers(ctx context.Context, productID string) ([]int64, error)
}

var ErrInStock = errors.New("product is in stock")

type productRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}

// Service turns "N units of product P" into concrete stock handles and
// puts them back when a checkout does not complete.
type Service struct {
	stock    stockRepo
	products productRepo
	notifier notify.Notifier
	logger   *zap.Logger
}

func New(stock stockRepo, products productRepo, notifier notify.Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{stock: stock, products: products, notifier: notifier, logger: logger}
}

// Reserve takes count units of the product. Infinite products yield
// placeholders carrying the product's shared payload and touch no stock.
// When the pool runs dry every unit taken by this call is released before
// domain.ErrOutOfStock is returned.
func (s *Service) Reserve(ctx context.Context, productID string, count int) ([]domain.ReservedUnit, error) {
	if count <= 0 {
		return nil, nil
	}
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("reserve %s: %w", productID, err)
	}
	units := make([]domain.ReservedUnit, 0, count)
	if product.Infinite {
		var payload domain.StockPayload
		if product.InfinitePayload != nil {
			payload = *product.InfinitePayload
		}
		for i := 0; i < count; i++ {
			units = append(units, domain.ReservedUnit{ProductID: productID, Payload: payload, Infinite: true})
		}
		return units, nil
	}

	for i := 0; i < count; i++ {
		item, err := s.stock.Take(ctx, productID)
		if err != nil {
			if rerr := s.release(ctx, units, false); rerr != nil {
				err = errors.Join(err, rerr)
			}
			return nil, fmt.Errorf("reserve %d of %s: %w", count, productID, err)
		}
		units = append(units, domain.ReservedUnit{
			ProductID: item.ProductID,
			StockID:   item.ID,
			Payload:   item.Payload,
		})
	}
	return units, nil
}

// ReservePlan reserves every unit of a checkout plan in plan order and
// attaches each unit's price share. It is all or nothing across lines.
func (s *Service) ReservePlan(ctx context.Context, plan domain.CheckoutPlan) ([]domain.ReservedUnit, error) {
	var all []domain.ReservedUnit
	for _, line := range plan.Lines {
		units, err := s.Reserve(ctx, line.ProductID, line.Quantity)
		if err != nil {
			if rerr := s.release(ctx, all, false); rerr != nil {
				err = errors.Join(err, rerr)
			}
			return nil, err
		}
		for i := range units {
			if i < len(line.UnitSplits) {
				units[i].Amount = line.UnitSplits[i]
			}
		}
		all = append(all, units...)
	}
	s.logger.Debug("plan reserved", zap.Int("units", len(all)))
	return all, nil
}

// Restore puts finite units back into the pool with their original ids and
// payloads. Products that go from empty to available fan out a restock
// notice to their subscribers.
func (s *Service) Restore(ctx context.Context, units []domain.ReservedUnit) error {
	return s.release(ctx, units, true)
}

// release returns units to the pool. Rollbacks inside a single reservation
// attempt pass announce=false: the pool was only empty because of that attempt.
func (s *Service) release(ctx context.Context, units []domain.ReservedUnit, announce bool) error {
	if len(units) == 0 {
		return nil
	}
	var (
		errs  []error
		order []string
		was   = make(map[string]int)
	)
	for _, u := range units {
		if u.Infinite {
			continue
		}
		if _, seen := was[u.ProductID]; !seen && announce {
			n, err := s.stock.Count(ctx, u.ProductID)
			if err != nil {
				errs = append(errs, err)
				n = -1
			}
			was[u.ProductID] = n
			order = append(order, u.ProductID)
		}
		if err := s.stock.Release(ctx, u.StockItem()); err != nil {
			s.logger.Error("restore unit failed",
				zap.String("product_id", u.ProductID),
				zap.Int64("stock_id", u.StockID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("release stock %d: %w", u.StockID, err))
		}
	}
	for _, productID := range order {
		if !announce || was[productID] != 0 {
			continue
		}
		if err := s.notifyRestock(ctx, productID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe asks for a notice when an out-of-stock product becomes
// available again. Products with stock left are rejected with ErrInStock.
func (s *Service) Subscribe(ctx context.Context, userID int64, productID string) error {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return err
	}
	if p.Infinite {
		return ErrInStock
	}
	n, err := s.stock.Count(ctx, productID)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrInStock
	}
	return s.stock.Subscribe(ctx, productID, userID)
}

func (s *Service) notifyRestock(ctx context.Context, productID string) error {
	n, err := s.stock.Count(ctx, productID)
	if err != nil || n == 0 {
		return err
	}
	users, err := s.stock.TakeSubscribers(ctx, productID)
	if err != nil {
		return fmt.Errorf("restock subscribers of %s: %w", productID, err)
	}
	name := productID
	if p, err := s.products.GetByID(ctx, productID); err == nil {
		name = p.Name
	}
	for _, userID := range users {
		if err := s.notifier.Send(ctx, userID, fmt.Sprintf("%s is back in stock", name)); err != nil {
			s.logger.Warn("restock notice failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	s.logger.Info("restock notified", zap.String("product_id", productID), zap.Int("subscribers", len(users)))
	return nil
}
