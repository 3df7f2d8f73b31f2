package cart

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
	"github.com/ereal21/zxczxcz-sub000/internal/pricing"
)

var ErrInvalidQuantity = errors.New("quantity must be positive")

type Service struct {
	repo     cartRepo
	products productRepo
	promos   promoRepo
	engine   *pricing.Engine
	now      func() time.Time
}

type cartRepo interface {
	Lines(ctx context.Context, userID int64) ([]domain.CartLine, error)
	AddItem(ctx context.Context, userID int64, productID string, quantity int) error
	SetQuantity(ctx context.Context, userID int64, productID string, quantity int) error
	Remove(ctx context.Context, userID int64, productID string) error
	Clear(ctx context.Context, userID int64) error
	PromoCode(ctx context.Context, userID int64) (string, error)
	SetPromo(ctx context.Context, userID int64, code string) error
	ClearPromo(ctx context.Context, userID int64) error
}

type productRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}

type promoRepo interface {
	GetByCode(ctx context.Context, code string) (*domain.Promo, error)
}

func New(repo cartRepo, products productRepo, promos promoRepo) *Service {
	return &Service{
		repo:     repo,
		products: products,
		promos:   promos,
		engine:   pricing.New(),
		now:      time.Now,
	}
}

func (s *Service) AddItem(ctx context.Context, userID int64, productID string, quantity int) (domain.PricedCart, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.PricedCart{}, errors.New("product id required")
	}
	if quantity <= 0 {
		return domain.PricedCart{}, ErrInvalidQuantity
	}
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return domain.PricedCart{}, err
	}
	if err := s.repo.AddItem(ctx, userID, productID, quantity); err != nil {
		return domain.PricedCart{}, err
	}
	return s.View(ctx, userID)
}

// ChangeQuantity sets the line quantity; zero or less removes the line.
func (s *Service) ChangeQuantity(ctx context.Context, userID int64, productID string, quantity int) (domain.PricedCart, error) {
	if err := s.repo.SetQuantity(ctx, userID, strings.TrimSpace(productID), quantity); err != nil {
		return domain.PricedCart{}, err
	}
	return s.View(ctx, userID)
}

func (s *Service) Remove(ctx context.Context, userID int64, productID string) (domain.PricedCart, error) {
	if err := s.repo.Remove(ctx, userID, strings.TrimSpace(productID)); err != nil {
		return domain.PricedCart{}, err
	}
	return s.View(ctx, userID)
}

func (s *Service) Clear(ctx context.Context, userID int64) error {
	return s.repo.Clear(ctx, userID)
}

// ApplyPromo attaches a promo code after checking that it is live and that
// at least one line of the current cart can take it.
func (s *Service) ApplyPromo(ctx context.Context, userID int64, code string) (domain.PricedCart, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.PricedCart{}, errors.New("promo code required")
	}
	promo, err := s.promos.GetByCode(ctx, code)
	if err != nil {
		return domain.PricedCart{}, err
	}
	if promo.Expired(s.now()) {
		return domain.PricedCart{}, domain.ErrPromoExpired
	}
	lines, err := s.repo.Lines(ctx, userID)
	if err != nil {
		return domain.PricedCart{}, err
	}
	if len(lines) == 0 {
		return domain.PricedCart{}, domain.ErrEmptyCart
	}
	priced := s.engine.Price(lines, promo)
	if priced.PromoRejected {
		return priced, domain.ErrPromoNotApplicable
	}
	if err := s.repo.SetPromo(ctx, userID, promo.Code); err != nil {
		return domain.PricedCart{}, err
	}
	return priced, nil
}

func (s *Service) ClearPromo(ctx context.Context, userID int64) (domain.PricedCart, error) {
	if err := s.repo.ClearPromo(ctx, userID); err != nil {
		return domain.PricedCart{}, err
	}
	return s.View(ctx, userID)
}

// View prices the cart with its held promo. A promo that has since expired
// or disappeared is dropped from the cart.
func (s *Service) View(ctx context.Context, userID int64) (domain.PricedCart, error) {
	lines, err := s.repo.Lines(ctx, userID)
	if err != nil {
		return domain.PricedCart{}, err
	}
	promo, err := s.heldPromo(ctx, userID)
	if err != nil {
		return domain.PricedCart{}, err
	}
	return s.engine.Price(lines, promo), nil
}

func (s *Service) heldPromo(ctx context.Context, userID int64) (*domain.Promo, error) {
	code, err := s.repo.PromoCode(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	promo, err := s.promos.GetByCode(ctx, code)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil, s.repo.ClearPromo(ctx, userID)
	case err != nil:
		return nil, err
	case promo.Expired(s.now()):
		return nil, s.repo.ClearPromo(ctx, userID)
	}
	return promo, nil
}
