package product

import (
	"context"
	"fmt"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
)

type catalogRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	List(ctx context.Context, categoryID string) ([]domain.Product, error)
}

type stockCounter interface {
	Count(ctx context.Context, productID string) (int, error)
}

// View is a catalog entry with its current availability. Available is zero
// for infinite products; use InStock.
type View struct {
	domain.Product
	Available int  `json:"available"`
	InStock   bool `json:"inStock"`
}

type Service struct {
	repo  catalogRepo
	stock stockCounter
}

func New(repo catalogRepo, stock stockCounter) *Service {
	return &Service{repo: repo, stock: stock}
}

func (s *Service) List(ctx context.Context, categoryID string) ([]View, error) {
	products, err := s.repo.List(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	views := make([]View, 0, len(products))
	for _, p := range products {
		v, err := s.view(ctx, p)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	v, err := s.view(ctx, *p)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Service) view(ctx context.Context, p domain.Product) (View, error) {
	if p.Infinite {
		return View{Product: p, InStock: true}, nil
	}
	n, err := s.stock.Count(ctx, p.ID)
	if err != nil {
		return View{}, fmt.Errorf("count stock of %s: %w", p.ID, err)
	}
	return View{Product: p, Available: n, InStock: n > 0}, nil
}
