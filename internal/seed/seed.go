package seed

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
	"github.com/ereal21/zxczxcz-sub000/internal/money"
)

type CatalogWriter interface {
	UpsertCategory(ctx context.Context, c domain.Category) error
	Upsert(ctx context.Context, p domain.Product) (*domain.Product, error)
}

type StockWriter interface {
	Add(ctx context.Context, productID string, payload domain.StockPayload) (domain.StockItem, error)
	Count(ctx context.Context, productID string) (int, error)
}

type PromoWriter interface {
	Upsert(ctx context.Context, p domain.Promo) error
}

type productSeed struct {
	ID       string
	Category string
	Name     string
	Price    string
	Infinite *domain.StockPayload
	Stock    []domain.StockPayload
}

// Apply inserts demo data for manual testing. Catalog rows are upserted and
// stock is only added to products that have none, so reruns are harmless.
func Apply(ctx context.Context, catalog CatalogWriter, stock StockWriter, promos PromoWriter, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	categories := []domain.Category{
		{ID: "vpn", Name: "VPN", AllowDiscounts: true},
		{ID: "books", Name: "Books", AllowDiscounts: true},
		{ID: "licenses", Name: "Licenses", AllowDiscounts: false},
	}
	for _, c := range categories {
		if err := catalog.UpsertCategory(ctx, c); err != nil {
			return fmt.Errorf("upsert category %s: %w", c.ID, err)
		}
	}

	guide := domain.TextPayload("https://example.com/guide")
	products := []productSeed{
		{
			ID: "vpn-1m", Category: "vpn", Name: "VPN 1 month", Price: "4.99",
			Stock: []domain.StockPayload{
				domain.TextPayload("VPN-DEMO-0001"),
				domain.TextPayload("VPN-DEMO-0002"),
				domain.TextPayload("VPN-DEMO-0003"),
			},
		},
		{
			ID: "ebook-go", Category: "books", Name: "Go ebook", Price: "10.00",
			Stock: []domain.StockPayload{domain.FilePayload("/srv/stock/go-ebook.pdf")},
		},
		{ID: "guide", Category: "licenses", Name: "Setup guide", Price: "1.50", Infinite: &guide},
	}
	for _, p := range products {
		if err := upsertProduct(ctx, catalog, stock, p); err != nil {
			return fmt.Errorf("seed product %s: %w", p.ID, err)
		}
	}

	if err := promos.Upsert(ctx, domain.Promo{Code: "WELCOME10", Percent: money.MustParse("10")}); err != nil {
		return fmt.Errorf("upsert promo: %w", err)
	}

	logger.Info("seed applied", zap.Int("categories", len(categories)), zap.Int("products", len(products)))
	return nil
}

func upsertProduct(ctx context.Context, catalog CatalogWriter, stock StockWriter, p productSeed) error {
	price, err := money.Parse(p.Price)
	if err != nil {
		return err
	}
	if _, err := catalog.Upsert(ctx, domain.Product{
		ID:              p.ID,
		CategoryID:      p.Category,
		Name:            p.Name,
		Price:           price,
		Infinite:        p.Infinite != nil,
		InfinitePayload: p.Infinite,
	}); err != nil {
		return err
	}
	if len(p.Stock) == 0 {
		return nil
	}
	have, err := stock.Count(ctx, p.ID)
	if err != nil {
		return err
	}
	if have > 0 {
		return nil
	}
	for _, payload := range p.Stock {
		if _, err := stock.Add(ctx, p.ID, payload); err != nil {
			return err
		}
	}
	return nil
}
