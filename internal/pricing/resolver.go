// Package pricing turns cart lines into priced lines using the catalog as the
// only source of prices.
package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/agrostore/internal/domain"
)

type ProductReader interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// Line is a cart line priced at resolution time.
type Line struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   domain.Money
	LineTotal   domain.Money
}

type Resolver struct {
	products ProductReader
}

func NewResolver(products ProductReader) *Resolver {
	return &Resolver{products: products}
}

// Resolve prices every line. It fails as a whole on the first line whose
// product is gone, sold out, or short on stock.
func (r *Resolver) Resolve(ctx context.Context, lines []domain.CartLine) ([]Line, error) {
	resolved := make([]Line, 0, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 {
			return nil, &domain.ValidationError{Field: "quantity", Reason: fmt.Sprintf("line %s has quantity %d", l.ID, l.Quantity)}
		}

		p, err := r.products.GetProduct(ctx, l.ProductID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &domain.ProductUnavailableError{ProductID: l.ProductID}
		}
		if err != nil {
			return nil, fmt.Errorf("load product %s: %w", l.ProductID, err)
		}
		if !p.Available() {
			return nil, &domain.ProductUnavailableError{ProductID: l.ProductID}
		}
		if l.Quantity > p.Stock {
			return nil, &domain.OutOfStockError{ProductID: l.ProductID, Requested: l.Quantity, Available: p.Stock}
		}

		resolved = append(resolved, Line{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    l.Quantity,
			UnitPrice:   p.Price,
			LineTotal:   p.Price.Mul(l.Quantity),
		})
	}
	return resolved, nil
}

func Total(lines []Line) domain.Money {
	var total domain.Money
	for _, l := range lines {
		total += l.LineTotal
	}
	return total
}

// FromOrderItems rebuilds priced lines from an order's stored snapshot.
func FromOrderItems(items []domain.OrderItem) []Line {
	lines := make([]Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, Line{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.Price,
			LineTotal:   it.LineTotal(),
		})
	}
	return lines
}
