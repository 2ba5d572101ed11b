package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/agrostore/internal/cart/repository"
	"github.com/fjod/agrostore/internal/domain"
	"go.uber.org/zap"
)

// CartStore is the cart of a single signed-in user.
type CartStore struct {
	svc    *CartService
	userID string
}

type LineView struct {
	LineID      string       `json:"id"`
	ProductID   string       `json:"product_id"`
	ProductName string       `json:"product_name"`
	ImageURL    string       `json:"image_url,omitempty"`
	Unit        string       `json:"unit,omitempty"`
	Quantity    int          `json:"quantity"`
	UnitPrice   domain.Money `json:"unit_price"`
	LineTotal   domain.Money `json:"line_total"`
	Stock       int          `json:"stock"`
	Available   bool         `json:"available"`
}

type CartView struct {
	Lines      []LineView   `json:"lines"`
	TotalItems int          `json:"total_items"`
	TotalPrice domain.Money `json:"total_price"`
}

func (c *CartStore) UserID() string { return c.userID }

func (c *CartStore) AddItem(ctx context.Context, productID string, quantity int) error {
	if quantity < 1 {
		return &domain.ValidationError{Field: "quantity", Reason: "must be at least 1"}
	}
	if productID == "" {
		return &domain.ValidationError{Field: "product_id", Reason: "is required"}
	}

	cart, err := c.svc.getCart(ctx, c.userID)
	if err != nil {
		return err
	}
	wanted := quantity
	if existing, ok := cart.LineForProduct(productID); ok {
		wanted += existing.Quantity
	}
	if _, err := c.svc.checkStock(ctx, productID, wanted); err != nil {
		return err
	}

	line := domain.CartLine{ID: newLineID(), ProductID: productID, Quantity: quantity}
	if err := c.svc.repo.IncrementLine(ctx, c.userID, line); err != nil {
		return &domain.PersistenceError{Op: "add cart line", Err: err}
	}
	c.svc.invalidateCache(c.userID)
	return nil
}

// SetQuantity replaces a line's quantity. Values below 1 are rejected and
// leave the line unchanged; use RemoveItem to drop a line.
func (c *CartStore) SetQuantity(ctx context.Context, lineID string, quantity int) error {
	if quantity < 1 {
		return &domain.ValidationError{Field: "quantity", Reason: "must be at least 1"}
	}

	cart, err := c.svc.getCart(ctx, c.userID)
	if err != nil {
		return err
	}
	line, ok := cart.Line(lineID)
	if !ok {
		return fmt.Errorf("cart line %s: %w", lineID, domain.ErrNotFound)
	}
	if _, err := c.svc.checkStock(ctx, line.ProductID, quantity); err != nil {
		return err
	}

	err = c.svc.repo.SetLineQuantity(ctx, c.userID, lineID, quantity)
	if errors.Is(err, repository.ErrLineNotFound) {
		return fmt.Errorf("cart line %s: %w", lineID, domain.ErrNotFound)
	}
	if err != nil {
		return &domain.PersistenceError{Op: "update cart line", Err: err}
	}
	c.svc.invalidateCache(c.userID)
	return nil
}

// RemoveItem deletes a line. Removing a line that does not exist is a no-op.
func (c *CartStore) RemoveItem(ctx context.Context, lineID string) error {
	if err := c.svc.repo.RemoveLine(ctx, c.userID, lineID); err != nil {
		return &domain.PersistenceError{Op: "remove cart line", Err: err}
	}
	c.svc.invalidateCache(c.userID)
	return nil
}

func (c *CartStore) Clear(ctx context.Context) error {
	return c.svc.ClearCart(ctx, c.userID)
}

func (c *CartStore) Lines(ctx context.Context) ([]domain.CartLine, error) {
	cart, err := c.svc.getCart(ctx, c.userID)
	if err != nil {
		return nil, err
	}
	return cart.Lines, nil
}

// View joins the cart lines with current catalog prices. Lines whose product
// is gone or sold out are returned with Available=false and left out of the
// totals.
func (c *CartStore) View(ctx context.Context) (*CartView, error) {
	lines, err := c.Lines(ctx)
	if err != nil {
		return nil, err
	}

	view := &CartView{Lines: make([]LineView, 0, len(lines))}
	for _, l := range lines {
		lv := LineView{LineID: l.ID, ProductID: l.ProductID, Quantity: l.Quantity}

		p, err := c.svc.products.GetProduct(ctx, l.ProductID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			c.svc.log.Info("cart line references missing product",
				zap.String("user_id", c.userID), zap.String("product_id", l.ProductID))
		case err != nil:
			return nil, fmt.Errorf("load product %s: %w", l.ProductID, err)
		default:
			lv.ProductName = p.Name
			lv.ImageURL = p.ImageURL
			lv.Unit = p.Unit
			lv.UnitPrice = p.Price
			lv.LineTotal = p.Price.Mul(l.Quantity)
			lv.Stock = p.Stock
			lv.Available = p.Available()
		}

		if lv.Available {
			view.TotalItems += l.Quantity
			view.TotalPrice += lv.LineTotal
		}
		view.Lines = append(view.Lines, lv)
	}
	return view, nil
}

func (c *CartStore) TotalItems(ctx context.Context) (int, error) {
	v, err := c.View(ctx)
	if err != nil {
		return 0, err
	}
	return v.TotalItems, nil
}

func (c *CartStore) TotalPrice(ctx context.Context) (domain.Money, error) {
	v, err := c.View(ctx)
	if err != nil {
		return 0, err
	}
	return v.TotalPrice, nil
}
