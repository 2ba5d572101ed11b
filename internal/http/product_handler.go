package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/agrostore/internal/catalog"
	"github.com/fjod/agrostore/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ProductCatalog interface {
	ListProducts(ctx context.Context, f catalog.Filter) ([]*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

type ProductHandler struct {
	catalog ProductCatalog
	timeout time.Duration
	log     *zap.Logger
}

func NewProductHandler(products ProductCatalog, timeout time.Duration, log *zap.Logger) *ProductHandler {
	return &ProductHandler{
		catalog: products,
		timeout: timeout,
		log:     log,
	}
}

type ProductResponse struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Price       domain.Money `json:"price"`
	Stock       int          `json:"stock"`
	Unit        string       `json:"unit,omitempty"`
	Category    string       `json:"category,omitempty"`
	Organic     bool         `json:"organic"`
	ImageURL    string       `json:"image_url"`
}

type ProductsResponse struct {
	Products []ProductResponse `json:"products"`
}

// GET /api/v1/products?category=&q=&organic=&include_out_of_stock=
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	q := r.URL.Query()
	f := catalog.Filter{
		Category: q.Get("category"),
		Search:   q.Get("q"),
	}
	var err error
	if f.OrganicOnly, err = queryBool(q.Get("organic")); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_argument", "organic must be true or false")
		return
	}
	if f.IncludeOutOfStock, err = queryBool(q.Get("include_out_of_stock")); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_argument", "include_out_of_stock must be true or false")
		return
	}

	products, err := h.catalog.ListProducts(ctx, f)
	if err != nil {
		respondDomainError(w, r, h.log, err)
		return
	}

	resp := make([]ProductResponse, len(products))
	for i, p := range products {
		resp[i] = toProductResponse(p)
	}
	respondJSON(w, http.StatusOK, &ProductsResponse{Products: resp})
}

// GET /api/v1/products/{product_id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "product_id"))
	if err != nil {
		respondDomainError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toProductResponse(p))
}

func toProductResponse(p *domain.Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		Unit:        p.Unit,
		Category:    p.Category,
		Organic:     p.Organic,
		ImageURL:    p.ImageURL,
	}
}

func queryBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}
