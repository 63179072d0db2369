package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/shopflow/internal/domain"
	"github.com/joao-fontenele/shopflow/internal/httpx"
	"github.com/joao-fontenele/shopflow/internal/settings"
)

type Handler struct {
	catalog  Catalog
	settings settings.Provider
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(catalog Catalog, settings settings.Provider, logger *slog.Logger) *Handler {
	return &Handler{
		catalog:  catalog,
		settings: settings,
		validate: validator.New(),
		logger:   logger,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /products/{id}", h.HandleGetProduct)
	mux.HandleFunc("POST /products", h.HandleCreateProduct)
	mux.HandleFunc("PUT /products/{id}/stock", h.HandleSetStock)
	mux.HandleFunc("PUT /variants/{id}/stock", h.HandleSetVariantStock)
	mux.HandleFunc("GET /stock/low", h.HandleLowStock)
}

func (h *Handler) HandleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	if product == nil {
		httpx.WriteError(w, h.logger, domain.ErrProductNotFound)
		return
	}

	variants, err := h.catalog.ListVariants(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	product.Variants = variants

	httpx.WriteJSON(w, h.logger, http.StatusOK, product)
}

type variantRequest struct {
	Code          string              `json:"code" validate:"required,max=64"`
	Name          string              `json:"name" validate:"max=255"`
	Attributes    map[string]string   `json:"attributes"`
	Price         decimal.NullDecimal `json:"price"`
	OriginalPrice decimal.NullDecimal `json:"original_price"`
	Stock         int                 `json:"stock" validate:"gte=0"`
}

type productRequest struct {
	Name          string          `json:"name" validate:"required,max=255"`
	CategoryID    int64           `json:"category_id" validate:"gte=0"`
	Price         decimal.Decimal `json:"price"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	Stock         int             `json:"stock" validate:"gte=0"`
	CoverImage    string          `json:"cover_image" validate:"max=512"`
	Description   string          `json:"description"`
	OffShelf      bool            `json:"off_shelf"`
	IsHot         bool            `json:"is_hot"`
	IsRecommend   bool            `json:"is_recommend"`
	IsFlashSale   bool            `json:"is_flash_sale"`
}

type createProductRequest struct {
	Product  productRequest   `json:"product"`
	Variants []variantRequest `json:"variants" validate:"dive"`
}

func (h *Handler) HandleCreateProduct(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req createProductRequest
	if err := httpx.Decode(r, h.validate, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	if !req.Product.Price.IsPositive() {
		httpx.WriteError(w, h.logger, fmt.Errorf("%w: price must be positive", domain.ErrInvalidInput))
		return
	}

	status := domain.ProductStatusOnShelf
	if req.Product.OffShelf {
		status = domain.ProductStatusOffShelf
	}

	product := &domain.Product{
		Name:          req.Product.Name,
		CategoryID:    req.Product.CategoryID,
		Price:         req.Product.Price,
		OriginalPrice: req.Product.OriginalPrice,
		Stock:         req.Product.Stock,
		CoverImage:    req.Product.CoverImage,
		Description:   req.Product.Description,
		Status:        status,
		IsHot:         req.Product.IsHot,
		IsRecommend:   req.Product.IsRecommend,
		IsFlashSale:   req.Product.IsFlashSale,
	}
	for _, v := range req.Variants {
		if v.Price.Valid && !v.Price.Decimal.IsPositive() {
			httpx.WriteError(w, h.logger, fmt.Errorf("%w: variant %s price must be positive", domain.ErrInvalidInput, v.Code))
			return
		}
		product.Variants = append(product.Variants, domain.Variant{
			Code:          v.Code,
			Name:          v.Name,
			Attributes:    v.Attributes,
			Price:         v.Price,
			OriginalPrice: v.OriginalPrice,
			Stock:         v.Stock,
			Status:        domain.ProductStatusOnShelf,
		})
	}

	if err := h.catalog.CreateProduct(r.Context(), product); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}

	h.logger.Info("product created", "product_id", product.ID, "variants", len(product.Variants))
	httpx.WriteJSON(w, h.logger, http.StatusCreated, product)
}

type setStockRequest struct {
	Stock *int `json:"stock" validate:"required,gte=0"`
}

func (h *Handler) HandleSetStock(w http.ResponseWriter, r *http.Request) {
	h.setStock(w, r, "product_id", h.catalog.SetStock)
}

func (h *Handler) HandleSetVariantStock(w http.ResponseWriter, r *http.Request) {
	h.setStock(w, r, "variant_id", h.catalog.SetVariantStock)
}

func (h *Handler) setStock(w http.ResponseWriter, r *http.Request, logKey string, set func(ctx context.Context, id int64, stock int) error) {
	if !h.requireAdmin(w, r) {
		return
	}

	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}

	var req setStockRequest
	if err := httpx.Decode(r, h.validate, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}

	if err := set(r.Context(), id, *req.Stock); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}

	h.logger.Info("stock set", logKey, id, "stock", *req.Stock)
	w.WriteHeader(http.StatusNoContent)
}

// HandleLowStock lists products at or below ?threshold=, defaulting to the
// configured stock warning level.
func (h *Handler) HandleLowStock(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var threshold int
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httpx.WriteError(w, h.logger, fmt.Errorf("%w: invalid threshold", domain.ErrInvalidInput))
			return
		}
		threshold = n
	} else {
		s, err := h.settings.Get(r.Context())
		if err != nil {
			httpx.WriteError(w, h.logger, err)
			return
		}
		threshold = s.StockWarning
	}

	products, err := h.catalog.ListLowStock(r.Context(), threshold)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}

	h.logger.Info("low stock listed", "threshold", threshold, "count", len(products))
	httpx.WriteJSON(w, h.logger, http.StatusOK, products)
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	caller, err := httpx.CallerFrom(r)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return false
	}
	if !caller.IsAdmin() {
		httpx.WriteError(w, h.logger, domain.ErrForbidden)
		return false
	}
	return true
}
