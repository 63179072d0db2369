package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProductStatus int

const (
	ProductStatusOffShelf ProductStatus = 0
	ProductStatusOnShelf  ProductStatus = 1
)

type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	CategoryID    int64           `json:"category_id"`
	Price         decimal.Decimal `json:"price"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	Stock         int             `json:"stock"`
	Sales         int             `json:"sales"`
	CoverImage    string          `json:"cover_image"`
	Description   string          `json:"description"`
	Status        ProductStatus   `json:"status"`
	IsHot         bool            `json:"is_hot"`
	IsRecommend   bool            `json:"is_recommend"`
	IsFlashSale   bool            `json:"is_flash_sale"`
	CreatedAt     time.Time       `json:"created_at"`
	Variants      []Variant       `json:"variants,omitempty"`
}

func (p *Product) OnShelf() bool {
	return p.Status == ProductStatusOnShelf
}

// Variant is a purchasable configuration (SKU) of a product. Its stock is
// tracked alongside the product's own counter, not instead of it.
type Variant struct {
	ID            int64               `json:"id"`
	ProductID     int64               `json:"product_id"`
	Code          string              `json:"code"`
	Name          string              `json:"name"`
	Attributes    map[string]string   `json:"attributes,omitempty"`
	Price         decimal.NullDecimal `json:"price"`
	OriginalPrice decimal.NullDecimal `json:"original_price"`
	Stock         int                 `json:"stock"`
	Sales         int                 `json:"sales"`
	Status        ProductStatus       `json:"status"`
}
