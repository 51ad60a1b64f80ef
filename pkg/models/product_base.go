package models

import (
	"github.com/shopspring/decimal"
)

// Product представляет товар из центрального каталога продавца.
// Это исходная запись, которую превью и коммит превращают в листинг конкретного канала.
type Product struct {
	ID             string            `json:"id" validate:"required"`
	SKU            string            `json:"sku"`
	Name           string            `json:"name" validate:"required"`
	Description    string            `json:"description"`
	Brand          string            `json:"brand"`
	CategoryID     string            `json:"category_id"`
	Price          decimal.Decimal   `json:"price"`
	CompareAtPrice *decimal.Decimal  `json:"compare_at_price,omitempty"`
	Currency       string            `json:"currency"`
	Stock          int               `json:"stock"`
	WeightGrams    int               `json:"weight_grams"`
	Images         []string          `json:"images"`
	Attributes     map[string]string `json:"attributes,omitempty"`
}
