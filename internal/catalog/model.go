// Package catalog holds the minimal product master the costing engine
// needs: identity, display name and the list purchase price used as the
// degrade-policy fallback cost.
package catalog

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Product is a sellable item.
type Product struct {
	ID                int64
	SKU               string
	Name              string
	ListPurchasePrice decimal.Decimal
}

// ErrProductNotFound indicates an unknown product id.
var ErrProductNotFound = errors.New("catalog: product not found")

// ErrInvalidProduct indicates malformed product data.
var ErrInvalidProduct = errors.New("catalog: sku and name required")
