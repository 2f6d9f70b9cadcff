// Package ledger owns the purchase-layer ledger and the consumption
// record log. Layers are append-mostly: everything except RemainingQty
// is immutable, and RemainingQty only ever decreases.
package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// LayerState describes how much of a layer has been consumed.
type LayerState string

const (
	// LayerStateOpen means nothing has been consumed yet.
	LayerStateOpen LayerState = "OPEN"
	// LayerStatePartial means some quantity remains.
	LayerStatePartial LayerState = "PARTIALLY_CONSUMED"
	// LayerStateExhausted means the layer is fully consumed. Exhausted
	// layers are never deleted and never reopened.
	LayerStateExhausted LayerState = "EXHAUSTED"
)

// InventoryLayer is one batch of stock received at a given date and cost.
type InventoryLayer struct {
	ID           int64
	ProductID    int64
	EntryDate    time.Time
	OriginalQty  decimal.Decimal
	RemainingQty decimal.Decimal
	UnitCost     decimal.Decimal
	SourceRef    string
	CreatedAt    time.Time
}

// State derives the lifecycle state from the remaining quantity.
func (l InventoryLayer) State() LayerState {
	switch {
	case l.RemainingQty.IsZero():
		return LayerStateExhausted
	case l.RemainingQty.Equal(l.OriginalQty):
		return LayerStateOpen
	default:
		return LayerStatePartial
	}
}

// Value returns the current on-hand value of the layer.
func (l InventoryLayer) Value() decimal.Decimal {
	return l.RemainingQty.Mul(l.UnitCost)
}

// ConsumptionRecord is a write-once journal entry tying a sale line to
// the layer it drew from. LayerID is zero for estimated records created
// under the degrade policy, which draw from no real layer.
type ConsumptionRecord struct {
	ID                    int64
	SaleLineID            string
	LayerID               int64
	ProductID             int64
	QuantityConsumed      decimal.Decimal
	UnitCostAtConsumption decimal.Decimal
	Estimated             bool
	ConsumedAt            time.Time
}

// Cost returns quantity times the unit cost captured at consumption.
func (r ConsumptionRecord) Cost() decimal.Decimal {
	return r.QuantityConsumed.Mul(r.UnitCostAtConsumption)
}

// AppendLayerInput describes a purchase (or upward adjustment) to record.
type AppendLayerInput struct {
	ProductID int64
	Qty       decimal.Decimal
	UnitCost  decimal.Decimal
	EntryDate time.Time
	SourceRef string
}

// ConsumptionFilter scopes consumption record reads.
type ConsumptionFilter struct {
	ProductID  int64
	SaleLineID string
	From       time.Time
	To         time.Time
}

// ErrProductRequired indicates a missing product reference.
var ErrProductRequired = errors.New("ledger: product required")

// ErrInvalidQuantity indicates a non-positive quantity.
var ErrInvalidQuantity = errors.New("ledger: quantity must be positive")

// ErrInvalidUnitCost indicates a negative unit cost.
var ErrInvalidUnitCost = errors.New("ledger: unit cost must be >= 0")

// ErrLayerNotFound indicates the referenced layer does not exist.
var ErrLayerNotFound = errors.New("ledger: layer not found")

// ErrLayerOverdrawn indicates a decrement would drive RemainingQty
// negative. The store fails closed instead of clamping: a clamp would
// silently corrupt the audit trail.
var ErrLayerOverdrawn = errors.New("ledger: decrement exceeds remaining quantity")

// ErrConflict indicates another writer mutated the same layers first.
// Callers should retry the whole operation against fresh state.
var ErrConflict = errors.New("ledger: conflicting layer write")

// ErrDuplicateSourceRef indicates a source reference was already recorded.
var ErrDuplicateSourceRef = errors.New("ledger: source ref already recorded")
