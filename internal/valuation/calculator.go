// Package valuation derives on-hand quantity, value, average cost and
// age-bucketed value from the current layer ledger. Everything here is
// a pure read-side projection: nothing is stored, bucket membership is
// recomputed per query.
package valuation

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/layerledger/layerledger/internal/ledger"
)

// LayerReader is the slice of the ledger the calculator needs.
type LayerReader interface {
	OpenLayers(ctx context.Context, productID int64) ([]ledger.InventoryLayer, error)
	AllOpenLayers(ctx context.Context) ([]ledger.InventoryLayer, error)
}

// Snapshot summarises a product's current inventory position.
type Snapshot struct {
	ProductID   int64           `json:"product_id"`
	OnHandQty   decimal.Decimal `json:"on_hand_qty"`
	OnHandValue decimal.Decimal `json:"on_hand_value"`
	AvgCost     decimal.Decimal `json:"avg_cost"`
	OpenLayers  int             `json:"open_layers"`
	AsOf        time.Time       `json:"as_of"`
}

// AgingBucket holds the open-layer value whose age falls in the bucket.
type AgingBucket struct {
	Bucket string          `json:"bucket"`
	Value  decimal.Decimal `json:"value"`
}

// DefaultBoundaryDays are the upper bounds (inclusive, in days) of all
// buckets but the last, which is open-ended.
var DefaultBoundaryDays = []int{30, 90, 180}

// Calculator computes valuation and aging views.
type Calculator struct {
	layers     LayerReader
	boundaries []int
}

// NewCalculator builds Calculator. Empty boundaries fall back to the
// default 0-30/31-90/91-180/181+ scheme.
func NewCalculator(layers LayerReader, boundaryDays []int) *Calculator {
	if len(boundaryDays) == 0 {
		boundaryDays = DefaultBoundaryDays
	}
	return &Calculator{layers: layers, boundaries: boundaryDays}
}

// Snapshot sums the product's open layers. Average cost is on-hand
// value over on-hand quantity, zero when nothing is on hand.
func (c *Calculator) Snapshot(ctx context.Context, productID int64) (Snapshot, error) {
	if productID <= 0 {
		return Snapshot{}, ledger.ErrProductRequired
	}
	layers, err := c.layers.OpenLayers(ctx, productID)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		ProductID:   productID,
		OnHandQty:   decimal.Zero,
		OnHandValue: decimal.Zero,
		AvgCost:     decimal.Zero,
		OpenLayers:  len(layers),
		AsOf:        time.Now().UTC(),
	}
	for _, layer := range layers {
		snap.OnHandQty = snap.OnHandQty.Add(layer.RemainingQty)
		snap.OnHandValue = snap.OnHandValue.Add(layer.Value())
	}
	if snap.OnHandQty.Sign() > 0 {
		snap.AvgCost = snap.OnHandValue.Div(snap.OnHandQty)
	}
	return snap, nil
}

// AgingBuckets groups open-layer value by elapsed days since entry.
// productID zero means all products. Every bucket is present in the
// result even when its value is zero.
func (c *Calculator) AgingBuckets(ctx context.Context, productID int64, asOf time.Time) ([]AgingBucket, error) {
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	var layers []ledger.InventoryLayer
	var err error
	if productID > 0 {
		layers, err = c.layers.OpenLayers(ctx, productID)
	} else {
		layers, err = c.layers.AllOpenLayers(ctx)
	}
	if err != nil {
		return nil, err
	}

	buckets := make([]AgingBucket, len(c.boundaries)+1)
	for i := range buckets {
		buckets[i] = AgingBucket{Bucket: c.bucketLabel(i), Value: decimal.Zero}
	}
	for _, layer := range layers {
		idx := c.bucketIndex(ageDays(asOf, layer.EntryDate))
		buckets[idx].Value = buckets[idx].Value.Add(layer.Value())
	}
	return buckets, nil
}

// AgeDays reports a layer's age in whole days at asOf.
func AgeDays(asOf time.Time, layer ledger.InventoryLayer) int {
	return ageDays(asOf, layer.EntryDate)
}

func ageDays(asOf, entryDate time.Time) int {
	days := int(asOf.Sub(entryDate).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

func (c *Calculator) bucketIndex(age int) int {
	for i, boundary := range c.boundaries {
		if age <= boundary {
			return i
		}
	}
	return len(c.boundaries)
}

func (c *Calculator) bucketLabel(i int) string {
	if i == 0 {
		return fmt.Sprintf("0-%d", c.boundaries[0])
	}
	if i == len(c.boundaries) {
		return fmt.Sprintf("%d+", c.boundaries[len(c.boundaries)-1]+1)
	}
	return fmt.Sprintf("%d-%d", c.boundaries[i-1]+1, c.boundaries[i])
}
