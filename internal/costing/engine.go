// Package costing implements FIFO consumption of purchase layers. Each
// sale draws from the oldest open layers first; the cost captured per
// layer becomes the sale line's cost of goods sold.
package costing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/layerledger/layerledger/internal/ledger"
)

// Policy decides what happens when open layers cannot cover a sale.
type Policy string

const (
	// PolicyStrict aborts the consumption with no mutation. Default.
	PolicyStrict Policy = "strict"
	// PolicyDegrade covers the shortfall at the product's reference
	// purchase price and flags the resulting record as estimated.
	PolicyDegrade Policy = "degrade"
)

// ParsePolicy validates a configured policy string.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyStrict, PolicyDegrade:
		return Policy(s), nil
	case "":
		return PolicyStrict, nil
	}
	return "", fmt.Errorf("costing: unknown policy %q", s)
}

// InsufficientStockError reports that open layers cannot cover the
// requested quantity under the strict policy.
type InsufficientStockError struct {
	ProductID int64
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("costing: insufficient stock for product %d: available %s, requested %s",
		e.ProductID, e.Available, e.Requested)
}

// ReferenceCostPort resolves a product's configured list purchase
// price, used to cost shortfalls under the degrade policy.
type ReferenceCostPort interface {
	ReferenceUnitCost(ctx context.Context, productID int64) (decimal.Decimal, error)
}

// ErrSaleLineRequired indicates a missing sale line reference.
var ErrSaleLineRequired = errors.New("costing: sale line required")

// ErrReferenceCostUnavailable indicates the degrade policy could not
// resolve a fallback unit cost.
var ErrReferenceCostUnavailable = errors.New("costing: reference cost unavailable")

// ConsumeInput describes one sale line's demand on the ledger.
type ConsumeInput struct {
	ProductID  int64
	Qty        decimal.Decimal
	SaleLineID string
	AsOf       time.Time
}

// ConsumeResult reports the allocation. ShortfallQty is zero unless the
// degrade policy covered part of the demand.
type ConsumeResult struct {
	Records      []ledger.ConsumptionRecord
	TotalCost    decimal.Decimal
	ShortfallQty decimal.Decimal
}

// Engine allocates sale quantities across open layers oldest-first.
type Engine struct {
	store    ledger.RepositoryPort
	refCosts ReferenceCostPort
	cache    ledger.InvalidationPort
	policy   Policy
	logger   *slog.Logger
}

// NewEngine builds Engine. refCosts may be nil when the policy is strict.
func NewEngine(store ledger.RepositoryPort, refCosts ReferenceCostPort, cache ledger.InvalidationPort, policy Policy, logger *slog.Logger) *Engine {
	if policy == "" {
		policy = PolicyStrict
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, refCosts: refCosts, cache: cache, policy: policy, logger: logger}
}

// Consume walks the product's open layers in (entryDate, layerId) order,
// taking min(remaining, needed) from each until the demand is covered.
// The walk, the decrements and the record inserts share one store
// transaction, so a failure rolls everything back together. A conflicting
// concurrent writer surfaces as ledger.ErrConflict; the engine retries
// once against fresh layer state before giving up.
func (e *Engine) Consume(ctx context.Context, input ConsumeInput) (ConsumeResult, error) {
	if input.ProductID <= 0 {
		return ConsumeResult{}, ledger.ErrProductRequired
	}
	if input.Qty.Sign() <= 0 {
		return ConsumeResult{}, ledger.ErrInvalidQuantity
	}
	if input.SaleLineID == "" {
		return ConsumeResult{}, ErrSaleLineRequired
	}
	if input.AsOf.IsZero() {
		input.AsOf = time.Now().UTC()
	}

	result, err := e.consumeOnce(ctx, input)
	if errors.Is(err, ledger.ErrConflict) {
		e.logger.Warn("consume conflict, retrying against fresh state",
			slog.Int64("product_id", input.ProductID),
			slog.String("sale_line_id", input.SaleLineID))
		result, err = e.consumeOnce(ctx, input)
	}
	if err != nil {
		return ConsumeResult{}, err
	}

	if e.cache != nil {
		if bumpErr := e.cache.Bump(ctx); bumpErr != nil {
			e.logger.Warn("report cache bump failed", slog.Any("error", bumpErr))
		}
	}
	return result, nil
}

func (e *Engine) consumeOnce(ctx context.Context, input ConsumeInput) (ConsumeResult, error) {
	var result ConsumeResult
	err := e.store.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		layers, err := tx.OpenLayersForUpdate(ctx, input.ProductID)
		if err != nil {
			return err
		}

		available := decimal.Zero
		for _, layer := range layers {
			available = available.Add(layer.RemainingQty)
		}
		if e.policy == PolicyStrict && available.LessThan(input.Qty) {
			return &InsufficientStockError{
				ProductID: input.ProductID,
				Available: available,
				Requested: input.Qty,
			}
		}

		needed := input.Qty
		totalCost := decimal.Zero
		records := make([]ledger.ConsumptionRecord, 0, len(layers))
		for _, layer := range layers {
			if needed.IsZero() {
				break
			}
			take := decimal.Min(layer.RemainingQty, needed)
			if err := tx.DecrementLayer(ctx, layer.ID, take); err != nil {
				return err
			}
			records = append(records, ledger.ConsumptionRecord{
				SaleLineID:            input.SaleLineID,
				LayerID:               layer.ID,
				ProductID:             input.ProductID,
				QuantityConsumed:      take,
				UnitCostAtConsumption: layer.UnitCost,
				ConsumedAt:            input.AsOf,
			})
			totalCost = totalCost.Add(take.Mul(layer.UnitCost))
			needed = needed.Sub(take)
		}

		shortfall := needed
		if shortfall.Sign() > 0 {
			estimated, err := e.estimateShortfall(ctx, input, shortfall)
			if err != nil {
				return err
			}
			records = append(records, estimated)
			totalCost = totalCost.Add(estimated.Cost())
		}

		stored, err := tx.InsertConsumptionRecords(ctx, records)
		if err != nil {
			return err
		}
		result = ConsumeResult{Records: stored, TotalCost: totalCost, ShortfallQty: shortfall}
		return nil
	})
	if err != nil {
		return ConsumeResult{}, err
	}
	return result, nil
}

func (e *Engine) estimateShortfall(ctx context.Context, input ConsumeInput, shortfall decimal.Decimal) (ledger.ConsumptionRecord, error) {
	if e.refCosts == nil {
		return ledger.ConsumptionRecord{}, ErrReferenceCostUnavailable
	}
	refCost, err := e.refCosts.ReferenceUnitCost(ctx, input.ProductID)
	if err != nil {
		return ledger.ConsumptionRecord{}, fmt.Errorf("%w: %v", ErrReferenceCostUnavailable, err)
	}
	e.logger.Warn("covering shortfall at reference cost",
		slog.Int64("product_id", input.ProductID),
		slog.String("sale_line_id", input.SaleLineID),
		slog.String("shortfall", shortfall.String()),
		slog.String("reference_cost", refCost.String()))
	return ledger.ConsumptionRecord{
		SaleLineID:            input.SaleLineID,
		ProductID:             input.ProductID,
		QuantityConsumed:      shortfall,
		UnitCostAtConsumption: refCost,
		Estimated:             true,
		ConsumedAt:            input.AsOf,
	}, nil
}
