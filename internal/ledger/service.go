package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// InvalidationPort lets the store invalidate cached report aggregates
// after a successful write. Nil disables invalidation.
type InvalidationPort interface {
	Bump(ctx context.Context) error
}

// Store coordinates layer ledger writes and reads.
type Store struct {
	repo   RepositoryPort
	cache  InvalidationPort
	logger *slog.Logger
}

// NewStore builds Store.
func NewStore(repo RepositoryPort, cache InvalidationPort, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{repo: repo, cache: cache, logger: logger}
}

// AppendLayer records a purchase (or upward adjustment) as a new layer.
// When the caller supplies a SourceRef the call is idempotent: replays
// return the already recorded layer instead of a duplicate.
func (s *Store) AppendLayer(ctx context.Context, input AppendLayerInput) (InventoryLayer, error) {
	if input.ProductID <= 0 {
		return InventoryLayer{}, ErrProductRequired
	}
	if input.Qty.Sign() <= 0 {
		return InventoryLayer{}, ErrInvalidQuantity
	}
	if input.UnitCost.Sign() < 0 {
		return InventoryLayer{}, ErrInvalidUnitCost
	}
	entryDate := input.EntryDate
	if entryDate.IsZero() {
		entryDate = time.Now().UTC()
	}

	layer := InventoryLayer{
		ProductID:    input.ProductID,
		EntryDate:    entryDate,
		OriginalQty:  input.Qty,
		RemainingQty: input.Qty,
		UnitCost:     input.UnitCost,
		SourceRef:    input.SourceRef,
	}

	var stored InventoryLayer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertLayer(ctx, layer)
		if err != nil {
			return err
		}
		stored = layer
		stored.ID = id
		stored.CreatedAt = time.Now().UTC()
		return nil
	})
	if errors.Is(err, ErrDuplicateSourceRef) && input.SourceRef != "" {
		return s.existingBySourceRef(ctx, input.ProductID, input.SourceRef)
	}
	if err != nil {
		return InventoryLayer{}, err
	}

	s.bump(ctx)
	s.logger.Info("layer appended",
		slog.Int64("product_id", stored.ProductID),
		slog.Int64("layer_id", stored.ID),
		slog.String("qty", stored.OriginalQty.String()),
		slog.String("unit_cost", stored.UnitCost.String()))
	return stored, nil
}

// OpenLayers lists a product's layers with stock remaining, in FIFO order.
func (s *Store) OpenLayers(ctx context.Context, productID int64) ([]InventoryLayer, error) {
	if productID <= 0 {
		return nil, ErrProductRequired
	}
	return s.repo.OpenLayers(ctx, productID)
}

// History lists every layer of a product, exhausted ones included.
func (s *Store) History(ctx context.Context, productID int64) ([]InventoryLayer, error) {
	if productID <= 0 {
		return nil, ErrProductRequired
	}
	return s.repo.LayersByProduct(ctx, productID)
}

// Consumptions lists consumption records matching the filter.
func (s *Store) Consumptions(ctx context.Context, filter ConsumptionFilter) ([]ConsumptionRecord, error) {
	return s.repo.Consumptions(ctx, filter)
}

func (s *Store) existingBySourceRef(ctx context.Context, productID int64, sourceRef string) (InventoryLayer, error) {
	var existing InventoryLayer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		layer, err := tx.LayerBySourceRef(ctx, productID, sourceRef)
		if err != nil {
			return err
		}
		existing = layer
		return nil
	})
	if err != nil {
		return InventoryLayer{}, err
	}
	s.logger.Info("layer append replayed",
		slog.Int64("product_id", productID),
		slog.String("source_ref", sourceRef),
		slog.Int64("layer_id", existing.ID))
	return existing, nil
}

func (s *Store) bump(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("report cache bump failed", slog.Any("error", err))
	}
}
