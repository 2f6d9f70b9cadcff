package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/layerledger/layerledger/internal/profit"
	"github.com/layerledger/layerledger/internal/valuation"
)

// ProductSource lists the products whose snapshots get warmed.
type ProductSource interface {
	ProductIDs(ctx context.Context) ([]int64, error)
}

// SnapshotComputer computes a product's valuation snapshot.
type SnapshotComputer interface {
	Snapshot(ctx context.Context, productID int64) (valuation.Snapshot, error)
}

// NewSnapshotWarmupHandler builds the Asynq handler that precomputes
// valuation snapshots into the report cache. One failing product is
// logged and skipped so the rest of the warm-up still completes.
func NewSnapshotWarmupHandler(logger *slog.Logger, products ProductSource, calc SnapshotComputer, cache *profit.Cache) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SnapshotWarmupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		start := time.Now()
		ids, err := products.ProductIDs(ctx)
		if err != nil {
			return err
		}
		warmed := 0
		for _, id := range ids {
			snap, err := calc.Snapshot(ctx, id)
			if err != nil {
				logger.Warn("snapshot warmup skipped product",
					slog.Int64("product_id", id),
					slog.Any("error", err))
				continue
			}
			key, err := cache.BuildKey(ctx, profit.SnapshotKeyParts(id)...)
			if err != nil {
				return err
			}
			if err := cache.StoreJSON(ctx, key, snap); err != nil {
				logger.Warn("snapshot warmup store failed",
					slog.Int64("product_id", id),
					slog.Any("error", err))
				continue
			}
			warmed++
		}
		logger.Info("snapshot warmup finished",
			slog.Int("products", len(ids)),
			slog.Int("warmed", warmed),
			slog.Duration("took", time.Since(start)))
		return nil
	}
}
