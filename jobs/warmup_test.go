package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/layerledger/layerledger/internal/ledger"
	"github.com/layerledger/layerledger/internal/profit"
	"github.com/layerledger/layerledger/internal/valuation"
)

func seedLayer(t *testing.T, store *ledger.MemoryStore, productID int64, q, cost string) {
	t.Helper()
	err := store.WithTx(context.Background(), func(ctx context.Context, tx ledger.TxRepository) error {
		_, err := tx.InsertLayer(ctx, ledger.InventoryLayer{
			ProductID:    productID,
			EntryDate:    time.Now().UTC(),
			OriginalQty:  decimal.RequireFromString(q),
			RemainingQty: decimal.RequireFromString(q),
			UnitCost:     decimal.RequireFromString(cost),
		})
		return err
	})
	require.NoError(t, err)
}

func TestSnapshotWarmupHandler(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := profit.NewCache(client, time.Minute)

	store := ledger.NewMemoryStore()
	seedLayer(t, store, 1, "10", "100")
	seedLayer(t, store, 2, "4", "25")
	calc := valuation.NewCalculator(store, nil)

	task, err := NewSnapshotWarmupTask(time.Now().UTC())
	require.NoError(t, err)

	handler := NewSnapshotWarmupHandler(nil, store, calc, cache)
	require.NoError(t, handler(context.Background(), task))

	ctx := context.Background()
	key, err := cache.BuildKey(ctx, profit.SnapshotKeyParts(1)...)
	require.NoError(t, err)
	raw, err := client.Get(ctx, key).Bytes()
	require.NoError(t, err)

	var snap valuation.Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	require.True(t, snap.OnHandQty.Equal(decimal.RequireFromString("10")))
	require.True(t, snap.OnHandValue.Equal(decimal.RequireFromString("1000")))
}
