package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore is an embedded RepositoryPort for deployments without
// PostgreSQL and for tests. Transactions are staged and applied on
// commit, so a failed consume leaves no partial decrements behind.
// A single write mutex serializes transactions, which trivially
// satisfies the per-product serialization the consume path requires;
// reads copy under a read lock and never block behind writers' staging.
type MemoryStore struct {
	mu      sync.RWMutex
	writeMu sync.Mutex

	layers       map[int64][]InventoryLayer
	records      []ConsumptionRecord
	nextLayerID  int64
	nextRecordID int64
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{layers: make(map[int64][]InventoryLayer)}
}

type memoryTx struct {
	store      *MemoryStore
	inserted   []InventoryLayer
	decrements map[int64]decimal.Decimal
	records    []ConsumptionRecord
}

// WithTx runs fn against a staged view and applies the staged changes
// only when fn succeeds.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx := &memoryTx{store: s, decrements: make(map[int64]decimal.Decimal)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// OpenLayers lists committed open layers for one product in FIFO order.
func (s *MemoryStore) OpenLayers(ctx context.Context, productID int64) ([]InventoryLayer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return openOnly(s.layers[productID]), nil
}

// AllOpenLayers lists committed open layers across all products.
func (s *MemoryStore) AllOpenLayers(ctx context.Context) ([]InventoryLayer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.productIDsLocked()
	var all []InventoryLayer
	for _, id := range ids {
		all = append(all, openOnly(s.layers[id])...)
	}
	return all, nil
}

// LayersByProduct lists every layer of a product, exhausted included.
func (s *MemoryStore) LayersByProduct(ctx context.Context, productID int64) ([]InventoryLayer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	layers := make([]InventoryLayer, len(s.layers[productID]))
	copy(layers, s.layers[productID])
	sortLayers(layers)
	return layers, nil
}

// ProductIDs lists products with at least one layer.
func (s *MemoryStore) ProductIDs(ctx context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.productIDsLocked(), nil
}

// Consumptions lists committed consumption records matching the filter.
func (s *MemoryStore) Consumptions(ctx context.Context, filter ConsumptionFilter) ([]ConsumptionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ConsumptionRecord
	for _, rec := range s.records {
		if filter.ProductID != 0 && rec.ProductID != filter.ProductID {
			continue
		}
		if filter.SaleLineID != "" && rec.SaleLineID != filter.SaleLineID {
			continue
		}
		if !filter.From.IsZero() && rec.ConsumedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && rec.ConsumedAt.After(filter.To) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *MemoryStore) productIDsLocked() []int64 {
	ids := make([]int64, 0, len(s.layers))
	for id := range s.layers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (tx *memoryTx) InsertLayer(ctx context.Context, layer InventoryLayer) (int64, error) {
	if layer.SourceRef != "" {
		if _, err := tx.LayerBySourceRef(ctx, layer.ProductID, layer.SourceRef); err == nil {
			return 0, ErrDuplicateSourceRef
		}
	}
	tx.store.mu.Lock()
	tx.store.nextLayerID++
	layer.ID = tx.store.nextLayerID
	tx.store.mu.Unlock()
	layer.CreatedAt = time.Now().UTC()
	tx.inserted = append(tx.inserted, layer)
	return layer.ID, nil
}

func (tx *memoryTx) LayerBySourceRef(ctx context.Context, productID int64, sourceRef string) (InventoryLayer, error) {
	tx.store.mu.RLock()
	for _, layer := range tx.store.layers[productID] {
		if layer.SourceRef == sourceRef {
			tx.store.mu.RUnlock()
			return layer, nil
		}
	}
	tx.store.mu.RUnlock()
	for _, layer := range tx.inserted {
		if layer.ProductID == productID && layer.SourceRef == sourceRef {
			return layer, nil
		}
	}
	return InventoryLayer{}, ErrLayerNotFound
}

func (tx *memoryTx) OpenLayersForUpdate(ctx context.Context, productID int64) ([]InventoryLayer, error) {
	tx.store.mu.RLock()
	layers := make([]InventoryLayer, len(tx.store.layers[productID]))
	copy(layers, tx.store.layers[productID])
	tx.store.mu.RUnlock()
	for _, layer := range tx.inserted {
		if layer.ProductID == productID {
			layers = append(layers, layer)
		}
	}
	for i := range layers {
		if dec, ok := tx.decrements[layers[i].ID]; ok {
			layers[i].RemainingQty = layers[i].RemainingQty.Sub(dec)
		}
	}
	return openOnly(layers), nil
}

func (tx *memoryTx) DecrementLayer(ctx context.Context, layerID int64, qty decimal.Decimal) error {
	if qty.Sign() <= 0 {
		return ErrInvalidQuantity
	}
	layer, ok := tx.findLayer(layerID)
	if !ok {
		return ErrLayerNotFound
	}
	remaining := layer.RemainingQty.Sub(tx.decrements[layerID])
	if remaining.LessThan(qty) {
		return ErrLayerOverdrawn
	}
	tx.decrements[layerID] = tx.decrements[layerID].Add(qty)
	return nil
}

func (tx *memoryTx) InsertConsumptionRecords(ctx context.Context, records []ConsumptionRecord) ([]ConsumptionRecord, error) {
	stored := make([]ConsumptionRecord, 0, len(records))
	for _, rec := range records {
		tx.store.mu.Lock()
		tx.store.nextRecordID++
		rec.ID = tx.store.nextRecordID
		tx.store.mu.Unlock()
		stored = append(stored, rec)
	}
	tx.records = append(tx.records, stored...)
	return stored, nil
}

func (tx *memoryTx) findLayer(layerID int64) (InventoryLayer, bool) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	for _, layers := range tx.store.layers {
		for _, layer := range layers {
			if layer.ID == layerID {
				return layer, true
			}
		}
	}
	for _, layer := range tx.inserted {
		if layer.ID == layerID {
			return layer, true
		}
	}
	return InventoryLayer{}, false
}

func (tx *memoryTx) commit() {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, layer := range tx.inserted {
		s.layers[layer.ProductID] = append(s.layers[layer.ProductID], layer)
		sortLayers(s.layers[layer.ProductID])
	}
	for layerID, qty := range tx.decrements {
		for productID := range s.layers {
			for i := range s.layers[productID] {
				if s.layers[productID][i].ID == layerID {
					s.layers[productID][i].RemainingQty = s.layers[productID][i].RemainingQty.Sub(qty)
				}
			}
		}
	}
	s.records = append(s.records, tx.records...)
}

func openOnly(layers []InventoryLayer) []InventoryLayer {
	open := make([]InventoryLayer, 0, len(layers))
	for _, layer := range layers {
		if layer.RemainingQty.Sign() > 0 {
			open = append(open, layer)
		}
	}
	sortLayers(open)
	return open
}

func sortLayers(layers []InventoryLayer) {
	sort.SliceStable(layers, func(i, j int) bool {
		if layers[i].EntryDate.Equal(layers[j].EntryDate) {
			return layers[i].ID < layers[j].ID
		}
		return layers[i].EntryDate.Before(layers[j].EntryDate)
	})
}
