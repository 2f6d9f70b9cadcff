package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/layerledger/layerledger/internal/platform/db"
)

// Repository persists the layer ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the mutations available inside one store transaction.
// DecrementLayer is intentionally absent from the read-side API: only the
// consumption engine, inside a transaction, may shrink a layer.
type TxRepository interface {
	InsertLayer(ctx context.Context, layer InventoryLayer) (int64, error)
	LayerBySourceRef(ctx context.Context, productID int64, sourceRef string) (InventoryLayer, error)
	OpenLayersForUpdate(ctx context.Context, productID int64) ([]InventoryLayer, error)
	DecrementLayer(ctx context.Context, layerID int64, qty decimal.Decimal) error
	InsertConsumptionRecords(ctx context.Context, records []ConsumptionRecord) ([]ConsumptionRecord, error)
}

// RepositoryPort is the full store surface consumed by the service, the
// consumption engine and the read-side calculators.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	OpenLayers(ctx context.Context, productID int64) ([]InventoryLayer, error)
	AllOpenLayers(ctx context.Context) ([]InventoryLayer, error)
	LayersByProduct(ctx context.Context, productID int64) ([]InventoryLayer, error)
	ProductIDs(ctx context.Context) ([]int64, error)
	Consumptions(ctx context.Context, filter ConsumptionFilter) ([]ConsumptionRecord, error)
}

type txRepository struct {
	tx pgx.Tx
}

const layerColumns = `id, product_id, entry_date, original_qty::text, remaining_qty::text, unit_cost::text, COALESCE(source_ref, ''), created_at`

// WithTx executes the callback inside a repeatable-read transaction and
// maps serialization failures to ErrConflict so callers can retry.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger: repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	return mapPgError(err)
}

// OpenLayers lists layers with stock remaining, oldest first. Ties on
// entry date break on layer id: insertion order, not wall clock, decides
// FIFO precedence.
func (r *Repository) OpenLayers(ctx context.Context, productID int64) ([]InventoryLayer, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+layerColumns+`
FROM inventory_layers
WHERE product_id=$1 AND remaining_qty > 0
ORDER BY entry_date ASC, id ASC`, productID)
	if err != nil {
		return nil, err
	}
	return scanLayers(rows)
}

// AllOpenLayers lists open layers across every product.
func (r *Repository) AllOpenLayers(ctx context.Context) ([]InventoryLayer, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+layerColumns+`
FROM inventory_layers
WHERE remaining_qty > 0
ORDER BY product_id ASC, entry_date ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	return scanLayers(rows)
}

// LayersByProduct lists all layers including exhausted ones, which are
// retained for audit and aging history.
func (r *Repository) LayersByProduct(ctx context.Context, productID int64) ([]InventoryLayer, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+layerColumns+`
FROM inventory_layers
WHERE product_id=$1
ORDER BY entry_date ASC, id ASC`, productID)
	if err != nil {
		return nil, err
	}
	return scanLayers(rows)
}

// ProductIDs lists every product that has at least one layer.
func (r *Repository) ProductIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT product_id FROM inventory_layers ORDER BY product_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Consumptions lists consumption records matching the filter.
func (r *Repository) Consumptions(ctx context.Context, filter ConsumptionFilter) ([]ConsumptionRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, sale_line_id, COALESCE(layer_id, 0), product_id, qty::text, unit_cost::text, estimated, consumed_at
FROM consumption_records
WHERE ($1 = 0 OR product_id = $1)
  AND ($2 = '' OR sale_line_id = $2)
  AND consumed_at >= COALESCE($3, '-infinity'::timestamptz)
  AND consumed_at <= COALESCE($4, 'infinity'::timestamptz)
ORDER BY consumed_at ASC, id ASC`, filter.ProductID, filter.SaleLineID, nullTime(filter.From), nullTime(filter.To))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []ConsumptionRecord
	for rows.Next() {
		var rec ConsumptionRecord
		if err := rows.Scan(&rec.ID, &rec.SaleLineID, &rec.LayerID, &rec.ProductID, &rec.QuantityConsumed, &rec.UnitCostAtConsumption, &rec.Estimated, &rec.ConsumedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *txRepository) InsertLayer(ctx context.Context, layer InventoryLayer) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_layers (product_id, entry_date, original_qty, remaining_qty, unit_cost, source_ref, created_at)
VALUES ($1,$2,$3,$3,$4,$5,NOW()) RETURNING id`,
		layer.ProductID, layer.EntryDate, layer.OriginalQty, layer.UnitCost, nullString(layer.SourceRef)).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateSourceRef
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) LayerBySourceRef(ctx context.Context, productID int64, sourceRef string) (InventoryLayer, error) {
	var layer InventoryLayer
	err := r.tx.QueryRow(ctx, `SELECT `+layerColumns+`
FROM inventory_layers WHERE product_id=$1 AND source_ref=$2`, productID, sourceRef).
		Scan(&layer.ID, &layer.ProductID, &layer.EntryDate, &layer.OriginalQty, &layer.RemainingQty, &layer.UnitCost, &layer.SourceRef, &layer.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return InventoryLayer{}, ErrLayerNotFound
		}
		return InventoryLayer{}, err
	}
	return layer, nil
}

func (r *txRepository) OpenLayersForUpdate(ctx context.Context, productID int64) ([]InventoryLayer, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+layerColumns+`
FROM inventory_layers
WHERE product_id=$1 AND remaining_qty > 0
ORDER BY entry_date ASC, id ASC
FOR UPDATE`, productID)
	if err != nil {
		return nil, err
	}
	return scanLayers(rows)
}

// DecrementLayer shrinks RemainingQty. The guard in the WHERE clause
// makes the invariant 0 <= remaining_qty hold no matter what the caller
// computed: a would-be negative result updates zero rows.
func (r *txRepository) DecrementLayer(ctx context.Context, layerID int64, qty decimal.Decimal) error {
	if qty.Sign() <= 0 {
		return ErrInvalidQuantity
	}
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_layers
SET remaining_qty = remaining_qty - $2
WHERE id=$1 AND remaining_qty >= $2`, layerID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM inventory_layers WHERE id=$1)`, layerID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrLayerNotFound
		}
		return ErrLayerOverdrawn
	}
	return nil
}

func (r *txRepository) InsertConsumptionRecords(ctx context.Context, records []ConsumptionRecord) ([]ConsumptionRecord, error) {
	stored := make([]ConsumptionRecord, 0, len(records))
	for _, rec := range records {
		var id int64
		err := r.tx.QueryRow(ctx, `INSERT INTO consumption_records (sale_line_id, layer_id, product_id, qty, unit_cost, estimated, consumed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
			rec.SaleLineID, nullInt(rec.LayerID), rec.ProductID, rec.QuantityConsumed, rec.UnitCostAtConsumption, rec.Estimated, rec.ConsumedAt).Scan(&id)
		if err != nil {
			return nil, err
		}
		rec.ID = id
		stored = append(stored, rec)
	}
	return stored, nil
}

func scanLayers(rows pgx.Rows) ([]InventoryLayer, error) {
	defer rows.Close()
	var layers []InventoryLayer
	for rows.Next() {
		var layer InventoryLayer
		if err := rows.Scan(&layer.ID, &layer.ProductID, &layer.EntryDate, &layer.OriginalQty, &layer.RemainingQty, &layer.UnitCost, &layer.SourceRef, &layer.CreatedAt); err != nil {
			return nil, err
		}
		layers = append(layers, layer)
	}
	return layers, rows.Err()
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %v", ErrConflict, err)
		case "23505":
			return fmt.Errorf("%w: %v", ErrDuplicateSourceRef, err)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
