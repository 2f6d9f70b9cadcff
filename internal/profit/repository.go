package profit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SaleLineReader supplies finalized sale lines to the aggregator.
type SaleLineReader interface {
	SaleLines(ctx context.Context, filter SaleLineFilter) ([]SaleLine, error)
}

// SaleLineRecorder persists sale lines handed over at sale finalization.
type SaleLineRecorder interface {
	RecordSaleLine(ctx context.Context, line SaleLine) error
}

// Repository reads and records sale lines in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RecordSaleLine stores a finalized sale line. Replays with the same
// sale line id are ignored: the line is immutable once recorded.
func (r *Repository) RecordSaleLine(ctx context.Context, line SaleLine) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO sale_lines (sale_id, sale_line_id, product_id, qty, unit_price, discount_per_unit, sold_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (sale_line_id) DO NOTHING`,
		line.SaleID, line.SaleLineID, line.ProductID, line.QuantitySold, line.UnitPriceSold, line.DiscountPerUnit, line.SoldAt)
	return err
}

// SaleLines lists sale lines matching the filter.
func (r *Repository) SaleLines(ctx context.Context, filter SaleLineFilter) ([]SaleLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT sale_id, sale_line_id, product_id, qty::text, unit_price::text, discount_per_unit::text, sold_at
FROM sale_lines
WHERE ($1 = 0 OR product_id = $1)
  AND ($2 = '' OR sale_id = $2)
  AND sold_at >= COALESCE($3, '-infinity'::timestamptz)
  AND sold_at <= COALESCE($4, 'infinity'::timestamptz)
ORDER BY sold_at ASC, sale_line_id ASC`,
		filter.ProductID, filter.SaleID, nullTime(filter.From), nullTime(filter.To))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []SaleLine
	for rows.Next() {
		var line SaleLine
		if err := rows.Scan(&line.SaleID, &line.SaleLineID, &line.ProductID, &line.QuantitySold, &line.UnitPriceSold, &line.DiscountPerUnit, &line.SoldAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// MemorySales is the embedded sale line store used without a database.
type MemorySales struct {
	mu    sync.RWMutex
	lines map[string]SaleLine
}

// NewMemorySales builds an empty MemorySales.
func NewMemorySales() *MemorySales {
	return &MemorySales{lines: make(map[string]SaleLine)}
}

// RecordSaleLine stores a finalized sale line, ignoring replays.
func (m *MemorySales) RecordSaleLine(ctx context.Context, line SaleLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lines[line.SaleLineID]; ok {
		return nil
	}
	m.lines[line.SaleLineID] = line
	return nil
}

// SaleLines lists sale lines matching the filter.
func (m *MemorySales) SaleLines(ctx context.Context, filter SaleLineFilter) ([]SaleLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []SaleLine
	for _, line := range m.lines {
		if filter.ProductID != 0 && line.ProductID != filter.ProductID {
			continue
		}
		if filter.SaleID != "" && line.SaleID != filter.SaleID {
			continue
		}
		if !filter.From.IsZero() && line.SoldAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && line.SoldAt.After(filter.To) {
			continue
		}
		out = append(out, line)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SoldAt.Equal(out[j].SoldAt) {
			return out[i].SaleLineID < out[j].SaleLineID
		}
		return out[i].SoldAt.Before(out[j].SoldAt)
	})
	return out, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
