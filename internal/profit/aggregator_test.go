package profit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/layerledger/layerledger/internal/ledger"
)

func day(n int) time.Time {
	return time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func qty(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type stubNames struct {
	names map[int64]string
}

func (s stubNames) Name(ctx context.Context, productID int64) (string, error) {
	name, ok := s.names[productID]
	if !ok {
		return "", fmt.Errorf("product %d not found", productID)
	}
	return name, nil
}

func recordConsumption(t *testing.T, store *ledger.MemoryStore, recs ...ledger.ConsumptionRecord) {
	t.Helper()
	err := store.WithTx(context.Background(), func(ctx context.Context, tx ledger.TxRepository) error {
		_, err := tx.InsertConsumptionRecords(ctx, recs)
		return err
	})
	require.NoError(t, err)
}

func recordLine(t *testing.T, sales *MemorySales, line SaleLine) {
	t.Helper()
	require.NoError(t, sales.RecordSaleLine(context.Background(), line))
}

func TestSaleLineProfit(t *testing.T) {
	store := ledger.NewMemoryStore()
	recordConsumption(t, store,
		ledger.ConsumptionRecord{SaleLineID: "L1", LayerID: 1, ProductID: 1, QuantityConsumed: qty("10"), UnitCostAtConsumption: qty("100"), ConsumedAt: day(0)},
		ledger.ConsumptionRecord{SaleLineID: "L1", LayerID: 2, ProductID: 1, QuantityConsumed: qty("2"), UnitCostAtConsumption: qty("120"), ConsumedAt: day(0)},
	)

	agg := NewAggregator(NewMemorySales(), store, nil, nil, Thresholds{}, nil)
	lp, err := agg.SaleLineProfit(context.Background(), SaleLine{
		SaleLineID:    "L1",
		ProductID:     1,
		QuantitySold:  qty("12"),
		UnitPriceSold: qty("150"),
		SoldAt:        day(0),
	})
	require.NoError(t, err)
	require.True(t, lp.Revenue.Equal(qty("1800")))
	require.True(t, lp.COGS.Equal(qty("1240")))
	require.True(t, lp.Profit.Equal(qty("560")))
	require.False(t, lp.Estimated)
}

func TestSaleLineProfitFlagsEstimatedCOGS(t *testing.T) {
	store := ledger.NewMemoryStore()
	recordConsumption(t, store,
		ledger.ConsumptionRecord{SaleLineID: "L1", ProductID: 1, QuantityConsumed: qty("3"), UnitCostAtConsumption: qty("80"), Estimated: true, ConsumedAt: day(0)},
	)

	agg := NewAggregator(NewMemorySales(), store, nil, nil, Thresholds{}, nil)
	lp, err := agg.SaleLineProfit(context.Background(), SaleLine{
		SaleLineID:    "L1",
		ProductID:     1,
		QuantitySold:  qty("3"),
		UnitPriceSold: qty("100"),
	})
	require.NoError(t, err)
	require.True(t, lp.Estimated)
	require.True(t, lp.COGS.Equal(qty("240")))
}

func TestSaleLineRevenueNetsDiscount(t *testing.T) {
	line := SaleLine{QuantitySold: qty("4"), UnitPriceSold: qty("25"), DiscountPerUnit: qty("5")}
	require.True(t, line.Revenue().Equal(qty("80")))
}

func seedScenario(t *testing.T) (*MemorySales, *ledger.MemoryStore) {
	t.Helper()
	sales := NewMemorySales()
	store := ledger.NewMemoryStore()

	// Three products with 700/200/100 revenue in the window.
	recordLine(t, sales, SaleLine{SaleID: "S1", SaleLineID: "L1", ProductID: 1, QuantitySold: qty("7"), UnitPriceSold: qty("100"), SoldAt: day(1)})
	recordLine(t, sales, SaleLine{SaleID: "S2", SaleLineID: "L2", ProductID: 2, QuantitySold: qty("2"), UnitPriceSold: qty("100"), SoldAt: day(2)})
	recordLine(t, sales, SaleLine{SaleID: "S3", SaleLineID: "L3", ProductID: 3, QuantitySold: qty("1"), UnitPriceSold: qty("100"), SoldAt: day(3)})
	recordConsumption(t, store,
		ledger.ConsumptionRecord{SaleLineID: "L1", LayerID: 1, ProductID: 1, QuantityConsumed: qty("7"), UnitCostAtConsumption: qty("50"), ConsumedAt: day(1)},
		ledger.ConsumptionRecord{SaleLineID: "L2", LayerID: 2, ProductID: 2, QuantityConsumed: qty("2"), UnitCostAtConsumption: qty("40"), ConsumedAt: day(2)},
		ledger.ConsumptionRecord{SaleLineID: "L3", LayerID: 3, ProductID: 3, QuantityConsumed: qty("1"), UnitCostAtConsumption: qty("30"), ConsumedAt: day(3)},
	)
	return sales, store
}

func TestByProductClassifiesABC(t *testing.T) {
	sales, store := seedScenario(t)
	names := stubNames{names: map[int64]string{1: "Alpha", 2: "Beta", 3: "Gamma"}}

	agg := NewAggregator(sales, store, names, nil, Thresholds{}, nil)
	rows, err := agg.ByProduct(context.Background(), ProductQuery{Metric: MetricRevenue})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Sorted descending by revenue: 700, 200, 100.
	require.Equal(t, int64(1), rows[0].ProductID)
	require.Equal(t, "Alpha", rows[0].Name)
	require.Equal(t, "A", rows[0].Bucket)
	require.True(t, rows[0].Revenue.Equal(qty("700")))
	require.True(t, rows[0].COGS.Equal(qty("350")))
	require.True(t, rows[0].Profit.Equal(qty("350")))
	require.True(t, rows[0].MarginPct.Equal(qty("50")))
	require.True(t, rows[0].CumShare.Equal(qty("0.7")))

	require.Equal(t, int64(2), rows[1].ProductID)
	require.Equal(t, "B", rows[1].Bucket)
	require.True(t, rows[1].CumShare.Equal(qty("0.9")))

	require.Equal(t, int64(3), rows[2].ProductID)
	require.Equal(t, "C", rows[2].Bucket)
	require.True(t, rows[2].CumShare.Equal(qty("1")))
}

func TestByProductProfitMetric(t *testing.T) {
	sales, store := seedScenario(t)
	agg := NewAggregator(sales, store, nil, nil, Thresholds{}, nil)

	rows, err := agg.ByProduct(context.Background(), ProductQuery{Metric: MetricProfit})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	// Profits are 350/120/70; ranking matches the revenue order here.
	require.Equal(t, int64(1), rows[0].ProductID)
	require.True(t, rows[0].Profit.Equal(qty("350")))
}

func TestByProductZeroRevenueAllC(t *testing.T) {
	sales := NewMemorySales()
	store := ledger.NewMemoryStore()
	recordLine(t, sales, SaleLine{SaleID: "S1", SaleLineID: "L1", ProductID: 1, QuantitySold: qty("2"), UnitPriceSold: qty("0"), SoldAt: day(1)})

	agg := NewAggregator(sales, store, nil, nil, Thresholds{}, nil)
	rows, err := agg.ByProduct(context.Background(), ProductQuery{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "C", rows[0].Bucket)
	require.True(t, rows[0].ShareOfRevenue.IsZero())
}

func TestByProductMissingNameFlagsRow(t *testing.T) {
	sales, store := seedScenario(t)
	names := stubNames{names: map[int64]string{1: "Alpha", 2: "Beta"}}

	agg := NewAggregator(sales, store, names, nil, Thresholds{}, nil)
	rows, err := agg.ByProduct(context.Background(), ProductQuery{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, row := range rows {
		if row.ProductID == 3 {
			require.True(t, row.Flagged)
			require.Empty(t, row.Name)
		} else {
			require.False(t, row.Flagged)
		}
	}
}

func TestByProductDateWindow(t *testing.T) {
	sales, store := seedScenario(t)
	agg := NewAggregator(sales, store, nil, nil, Thresholds{}, nil)

	rows, err := agg.ByProduct(context.Background(), ProductQuery{From: day(2), To: day(2)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(2), rows[0].ProductID)
}

func TestByMonthGroupsByCalendarMonth(t *testing.T) {
	sales := NewMemorySales()
	store := ledger.NewMemoryStore()
	recordLine(t, sales, SaleLine{SaleID: "S1", SaleLineID: "L1", ProductID: 1, QuantitySold: qty("2"), UnitPriceSold: qty("100"), SoldAt: day(1)})
	recordLine(t, sales, SaleLine{SaleID: "S2", SaleLineID: "L2", ProductID: 1, QuantitySold: qty("3"), UnitPriceSold: qty("100"), SoldAt: day(40)})
	recordConsumption(t, store,
		ledger.ConsumptionRecord{SaleLineID: "L1", LayerID: 1, ProductID: 1, QuantityConsumed: qty("2"), UnitCostAtConsumption: qty("60"), ConsumedAt: day(1)},
		ledger.ConsumptionRecord{SaleLineID: "L2", LayerID: 1, ProductID: 1, QuantityConsumed: qty("3"), UnitCostAtConsumption: qty("60"), ConsumedAt: day(40)},
	)

	agg := NewAggregator(sales, store, nil, nil, Thresholds{}, nil)
	rows, err := agg.ByMonth(context.Background(), MonthQuery{ProductID: 1})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "2026-03", rows[0].Month)
	require.True(t, rows[0].Revenue.Equal(qty("200")))
	require.True(t, rows[0].COGS.Equal(qty("120")))
	require.Equal(t, "2026-04", rows[1].Month)
	require.True(t, rows[1].Revenue.Equal(qty("300")))
}

func TestBySale(t *testing.T) {
	sales, store := seedScenario(t)
	agg := NewAggregator(sales, store, nil, nil, Thresholds{}, nil)

	summary, err := agg.BySale(context.Background(), "S1")
	require.NoError(t, err)
	require.Len(t, summary.Lines, 1)
	require.True(t, summary.Revenue.Equal(qty("700")))
	require.True(t, summary.COGS.Equal(qty("350")))
	require.True(t, summary.Profit.Equal(qty("350")))
	require.True(t, summary.MarginPct.Equal(qty("50")))
}

func TestBySaleNotFound(t *testing.T) {
	agg := NewAggregator(NewMemorySales(), ledger.NewMemoryStore(), nil, nil, Thresholds{}, nil)
	_, err := agg.BySale(context.Background(), "missing")
	require.ErrorIs(t, err, ErrSaleNotFound)
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("")
	require.NoError(t, err)
	require.Equal(t, MetricRevenue, m)

	m, err = ParseMetric("profit")
	require.NoError(t, err)
	require.Equal(t, MetricProfit, m)

	_, err = ParseMetric("units")
	require.ErrorIs(t, err, ErrUnknownMetric)
}

func TestByProductServesFromCacheUntilBump(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)

	sales, store := seedScenario(t)
	agg := NewAggregator(sales, store, nil, cache, Thresholds{}, nil)
	ctx := context.Background()

	rows, err := agg.ByProduct(ctx, ProductQuery{Metric: MetricRevenue})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// A new sale does not show until the version bumps.
	recordLine(t, sales, SaleLine{SaleID: "S4", SaleLineID: "L4", ProductID: 4, QuantitySold: qty("1"), UnitPriceSold: qty("100"), SoldAt: day(4)})
	rows, err = agg.ByProduct(ctx, ProductQuery{Metric: MetricRevenue})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.NoError(t, cache.Bump(ctx))
	rows, err = agg.ByProduct(ctx, ProductQuery{Metric: MetricRevenue})
	require.NoError(t, err)
	require.Len(t, rows, 4)
}

func TestRecordSaleLineIdempotent(t *testing.T) {
	sales := NewMemorySales()
	line := SaleLine{SaleID: "S1", SaleLineID: "L1", ProductID: 1, QuantitySold: qty("2"), UnitPriceSold: qty("10"), SoldAt: day(0)}
	recordLine(t, sales, line)

	// Replays must not double the revenue.
	line.QuantitySold = qty("9")
	recordLine(t, sales, line)

	lines, err := sales.SaleLines(context.Background(), SaleLineFilter{SaleID: "S1"})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.True(t, lines[0].QuantitySold.Equal(qty("2")))
}
