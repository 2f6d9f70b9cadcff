package profit

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/layerledger/layerledger/internal/ledger"
)

// ConsumptionReader supplies consumption records to join against.
type ConsumptionReader interface {
	Consumptions(ctx context.Context, filter ledger.ConsumptionFilter) ([]ledger.ConsumptionRecord, error)
}

// NameReader resolves product display names for report rows.
type NameReader interface {
	Name(ctx context.Context, productID int64) (string, error)
}

// Thresholds are the cumulative-share cut points of ABC classification.
type Thresholds struct {
	ClassA decimal.Decimal
	ClassB decimal.Decimal
}

// DefaultThresholds returns the conventional 80/95 Pareto cut points.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ClassA: decimal.NewFromFloat(0.80),
		ClassB: decimal.NewFromFloat(0.95),
	}
}

// ProductQuery scopes the by-product report.
type ProductQuery struct {
	From   time.Time
	To     time.Time
	Metric Metric
}

// MonthQuery scopes the monthly report. ProductID zero means all products.
type MonthQuery struct {
	ProductID int64
	From      time.Time
	To        time.Time
}

// Aggregator computes profitability projections over sale lines and
// consumption records.
type Aggregator struct {
	sales       SaleLineReader
	consumption ConsumptionReader
	names       NameReader
	cache       *Cache
	thresholds  Thresholds
	logger      *slog.Logger
}

// NewAggregator builds Aggregator. Zero thresholds fall back to 80/95.
func NewAggregator(sales SaleLineReader, consumption ConsumptionReader, names NameReader, cache *Cache, thresholds Thresholds, logger *slog.Logger) *Aggregator {
	if thresholds.ClassA.IsZero() || thresholds.ClassB.IsZero() {
		thresholds = DefaultThresholds()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{sales: sales, consumption: consumption, names: names, cache: cache, thresholds: thresholds, logger: logger}
}

// SaleLineProfit computes revenue, COGS, profit and margin for one line.
// COGS is the sum over the line's consumption records of quantity times
// the unit cost captured when the layer was consumed.
func (a *Aggregator) SaleLineProfit(ctx context.Context, line SaleLine) (LineProfit, error) {
	if line.SaleLineID == "" {
		return LineProfit{}, ErrInvalidSaleLine
	}
	records, err := a.consumption.Consumptions(ctx, ledger.ConsumptionFilter{SaleLineID: line.SaleLineID})
	if err != nil {
		return LineProfit{}, err
	}
	cogs := decimal.Zero
	estimated := false
	for _, rec := range records {
		cogs = cogs.Add(rec.Cost())
		estimated = estimated || rec.Estimated
	}
	revenue := line.Revenue()
	profit := revenue.Sub(cogs)
	return LineProfit{
		SaleLineID: line.SaleLineID,
		ProductID:  line.ProductID,
		Revenue:    revenue,
		COGS:       cogs,
		Profit:     profit,
		MarginPct:  marginPct(profit, revenue),
		Estimated:  estimated,
	}, nil
}

// ByProduct aggregates the date range per product and tags each row
// with its ABC bucket from the cumulative share of the chosen metric.
func (a *Aggregator) ByProduct(ctx context.Context, query ProductQuery) ([]ProductRow, error) {
	if query.Metric == "" {
		query.Metric = MetricRevenue
	}
	loader := func(ctx context.Context) (interface{}, error) {
		return a.computeByProduct(ctx, query)
	}
	if a.cache == nil {
		rows, err := a.computeByProduct(ctx, query)
		if err != nil {
			return nil, err
		}
		return rows, nil
	}
	key, err := a.cache.BuildKey(ctx, keyByProduct(query.From, query.To, query.Metric)...)
	if err != nil {
		return nil, err
	}
	var rows []ProductRow
	if err := a.cache.FetchJSON(ctx, key, &rows, loader); err != nil {
		return nil, err
	}
	return rows, nil
}

// ByMonth aggregates revenue, COGS and profit per calendar month.
func (a *Aggregator) ByMonth(ctx context.Context, query MonthQuery) ([]MonthRow, error) {
	loader := func(ctx context.Context) (interface{}, error) {
		return a.computeByMonth(ctx, query)
	}
	if a.cache == nil {
		return a.computeByMonth(ctx, query)
	}
	key, err := a.cache.BuildKey(ctx, keyByMonth(query.ProductID, query.From, query.To)...)
	if err != nil {
		return nil, err
	}
	var rows []MonthRow
	if err := a.cache.FetchJSON(ctx, key, &rows, loader); err != nil {
		return nil, err
	}
	return rows, nil
}

// BySale breaks one sale down line by line.
func (a *Aggregator) BySale(ctx context.Context, saleID string) (SaleSummary, error) {
	if saleID == "" {
		return SaleSummary{}, ErrSaleNotFound
	}
	lines, err := a.sales.SaleLines(ctx, SaleLineFilter{SaleID: saleID})
	if err != nil {
		return SaleSummary{}, err
	}
	if len(lines) == 0 {
		return SaleSummary{}, ErrSaleNotFound
	}
	summary := SaleSummary{
		SaleID:  saleID,
		Revenue: decimal.Zero,
		COGS:    decimal.Zero,
		Profit:  decimal.Zero,
	}
	for _, line := range lines {
		lp, err := a.SaleLineProfit(ctx, line)
		if err != nil {
			return SaleSummary{}, err
		}
		summary.Lines = append(summary.Lines, lp)
		summary.Revenue = summary.Revenue.Add(lp.Revenue)
		summary.COGS = summary.COGS.Add(lp.COGS)
		summary.Profit = summary.Profit.Add(lp.Profit)
	}
	summary.MarginPct = marginPct(summary.Profit, summary.Revenue)
	return summary, nil
}

type productAccumulator struct {
	qty       decimal.Decimal
	revenue   decimal.Decimal
	cogs      decimal.Decimal
	estimated bool
}

func (a *Aggregator) computeByProduct(ctx context.Context, query ProductQuery) ([]ProductRow, error) {
	lines, err := a.sales.SaleLines(ctx, SaleLineFilter{From: query.From, To: query.To})
	if err != nil {
		return nil, err
	}
	records, err := a.consumption.Consumptions(ctx, ledger.ConsumptionFilter{From: query.From, To: query.To})
	if err != nil {
		return nil, err
	}

	acc := make(map[int64]*productAccumulator)
	for _, line := range lines {
		p := acc[line.ProductID]
		if p == nil {
			p = &productAccumulator{qty: decimal.Zero, revenue: decimal.Zero, cogs: decimal.Zero}
			acc[line.ProductID] = p
		}
		p.qty = p.qty.Add(line.QuantitySold)
		p.revenue = p.revenue.Add(line.Revenue())
	}
	for _, rec := range records {
		p := acc[rec.ProductID]
		if p == nil {
			// Consumption without a matching sale line in the window;
			// noted and skipped so one stray record cannot skew a row.
			a.logger.Warn("consumption record without sale line in window",
				slog.Int64("product_id", rec.ProductID),
				slog.String("sale_line_id", rec.SaleLineID))
			continue
		}
		p.cogs = p.cogs.Add(rec.Cost())
		p.estimated = p.estimated || rec.Estimated
	}

	totalRevenue := decimal.Zero
	rows := make([]ProductRow, 0, len(acc))
	for productID, p := range acc {
		profit := p.revenue.Sub(p.cogs)
		row := ProductRow{
			ProductID: productID,
			Qty:       p.qty,
			Revenue:   p.revenue,
			COGS:      p.cogs,
			Profit:    profit,
			MarginPct: marginPct(profit, p.revenue),
			Flagged:   p.estimated,
		}
		if a.names != nil {
			name, err := a.names.Name(ctx, productID)
			if err != nil {
				// Missing master data flags the row instead of
				// aborting the whole report.
				a.logger.Warn("product name lookup failed",
					slog.Int64("product_id", productID),
					slog.Any("error", err))
				row.Flagged = true
			}
			row.Name = name
		}
		totalRevenue = totalRevenue.Add(p.revenue)
		rows = append(rows, row)
	}

	for i := range rows {
		if totalRevenue.Sign() > 0 {
			rows[i].ShareOfRevenue = rows[i].Revenue.Div(totalRevenue)
		} else {
			rows[i].ShareOfRevenue = decimal.Zero
		}
	}

	classify(rows, query.Metric, a.thresholds)
	return rows, nil
}

func (a *Aggregator) computeByMonth(ctx context.Context, query MonthQuery) ([]MonthRow, error) {
	lines, err := a.sales.SaleLines(ctx, SaleLineFilter{ProductID: query.ProductID, From: query.From, To: query.To})
	if err != nil {
		return nil, err
	}
	records, err := a.consumption.Consumptions(ctx, ledger.ConsumptionFilter{ProductID: query.ProductID, From: query.From, To: query.To})
	if err != nil {
		return nil, err
	}

	type monthAcc struct {
		qty     decimal.Decimal
		revenue decimal.Decimal
		cogs    decimal.Decimal
	}
	acc := make(map[string]*monthAcc)
	monthOf := func(t time.Time) string { return t.UTC().Format("2006-01") }
	get := func(month string) *monthAcc {
		m := acc[month]
		if m == nil {
			m = &monthAcc{qty: decimal.Zero, revenue: decimal.Zero, cogs: decimal.Zero}
			acc[month] = m
		}
		return m
	}
	for _, line := range lines {
		m := get(monthOf(line.SoldAt))
		m.qty = m.qty.Add(line.QuantitySold)
		m.revenue = m.revenue.Add(line.Revenue())
	}
	for _, rec := range records {
		m := get(monthOf(rec.ConsumedAt))
		m.cogs = m.cogs.Add(rec.Cost())
	}

	months := make([]string, 0, len(acc))
	for month := range acc {
		months = append(months, month)
	}
	sort.Strings(months)
	rows := make([]MonthRow, 0, len(months))
	for _, month := range months {
		m := acc[month]
		profit := m.revenue.Sub(m.cogs)
		rows = append(rows, MonthRow{
			Month:     month,
			Qty:       m.qty,
			Revenue:   m.revenue,
			COGS:      m.cogs,
			Profit:    profit,
			MarginPct: marginPct(profit, m.revenue),
		})
	}
	return rows, nil
}

// classify sorts rows descending by the chosen metric (ties break on
// product id for determinism), accumulates cumulative shares and tags
// A/B/C buckets. A non-positive metric total yields all-C rows.
func classify(rows []ProductRow, metric Metric, thresholds Thresholds) {
	metricOf := func(row ProductRow) decimal.Decimal {
		if metric == MetricProfit {
			return row.Profit
		}
		return row.Revenue
	}
	sort.SliceStable(rows, func(i, j int) bool {
		mi, mj := metricOf(rows[i]), metricOf(rows[j])
		if mi.Equal(mj) {
			return rows[i].ProductID < rows[j].ProductID
		}
		return mi.GreaterThan(mj)
	})

	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(metricOf(row))
	}
	if total.Sign() <= 0 {
		for i := range rows {
			rows[i].CumShare = decimal.Zero
			rows[i].Bucket = "C"
		}
		return
	}

	cum := decimal.Zero
	for i := range rows {
		cum = cum.Add(metricOf(rows[i]).Div(total))
		rows[i].CumShare = cum
		switch {
		case cum.LessThanOrEqual(thresholds.ClassA):
			rows[i].Bucket = "A"
		case cum.LessThanOrEqual(thresholds.ClassB):
			rows[i].Bucket = "B"
		default:
			rows[i].Bucket = "C"
		}
	}
}

func marginPct(profit, revenue decimal.Decimal) decimal.Decimal {
	if revenue.Sign() <= 0 {
		return decimal.Zero
	}
	return profit.Div(revenue).Mul(decimal.NewFromInt(100))
}
