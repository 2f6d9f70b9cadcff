// Package profit joins consumption records with sale-line revenue to
// answer COGS, margin and ABC reporting queries. All views here are
// read-side projections over the same two feeds; there is no write path
// besides recording the sale lines the (external) sales module hands us.
package profit

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// SaleLine is the finalized sale input owned by the sales module. The
// engine treats it as immutable once recorded.
type SaleLine struct {
	SaleID          string
	SaleLineID      string
	ProductID       int64
	QuantitySold    decimal.Decimal
	UnitPriceSold   decimal.Decimal
	DiscountPerUnit decimal.Decimal
	SoldAt          time.Time
}

// Revenue is quantity times unit price net of the per-unit discount.
func (l SaleLine) Revenue() decimal.Decimal {
	return l.QuantitySold.Mul(l.UnitPriceSold.Sub(l.DiscountPerUnit))
}

// SaleLineFilter scopes sale line reads.
type SaleLineFilter struct {
	ProductID int64
	SaleID    string
	From      time.Time
	To        time.Time
}

// LineProfit is the profitability of one sale line.
type LineProfit struct {
	SaleLineID string          `json:"sale_line_id"`
	ProductID  int64           `json:"product_id"`
	Revenue    decimal.Decimal `json:"revenue"`
	COGS       decimal.Decimal `json:"cogs"`
	Profit     decimal.Decimal `json:"profit"`
	MarginPct  decimal.Decimal `json:"margin_pct"`
	Estimated  bool            `json:"estimated"`
}

// ProductRow is one row of the by-product profitability report.
// Flagged marks rows assembled from degraded data (missing product
// master entry or estimated COGS); flagged rows stay in the report so a
// single bad product does not blank the page.
type ProductRow struct {
	ProductID      int64           `json:"product_id"`
	Name           string          `json:"name"`
	Qty            decimal.Decimal `json:"qty"`
	Revenue        decimal.Decimal `json:"revenue"`
	COGS           decimal.Decimal `json:"cogs"`
	Profit         decimal.Decimal `json:"profit"`
	MarginPct      decimal.Decimal `json:"margin_pct"`
	ShareOfRevenue decimal.Decimal `json:"share_of_revenue"`
	CumShare       decimal.Decimal `json:"cum_share"`
	Bucket         string          `json:"bucket"`
	Flagged        bool            `json:"flagged"`
}

// MonthRow is one row of the monthly profitability report.
type MonthRow struct {
	Month     string          `json:"month"`
	Qty       decimal.Decimal `json:"qty"`
	Revenue   decimal.Decimal `json:"revenue"`
	COGS      decimal.Decimal `json:"cogs"`
	Profit    decimal.Decimal `json:"profit"`
	MarginPct decimal.Decimal `json:"margin_pct"`
}

// SaleSummary aggregates a whole sale with its per-line breakdown.
type SaleSummary struct {
	SaleID    string          `json:"sale_id"`
	Lines     []LineProfit    `json:"lines"`
	Revenue   decimal.Decimal `json:"revenue"`
	COGS      decimal.Decimal `json:"cogs"`
	Profit    decimal.Decimal `json:"profit"`
	MarginPct decimal.Decimal `json:"margin_pct"`
}

// Metric selects the ranking dimension for ABC classification.
type Metric string

const (
	// MetricRevenue ranks products by revenue contribution.
	MetricRevenue Metric = "revenue"
	// MetricProfit ranks products by profit contribution.
	MetricProfit Metric = "profit"
)

// ParseMetric validates a metric string, defaulting to revenue.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricRevenue, MetricProfit:
		return Metric(s), nil
	case "":
		return MetricRevenue, nil
	}
	return "", ErrUnknownMetric
}

// ErrUnknownMetric indicates an unsupported ranking metric.
var ErrUnknownMetric = errors.New("profit: unknown metric")

// ErrSaleNotFound indicates no sale lines exist for the sale id.
var ErrSaleNotFound = errors.New("profit: sale not found")

// ErrInvalidSaleLine indicates malformed sale line input.
var ErrInvalidSaleLine = errors.New("profit: invalid sale line")
