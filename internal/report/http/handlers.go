// Package reporthttp adapts the engine's read APIs for the reporting
// façade: inventory/aging views and profitability views as plain JSON.
// Everything here is lock-free read-side work and safe to run
// concurrently with consumption.
package reporthttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/layerledger/layerledger/internal/catalog"
	"github.com/layerledger/layerledger/internal/ledger"
	"github.com/layerledger/layerledger/internal/platform/httpx"
	"github.com/layerledger/layerledger/internal/profit"
	"github.com/layerledger/layerledger/internal/valuation"
)

// ValuationService is the valuation surface the façade consumes.
type ValuationService interface {
	Snapshot(ctx context.Context, productID int64) (valuation.Snapshot, error)
	AgingBuckets(ctx context.Context, productID int64, asOf time.Time) ([]valuation.AgingBucket, error)
}

// LedgerService lists a product's layers, exhausted ones included.
type LedgerService interface {
	History(ctx context.Context, productID int64) ([]ledger.InventoryLayer, error)
}

// ProfitService is the profitability surface the façade consumes.
type ProfitService interface {
	ByProduct(ctx context.Context, query profit.ProductQuery) ([]profit.ProductRow, error)
	ByMonth(ctx context.Context, query profit.MonthQuery) ([]profit.MonthRow, error)
	BySale(ctx context.Context, saleID string) (profit.SaleSummary, error)
}

// CatalogService resolves product names.
type CatalogService interface {
	Name(ctx context.Context, productID int64) (string, error)
}

// Handler serves the reporting API.
type Handler struct {
	logger    *slog.Logger
	valuation ValuationService
	ledger    LedgerService
	profit    ProfitService
	catalog   CatalogService
	group     singleflight.Group
	now       func() time.Time
}

// NewHandler constructs the report handler.
func NewHandler(logger *slog.Logger, val ValuationService, led LedgerService, prof ProfitService, cat CatalogService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		valuation: val,
		ledger:    led,
		profit:    prof,
		catalog:   cat,
		now:       time.Now,
	}
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

type inventoryView struct {
	ProductID   int64       `json:"product_id"`
	Name        string      `json:"name"`
	OnHandQty   string      `json:"on_hand_qty"`
	OnHandValue string      `json:"on_hand_value"`
	AvgCost     string      `json:"avg_cost"`
	Layers      []layerView `json:"layers"`
}

type layerView struct {
	LayerID      int64  `json:"layer_id"`
	EntryDate    string `json:"entry_date"`
	OriginalQty  string `json:"original_qty"`
	RemainingQty string `json:"remaining_qty"`
	UnitCost     string `json:"unit_cost"`
	AgeDays      int    `json:"age_days"`
	State        string `json:"state"`
}

func (h *Handler) handleInventory(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseProductID(w, chi.URLParam(r, "productID"))
	if !ok {
		return
	}

	var (
		snap   valuation.Snapshot
		layers []ledger.InventoryLayer
		name   string
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		snap, err = h.valuation.Snapshot(ctx, productID)
		return err
	})
	g.Go(func() error {
		var err error
		layers, err = h.ledger.History(ctx, productID)
		return err
	})
	g.Go(func() error {
		var err error
		name, err = h.catalog.Name(ctx, productID)
		if errors.Is(err, catalog.ErrProductNotFound) {
			// A missing master record degrades the view, it does not
			// blank it.
			name = ""
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		h.respondError(w, "inventory view", err)
		return
	}

	asOf := h.now().UTC()
	view := inventoryView{
		ProductID:   productID,
		Name:        name,
		OnHandQty:   snap.OnHandQty.String(),
		OnHandValue: snap.OnHandValue.String(),
		AvgCost:     snap.AvgCost.String(),
		Layers:      make([]layerView, 0, len(layers)),
	}
	for _, layer := range layers {
		view.Layers = append(view.Layers, layerView{
			LayerID:      layer.ID,
			EntryDate:    layer.EntryDate.UTC().Format(time.RFC3339),
			OriginalQty:  layer.OriginalQty.String(),
			RemainingQty: layer.RemainingQty.String(),
			UnitCost:     layer.UnitCost.String(),
			AgeDays:      valuation.AgeDays(asOf, layer),
			State:        string(layer.State()),
		})
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) handleAging(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var productID int64
	if raw := q.Get("product_id"); raw != "" {
		var ok bool
		productID, ok = parseProductID(w, raw)
		if !ok {
			return
		}
	}
	asOf := h.now().UTC()
	if raw := q.Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "as_of must be YYYY-MM-DD")
			return
		}
		asOf = parsed
	}
	buckets, err := h.valuation.AgingBuckets(r.Context(), productID, asOf)
	if err != nil {
		h.respondError(w, "aging view", err)
		return
	}
	httpx.JSON(w, http.StatusOK, buckets)
}

func (h *Handler) handleProfitByProduct(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, ok := parseRange(w, q.Get("from"), q.Get("to"))
	if !ok {
		return
	}
	metric, err := profit.ParseMetric(q.Get("metric"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "metric must be revenue or profit")
		return
	}

	// Identical report requests landing together share one computation.
	key := "by_product:" + q.Encode()
	rows, err, _ := h.group.Do(key, func() (interface{}, error) {
		return h.profit.ByProduct(r.Context(), profit.ProductQuery{From: from, To: to, Metric: metric})
	})
	if err != nil {
		h.respondError(w, "profit by product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) handleProfitByMonth(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, ok := parseRange(w, q.Get("from"), q.Get("to"))
	if !ok {
		return
	}
	var productID int64
	if raw := q.Get("product_id"); raw != "" {
		productID, ok = parseProductID(w, raw)
		if !ok {
			return
		}
	}
	rows, err := h.profit.ByMonth(r.Context(), profit.MonthQuery{ProductID: productID, From: from, To: to})
	if err != nil {
		h.respondError(w, "profit by month", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) handleProfitBySale(w http.ResponseWriter, r *http.Request) {
	saleID := chi.URLParam(r, "saleID")
	summary, err := h.profit.BySale(r.Context(), saleID)
	if err != nil {
		if errors.Is(err, profit.ErrSaleNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.respondError(w, "profit by sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, ledger.ErrProductRequired) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	h.logger.Error("report failed", slog.String("op", op), slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

func parseProductID(w http.ResponseWriter, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product id must be a positive integer")
		return 0, false
	}
	return id, true
}

func parseRange(w http.ResponseWriter, fromRaw, toRaw string) (time.Time, time.Time, bool) {
	var from, to time.Time
	var err error
	if fromRaw != "" {
		from, err = time.Parse("2006-01-02", fromRaw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return from, to, false
		}
	}
	if toRaw != "" {
		to, err = time.Parse("2006-01-02", toRaw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return from, to, false
		}
		// End of day, inclusive.
		to = to.Add(24*time.Hour - time.Nanosecond)
	}
	return from, to, true
}
