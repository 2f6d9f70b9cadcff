package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/layerledger/layerledger/internal/catalog"
	"github.com/layerledger/layerledger/internal/costing"
	"github.com/layerledger/layerledger/internal/ledger"
	"github.com/layerledger/layerledger/internal/profit"
	reporthttp "github.com/layerledger/layerledger/internal/report/http"
	"github.com/layerledger/layerledger/internal/valuation"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	ledgerRepo := ledger.NewMemoryStore()
	salesRepo := profit.NewMemorySales()
	catalogSvc := catalog.NewService(catalog.NewMemoryRepository())

	store := ledger.NewStore(ledgerRepo, nil, nil)
	engine := costing.NewEngine(ledgerRepo, catalogSvc, nil, costing.PolicyStrict, nil)
	calculator := valuation.NewCalculator(ledgerRepo, nil)
	aggregator := profit.NewAggregator(salesRepo, ledgerRepo, catalogSvc, nil, profit.Thresholds{}, nil)

	return NewRouter(RouterParams{
		LedgerHandler:  ledger.NewHandler(nil, store),
		CostingHandler: costing.NewHandler(nil, engine, salesRepo),
		ReportHandler:  reporthttp.NewHandler(nil, calculator, store, aggregator, catalogSvc),
	})
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestPurchaseSaleReportFlow(t *testing.T) {
	router := newTestServer(t)

	// Two receipts, then a sale spanning both layers.
	rec := do(t, router, http.MethodPost, "/api/v1/purchases",
		`{"product_id":1,"qty":"10","unit_cost":"100","entry_date":"2026-01-01","source_ref":"PO-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, router, http.MethodPost, "/api/v1/purchases",
		`{"product_id":1,"qty":"5","unit_cost":"120","entry_date":"2026-01-06","source_ref":"PO-2"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/v1/sales",
		`{"sale_id":"S1","sale_line_id":"L1","product_id":1,"qty":"12","unit_price":"150","date":"2026-01-10T00:00:00Z"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var sale struct {
		TotalCost string `json:"total_cost"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sale))
	require.Equal(t, "1240", sale.TotalCost)

	// On-hand is down to the 3 units left on the second layer.
	rec = do(t, router, http.MethodGet, "/api/v1/reports/inventory/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var inv struct {
		OnHandQty   string `json:"on_hand_qty"`
		OnHandValue string `json:"on_hand_value"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inv))
	require.Equal(t, "3", inv.OnHandQty)
	require.Equal(t, "360", inv.OnHandValue)

	// Profitability sees the sale with FIFO cost applied.
	rec = do(t, router, http.MethodGet, "/api/v1/reports/profit/sales/S1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary struct {
		Revenue string `json:"revenue"`
		COGS    string `json:"cogs"`
		Profit  string `json:"profit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	require.Equal(t, "1800", summary.Revenue)
	require.Equal(t, "1240", summary.COGS)
	require.Equal(t, "560", summary.Profit)

	// Overselling what is left is refused and changes nothing.
	rec = do(t, router, http.MethodPost, "/api/v1/sales",
		`{"sale_id":"S2","sale_line_id":"L2","product_id":1,"qty":"20","unit_price":"150"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/v1/reports/inventory/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inv))
	require.Equal(t, "3", inv.OnHandQty)
}
