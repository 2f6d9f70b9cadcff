package costing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/layerledger/layerledger/internal/ledger"
	"github.com/layerledger/layerledger/internal/profit"
)

func newTestRouter(store *ledger.MemoryStore, sales profit.SaleLineRecorder) http.Handler {
	engine := NewEngine(store, nil, nil, PolicyStrict, nil)
	r := chi.NewRouter()
	NewHandler(nil, engine, sales).MountRoutes(r)
	return r
}

func postJSON(router http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/sales", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleConsume(t *testing.T) {
	store := ledger.NewMemoryStore()
	seedLayer(t, store, 1, day(0), "10", "100")
	seedLayer(t, store, 1, day(5), "5", "120")
	sales := profit.NewMemorySales()
	router := newTestRouter(store, sales)

	rec := postJSON(router, `{"sale_id":"S1","sale_line_id":"L1","product_id":1,"qty":"12","unit_price":"150","date":"2026-01-10T00:00:00Z"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		SaleLineID   string `json:"sale_line_id"`
		TotalCost    string `json:"total_cost"`
		ShortfallQty string `json:"shortfall_qty"`
		Records      []struct {
			LayerID   int64  `json:"layer_id"`
			Qty       string `json:"qty"`
			Estimated bool   `json:"estimated"`
		} `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "L1", resp.SaleLineID)
	require.Equal(t, "1240", resp.TotalCost)
	require.Equal(t, "0", resp.ShortfallQty)
	require.Len(t, resp.Records, 2)

	// The sale line is recorded for profitability reporting.
	lines, err := sales.SaleLines(context.Background(), profit.SaleLineFilter{SaleID: "S1"})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.True(t, lines[0].UnitPriceSold.Equal(qty("150")))
}

func TestHandleConsumeGeneratesSaleLineID(t *testing.T) {
	store := ledger.NewMemoryStore()
	seedLayer(t, store, 1, day(0), "5", "10")
	router := newTestRouter(store, profit.NewMemorySales())

	rec := postJSON(router, `{"sale_id":"S1","product_id":1,"qty":"1","unit_price":"20"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		SaleLineID string `json:"sale_line_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SaleLineID)
}

func TestHandleConsumeInsufficientStock(t *testing.T) {
	store := ledger.NewMemoryStore()
	seedLayer(t, store, 1, day(0), "3", "10")
	router := newTestRouter(store, profit.NewMemorySales())

	rec := postJSON(router, `{"sale_id":"S1","sale_line_id":"L1","product_id":1,"qty":"20","unit_price":"50"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "insufficient stock")
}

func TestHandleConsumeValidation(t *testing.T) {
	router := newTestRouter(ledger.NewMemoryStore(), profit.NewMemorySales())

	cases := map[string]string{
		"not json":        `{`,
		"missing sale id": `{"product_id":1,"qty":"1","unit_price":"10"}`,
		"bad qty":         `{"sale_id":"S1","product_id":1,"qty":"one","unit_price":"10"}`,
		"bad price":       `{"sale_id":"S1","product_id":1,"qty":"1","unit_price":"x"}`,
		"bad discount":    `{"sale_id":"S1","product_id":1,"qty":"1","unit_price":"10","discount_per_unit":"x"}`,
		"bad date":        `{"sale_id":"S1","product_id":1,"qty":"1","unit_price":"10","date":"yesterday"}`,
	}
	for name, body := range cases {
		rec := postJSON(router, body)
		require.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}
