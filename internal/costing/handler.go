package costing

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/layerledger/layerledger/internal/ledger"
	"github.com/layerledger/layerledger/internal/platform/httpx"
	"github.com/layerledger/layerledger/internal/profit"
)

// Handler exposes the sales-facing consumption API. The sales module
// posts each finalized sale line here; the engine allocates cost layers
// and records the line for later profitability reporting.
type Handler struct {
	logger    *slog.Logger
	engine    *Engine
	sales     profit.SaleLineRecorder
	validator *validator.Validate
}

// NewHandler constructs the costing handler.
func NewHandler(logger *slog.Logger, engine *Engine, sales profit.SaleLineRecorder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, engine: engine, sales: sales, validator: validator.New()}
}

// MountRoutes registers consumption routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sales", h.handleConsume)
}

type consumeRequest struct {
	SaleID          string `json:"sale_id" validate:"required"`
	SaleLineID      string `json:"sale_line_id"`
	ProductID       int64  `json:"product_id" validate:"required,gt=0"`
	Qty             string `json:"qty" validate:"required"`
	UnitPrice       string `json:"unit_price" validate:"required"`
	DiscountPerUnit string `json:"discount_per_unit"`
	Date            string `json:"date"`
}

type consumeResponse struct {
	SaleLineID   string                  `json:"sale_line_id"`
	TotalCost    string                  `json:"total_cost"`
	ShortfallQty string                  `json:"shortfall_qty"`
	Records      []consumptionRecordBody `json:"records"`
}

type consumptionRecordBody struct {
	RecordID   int64  `json:"record_id"`
	LayerID    int64  `json:"layer_id,omitempty"`
	Qty        string `json:"qty"`
	UnitCost   string `json:"unit_cost"`
	Estimated  bool   `json:"estimated"`
	ConsumedAt string `json:"consumed_at"`
}

func (h *Handler) handleConsume(w http.ResponseWriter, r *http.Request) {
	var req consumeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	qty, err := decimal.NewFromString(req.Qty)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "qty must be a decimal number")
		return
	}
	unitPrice, err := decimal.NewFromString(req.UnitPrice)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_price must be a decimal number")
		return
	}
	discount := decimal.Zero
	if req.DiscountPerUnit != "" {
		discount, err = decimal.NewFromString(req.DiscountPerUnit)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "discount_per_unit must be a decimal number")
			return
		}
	}
	soldAt := time.Now().UTC()
	if req.Date != "" {
		soldAt, err = time.Parse(time.RFC3339, req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be RFC3339")
			return
		}
	}
	saleLineID := req.SaleLineID
	if saleLineID == "" {
		saleLineID = uuid.NewString()
	}

	result, err := h.engine.Consume(r.Context(), ConsumeInput{
		ProductID:  req.ProductID,
		Qty:        qty,
		SaleLineID: saleLineID,
		AsOf:       soldAt,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	if h.sales != nil {
		line := profit.SaleLine{
			SaleID:          req.SaleID,
			SaleLineID:      saleLineID,
			ProductID:       req.ProductID,
			QuantitySold:    qty,
			UnitPriceSold:   unitPrice,
			DiscountPerUnit: discount,
			SoldAt:          soldAt,
		}
		if err := h.sales.RecordSaleLine(r.Context(), line); err != nil {
			h.logger.Error("record sale line failed",
				slog.String("sale_line_id", saleLineID),
				slog.Any("error", err))
		}
	}

	httpx.JSON(w, http.StatusCreated, toConsumeResponse(saleLineID, result))
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var insufficient *InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", insufficient.Error())
	case errors.Is(err, ledger.ErrProductRequired),
		errors.Is(err, ledger.ErrInvalidQuantity),
		errors.Is(err, ErrSaleLineRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ledger.ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("consume request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func toConsumeResponse(saleLineID string, result ConsumeResult) consumeResponse {
	resp := consumeResponse{
		SaleLineID:   saleLineID,
		TotalCost:    result.TotalCost.String(),
		ShortfallQty: result.ShortfallQty.String(),
	}
	for _, rec := range result.Records {
		resp.Records = append(resp.Records, consumptionRecordBody{
			RecordID:   rec.ID,
			LayerID:    rec.LayerID,
			Qty:        rec.QuantityConsumed.String(),
			UnitCost:   rec.UnitCostAtConsumption.String(),
			Estimated:  rec.Estimated,
			ConsumedAt: rec.ConsumedAt.UTC().Format(time.RFC3339),
		})
	}
	return resp
}
