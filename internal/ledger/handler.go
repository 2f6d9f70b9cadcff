package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/layerledger/layerledger/internal/platform/httpx"
)

// Handler exposes the purchasing-facing ledger API.
type Handler struct {
	logger    *slog.Logger
	service   *Store
	validator *validator.Validate
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Store) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/purchases", h.handleAppendLayer)
	r.Get("/products/{productID}/layers", h.handleLayers)
}

type appendLayerRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Qty       string `json:"qty" validate:"required"`
	UnitCost  string `json:"unit_cost" validate:"required"`
	EntryDate string `json:"entry_date"`
	SourceRef string `json:"source_ref"`
}

type layerResponse struct {
	LayerID      int64  `json:"layer_id"`
	ProductID    int64  `json:"product_id"`
	EntryDate    string `json:"entry_date"`
	OriginalQty  string `json:"original_qty"`
	RemainingQty string `json:"remaining_qty"`
	UnitCost     string `json:"unit_cost"`
	State        string `json:"state"`
	SourceRef    string `json:"source_ref,omitempty"`
}

func (h *Handler) handleAppendLayer(w http.ResponseWriter, r *http.Request) {
	var req appendLayerRequest
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
	unitCost, err := decimal.NewFromString(req.UnitCost)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_cost must be a decimal number")
		return
	}
	var entryDate time.Time
	if req.EntryDate != "" {
		entryDate, err = time.Parse(time.RFC3339, req.EntryDate)
		if err != nil {
			entryDate, err = time.Parse("2006-01-02", req.EntryDate)
		}
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "entry_date must be RFC3339 or YYYY-MM-DD")
			return
		}
	}

	layer, err := h.service.AppendLayer(r.Context(), AppendLayerInput{
		ProductID: req.ProductID,
		Qty:       qty,
		UnitCost:  unitCost,
		EntryDate: entryDate,
		SourceRef: req.SourceRef,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toLayerResponse(layer))
}

func (h *Handler) handleLayers(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product id must be a positive integer")
		return
	}
	layers, err := h.service.History(r.Context(), productID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]layerResponse, 0, len(layers))
	for _, layer := range layers {
		out = append(out, toLayerResponse(layer))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrProductRequired),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidUnitCost):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrLayerNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("ledger request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func toLayerResponse(layer InventoryLayer) layerResponse {
	return layerResponse{
		LayerID:      layer.ID,
		ProductID:    layer.ProductID,
		EntryDate:    layer.EntryDate.UTC().Format(time.RFC3339),
		OriginalQty:  layer.OriginalQty.String(),
		RemainingQty: layer.RemainingQty.String(),
		UnitCost:     layer.UnitCost.String(),
		State:        string(layer.State()),
		SourceRef:    layer.SourceRef,
	}
}
