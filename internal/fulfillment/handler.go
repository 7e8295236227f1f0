package fulfillment

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/forgeline/forgeline/internal/platform/httpx"
)

// Handler wires HTTP endpoints for availability reads.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs fulfillment handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers fulfillment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/availability", h.handleAvailability)
}

type availabilityRequest struct {
	CompanyID int64 `json:"company_id" validate:"required"`
	Demand    []struct {
		ID           int64   `json:"id"`
		SKUID        int64   `json:"sku_id" validate:"required"`
		Qty          float64 `json:"qty" validate:"gt=0"`
		DeliveredQty float64 `json:"delivered_qty" validate:"gte=0"`
	} `json:"demand" validate:"required,min=1,dive"`
	ExcludeOrderIDs []int64 `json:"exclude_order_ids"`
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	demand := make([]DemandLine, 0, len(req.Demand))
	for _, line := range req.Demand {
		demand = append(demand, DemandLine{ID: line.ID, SKUID: line.SKUID, Qty: line.Qty, DeliveredQty: line.DeliveredQty})
	}
	// Display read: served through the cache, may be momentarily stale.
	report, err := h.service.ComputeAvailabilityCached(r.Context(), req.CompanyID, demand, req.ExcludeOrderIDs)
	if err != nil {
		h.logger.Error("compute availability", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
