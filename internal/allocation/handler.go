package allocation

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/forgeline/forgeline/internal/platform/httpx"
)

// Handler wires HTTP endpoints for allocations.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs allocation handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers allocation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/allocations", h.handleAllocate)
	r.Delete("/allocations", h.handleDeallocate)
	r.Get("/allocations", h.handleList)
}

type allocateRequest struct {
	CompanyID int64   `json:"company_id" validate:"required"`
	POLineID  int64   `json:"po_line_id" validate:"required"`
	SOLineID  int64   `json:"so_line_id" validate:"required"`
	Qty       float64 `json:"qty" validate:"gt=0"`
	ActorID   int64   `json:"actor_id"`
}

func (h *Handler) handleAllocate(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	err := h.service.Allocate(r.Context(), AllocateInput{
		CompanyID:        req.CompanyID,
		POLineID:         req.POLineID,
		SalesOrderLineID: req.SOLineID,
		Qty:              req.Qty,
		ActorID:          req.ActorID,
	})
	if err != nil {
		h.logger.Error("allocate", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"status": "allocated"})
}

func (h *Handler) handleDeallocate(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.Deallocate(r.Context(), req.CompanyID, req.POLineID, req.SOLineID, req.Qty); err != nil {
		h.logger.Error("deallocate", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deallocated"})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	companyID := queryInt64(r, "company_id")
	if soLineID := queryInt64(r, "so_line_id"); soLineID != 0 {
		allocations, err := h.service.ListForSalesOrderLine(r.Context(), companyID, soLineID)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"allocations": allocations})
		return
	}
	poLineID := queryInt64(r, "po_line_id")
	allocations, err := h.service.ListForPOLine(r.Context(), companyID, poLineID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"allocations": allocations})
}

func queryInt64(r *http.Request, key string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	return v
}
