package procurement

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/forgeline/forgeline/internal/fulfillment"
	"github.com/forgeline/forgeline/internal/platform/httpx"
)

// Handler wires HTTP endpoints for procurement.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs procurement handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/procurement/drafts", h.handleDraft)
	r.Post("/procurement/receipts", h.handleReceipt)
	r.Post("/procurement/short-closes", h.handleShortClose)
	r.Get("/procurement/orders/{poID}", h.handleGetPO)
	r.Get("/procurement/orders", h.handleListForSalesOrder)
}

type draftRequest struct {
	CompanyID    int64  `json:"company_id" validate:"required"`
	SalesOrderID int64  `json:"sales_order_id" validate:"required"`
	SONumber     string `json:"so_number"`
	Demand       []struct {
		ID           int64   `json:"id"`
		SKUID        int64   `json:"sku_id" validate:"required"`
		Qty          float64 `json:"qty" validate:"gt=0"`
		DeliveredQty float64 `json:"delivered_qty" validate:"gte=0"`
	} `json:"demand" validate:"required,min=1,dive"`
}

func (h *Handler) handleDraft(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	demand := make([]fulfillment.DemandLine, 0, len(req.Demand))
	for _, line := range req.Demand {
		demand = append(demand, fulfillment.DemandLine{ID: line.ID, SKUID: line.SKUID, Qty: line.Qty, DeliveredQty: line.DeliveredQty})
	}
	drafts, err := h.service.AutoDraftPurchaseOrders(r.Context(), req.CompanyID, req.SalesOrderID, req.SONumber, demand)
	if err != nil {
		h.logger.Error("auto draft purchase orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"purchase_orders": drafts})
}

type receiptRequest struct {
	CompanyID int64   `json:"company_id" validate:"required"`
	POLineID  int64   `json:"po_line_id" validate:"required"`
	Qty       float64 `json:"qty" validate:"gt=0"`
	UnitCost  float64 `json:"unit_cost" validate:"gte=0"`
	Note      string  `json:"note"`
	ActorID   int64   `json:"actor_id"`
}

func (h *Handler) handleReceipt(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	err := h.service.ReceiveGoods(r.Context(), ReceiptInput{
		CompanyID: req.CompanyID,
		POLineID:  req.POLineID,
		Qty:       req.Qty,
		UnitCost:  req.UnitCost,
		Note:      req.Note,
		ActorID:   req.ActorID,
	})
	if err != nil {
		h.logger.Error("receive goods", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "received"})
}

type shortCloseRequest struct {
	CompanyID int64   `json:"company_id" validate:"required"`
	POLineID  int64   `json:"po_line_id" validate:"required"`
	Qty       float64 `json:"qty" validate:"gt=0"`
}

func (h *Handler) handleShortClose(w http.ResponseWriter, r *http.Request) {
	var req shortCloseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.ShortClose(r.Context(), req.CompanyID, req.POLineID, req.Qty); err != nil {
		h.logger.Error("short close", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "short_closed"})
}

func (h *Handler) handleGetPO(w http.ResponseWriter, r *http.Request) {
	companyID := queryInt64(r, "company_id")
	poID, _ := strconv.ParseInt(chi.URLParam(r, "poID"), 10, 64)
	po, err := h.service.GetPurchaseOrder(r.Context(), companyID, poID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) handleListForSalesOrder(w http.ResponseWriter, r *http.Request) {
	companyID := queryInt64(r, "company_id")
	salesOrderID := queryInt64(r, "sales_order_id")
	orders, err := h.service.ListForSalesOrder(r.Context(), companyID, salesOrderID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purchase_orders": orders})
}

func queryInt64(r *http.Request, key string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	return v
}
