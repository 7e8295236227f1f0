package sales

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/forgeline/forgeline/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the order lifecycle.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs sales handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sales/orders", h.handleCreate)
	r.Get("/sales/orders", h.handleList)
	r.Get("/sales/orders/{orderID}", h.handleGet)
	r.Post("/sales/orders/{orderID}/confirm", h.handleConfirm)
	r.Post("/sales/orders/{orderID}/cancel", h.handleCancel)
	r.Post("/sales/orders/{orderID}/produce", h.handleProduce)
	r.Post("/sales/orders/{orderID}/dispatch", h.handleDispatch)
	r.Post("/sales/orders/{orderID}/deliveries", h.handleDeliver)
}

type createOrderRequest struct {
	CompanyID    int64  `json:"company_id" validate:"required"`
	Number       string `json:"number"`
	CustomerName string `json:"customer_name"`
	ActorID      int64  `json:"actor_id"`
	Lines        []struct {
		SKUID int64   `json:"sku_id" validate:"required"`
		Qty   float64 `json:"qty" validate:"gt=0"`
	} `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateOrderInput{
		CompanyID:    req.CompanyID,
		Number:       req.Number,
		CustomerName: req.CustomerName,
		ActorID:      req.ActorID,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, CreateLineInput{SKUID: line.SKUID, Qty: line.Qty})
	}
	order, err := h.service.CreateOrder(r.Context(), input)
	if err != nil {
		h.logger.Error("create order", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

type actorRequest struct {
	CompanyID int64 `json:"company_id" validate:"required"`
	ActorID   int64 `json:"actor_id"`
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, fn func(companyID, orderID, actorID int64) error) {
	var req actorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	orderID, _ := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err := fn(req.CompanyID, orderID, req.ActorID); err != nil {
		h.logger.Error("order transition", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(companyID, orderID, actorID int64) error {
		_, err := h.service.Confirm(r.Context(), companyID, orderID, actorID)
		return err
	})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(companyID, orderID, actorID int64) error {
		return h.service.Cancel(r.Context(), companyID, orderID, actorID)
	})
}

func (h *Handler) handleProduce(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(companyID, orderID, actorID int64) error {
		return h.service.StartProduction(r.Context(), companyID, orderID, actorID)
	})
}

func (h *Handler) handleDispatch(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(companyID, orderID, actorID int64) error {
		return h.service.Dispatch(r.Context(), companyID, orderID, actorID)
	})
}

type deliveryRequest struct {
	CompanyID int64  `json:"company_id" validate:"required"`
	Note      string `json:"note"`
	ActorID   int64  `json:"actor_id"`
	Lines     []struct {
		SOLineID int64   `json:"so_line_id" validate:"required"`
		Qty      float64 `json:"qty" validate:"gt=0"`
	} `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) handleDeliver(w http.ResponseWriter, r *http.Request) {
	var req deliveryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	orderID, _ := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	input := DeliveryInput{CompanyID: req.CompanyID, OrderID: orderID, Note: req.Note, ActorID: req.ActorID}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, DeliveryLine{SOLineID: line.SOLineID, Qty: line.Qty})
	}
	order, err := h.service.Deliver(r.Context(), input)
	if err != nil {
		h.logger.Error("deliver order", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	companyID, _ := strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	orderID, _ := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	order, err := h.service.GetOrder(r.Context(), companyID, orderID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	companyID, _ := strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	status := SOStatus(r.URL.Query().Get("status"))
	orders, err := h.service.ListOrders(r.Context(), companyID, status, limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": orders})
}
