package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/forgeline/forgeline/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/movements", h.handleRecordMovement)
	r.Post("/transfers", h.handleTransfer)
	r.Get("/balances", h.handleGetBalance)
	r.Get("/ledger", h.handleLedger)
}

type movementRequest struct {
	CompanyID int64   `json:"company_id" validate:"required"`
	SKUID     int64   `json:"sku_id" validate:"required"`
	ZoneID    int64   `json:"zone_id" validate:"required"`
	Qty       float64 `json:"qty" validate:"gt=0"`
	Direction string  `json:"direction" validate:"oneof=IN OUT"`
	Type      string  `json:"type" validate:"oneof=RECEIPT ISSUE TRANSFER ADJUSTMENT PRODUCE"`
	UnitCost  float64 `json:"unit_cost" validate:"gte=0"`
	RefModule string  `json:"ref_module"`
	RefID     string  `json:"ref_id" validate:"omitempty,uuid"`
	Note      string  `json:"note"`
	ActorID   int64   `json:"actor_id"`
}

type transferRequest struct {
	CompanyID int64   `json:"company_id" validate:"required"`
	SKUID     int64   `json:"sku_id" validate:"required"`
	FromZone  int64   `json:"from_zone" validate:"required"`
	ToZone    int64   `json:"to_zone" validate:"required"`
	Qty       float64 `json:"qty" validate:"gt=0"`
	RefModule string  `json:"ref_module"`
	RefID     string  `json:"ref_id" validate:"omitempty,uuid"`
	Note      string  `json:"note"`
	ActorID   int64   `json:"actor_id"`
}

type movementResponse struct {
	ID         int64     `json:"id"`
	SKUID      int64     `json:"sku_id"`
	ZoneID     int64     `json:"zone_id"`
	Qty        float64   `json:"qty"`
	Direction  string    `json:"direction"`
	Type       string    `json:"type"`
	UnitCost   float64   `json:"unit_cost"`
	BalanceQty float64   `json:"balance_qty"`
	Note       string    `json:"note"`
	PostedAt   time.Time `json:"posted_at"`
}

func (h *Handler) handleRecordMovement(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	movement, err := h.service.RecordMovement(r.Context(), MovementInput{
		CompanyID: req.CompanyID,
		SKUID:     req.SKUID,
		ZoneID:    req.ZoneID,
		Qty:       req.Qty,
		Direction: Direction(req.Direction),
		Type:      MovementType(req.Type),
		UnitCost:  req.UnitCost,
		RefModule: req.RefModule,
		RefID:     req.RefID,
		Note:      req.Note,
		ActorID:   req.ActorID,
	})
	if err != nil {
		h.logger.Error("record movement", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toMovementResponse(movement))
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	out, in, err := h.service.Transfer(r.Context(), TransferInput{
		CompanyID: req.CompanyID,
		SKUID:     req.SKUID,
		FromZone:  req.FromZone,
		ToZone:    req.ToZone,
		Qty:       req.Qty,
		RefModule: req.RefModule,
		RefID:     req.RefID,
		Note:      req.Note,
		ActorID:   req.ActorID,
	})
	if err != nil {
		h.logger.Error("transfer", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"out": toMovementResponse(out),
		"in":  toMovementResponse(in),
	})
}

func (h *Handler) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	companyID := queryInt64(r, "company_id")
	skuID := queryInt64(r, "sku_id")
	zoneID := queryInt64(r, "zone_id")
	balance, err := h.service.GetBalance(r.Context(), companyID, skuID, zoneID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"sku_id":   balance.SKUID,
		"zone_id":  balance.ZoneID,
		"on_hand":  balance.OnHand,
		"avg_cost": balance.AvgCost,
	})
}

func (h *Handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	filter := LedgerFilter{
		CompanyID: queryInt64(r, "company_id"),
		SKUID:     queryInt64(r, "sku_id"),
		ZoneID:    queryInt64(r, "zone_id"),
		Limit:     int(queryInt64(r, "limit")),
	}
	if from := r.URL.Query().Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
			return
		}
		filter.From = t
	}
	if to := r.URL.Query().Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
			return
		}
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, toMovementResponse(m))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func toMovementResponse(m Movement) movementResponse {
	return movementResponse{
		ID:         m.ID,
		SKUID:      m.SKUID,
		ZoneID:     m.ZoneID,
		Qty:        m.Qty,
		Direction:  string(m.Direction),
		Type:       string(m.Type),
		UnitCost:   m.UnitCost,
		BalanceQty: m.BalanceQty,
		Note:       m.Note,
		PostedAt:   m.PostedAt,
	}
}

func queryInt64(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return v
}
