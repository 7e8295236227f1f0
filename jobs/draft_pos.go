package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/forgeline/forgeline/internal/fulfillment"
	"github.com/forgeline/forgeline/internal/procurement"
)

// PlannerPort is the slice of the procurement service the drafting job drives.
type PlannerPort interface {
	AutoDraftPurchaseOrders(ctx context.Context, companyID, salesOrderID int64, soNumber string, demand []fulfillment.DemandLine) ([]procurement.PurchaseOrder, error)
}

// DraftPOHandler processes TaskDraftPurchaseOrders tasks.
type DraftPOHandler struct {
	planner PlannerPort
	logger  *slog.Logger
}

// NewDraftPOHandler constructs the handler.
func NewDraftPOHandler(planner PlannerPort, logger *slog.Logger) *DraftPOHandler {
	return &DraftPOHandler{planner: planner, logger: logger}
}

// ProcessTask drafts purchase orders covering the payload's shortage.
func (h *DraftPOHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload DraftPurchaseOrdersPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	drafts, err := h.planner.AutoDraftPurchaseOrders(ctx, payload.CompanyID, payload.SalesOrderID, payload.SONumber, payload.Demand)
	if err != nil {
		h.logger.Error("draft purchase orders",
			slog.Int64("sales_order_id", payload.SalesOrderID),
			slog.Any("error", err))
		return err
	}
	h.logger.Info("purchase orders drafted",
		slog.Int64("sales_order_id", payload.SalesOrderID),
		slog.Int("count", len(drafts)))
	return nil
}
