package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/forgeline/forgeline/internal/fulfillment"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDraftPurchaseOrders drafts POs covering a sales order's shortage.
	TaskDraftPurchaseOrders = "procurement:draft_pos"
	// TaskReservationSweep removes reservations orphaned by cancelled orders.
	TaskReservationSweep = "fulfillment:reservation_sweep"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "shared:idempotency_cleanup"
)

// DraftPurchaseOrdersPayload identifies the order whose shortage needs
// covering.
type DraftPurchaseOrdersPayload struct {
	CompanyID    int64                    `json:"company_id"`
	SalesOrderID int64                    `json:"sales_order_id"`
	SONumber     string                   `json:"so_number"`
	Demand       []fulfillment.DemandLine `json:"demand"`
}

// NewDraftPurchaseOrdersTask constructs an Asynq task for PO drafting.
func NewDraftPurchaseOrdersTask(payload DraftPurchaseOrdersPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDraftPurchaseOrders, data, asynq.Queue(QueueDefault)), nil
}

// SweepPayload carries scheduling metadata for periodic sweeps.
type SweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewReservationSweepTask constructs the reservation sweep task.
func NewReservationSweepTask(at time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(SweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReservationSweep, data, asynq.Queue(QueueDefault)), nil
}

// NewIdempotencyCleanupTask constructs the idempotency cleanup task.
func NewIdempotencyCleanupTask(at time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(SweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.Queue(QueueDefault)), nil
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueDraftPurchaseOrders enqueues a PO drafting task for the order.
func (c *Client) EnqueueDraftPurchaseOrders(ctx context.Context, companyID, salesOrderID int64, soNumber string, demand []fulfillment.DemandLine) error {
	task, err := NewDraftPurchaseOrdersTask(DraftPurchaseOrdersPayload{
		CompanyID:    companyID,
		SalesOrderID: salesOrderID,
		SONumber:     soNumber,
		Demand:       demand,
	})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
