package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/forgeline/forgeline/internal/shared"
)

// ReservationSweeper removes reservations orphaned by terminal orders.
type ReservationSweeper interface {
	SweepCancelledOrders(ctx context.Context) (int64, error)
}

// ReservationSweepHandler processes TaskReservationSweep tasks.
type ReservationSweepHandler struct {
	sweeper ReservationSweeper
	logger  *slog.Logger
}

// NewReservationSweepHandler constructs the handler.
func NewReservationSweepHandler(sweeper ReservationSweeper, logger *slog.Logger) *ReservationSweepHandler {
	return &ReservationSweepHandler{sweeper: sweeper, logger: logger}
}

// ProcessTask releases reservations still held by cancelled or delivered
// orders.
func (h *ReservationSweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload SweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	removed, err := h.sweeper.SweepCancelledOrders(ctx)
	if err != nil {
		h.logger.Error("reservation sweep", slog.Any("error", err))
		return err
	}
	if removed > 0 {
		h.logger.Info("reservation sweep", slog.Int64("removed", removed))
	}
	return nil
}

// IdempotencyCleanupHandler prunes aged idempotency keys.
type IdempotencyCleanupHandler struct {
	store     *shared.IdempotencyStore
	retention time.Duration
	logger    *slog.Logger
}

// NewIdempotencyCleanupHandler constructs the handler.
func NewIdempotencyCleanupHandler(store *shared.IdempotencyStore, retention time.Duration, logger *slog.Logger) *IdempotencyCleanupHandler {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &IdempotencyCleanupHandler{store: store, retention: retention, logger: logger}
}

// ProcessTask removes idempotency keys older than the retention window.
func (h *IdempotencyCleanupHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload SweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if err := h.store.Cleanup(ctx, h.retention); err != nil {
		h.logger.Error("idempotency cleanup", slog.Any("error", err))
		return err
	}
	return nil
}
