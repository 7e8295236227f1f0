package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/forgeline/forgeline/internal/fulfillment"
	"github.com/forgeline/forgeline/internal/procurement"
)

type stubPlanner struct {
	calls []DraftPurchaseOrdersPayload
	err   error
}

func (s *stubPlanner) AutoDraftPurchaseOrders(ctx context.Context, companyID, salesOrderID int64, soNumber string, demand []fulfillment.DemandLine) ([]procurement.PurchaseOrder, error) {
	s.calls = append(s.calls, DraftPurchaseOrdersPayload{CompanyID: companyID, SalesOrderID: salesOrderID, SONumber: soNumber, Demand: demand})
	if s.err != nil {
		return nil, s.err
	}
	return []procurement.PurchaseOrder{{ID: 1}}, nil
}

func TestDraftPOHandlerInvokesPlanner(t *testing.T) {
	planner := &stubPlanner{}
	handler := NewDraftPOHandler(planner, slog.Default())

	task, err := NewDraftPurchaseOrdersTask(DraftPurchaseOrdersPayload{
		CompanyID:    1,
		SalesOrderID: 55,
		SONumber:     "SO-1001",
		Demand:       []fulfillment.DemandLine{{ID: 1, SKUID: 100, Qty: 60}},
	})
	require.NoError(t, err)

	require.NoError(t, handler.ProcessTask(context.Background(), task))
	require.Len(t, planner.calls, 1)
	require.Equal(t, int64(55), planner.calls[0].SalesOrderID)
	require.Equal(t, "SO-1001", planner.calls[0].SONumber)
	require.Len(t, planner.calls[0].Demand, 1)
}

func TestDraftPOHandlerSkipsMalformedPayload(t *testing.T) {
	planner := &stubPlanner{}
	handler := NewDraftPOHandler(planner, slog.Default())

	err := handler.ProcessTask(context.Background(), asynq.NewTask(TaskDraftPurchaseOrders, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, planner.calls)
}

type stubSweeper struct {
	removed int64
	calls   int
}

func (s *stubSweeper) SweepCancelledOrders(ctx context.Context) (int64, error) {
	s.calls++
	return s.removed, nil
}

func TestReservationSweepHandler(t *testing.T) {
	sweeper := &stubSweeper{removed: 3}
	handler := NewReservationSweepHandler(sweeper, slog.Default())

	task, err := NewReservationSweepTask(time.Now())
	require.NoError(t, err)
	require.NoError(t, handler.ProcessTask(context.Background(), task))
	require.Equal(t, 1, sweeper.calls)
}

func TestSweepPayloadRoundTrip(t *testing.T) {
	at := time.Date(2026, 8, 1, 3, 0, 0, 0, time.UTC)
	task, err := NewIdempotencyCleanupTask(at)
	require.NoError(t, err)

	var payload SweepPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.True(t, payload.ScheduledFor.Equal(at))
}
