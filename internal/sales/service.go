package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/forgeline/forgeline/internal/fulfillment"
	"github.com/forgeline/forgeline/internal/inventory"
	"github.com/forgeline/forgeline/internal/masterdata"
	"github.com/forgeline/forgeline/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, companyID, orderID int64) (SalesOrder, error)
	ListOrders(ctx context.Context, companyID int64, status SOStatus, limit int) ([]SalesOrder, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	InsertOrder(ctx context.Context, order SalesOrder) (int64, error)
	InsertLine(ctx context.Context, line SOLine) (int64, error)
	GetOrderForUpdate(ctx context.Context, companyID, orderID int64) (SalesOrder, error)
	UpdateStatus(ctx context.Context, orderID int64, status SOStatus) error
	UpdateLineDelivered(ctx context.Context, lineID int64, deliveredQty float64) error
	InsertDelivery(ctx context.Context, d Delivery) (int64, error)
	DeleteDelivery(ctx context.Context, deliveryID int64) error
}

// ReservationPort is the slice of the fulfillment service the order lifecycle
// drives.
type ReservationPort interface {
	Reserve(ctx context.Context, companyID, salesOrderID int64, demand []fulfillment.DemandLine) (fulfillment.AvailabilityReport, error)
	Release(ctx context.Context, companyID, salesOrderID int64) error
	ConsumeForIssue(ctx context.Context, companyID, salesOrderID, skuID int64, qty float64) error
}

// InventoryPort exposes stock movement operations used on delivery.
type InventoryPort interface {
	Transfer(ctx context.Context, input inventory.TransferInput) (inventory.Movement, inventory.Movement, error)
	RecordMovement(ctx context.Context, input inventory.MovementInput) (inventory.Movement, error)
}

// DirectoryPort exposes zone lookups.
type DirectoryPort interface {
	ZoneByType(ctx context.Context, companyID int64, zoneType masterdata.ZoneType) (masterdata.Zone, error)
}

// TaskPort enqueues background work. Enqueue failures never abort the order
// flow that triggered them.
type TaskPort interface {
	EnqueueDraftPurchaseOrders(ctx context.Context, companyID, salesOrderID int64, soNumber string, demand []fulfillment.DemandLine) error
}

// ActivityPort abstracts the external activity-log writer.
type ActivityPort interface {
	Record(ctx context.Context, evt shared.ActivityEvent) error
}

// Service owns the sales order lifecycle. Confirmation is gated exclusively
// by the reservation engine: CONFIRMED is unreachable while any raw SKU is
// short.
type Service struct {
	repo        RepositoryPort
	reservation ReservationPort
	inventory   InventoryPort
	directory   DirectoryPort
	tasks       TaskPort
	activity    ActivityPort
}

// NewService constructs sales service. tasks and activity may be nil.
func NewService(repo RepositoryPort, reservation ReservationPort, inventory InventoryPort, directory DirectoryPort, tasks TaskPort, activity ActivityPort) *Service {
	return &Service{repo: repo, reservation: reservation, inventory: inventory, directory: directory, tasks: tasks, activity: activity}
}

// CreateOrder stores a new order in QUOTE state.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (SalesOrder, error) {
	if input.CompanyID == 0 || len(input.Lines) == 0 {
		return SalesOrder{}, fmt.Errorf("sales: company and at least one line required: %w", shared.ErrValidation)
	}
	for _, line := range input.Lines {
		if line.SKUID == 0 || line.Qty <= 0 {
			return SalesOrder{}, fmt.Errorf("sales: line needs sku and positive qty: %w", shared.ErrValidation)
		}
	}
	order := SalesOrder{
		CompanyID:    input.CompanyID,
		Number:       input.Number,
		CustomerName: input.CustomerName,
		Status:       SOStatusQuote,
	}
	if order.Number == "" {
		order.Number = generateNumber("SO")
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		orderID, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = orderID
		for _, in := range input.Lines {
			line := SOLine{SalesOrderID: orderID, SKUID: in.SKUID, Qty: in.Qty}
			line.ID, err = tx.InsertLine(ctx, line)
			if err != nil {
				return err
			}
			order.Lines = append(order.Lines, line)
		}
		return nil
	})
	if err != nil {
		return SalesOrder{}, err
	}
	return order, nil
}

// Confirm transitions QUOTE to CONFIRMED by reserving raw material for the
// whole demand batch. On shortage the order stays QUOTE, a procurement
// drafting job is enqueued to cover the gap, and the shortage is surfaced to
// the caller.
func (s *Service) Confirm(ctx context.Context, companyID, orderID, actorID int64) (SalesOrder, error) {
	order, err := s.repo.GetOrder(ctx, companyID, orderID)
	if err != nil {
		return SalesOrder{}, err
	}
	if order.Status != SOStatusQuote {
		return SalesOrder{}, fmt.Errorf("sales: order %s is %s, only QUOTE can be confirmed: %w",
			order.Number, order.Status, shared.ErrValidation)
	}
	demand := demandFor(order)
	if _, err := s.reservation.Reserve(ctx, companyID, orderID, demand); err != nil {
		if errors.Is(err, shared.ErrShortage) && s.tasks != nil {
			_ = s.tasks.EnqueueDraftPurchaseOrders(ctx, companyID, orderID, order.Number, demand)
		}
		return SalesOrder{}, err
	}
	if err := s.transition(ctx, companyID, orderID, SOStatusQuote, SOStatusConfirmed); err != nil {
		return SalesOrder{}, err
	}
	order.Status = SOStatusConfirmed
	s.record(ctx, companyID, actorID, "sales:confirmed", orderID, map[string]any{"so_number": order.Number})
	return order, nil
}

// Cancel releases the order's reservations and parks it in CANCELLED.
// Allowed until goods are dispatched.
func (s *Service) Cancel(ctx context.Context, companyID, orderID, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, companyID, orderID)
		if err != nil {
			return err
		}
		switch order.Status {
		case SOStatusQuote, SOStatusConfirmed, SOStatusProduction:
			return tx.UpdateStatus(ctx, orderID, SOStatusCancelled)
		default:
			return fmt.Errorf("sales: order %s is %s and can no longer be cancelled: %w",
				order.Number, order.Status, shared.ErrValidation)
		}
	})
	if err != nil {
		return err
	}
	if err := s.reservation.Release(ctx, companyID, orderID); err != nil {
		return err
	}
	s.record(ctx, companyID, actorID, "sales:cancelled", orderID, nil)
	return nil
}

// StartProduction transitions CONFIRMED to PRODUCTION.
func (s *Service) StartProduction(ctx context.Context, companyID, orderID, actorID int64) error {
	if err := s.transition(ctx, companyID, orderID, SOStatusConfirmed, SOStatusProduction); err != nil {
		return err
	}
	s.record(ctx, companyID, actorID, "sales:production_started", orderID, nil)
	return nil
}

// Dispatch transitions PRODUCTION to DISPATCH.
func (s *Service) Dispatch(ctx context.Context, companyID, orderID, actorID int64) error {
	if err := s.transition(ctx, companyID, orderID, SOStatusProduction, SOStatusDispatch); err != nil {
		return err
	}
	s.record(ctx, companyID, actorID, "sales:dispatched", orderID, nil)
	return nil
}

// Deliver records delivered quantities against a dispatched order. Each
// delivered quantity moves through the in-transit zone: a transfer out of
// finished goods, then an ISSUE out of in-transit. Reservations held for the
// delivered SKUs are consumed, and once every line is fully delivered the
// order transitions to DELIVERED and the remaining holds are released.
func (s *Service) Deliver(ctx context.Context, input DeliveryInput) (SalesOrder, error) {
	if len(input.Lines) == 0 {
		return SalesOrder{}, fmt.Errorf("sales: delivery needs at least one line: %w", shared.ErrValidation)
	}
	fgZone, err := s.directory.ZoneByType(ctx, input.CompanyID, masterdata.ZoneTypeFinishedGoods)
	if err != nil {
		return SalesOrder{}, err
	}
	transitZone, err := s.directory.ZoneByType(ctx, input.CompanyID, masterdata.ZoneTypeInTransit)
	if err != nil {
		return SalesOrder{}, err
	}

	var order SalesOrder
	var delivered []deliveredLine
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		delivered = delivered[:0]
		var err error
		order, err = tx.GetOrderForUpdate(ctx, input.CompanyID, input.OrderID)
		if err != nil {
			return err
		}
		if order.Status != SOStatusDispatch {
			return fmt.Errorf("sales: order %s is %s, only DISPATCH can be delivered: %w",
				order.Number, order.Status, shared.ErrValidation)
		}
		byID := make(map[int64]*SOLine, len(order.Lines))
		for i := range order.Lines {
			byID[order.Lines[i].ID] = &order.Lines[i]
		}
		for _, dl := range input.Lines {
			if dl.Qty <= 0 {
				return fmt.Errorf("sales: delivered quantity must be positive: %w", shared.ErrValidation)
			}
			line, ok := byID[dl.SOLineID]
			if !ok {
				return fmt.Errorf("sales: line %d not on order %d: %w", dl.SOLineID, input.OrderID, shared.ErrNotFound)
			}
			if dl.Qty > line.Remaining() {
				return fmt.Errorf("sales: delivery %.4f exceeds remaining %.4f on line %d: %w",
					dl.Qty, line.Remaining(), line.ID, shared.ErrValidation)
			}
			line.DeliveredQty += dl.Qty
			if err := tx.UpdateLineDelivered(ctx, line.ID, line.DeliveredQty); err != nil {
				return err
			}
			deliveryID, err := tx.InsertDelivery(ctx, Delivery{
				CompanyID: input.CompanyID,
				OrderID:   input.OrderID,
				SOLineID:  line.ID,
				Qty:       dl.Qty,
				Note:      input.Note,
			})
			if err != nil {
				return err
			}
			delivered = append(delivered, deliveredLine{lineID: line.ID, skuID: line.SKUID, qty: dl.Qty, deliveryID: deliveryID})
		}
		if allDelivered(order.Lines) {
			order.Status = SOStatusDelivered
			return tx.UpdateStatus(ctx, input.OrderID, SOStatusDelivered)
		}
		return nil
	})
	if err != nil {
		return SalesOrder{}, err
	}

	// Stock moves line by line after commit. If a line's movements cannot be
	// posted, that line and every line after it are rolled back so the caller
	// can re-deliver once stock is fixed; lines already issued keep their rows.
	for i, line := range delivered {
		if _, _, err := s.inventory.Transfer(ctx, inventory.TransferInput{
			CompanyID: input.CompanyID,
			SKUID:     line.skuID,
			FromZone:  fgZone.ID,
			ToZone:    transitZone.ID,
			Qty:       line.qty,
			RefModule: "SALES",
			Note:      input.Note,
			ActorID:   input.ActorID,
		}); err != nil {
			return SalesOrder{}, s.rollbackDeliveries(ctx, input, delivered[i:], err)
		}
		if _, err := s.inventory.RecordMovement(ctx, inventory.MovementInput{
			CompanyID: input.CompanyID,
			SKUID:     line.skuID,
			ZoneID:    transitZone.ID,
			Qty:       line.qty,
			Direction: inventory.DirectionOut,
			Type:      inventory.MovementTypeIssue,
			RefModule: "SALES",
			Note:      fmt.Sprintf("delivery for order %d", input.OrderID),
			ActorID:   input.ActorID,
		}); err != nil {
			// Put the goods back in finished goods before undoing the rows.
			_, _, _ = s.inventory.Transfer(ctx, inventory.TransferInput{
				CompanyID: input.CompanyID,
				SKUID:     line.skuID,
				FromZone:  transitZone.ID,
				ToZone:    fgZone.ID,
				Qty:       line.qty,
				RefModule: "SALES",
				Note:      "delivery reversal",
				ActorID:   input.ActorID,
			})
			return SalesOrder{}, s.rollbackDeliveries(ctx, input, delivered[i:], err)
		}
		// Holds are advisory: a failed consume leaves the reservation in
		// place, and the release below or the periodic sweep clears it.
		_ = s.reservation.ConsumeForIssue(ctx, input.CompanyID, input.OrderID, line.skuID, line.qty)
	}
	if order.Status == SOStatusDelivered {
		_ = s.reservation.Release(ctx, input.CompanyID, input.OrderID)
	}
	s.record(ctx, input.CompanyID, input.ActorID, "sales:delivered", input.OrderID,
		map[string]any{"lines": len(delivered), "status": string(order.Status)})
	return order, nil
}

type deliveredLine struct {
	lineID     int64
	skuID      int64
	qty        float64
	deliveryID int64
}

// rollbackDeliveries undoes delivery rows whose stock movements never posted,
// including the DELIVERED transition if it was reached, and returns the cause.
func (s *Service) rollbackDeliveries(ctx context.Context, input DeliveryInput, pending []deliveredLine, cause error) error {
	compErr := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, input.CompanyID, input.OrderID)
		if err != nil {
			return err
		}
		byID := make(map[int64]SOLine, len(order.Lines))
		for _, line := range order.Lines {
			byID[line.ID] = line
		}
		for _, dl := range pending {
			line, ok := byID[dl.lineID]
			if !ok {
				return fmt.Errorf("sales: line %d not on order %d: %w", dl.lineID, input.OrderID, shared.ErrNotFound)
			}
			if err := tx.UpdateLineDelivered(ctx, dl.lineID, line.DeliveredQty-dl.qty); err != nil {
				return err
			}
			if err := tx.DeleteDelivery(ctx, dl.deliveryID); err != nil {
				return err
			}
		}
		if order.Status == SOStatusDelivered {
			return tx.UpdateStatus(ctx, input.OrderID, SOStatusDispatch)
		}
		return nil
	})
	if compErr != nil {
		return fmt.Errorf("sales: delivery movement failed, rollback also failed (%v): %w", compErr, cause)
	}
	return cause
}

// GetOrder loads one order with lines.
func (s *Service) GetOrder(ctx context.Context, companyID, orderID int64) (SalesOrder, error) {
	return s.repo.GetOrder(ctx, companyID, orderID)
}

// ListOrders lists orders, optionally filtered by status.
func (s *Service) ListOrders(ctx context.Context, companyID int64, status SOStatus, limit int) ([]SalesOrder, error) {
	return s.repo.ListOrders(ctx, companyID, status, limit)
}

func (s *Service) transition(ctx context.Context, companyID, orderID int64, from, to SOStatus) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, companyID, orderID)
		if err != nil {
			return err
		}
		if order.Status != from {
			return fmt.Errorf("sales: order %s is %s, expected %s: %w", order.Number, order.Status, from, shared.ErrValidation)
		}
		return tx.UpdateStatus(ctx, orderID, to)
	})
}

func (s *Service) record(ctx context.Context, companyID, actorID int64, action string, orderID int64, meta map[string]any) {
	if s.activity == nil {
		return
	}
	_ = s.activity.Record(ctx, shared.ActivityEvent{
		CompanyID: companyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "sales_order",
		EntityID:  fmt.Sprintf("%d", orderID),
		Meta:      meta,
	})
}

func demandFor(order SalesOrder) []fulfillment.DemandLine {
	demand := make([]fulfillment.DemandLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		demand = append(demand, fulfillment.DemandLine{
			ID:           line.ID,
			SKUID:        line.SKUID,
			Qty:          line.Qty,
			DeliveredQty: line.DeliveredQty,
		})
	}
	return demand
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func allDelivered(lines []SOLine) bool {
	for _, line := range lines {
		if !line.FullyDelivered() {
			return false
		}
	}
	return true
}
