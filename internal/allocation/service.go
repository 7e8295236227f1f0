package allocation

import (
	"context"
	"fmt"

	"github.com/forgeline/forgeline/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListForSalesOrderLine(ctx context.Context, companyID, soLineID int64) ([]Allocation, error)
	ListForPOLine(ctx context.Context, companyID, poLineID int64) ([]Allocation, error)
}

// TxRepository exposes transactional operations used by service. The line
// getters lock the underlying rows and report quantity already allocated.
type TxRepository interface {
	GetSOLineForUpdate(ctx context.Context, companyID, soLineID int64) (LineView, error)
	GetPOLineForUpdate(ctx context.Context, companyID, poLineID int64) (LineView, error)
	AddAllocation(ctx context.Context, companyID, poLineID, soLineID int64, qty float64) error
	DecrementAllocation(ctx context.Context, companyID, poLineID, soLineID int64, qty float64) error
}

// ActivityPort abstracts the external activity-log writer.
type ActivityPort interface {
	Record(ctx context.Context, evt shared.ActivityEvent) error
}

// Service links purchase-order supply to sales-order demand.
type Service struct {
	repo     RepositoryPort
	activity ActivityPort
}

// NewService constructs allocation service.
func NewService(repo RepositoryPort, activity ActivityPort) *Service {
	return &Service{repo: repo, activity: activity}
}

// Allocate assigns qty from a PO line to a sales-order line. Both lines are
// locked for the duration of the check so concurrent allocations cannot
// oversubscribe either side. Both caps hold independently:
// allocated-to-SO-line never exceeds the line's ordered quantity, and
// allocated-from-PO-line never exceeds the line's purchased quantity.
func (s *Service) Allocate(ctx context.Context, input AllocateInput) error {
	if input.Qty <= 0 {
		return fmt.Errorf("allocation: quantity must be positive: %w", shared.ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		soLine, err := tx.GetSOLineForUpdate(ctx, input.CompanyID, input.SalesOrderLineID)
		if err != nil {
			return err
		}
		poLine, err := tx.GetPOLineForUpdate(ctx, input.CompanyID, input.POLineID)
		if err != nil {
			return err
		}
		if input.Qty > soLine.Free() {
			return fmt.Errorf("allocation: %.4f exceeds free %.4f on sales order line %d: %w",
				input.Qty, soLine.Free(), soLine.ID, shared.ErrOverAllocation)
		}
		if input.Qty > poLine.Free() {
			return fmt.Errorf("allocation: %.4f exceeds free %.4f on purchase order line %d: %w",
				input.Qty, poLine.Free(), poLine.ID, shared.ErrOverAllocation)
		}
		return tx.AddAllocation(ctx, input.CompanyID, input.POLineID, input.SalesOrderLineID, input.Qty)
	})
	if err != nil {
		return err
	}
	if s.activity != nil {
		_ = s.activity.Record(ctx, shared.ActivityEvent{
			CompanyID: input.CompanyID,
			ActorID:   input.ActorID,
			Action:    "allocation:allocated",
			Entity:    "po_line",
			EntityID:  fmt.Sprintf("%d", input.POLineID),
			Meta:      map[string]any{"so_line_id": input.SalesOrderLineID, "qty": input.Qty},
		})
	}
	return nil
}

// Deallocate removes qty from an existing allocation, floored at zero. The
// allocation row disappears once it reaches zero.
func (s *Service) Deallocate(ctx context.Context, companyID, poLineID, soLineID int64, qty float64) error {
	if qty <= 0 {
		return fmt.Errorf("allocation: quantity must be positive: %w", shared.ErrValidation)
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetSOLineForUpdate(ctx, companyID, soLineID); err != nil {
			return err
		}
		if _, err := tx.GetPOLineForUpdate(ctx, companyID, poLineID); err != nil {
			return err
		}
		return tx.DecrementAllocation(ctx, companyID, poLineID, soLineID, qty)
	})
}

// ListForSalesOrderLine lists allocations feeding a sales-order line.
func (s *Service) ListForSalesOrderLine(ctx context.Context, companyID, soLineID int64) ([]Allocation, error) {
	return s.repo.ListForSalesOrderLine(ctx, companyID, soLineID)
}

// ListForPOLine lists allocations drawn from a PO line.
func (s *Service) ListForPOLine(ctx context.Context, companyID, poLineID int64) ([]Allocation, error) {
	return s.repo.ListForPOLine(ctx, companyID, poLineID)
}
