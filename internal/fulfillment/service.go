package fulfillment

import (
	"context"
	"fmt"

	"github.com/forgeline/forgeline/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	stockReader
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListReservations(ctx context.Context, companyID, salesOrderID int64) ([]Reservation, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	stockReader
	AddReservation(ctx context.Context, companyID, salesOrderID, skuID int64, qty float64) error
	ReleaseOrder(ctx context.Context, companyID, salesOrderID int64) (int64, error)
	DecrementReservation(ctx context.Context, companyID, salesOrderID, skuID int64, qty float64) error
}

// ActivityPort abstracts the external activity-log writer.
type ActivityPort interface {
	Record(ctx context.Context, evt shared.ActivityEvent) error
}

// Service computes availability and owns stock reservations.
type Service struct {
	repo      RepositoryPort
	directory DirectoryPort
	activity  ActivityPort
	cache     *ReportCache
}

// NewService builds Service. cache may be nil; display reads then always
// recompute.
func NewService(repo RepositoryPort, directory DirectoryPort, activity ActivityPort, cache *ReportCache) *Service {
	return &Service{repo: repo, directory: directory, activity: activity, cache: cache}
}

// ComputeAvailability produces a shortage/surplus report for the demand
// batch. Pure read; safe to call repeatedly and concurrently. Reservations
// held by orders in excludeOrderIDs are not counted against availability so
// re-checking an order does not double-count its own demand.
func (s *Service) ComputeAvailability(ctx context.Context, companyID int64, demand []DemandLine, excludeOrderIDs []int64) (AvailabilityReport, error) {
	return s.computeAvailability(ctx, s.repo, companyID, demand, excludeOrderIDs)
}

// ComputeAvailabilityCached serves display reads through the report cache.
// Callers must tolerate a stale report: the confirmation flow never reads
// from here, it re-checks transactionally in Reserve.
func (s *Service) ComputeAvailabilityCached(ctx context.Context, companyID int64, demand []DemandLine, excludeOrderIDs []int64) (AvailabilityReport, error) {
	if s.cache == nil {
		return s.ComputeAvailability(ctx, companyID, demand, excludeOrderIDs)
	}
	return s.cache.Get(ctx, companyID, demand, excludeOrderIDs, func() (AvailabilityReport, error) {
		return s.ComputeAvailability(ctx, companyID, demand, excludeOrderIDs)
	})
}

// Reserve converts a shortage-free demand batch into committed reservations.
// The availability check runs inside the same transaction as the reservation
// writes, with balances read under lock, so two confirmations cannot both
// pass the check against the same unreserved pool.
func (s *Service) Reserve(ctx context.Context, companyID, salesOrderID int64, demand []DemandLine) (AvailabilityReport, error) {
	if salesOrderID == 0 {
		return AvailabilityReport{}, fmt.Errorf("fulfillment: sales order required: %w", shared.ErrValidation)
	}
	var report AvailabilityReport
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		report, err = s.computeAvailability(ctx, tx, companyID, demand, []int64{salesOrderID})
		if err != nil {
			return err
		}
		if report.Short() {
			return fmt.Errorf("fulfillment: order %d short %.4f across %d skus: %w",
				salesOrderID, report.TotalShortage(), len(report.Lines), shared.ErrShortage)
		}
		// Re-reserving replaces the order's previous hold instead of stacking
		// on top of it.
		if _, err := tx.ReleaseOrder(ctx, companyID, salesOrderID); err != nil {
			return err
		}
		for _, line := range report.Lines {
			if line.RequiredQty <= 0 {
				continue
			}
			if err := tx.AddReservation(ctx, companyID, salesOrderID, line.SKUID, line.RequiredQty); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return AvailabilityReport{}, err
	}
	if s.activity != nil {
		_ = s.activity.Record(ctx, shared.ActivityEvent{
			CompanyID: companyID,
			Action:    "fulfillment:reserved",
			Entity:    "sales_order",
			EntityID:  fmt.Sprintf("%d", salesOrderID),
			Meta:      map[string]any{"skus": len(report.Lines)},
		})
	}
	return report, nil
}

// Release removes every reservation held by the order. Invoked on order
// cancellation; the symmetric inverse of Reserve.
func (s *Service) Release(ctx context.Context, companyID, salesOrderID int64) error {
	if companyID == 0 || salesOrderID == 0 {
		return fmt.Errorf("fulfillment: company and sales order required: %w", shared.ErrValidation)
	}
	var removed int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		removed, err = tx.ReleaseOrder(ctx, companyID, salesOrderID)
		return err
	})
	if err != nil {
		return err
	}
	if s.activity != nil && removed > 0 {
		_ = s.activity.Record(ctx, shared.ActivityEvent{
			CompanyID: companyID,
			Action:    "fulfillment:released",
			Entity:    "sales_order",
			EntityID:  fmt.Sprintf("%d", salesOrderID),
			Meta:      map[string]any{"reservations": removed},
		})
	}
	return nil
}

// ConsumeForIssue decrements the order's reservation on a SKU after physical
// stock was issued for it, floored at zero.
func (s *Service) ConsumeForIssue(ctx context.Context, companyID, salesOrderID, skuID int64, qty float64) error {
	if qty <= 0 {
		return fmt.Errorf("fulfillment: quantity must be positive: %w", shared.ErrValidation)
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DecrementReservation(ctx, companyID, salesOrderID, skuID, qty)
	})
}

// ListReservations lists the order's outstanding reservations.
func (s *Service) ListReservations(ctx context.Context, companyID, salesOrderID int64) ([]Reservation, error) {
	return s.repo.ListReservations(ctx, companyID, salesOrderID)
}
