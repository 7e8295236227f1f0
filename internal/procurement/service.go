package procurement

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/forgeline/forgeline/internal/fulfillment"
	"github.com/forgeline/forgeline/internal/inventory"
	"github.com/forgeline/forgeline/internal/masterdata"
	"github.com/forgeline/forgeline/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPO(ctx context.Context, companyID, poID int64) (PurchaseOrder, error)
	ListForSalesOrder(ctx context.Context, companyID, salesOrderID int64) ([]PurchaseOrder, error)
	// OpenDraftQtyBySKU sums unreceived DRAFT line quantities referencing the
	// sales order, per SKU.
	OpenDraftQtyBySKU(ctx context.Context, companyID, salesOrderID int64) (map[int64]float64, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	CreatePO(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertPOLine(ctx context.Context, line POLine) (int64, error)
	GetPOLineForUpdate(ctx context.Context, companyID, poLineID int64) (POLine, PurchaseOrder, error)
	UpdatePOLineProgress(ctx context.Context, poLineID int64, receivedQty, shortClosedQty float64) error
	UpdatePOStatus(ctx context.Context, poID int64, status POStatus) error
}

// AvailabilityPort exposes the shortage calculation.
type AvailabilityPort interface {
	ComputeAvailability(ctx context.Context, companyID int64, demand []fulfillment.DemandLine, excludeOrderIDs []int64) (fulfillment.AvailabilityReport, error)
}

// DirectoryPort exposes required master-data lookups.
type DirectoryPort interface {
	GetPreferredVendor(ctx context.Context, companyID, skuID int64) (masterdata.Vendor, error)
	ZoneByType(ctx context.Context, companyID int64, zoneType masterdata.ZoneType) (masterdata.Zone, error)
}

// InventoryPort exposes required stock movement integration.
type InventoryPort interface {
	RecordMovement(ctx context.Context, input inventory.MovementInput) (inventory.Movement, error)
}

// ActivityPort abstracts the external activity-log writer.
type ActivityPort interface {
	Record(ctx context.Context, evt shared.ActivityEvent) error
}

// PlannerConfig groups optional planner settings.
type PlannerConfig struct {
	// OffsetOpenDrafts subtracts unreceived draft PO quantities already
	// referencing the sales order from new shortages, so re-invoking the
	// planner does not draft the same coverage twice.
	OffsetOpenDrafts bool
}

// Service drafts purchase orders against shortages and posts goods receipts.
type Service struct {
	repo         RepositoryPort
	availability AvailabilityPort
	directory    DirectoryPort
	inventory    InventoryPort
	activity     ActivityPort
	idempotency  *shared.IdempotencyStore
	cfg          PlannerConfig
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, availability AvailabilityPort, directory DirectoryPort, inventory InventoryPort, activity ActivityPort, idem *shared.IdempotencyStore, cfg PlannerConfig) *Service {
	return &Service{repo: repo, availability: availability, directory: directory, inventory: inventory, activity: activity, idempotency: idem, cfg: cfg}
}

// AutoDraftPurchaseOrders derives draft POs covering the demand batch's raw
// material shortages, one PO per preferred vendor. Drafts represent intended
// supply, not confirmed supply; nothing is reserved.
func (s *Service) AutoDraftPurchaseOrders(ctx context.Context, companyID, salesOrderID int64, soNumber string, demand []fulfillment.DemandLine) ([]PurchaseOrder, error) {
	if companyID == 0 || salesOrderID == 0 {
		return nil, fmt.Errorf("procurement: company and sales order required: %w", shared.ErrValidation)
	}
	report, err := s.availability.ComputeAvailability(ctx, companyID, demand, []int64{salesOrderID})
	if err != nil {
		return nil, err
	}

	shortage := make(map[int64]float64)
	for _, line := range report.Lines {
		if line.ShortageQty > 0 {
			shortage[line.SKUID] = line.ShortageQty
		}
	}
	if s.cfg.OffsetOpenDrafts && len(shortage) > 0 {
		open, err := s.repo.OpenDraftQtyBySKU(ctx, companyID, salesOrderID)
		if err != nil {
			return nil, err
		}
		for skuID, qty := range open {
			remaining := shortage[skuID] - qty
			if remaining <= 0 {
				delete(shortage, skuID)
			} else {
				shortage[skuID] = remaining
			}
		}
	}
	if len(shortage) == 0 {
		return nil, nil
	}

	// Group shortages by preferred vendor; vendor zero collects SKUs the
	// caller must assign manually before approval.
	groups := make(map[int64][]int64)
	for skuID := range shortage {
		vendor, err := s.directory.GetPreferredVendor(ctx, companyID, skuID)
		if err != nil {
			return nil, err
		}
		groups[vendor.ID] = append(groups[vendor.ID], skuID)
	}
	vendorIDs := make([]int64, 0, len(groups))
	for vendorID := range groups {
		vendorIDs = append(vendorIDs, vendorID)
	}
	sort.Slice(vendorIDs, func(i, j int) bool { return vendorIDs[i] < vendorIDs[j] })

	var drafts []PurchaseOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, vendorID := range vendorIDs {
			po := PurchaseOrder{
				CompanyID:       companyID,
				Number:          generateNumber("PO"),
				VendorID:        vendorID,
				Status:          POStatusDraft,
				RefSalesOrderID: salesOrderID,
				Note:            fmt.Sprintf("Auto-drafted for sales order %s", soNumber),
			}
			poID, err := tx.CreatePO(ctx, po)
			if err != nil {
				return err
			}
			po.ID = poID
			skuIDs := groups[vendorID]
			sort.Slice(skuIDs, func(i, j int) bool { return skuIDs[i] < skuIDs[j] })
			for _, skuID := range skuIDs {
				line := POLine{POID: poID, SKUID: skuID, Qty: shortage[skuID]}
				lineID, err := tx.InsertPOLine(ctx, line)
				if err != nil {
					return err
				}
				line.ID = lineID
				po.Lines = append(po.Lines, line)
			}
			drafts = append(drafts, po)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.activity != nil {
		_ = s.activity.Record(ctx, shared.ActivityEvent{
			CompanyID: companyID,
			Action:    "procurement:po_drafted",
			Entity:    "sales_order",
			EntityID:  fmt.Sprintf("%d", salesOrderID),
			Meta:      map[string]any{"purchase_orders": len(drafts), "so_number": soNumber},
		})
	}
	return drafts, nil
}

// ReceiveGoods posts a goods receipt against a PO line: increments the line's
// received quantity and records a RECEIPT movement into the raw-material zone.
func (s *Service) ReceiveGoods(ctx context.Context, input ReceiptInput) error {
	if input.Qty <= 0 {
		return fmt.Errorf("procurement: quantity must be positive: %w", shared.ErrValidation)
	}
	rawZone, err := s.directory.ZoneByType(ctx, input.CompanyID, masterdata.ZoneTypeRawMaterial)
	if err != nil {
		return err
	}
	refID := uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("GRN:%d:%d:%.4f", input.CompanyID, input.POLineID, input.Qty)))
	key := fmt.Sprintf("GRN:%s", refID)
	inserted := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "procurement.receipt"); err != nil {
			return err
		}
		inserted = true
	}
	var line POLine
	var prevStatus POStatus
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var po PurchaseOrder
		var err error
		line, po, err = tx.GetPOLineForUpdate(ctx, input.CompanyID, input.POLineID)
		if err != nil {
			return err
		}
		prevStatus = po.Status
		if po.Status == POStatusCancelled || po.Status == POStatusClosed {
			return fmt.Errorf("procurement: po %s is %s: %w", po.Number, po.Status, shared.ErrValidation)
		}
		if input.Qty > line.Outstanding() {
			return fmt.Errorf("procurement: receipt %.4f exceeds outstanding %.4f on line %d: %w",
				input.Qty, line.Outstanding(), line.ID, shared.ErrValidation)
		}
		line.ReceivedQty += input.Qty
		if err := tx.UpdatePOLineProgress(ctx, line.ID, line.ReceivedQty, line.ShortClosedQty); err != nil {
			return err
		}
		status := POStatusReceiving
		if line.Outstanding() == 0 && poFullySettledAfter(po, line) {
			status = POStatusClosed
		}
		return tx.UpdatePOStatus(ctx, po.ID, status)
	})
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, key)
		}
		return err
	}
	_, err = s.inventory.RecordMovement(ctx, inventory.MovementInput{
		CompanyID: input.CompanyID,
		SKUID:     line.SKUID,
		ZoneID:    rawZone.ID,
		Qty:       input.Qty,
		Direction: inventory.DirectionIn,
		Type:      inventory.MovementTypeReceipt,
		UnitCost:  input.UnitCost,
		RefModule: "PROCUREMENT",
		RefID:     refID.String(),
		Note:      input.Note,
		ActorID:   input.ActorID,
	})
	if err == nil {
		return nil
	}
	// Line progress committed but the ledger entry did not. Undo the progress
	// and free the GRN key so the receipt can be retried.
	compErr := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		cur, po, gerr := tx.GetPOLineForUpdate(ctx, input.CompanyID, input.POLineID)
		if gerr != nil {
			return gerr
		}
		if uerr := tx.UpdatePOLineProgress(ctx, cur.ID, cur.ReceivedQty-input.Qty, cur.ShortClosedQty); uerr != nil {
			return uerr
		}
		return tx.UpdatePOStatus(ctx, po.ID, prevStatus)
	})
	if compErr != nil {
		return fmt.Errorf("procurement: receipt movement failed, rollback also failed (%v): %w", compErr, err)
	}
	if inserted {
		_ = s.idempotency.Delete(ctx, key)
	}
	return err
}

// ShortClose marks part of a PO line's remainder as permanently not to be
// received.
func (s *Service) ShortClose(ctx context.Context, companyID, poLineID int64, qty float64) error {
	if qty <= 0 {
		return fmt.Errorf("procurement: quantity must be positive: %w", shared.ErrValidation)
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		line, po, err := tx.GetPOLineForUpdate(ctx, companyID, poLineID)
		if err != nil {
			return err
		}
		if qty > line.Outstanding() {
			return fmt.Errorf("procurement: short close %.4f exceeds outstanding %.4f on line %d: %w",
				qty, line.Outstanding(), line.ID, shared.ErrValidation)
		}
		line.ShortClosedQty += qty
		if err := tx.UpdatePOLineProgress(ctx, line.ID, line.ReceivedQty, line.ShortClosedQty); err != nil {
			return err
		}
		if line.Outstanding() == 0 && poFullySettledAfter(po, line) {
			return tx.UpdatePOStatus(ctx, po.ID, POStatusClosed)
		}
		return nil
	})
}

// GetPurchaseOrder loads one PO with lines.
func (s *Service) GetPurchaseOrder(ctx context.Context, companyID, poID int64) (PurchaseOrder, error) {
	return s.repo.GetPO(ctx, companyID, poID)
}

// ListForSalesOrder lists POs drafted against a sales order.
func (s *Service) ListForSalesOrder(ctx context.Context, companyID, salesOrderID int64) ([]PurchaseOrder, error) {
	return s.repo.ListForSalesOrder(ctx, companyID, salesOrderID)
}

// poFullySettledAfter reports whether every line of the PO is settled once
// the updated line is accounted for.
func poFullySettledAfter(po PurchaseOrder, updated POLine) bool {
	for _, line := range po.Lines {
		if line.ID == updated.ID {
			line = updated
		}
		if line.Outstanding() > 0 {
			return false
		}
	}
	return true
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
